package auth

import "time"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	StudentCode  *string
	CreatedAt    time.Time
}

// Caller: 認証済みリクエストの (userId, role)。サービス層へはこの値だけを渡す
type Caller struct {
	UserID string
	Role   Role
}

func (c Caller) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// CanManage: admin は所有者チェックを常にバイパスする（存在チェックは呼び出し側）
func (c Caller) CanManage(ownerID string) bool {
	if c.IsAdmin() {
		return true
	}
	return ownerID != "" && c.UserID == ownerID
}
