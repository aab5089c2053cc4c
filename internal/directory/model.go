package directory

import "errors"

var ErrNotFound = errors.New("directory: not found")

type Class struct {
	ID          string
	Name        string
	Code        string
	Description *string
	TeacherID   *string
	StudentIDs  []string // 登録順
	SubjectIDs  []string
}

func (c *Class) HasStudent(id string) bool {
	for _, s := range c.StudentIDs {
		if s == id {
			return true
		}
	}
	return false
}

func (c *Class) HasSubject(id string) bool {
	for _, s := range c.SubjectIDs {
		if s == id {
			return true
		}
	}
	return false
}

func (c *Class) IsTeacher(userID string) bool {
	return c.TeacherID != nil && *c.TeacherID == userID
}

// OwnerID: 担任がいなければ空文字
func (c *Class) OwnerID() string {
	if c.TeacherID == nil {
		return ""
	}
	return *c.TeacherID
}

type Subject struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Code    string `json:"code"`
	Credits int    `json:"credits"`
}

type Member struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	StudentCode *string `json:"studentCode,omitempty"`
}
