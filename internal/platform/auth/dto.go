package auth

import "time"

type SignupRequest struct {
	Name        string  `json:"name" binding:"required,max=100"`
	Email       string  `json:"email" binding:"required,email"`
	Password    string  `json:"password" binding:"required,min=6,max=72"`
	StudentCode *string `json:"studentCode,omitempty" binding:"omitempty,max=32"`
}

type CreateUserRequest struct {
	SignupRequest
	Role Role `json:"role" binding:"required,oneof=admin teacher student"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UserResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	StudentCode *string   `json:"studentCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

func (u *User) toDTO() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		StudentCode: u.StudentCode,
		CreatedAt:   u.CreatedAt,
	}
}
