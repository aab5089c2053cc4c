package auth

import (
	"context"
	"database/sql"
	"errors"

	"campus-backend/internal/platform/db"
)

var ErrAlreadyExists = errors.New("already exists")

type UserStore interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
}

type Store struct{ db db.DBTX }

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

const selectUser = `
SELECT id, name, email, password_hash, role, student_code, created_at
FROM users
`

func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	return s.getOne(ctx, selectUser+`WHERE id = ? LIMIT 1`, id)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getOne(ctx, selectUser+`WHERE email = ? LIMIT 1`, email)
}

// 見つからなければ (nil, nil)
func (s *Store) getOne(ctx context.Context, q string, arg any) (*User, error) {
	var (
		u    User
		role string
		sc   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &sc, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	if sc.Valid {
		u.StudentCode = &sc.String
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *User) error {
	const q = `
INSERT INTO users (id, name, email, password_hash, role, student_code, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`
	var sc any
	if u.StudentCode != nil && *u.StudentCode != "" {
		sc = *u.StudentCode
	}
	_, err := s.db.ExecContext(ctx, q, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), sc, u.CreatedAt)
	if db.IsDuplicate(err) {
		return ErrAlreadyExists
	}
	return err
}
