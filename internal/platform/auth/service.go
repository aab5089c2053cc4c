package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"campus-backend/internal/platform/apierr"
	"campus-backend/internal/platform/ids"
)

type Service struct {
	store  UserStore
	clock  ids.Clock
	id     ids.IDGen
	secret []byte
	ttl    time.Duration
	cost   int
}

func NewService(store UserStore, secret []byte, ttl time.Duration) *Service {
	return &Service{
		store:  store,
		clock:  ids.SystemClock{},
		id:     ids.NewULIDGen(),
		secret: secret,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
	}
}

func (s *Service) Secret() []byte { return s.secret }

// Signup: 自己登録は常に student
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	u, err := s.create(ctx, req, RoleStudent)
	if err != nil {
		return nil, err
	}
	return s.respond(u)
}

// CreateUser: admin による任意ロールのユーザ作成
func (s *Service) CreateUser(ctx context.Context, caller Caller, req CreateUserRequest) (*UserResponse, error) {
	if !caller.IsAdmin() {
		return nil, apierr.Forbidden("only admin can create users")
	}
	if !req.Role.Valid() {
		return nil, apierr.Invalid("role must be admin, teacher or student")
	}
	u, err := s.create(ctx, req.SignupRequest, req.Role)
	if err != nil {
		return nil, err
	}
	dto := u.toDTO()
	return &dto, nil
}

// EnsureUser: email が既にあれば既存ユーザを返す（seed 用）
func (s *Service) EnsureUser(ctx context.Context, req SignupRequest, role Role) (*User, error) {
	u, err := s.store.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}
	return s.create(ctx, req, role)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	u, err := s.store.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apierr.Unauthenticated("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apierr.Unauthenticated("invalid email or password")
	}
	return s.respond(u)
}

func (s *Service) Me(ctx context.Context, caller Caller) (*UserResponse, error) {
	u, err := s.store.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apierr.NotFound("user not found")
	}
	dto := u.toDTO()
	return &dto, nil
}

func (s *Service) create(ctx context.Context, req SignupRequest, role Role) (*User, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if name == "" || email == "" || req.Password == "" {
		return nil, apierr.Invalid("name, email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, err
	}
	id, err := s.id.New()
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		StudentCode:  req.StudentCode,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, apierr.Conflict("email already registered")
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) respond(u *User) (*AuthResponse, error) {
	token, err := IssueToken(s.secret, u, s.clock.Now(), s.ttl)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{User: u.toDTO(), Token: token}, nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
