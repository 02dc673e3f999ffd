package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"hisab/internal/auth"
	"hisab/internal/core"
	"hisab/internal/log"
)

// UserService registers users and checks credentials.
type UserService struct {
	users  UserStore
	logger *log.Logger
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users, logger: log.Component(log.ComponentAuth)}
}

// Register creates a user with a bcrypt-hashed password.
func (s *UserService) Register(ctx context.Context, name, email, password string, role core.UserRole) (core.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.User{}, ErrEmptyName
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return core.User{}, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	if !role.IsValid() {
		return core.User{}, ErrWrongRole
	}
	if _, err := s.users.GetUserByEmail(ctx, addr.Address); err == nil {
		return core.User{}, ErrEmailTaken
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.User{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return core.User{}, err
	}
	u := core.User{Name: name, Email: addr.Address, Role: role, PasswordHash: hash}
	if u.ID, err = s.users.CreateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return s.users.GetUser(ctx, u.ID)
}

// Login returns the user whose credentials match. Unknown e-mails and wrong
// passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (core.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		s.logger.WarnContext(ctx, "Login failed", log.NewFields().WithUser(u.ID).WithOperation(log.OpLogin).ToSlice()...)
		return core.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (core.User, error) {
	return s.users.GetUser(ctx, id)
}
