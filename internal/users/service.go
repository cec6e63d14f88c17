package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateInput describes account creation payload.
type CreateInput struct {
	Email    string
	Name     string
	Role     string
	Password string
}

// List returns users matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	return s.repo.List(ctx, filters)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, errors.New("invalid user ID")
	}
	return s.repo.Get(ctx, id)
}

// Create hashes the password and persists the account.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	if err := validate(input.Email, input.Name, input.Role); err != nil {
		return User{}, err
	}
	if len(input.Password) < 8 {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Name:         strings.TrimSpace(input.Name),
		Role:         input.Role,
		IsActive:     true,
		PasswordHash: string(hash),
	}
	return s.repo.Create(ctx, user)
}

// Update changes profile fields. Password changes go through SetPassword.
func (s *Service) Update(ctx context.Context, id int64, email, name, role string) error {
	if id <= 0 {
		return errors.New("invalid user ID")
	}
	if err := validate(email, name, role); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, User{
		Email: strings.ToLower(strings.TrimSpace(email)),
		Name:  strings.TrimSpace(name),
		Role:  role,
	})
}

// SetPassword rehashes and stores a new password.
func (s *Service) SetPassword(ctx context.Context, id int64, password string) error {
	if id <= 0 {
		return errors.New("invalid user ID")
	}
	if len(password) < 8 {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.SetPasswordHash(ctx, id, string(hash))
}

// SetActive enables or disables the account.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	if id <= 0 {
		return errors.New("invalid user ID")
	}
	return s.repo.SetActive(ctx, id, active)
}

// Authenticate validates email/password credentials. Lookup failures and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

func validate(email, name, role string) error {
	if strings.TrimSpace(email) == "" || !strings.Contains(email, "@") {
		return errors.New("valid email is required")
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	switch role {
	case RoleAdmin, RoleStorekeeper, RoleViewer:
		return nil
	default:
		return fmt.Errorf("unknown role %q", role)
	}
}
