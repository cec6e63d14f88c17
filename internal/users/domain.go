// Package users manages the accounts that documents and ledger movements
// reference as actors.
package users

import (
	"context"
	"errors"
	"time"
)

// Roles recognised by the back office.
const (
	RoleAdmin       = "ADMIN"
	RoleStorekeeper = "STOREKEEPER"
	RoleViewer      = "VIEWER"
)

var (
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	ErrWeakPassword       = errors.New("users: password must be at least 8 characters")
)

// User represents a user account. PasswordHash never leaves the package
// through JSON.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListFilters narrows user listings.
type ListFilters struct {
	Search   string
	IsActive *bool
	Page     int
	Limit    int
}

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, filters ListFilters) ([]User, int, error)
	Get(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, id int64, user User) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	SetActive(ctx context.Context, id int64, active bool) error
}
