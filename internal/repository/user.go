package repository

import (
	"context"
	"errors"

	"college-auth/internal/domain"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned when the username is already taken.
	ErrDuplicate = errors.New("user already exists")
)

// UserRepository defines persistence operations for User entities.
//
// Create must rely on a store-level unique constraint on username so that two
// concurrent registrations of the same name cannot both succeed.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	HasRole(ctx context.Context, role string) (bool, error)
}
