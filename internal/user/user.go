package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the user package.
var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email address is already registered")
)

// User holds the fields read from the users table.
type User struct {
	ID            uuid.UUID
	Name          string
	Email         string
	EmailVerified bool
	Image         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateParams groups the inputs for creating a new user.
type CreateParams struct {
	Name  string
	Email string
	Image *string
}

// Repository defines the data-access contract for user operations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
