package group

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Sentinel errors for the group package.
var (
	ErrNotFound          = errors.New("group not found")
	ErrNameLength        = errors.New("group name must be between 1 and 100 characters")
	ErrDescriptionLength = errors.New("group description must not exceed 500 characters")
)

// Group holds the fields read from the groups table.
type Group struct {
	ID          uuid.UUID
	Name        string
	Description *string
	IsPrivate   bool
	CreatorID   uuid.UUID
	CreatedAt   time.Time
}

// CreateParams groups the inputs for creating a new group.
type CreateParams struct {
	Name        string
	Description *string
	IsPrivate   bool
	CreatorID   uuid.UUID
}

// ValidateName checks that a group name is between 1 and 100 runes after
// trimming. On success the value is replaced with the trimmed result.
func ValidateName(name *string) error {
	trimmed := strings.TrimSpace(*name)
	if utf8.RuneCountInString(trimmed) < 1 || utf8.RuneCountInString(trimmed) > 100 {
		return ErrNameLength
	}
	*name = trimmed
	return nil
}

// ValidateDescription checks that a non-nil description does not exceed 500
// runes.
func ValidateDescription(description *string) error {
	if description == nil {
		return nil
	}
	if utf8.RuneCountInString(*description) > 500 {
		return ErrDescriptionLength
	}
	return nil
}

// Repository defines the data-access contract for group operations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Group, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Group, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Group, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
