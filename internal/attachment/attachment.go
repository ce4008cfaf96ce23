package attachment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an attachment does not exist.
var ErrNotFound = errors.New("attachment not found")

// Attachment holds the fields read from the attachments table. Rows are
// cascade-deleted with their message.
type Attachment struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	URL       string
	MimeType  *string
	Size      *int64
	CreatedAt time.Time
}

// CreateParams groups the inputs for attaching a stored object to a message.
// The upload itself happens elsewhere; this records the resulting URL.
type CreateParams struct {
	MessageID uuid.UUID
	URL       string
	MimeType  *string
	Size      *int64
}

// Repository defines the data-access contract for attachment operations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Attachment, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]Attachment, error)
}
