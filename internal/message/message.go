package message

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/decidr-app/decidr-server/internal/attachment"
)

// Sentinel errors for the message package.
var (
	ErrNotFound       = errors.New("message not found")
	ErrEmptyContent   = errors.New("message content must not be empty")
	ErrContentTooLong = errors.New("message content exceeds the maximum length")
	ErrReplyNotFound  = errors.New("reply target does not exist in this group")
	ErrNotSender      = errors.New("you can only modify your own messages")
)

// Message types. SYSTEM messages are synthesized for fan-out only and are
// never persisted, which is why the messages table does not admit the value.
const (
	TypeText   = "TEXT"
	TypeImage  = "IMAGE"
	TypeFile   = "FILE"
	TypeSystem = "SYSTEM"
)

// Content and pagination limits.
const (
	MaxContentLength = 5000
	DefaultLimit     = 50
	MaxLimit         = 100
)

// Message holds a messages row hydrated with the sender's user fields, the
// reply-parent snippet, and the attachment list.
type Message struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	SenderID  uuid.UUID
	Type      string
	Content   string
	ReplyToID *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time

	// Sender fields joined from the users table.
	SenderName  string
	SenderEmail string
	SenderImage *string

	ReplyTo     *ReplySnippet
	Attachments []attachment.Attachment
}

// ReplySnippet is the reduced view of a reply parent carried on hydrated
// messages.
type ReplySnippet struct {
	ID         uuid.UUID
	Content    string
	SenderID   uuid.UUID
	SenderName string
}

// CreateParams groups the inputs for persisting a new message.
type CreateParams struct {
	GroupID   uuid.UUID
	SenderID  uuid.UUID
	Type      string
	Content   string
	ReplyToID *uuid.UUID
}

// ValidStoredType reports whether the given type may be persisted.
func ValidStoredType(t string) bool {
	switch t {
	case TypeText, TypeImage, TypeFile:
		return true
	default:
		return false
	}
}

// ValidateContent checks that content is non-empty after trimming and, for
// TEXT messages, does not exceed MaxContentLength runes. Returns the trimmed
// content.
func ValidateContent(content, msgType string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if msgType == TypeText && utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// ClampLimit constrains a requested page size to [1, MaxLimit], defaulting
// to DefaultLimit when the input is zero or negative.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Repository defines the data-access contract for message operations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)

	// ListForGroup returns hydrated messages newest first. When before is
	// non-nil, only messages older than the referenced message are returned.
	ListForGroup(ctx context.Context, groupID uuid.UUID, before *uuid.UUID, limit int) ([]Message, error)

	UpdateContent(ctx context.Context, id uuid.UUID, content string) (*Message, error)

	// DeleteCascade removes the message; attachments cascade at the schema
	// level.
	DeleteCascade(ctx context.Context, id uuid.UUID) error
}

// Page is one page of history in chronological (oldest-first) order.
type Page struct {
	Messages    []Message
	HasNextPage bool
	NextCursor  *uuid.UUID
}

// HistoryPage reads one page of a group's history. The repository query runs
// newest-first with limit+1 rows to detect a further page; the cursor is the
// id of the oldest returned message, and the result is reversed so clients
// receive chronological order.
func HistoryPage(ctx context.Context, repo Repository, groupID uuid.UUID, before *uuid.UUID, limit int) (*Page, error) {
	limit = ClampLimit(limit)

	messages, err := repo.ListForGroup(ctx, groupID, before, limit+1)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	if len(messages) > limit {
		page.HasNextPage = true
		messages = messages[:limit]
	}
	if page.HasNextPage && len(messages) > 0 {
		oldest := messages[len(messages)-1].ID
		page.NextCursor = &oldest
	}

	// Reverse in place: the query returns newest first, the wire contract is
	// oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	page.Messages = messages
	return page, nil
}

// NewID returns a message id that sorts lexically in insertion order
// (UUIDv7), which is what makes ids usable as history cursors.
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4
		// rather than dropping the message.
		return uuid.New()
	}
	return id
}
