package attachment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectColumns = "id, message_id, url, mime_type, size, created_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db *pgxpool.Pool
}

// NewPGRepository creates a new PostgreSQL-backed attachment repository.
func NewPGRepository(db *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: db}
}

// Create inserts an attachment row for a message.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Attachment, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO attachments (id, message_id, url, mime_type, size)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+selectColumns,
		uuid.New(), params.MessageID, params.URL, params.MimeType, params.Size,
	)

	a, err := scanAttachment(row)
	if err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}
	return a, nil
}

// ListByMessage returns the attachments of a message in insertion order.
func (r *PGRepository) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]Attachment, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+selectColumns+" FROM attachments WHERE message_id = $1 ORDER BY created_at, id",
		messageID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	var attachments []Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return attachments, nil
}

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.MessageID, &a.URL, &a.MimeType, &a.Size, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
