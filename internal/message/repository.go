package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/decidr-app/decidr-server/internal/attachment"
)

// messageQuery is the shared SELECT used by every read path. Messages are
// hydrated with the sender's user fields and the reply parent's snippet in a
// single query; attachments are fetched in one batched follow-up.
const messageQuery = `SELECT m.id, m.group_id, m.sender_id, m.type, m.content, m.reply_to_id,
       m.created_at, m.updated_at,
       u.name, u.email, u.image,
       rm.id, rm.content, ru.id, ru.name
FROM messages m
JOIN users u ON u.id = m.sender_id
LEFT JOIN messages rm ON rm.id = m.reply_to_id
LEFT JOIN users ru ON ru.id = rm.sender_id`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed message repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create persists a message and returns it hydrated. When a reply target is
// given, the insert runs in a transaction that first verifies the target
// exists in the same group.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Message, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create message tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.log.Warn().Err(err).Msg("tx rollback failed")
		}
	}()

	if params.ReplyToID != nil {
		var replyGroup uuid.UUID
		err := tx.QueryRow(ctx,
			"SELECT group_id FROM messages WHERE id = $1",
			*params.ReplyToID,
		).Scan(&replyGroup)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrReplyNotFound
			}
			return nil, fmt.Errorf("check reply target: %w", err)
		}
		if replyGroup != params.GroupID {
			return nil, ErrReplyNotFound
		}
	}

	id := NewID()
	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, group_id, sender_id, type, content, reply_to_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, params.GroupID, params.SenderID, params.Type, params.Content, params.ReplyToID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	row := tx.QueryRow(ctx, messageQuery+" WHERE m.id = $1", id)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("read back message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create message tx: %w", err)
	}
	msg.Attachments = []attachment.Attachment{}
	return msg, nil
}

// GetByID returns one hydrated message.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	row := r.db.QueryRow(ctx, messageQuery+" WHERE m.id = $1", id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	if err := r.loadAttachments(ctx, []*Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListForGroup returns up to limit hydrated messages newest first. The cursor
// is a (created_at, id) tuple comparison against the referenced message, so
// pages stay stable under concurrent inserts.
func (r *PGRepository) ListForGroup(ctx context.Context, groupID uuid.UUID, before *uuid.UUID, limit int) ([]Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if before != nil {
		rows, err = r.db.Query(ctx,
			messageQuery+` WHERE m.group_id = $1
			   AND (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE id = $2)
			 ORDER BY m.created_at DESC, m.id DESC
			 LIMIT $3`,
			groupID, *before, limit)
	} else {
		rows, err = r.db.Query(ctx,
			messageQuery+` WHERE m.group_id = $1
			 ORDER BY m.created_at DESC, m.id DESC
			 LIMIT $2`,
			groupID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query group messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	refs := make([]*Message, len(messages))
	for i := range messages {
		refs[i] = &messages[i]
	}
	if err := r.loadAttachments(ctx, refs); err != nil {
		return nil, err
	}
	return messages, nil
}

// UpdateContent replaces a message's content and returns the updated message.
func (r *PGRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string) (*Message, error) {
	tag, err := r.db.Exec(ctx,
		"UPDATE messages SET content = $1, updated_at = now() WHERE id = $2",
		content, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// DeleteCascade removes a message. Attachment rows cascade and replies keep
// their row with reply_to_id set to NULL, both at the schema level.
func (r *PGRepository) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM messages WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// loadAttachments fetches the attachments for a batch of messages in one
// query and distributes them onto the hydrated structs.
func (r *PGRepository) loadAttachments(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(messages))
	byID := make(map[uuid.UUID]*Message, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
		byID[m.ID] = m
		m.Attachments = []attachment.Attachment{}
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, message_id, url, mime_type, size, created_at
		 FROM attachments WHERE message_id = ANY($1) ORDER BY created_at, id`,
		ids)
	if err != nil {
		return fmt.Errorf("query message attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a attachment.Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.URL, &a.MimeType, &a.Size, &a.CreatedAt); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		if m, ok := byID[a.MessageID]; ok {
			m.Attachments = append(m.Attachments, a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate attachments: %w", err)
	}
	return nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var (
		m          Message
		replyID    *uuid.UUID
		replyBody  *string
		replyUID   *uuid.UUID
		replyUName *string
	)
	err := row.Scan(
		&m.ID, &m.GroupID, &m.SenderID, &m.Type, &m.Content, &m.ReplyToID,
		&m.CreatedAt, &m.UpdatedAt,
		&m.SenderName, &m.SenderEmail, &m.SenderImage,
		&replyID, &replyBody, &replyUID, &replyUName,
	)
	if err != nil {
		return nil, err
	}
	if replyID != nil {
		m.ReplyTo = &ReplySnippet{ID: *replyID, Content: *replyBody}
		if replyUID != nil {
			m.ReplyTo.SenderID = *replyUID
			m.ReplyTo.SenderName = *replyUName
		}
	}
	return &m, nil
}
