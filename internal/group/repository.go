package group

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const selectColumns = "id, name, description, is_private, creator_id, created_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed group repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts a new group and the creator's OWNER membership in one
// transaction.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Group, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create group tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.log.Warn().Err(err).Msg("tx rollback failed")
		}
	}()

	row := tx.QueryRow(ctx,
		`INSERT INTO groups (id, name, description, is_private, creator_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+selectColumns,
		uuid.New(), params.Name, params.Description, params.IsPrivate, params.CreatorID,
	)

	g, err := scanGroup(row)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO group_members (user_id, group_id, role) VALUES ($1, $2, 'OWNER')",
		params.CreatorID, g.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create group tx: %w", err)
	}
	return g, nil
}

// GetByID returns a single group by ID.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Group, error) {
	row := r.db.QueryRow(ctx, "SELECT "+selectColumns+" FROM groups WHERE id = $1", id)
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query group by id: %w", err)
	}
	return g, nil
}

// ListForUser returns every group the user belongs to, newest first.
func (r *PGRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Group, error) {
	rows, err := r.db.Query(ctx,
		`SELECT g.id, g.name, g.description, g.is_private, g.creator_id, g.created_at
		 FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = $1
		 ORDER BY g.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query groups for user: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// Delete removes a group. Messages and memberships cascade at the schema
// level.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM groups WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanGroup(row pgx.Row) (*Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.IsPrivate, &g.CreatorID, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}
