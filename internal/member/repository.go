package member

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/decidr-app/decidr-server/internal/postgres"
)

// memberQuery is the shared SELECT used by Get and ListByGroup. It joins
// group_members with users so membership answers carry display fields.
const memberQuery = `SELECT gm.user_id, gm.group_id, gm.role, gm.joined_at,
       u.name, u.email, u.image
FROM group_members gm
JOIN users u ON u.id = gm.user_id`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed membership repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Get returns the membership of a user in a group.
func (r *PGRepository) Get(ctx context.Context, userID, groupID uuid.UUID) (*Membership, error) {
	row := r.db.QueryRow(ctx, memberQuery+" WHERE gm.user_id = $1 AND gm.group_id = $2", userID, groupID)
	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query membership: %w", err)
	}
	return m, nil
}

// ListByGroup returns all memberships of a group ordered by join time.
func (r *PGRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]Membership, error) {
	rows, err := r.db.Query(ctx, memberQuery+" WHERE gm.group_id = $1 ORDER BY gm.joined_at, gm.user_id", groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return members, nil
}

// Add inserts a membership and returns it with joined user fields.
func (r *PGRepository) Add(ctx context.Context, userID, groupID uuid.UUID, role string) (*Membership, error) {
	_, err := r.db.Exec(ctx,
		"INSERT INTO group_members (user_id, group_id, role) VALUES ($1, $2, $3)",
		userID, groupID, role,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, ErrAlreadyMember
		}
		if postgres.IsForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("insert membership: %w", err)
	}
	return r.Get(ctx, userID, groupID)
}

// Remove deletes a membership.
func (r *PGRepository) Remove(ctx context.Context, userID, groupID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM group_members WHERE user_id = $1 AND group_id = $2",
		userID, groupID,
	)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRole sets a member's role and returns the updated membership.
func (r *PGRepository) UpdateRole(ctx context.Context, userID, groupID uuid.UUID, role string) (*Membership, error) {
	tag, err := r.db.Exec(ctx,
		"UPDATE group_members SET role = $1 WHERE user_id = $2 AND group_id = $3",
		role, userID, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, userID, groupID)
}

// TransferOwnership demotes the current owner to ADMIN and promotes newOwner
// to OWNER inside one transaction. The demote runs first so the partial
// unique index on (group_id) WHERE role = 'OWNER' never sees two owners.
func (r *PGRepository) TransferOwnership(ctx context.Context, groupID, currentOwner, newOwner uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ownership transfer tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.log.Warn().Err(err).Msg("tx rollback failed")
		}
	}()

	tag, err := tx.Exec(ctx,
		"UPDATE group_members SET role = 'ADMIN' WHERE user_id = $1 AND group_id = $2 AND role = 'OWNER'",
		currentOwner, groupID,
	)
	if err != nil {
		return fmt.Errorf("demote current owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	tag, err = tx.Exec(ctx,
		"UPDATE group_members SET role = 'OWNER' WHERE user_id = $1 AND group_id = $2",
		newOwner, groupID,
	)
	if err != nil {
		return fmt.Errorf("promote new owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ownership transfer tx: %w", err)
	}
	return nil
}

func scanMembership(row pgx.Row) (*Membership, error) {
	var m Membership
	err := row.Scan(&m.UserID, &m.GroupID, &m.Role, &m.JoinedAt, &m.UserName, &m.UserEmail, &m.UserImage)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
