package member

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the member package.
var (
	ErrNotFound      = errors.New("membership not found")
	ErrAlreadyMember = errors.New("user is already a member of this group")
	ErrOwnerRemoval  = errors.New("the owner must transfer ownership before leaving")
	ErrInvalidRole   = errors.New("role must be OWNER, ADMIN, or MEMBER")
)

// Group roles. Every group has exactly one OWNER; the creator's first
// membership is OWNER.
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Membership holds a group_members row joined with the member's public user
// fields.
type Membership struct {
	UserID   uuid.UUID
	GroupID  uuid.UUID
	Role     string
	JoinedAt time.Time

	// User fields joined from the users table.
	UserName  string
	UserEmail string
	UserImage *string
}

// ValidRole reports whether the given role is one of the three group roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// CanAdd reports whether a member with actorRole may add new members.
func CanAdd(actorRole string) bool {
	return actorRole == RoleOwner || actorRole == RoleAdmin
}

// CanRemove reports whether a member with actorRole may remove a member with
// targetRole. Self-removal is allowed for every role except OWNER, who must
// transfer ownership first.
func CanRemove(actorRole, targetRole string, self bool) bool {
	if self {
		return targetRole != RoleOwner
	}
	switch actorRole {
	case RoleOwner:
		return targetRole != RoleOwner
	case RoleAdmin:
		return targetRole == RoleMember
	default:
		return false
	}
}

// CanChangeRole reports whether a member with actorRole may move a member
// from targetRole to newRole. Promoting to OWNER is an ownership transfer
// and is reserved to the current owner.
func CanChangeRole(actorRole, targetRole, newRole string) bool {
	switch {
	case targetRole == RoleMember && newRole == RoleAdmin:
		return actorRole == RoleOwner || actorRole == RoleAdmin
	case targetRole == RoleAdmin && newRole == RoleMember:
		return actorRole == RoleOwner
	case targetRole == RoleAdmin && newRole == RoleOwner:
		return actorRole == RoleOwner
	default:
		return false
	}
}

// Repository defines the data-access contract for membership operations.
type Repository interface {
	Get(ctx context.Context, userID, groupID uuid.UUID) (*Membership, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]Membership, error)
	Add(ctx context.Context, userID, groupID uuid.UUID, role string) (*Membership, error)
	Remove(ctx context.Context, userID, groupID uuid.UUID) error
	UpdateRole(ctx context.Context, userID, groupID uuid.UUID, role string) (*Membership, error)

	// TransferOwnership promotes newOwner to OWNER and demotes the current
	// owner to ADMIN in one transaction, preserving the one-owner invariant.
	TransferOwnership(ctx context.Context, groupID, currentOwner, newOwner uuid.UUID) error
}
