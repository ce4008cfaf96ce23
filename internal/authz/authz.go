// Package authz answers the access questions every surface asks before
// touching a room: is this token valid, is this user in this group, may this
// user act on this resource.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/decidr-app/decidr-server/internal/auth"
	"github.com/decidr-app/decidr-server/internal/group"
	"github.com/decidr-app/decidr-server/internal/member"
)

// ErrForbidden is returned when the caller is authenticated but not allowed
// to access the resource.
var ErrForbidden = errors.New("access to this group is forbidden")

// Oracle bundles token verification with group access checks. The gateway and
// the REST handlers share one instance so both surfaces give identical
// answers.
type Oracle struct {
	verifier *auth.Verifier
	groups   group.Repository
	members  member.Repository
}

// NewOracle creates an authorization oracle.
func NewOracle(verifier *auth.Verifier, groups group.Repository, members member.Repository) *Oracle {
	return &Oracle{verifier: verifier, groups: groups, members: members}
}

// VerifyToken validates an access token and returns the identity it carries.
func (o *Oracle) VerifyToken(tokenStr string) (*auth.Identity, error) {
	claims, err := o.verifier.VerifyAccess(tokenStr)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	return &auth.Identity{
		UserID:        userID,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// GetMembership returns the user's membership in a group, or
// member.ErrNotFound.
func (o *Oracle) GetMembership(ctx context.Context, userID, groupID uuid.UUID) (*member.Membership, error) {
	return o.members.Get(ctx, userID, groupID)
}

// IsMember reports whether the user belongs to the group.
func (o *Oracle) IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	_, err := o.members.Get(ctx, userID, groupID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

// AssertGroupAccess verifies the group exists and the user may read it: the
// user is a member or the group's creator. Returns group.ErrNotFound for a
// missing group and ErrForbidden for an outsider, so callers can map the two
// to distinct wire errors.
func (o *Oracle) AssertGroupAccess(ctx context.Context, userID, groupID uuid.UUID) (*group.Group, error) {
	g, err := o.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.CreatorID == userID {
		return g, nil
	}
	ok, err := o.IsMember(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return g, nil
}
