package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/authz"
	"github.com/decidr-app/decidr-server/internal/event"
	"github.com/decidr-app/decidr-server/internal/group"
	"github.com/decidr-app/decidr-server/internal/httputil"
	"github.com/decidr-app/decidr-server/internal/member"
)

// MemberHandler serves group membership endpoints.
type MemberHandler struct {
	members member.Repository
	oracle  *authz.Oracle
	rooms   Broadcaster
	log     zerolog.Logger
}

// NewMemberHandler creates a new membership handler.
func NewMemberHandler(members member.Repository, oracle *authz.Oracle, rooms Broadcaster, logger zerolog.Logger) *MemberHandler {
	return &MemberHandler{members: members, oracle: oracle, rooms: rooms, log: logger}
}

// List handles GET /api/v1/groups/:groupID/members.
func (h *MemberHandler) List(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}
	groupID, ok := parseIDParam(c, "groupID")
	if !ok {
		return nil
	}

	if _, err := h.oracle.AssertGroupAccess(c, identity.UserID, groupID); err != nil {
		return h.mapMemberError(c, err)
	}

	memberships, err := h.members.ListByGroup(c, groupID)
	if err != nil {
		return h.mapMemberError(c, err)
	}

	out := make([]membershipResponse, 0, len(memberships))
	for i := range memberships {
		out = append(out, toMembershipResponse(&memberships[i]))
	}
	return httputil.Success(c, out)
}

type addMemberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Add handles POST /api/v1/groups/:groupID/members. Owners and admins may add
// members; nobody may add an OWNER.
func (h *MemberHandler) Add(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}
	groupID, ok := parseIDParam(c, "groupID")
	if !ok {
		return nil
	}

	var body addMemberRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}
	targetID, err := uuid.Parse(body.UserID)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "userId must be a valid id")
	}

	role := body.Role
	if role == "" {
		role = member.RoleMember
	}
	if !member.ValidRole(role) || role == member.RoleOwner {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "role must be ADMIN or MEMBER")
	}

	actor, err := h.members.Get(c, identity.UserID, groupID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You are not a member of this group")
		}
		return h.mapMemberError(c, err)
	}
	if !member.CanAdd(actor.Role) {
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "Only owners and admins can add members")
	}

	m, err := h.members.Add(c, targetID, groupID, role)
	if err != nil {
		return h.mapMemberError(c, err)
	}

	// Room occupants see membership changes as ephemeral SYSTEM messages.
	h.rooms.PublishToRoom(groupID, event.MessageReceived,
		event.NewSystemMessage(groupID, m.UserName+" joined the group"))

	return httputil.SuccessStatus(c, fiber.StatusCreated, toMembershipResponse(m))
}

// Remove handles DELETE /api/v1/groups/:groupID/members/:userID. Members may
// remove themselves; owners remove anyone below them; admins remove members.
// The owner must transfer ownership before leaving.
func (h *MemberHandler) Remove(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}
	groupID, ok := parseIDParam(c, "groupID")
	if !ok {
		return nil
	}
	targetID, ok := parseIDParam(c, "userID")
	if !ok {
		return nil
	}

	actor, err := h.members.Get(c, identity.UserID, groupID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You are not a member of this group")
		}
		return h.mapMemberError(c, err)
	}

	target, err := h.members.Get(c, targetID, groupID)
	if err != nil {
		return h.mapMemberError(c, err)
	}

	self := identity.UserID == targetID
	if self && target.Role == member.RoleOwner {
		return h.mapMemberError(c, member.ErrOwnerRemoval)
	}
	if !member.CanRemove(actor.Role, target.Role, self) {
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You cannot remove this member")
	}

	if err := h.members.Remove(c, targetID, groupID); err != nil {
		return h.mapMemberError(c, err)
	}

	h.rooms.PublishToRoom(groupID, event.MessageReceived,
		event.NewSystemMessage(groupID, target.UserName+" left the group"))

	return httputil.Success(c, fiber.Map{"removed": true})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole handles PATCH /api/v1/groups/:groupID/members/:userID. Promoting
// to OWNER is an ownership transfer: the current owner is demoted to ADMIN in
// the same transaction.
func (h *MemberHandler) UpdateRole(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}
	groupID, ok := parseIDParam(c, "groupID")
	if !ok {
		return nil
	}
	targetID, ok := parseIDParam(c, "userID")
	if !ok {
		return nil
	}

	var body updateRoleRequest
	if err := c.Bind().Body(&body); err != nil || !member.ValidRole(body.Role) {
		return h.mapMemberError(c, member.ErrInvalidRole)
	}

	actor, err := h.members.Get(c, identity.UserID, groupID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You are not a member of this group")
		}
		return h.mapMemberError(c, err)
	}
	target, err := h.members.Get(c, targetID, groupID)
	if err != nil {
		return h.mapMemberError(c, err)
	}

	if target.Role == body.Role {
		return httputil.Success(c, toMembershipResponse(target))
	}
	if !member.CanChangeRole(actor.Role, target.Role, body.Role) {
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You cannot change this member's role")
	}

	if body.Role == member.RoleOwner {
		if err := h.members.TransferOwnership(c, groupID, identity.UserID, targetID); err != nil {
			return h.mapMemberError(c, err)
		}
		updated, err := h.members.Get(c, targetID, groupID)
		if err != nil {
			return h.mapMemberError(c, err)
		}
		return httputil.Success(c, toMembershipResponse(updated))
	}

	updated, err := h.members.UpdateRole(c, targetID, groupID, body.Role)
	if err != nil {
		return h.mapMemberError(c, err)
	}
	return httputil.Success(c, toMembershipResponse(updated))
}

// mapMemberError converts membership-layer errors to HTTP responses.
func (h *MemberHandler) mapMemberError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, member.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Membership not found")
	case errors.Is(err, group.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Group not found")
	case errors.Is(err, member.ErrAlreadyMember):
		return httputil.Fail(c, fiber.StatusConflict, apierrors.Conflict, err.Error())
	case errors.Is(err, member.ErrOwnerRemoval):
		return httputil.Fail(c, fiber.StatusConflict, apierrors.Conflict, err.Error())
	case errors.Is(err, member.ErrInvalidRole):
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, err.Error())
	case errors.Is(err, authz.ErrForbidden):
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You do not have access to this group")
	default:
		h.log.Error().Err(err).Str("handler", "member").Msg("unhandled member service error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
}
