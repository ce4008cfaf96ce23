package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/authz"
	"github.com/decidr-app/decidr-server/internal/group"
	"github.com/decidr-app/decidr-server/internal/httputil"
	"github.com/decidr-app/decidr-server/internal/member"
)

// GroupHandler serves group CRUD endpoints.
type GroupHandler struct {
	groups  group.Repository
	members member.Repository
	oracle  *authz.Oracle
	log     zerolog.Logger
}

// NewGroupHandler creates a new group handler.
func NewGroupHandler(groups group.Repository, members member.Repository, oracle *authz.Oracle, logger zerolog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, members: members, oracle: oracle, log: logger}
}

type createGroupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	IsPrivate   bool    `json:"isPrivate"`
}

// Create handles POST /api/v1/groups. The creator becomes the group's OWNER
// in the same transaction.
func (h *GroupHandler) Create(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}

	var body createGroupRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}
	if err := group.ValidateName(&body.Name); err != nil {
		return h.mapGroupError(c, err)
	}
	if err := group.ValidateDescription(body.Description); err != nil {
		return h.mapGroupError(c, err)
	}

	g, err := h.groups.Create(c, group.CreateParams{
		Name:        body.Name,
		Description: body.Description,
		IsPrivate:   body.IsPrivate,
		CreatorID:   identity.UserID,
	})
	if err != nil {
		return h.mapGroupError(c, err)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, toGroupResponse(g))
}

// Get handles GET /api/v1/groups/:groupID. Access requires membership or
// being the creator.
func (h *GroupHandler) Get(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}
	groupID, ok := parseIDParam(c, "groupID")
	if !ok {
		return nil
	}

	g, err := h.oracle.AssertGroupAccess(c, identity.UserID, groupID)
	if err != nil {
		return h.mapGroupError(c, err)
	}
	return httputil.Success(c, toGroupResponse(g))
}

// List handles GET /api/v1/groups, returning the caller's groups.
func (h *GroupHandler) List(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}

	groups, err := h.groups.ListForUser(c, identity.UserID)
	if err != nil {
		return h.mapGroupError(c, err)
	}

	out := make([]groupResponse, 0, len(groups))
	for i := range groups {
		out = append(out, toGroupResponse(&groups[i]))
	}
	return httputil.Success(c, out)
}

// Delete handles DELETE /api/v1/groups/:groupID. Only the OWNER may delete a
// group; messages and memberships cascade at the schema level.
func (h *GroupHandler) Delete(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}
	groupID, ok := parseIDParam(c, "groupID")
	if !ok {
		return nil
	}

	m, err := h.members.Get(c, identity.UserID, groupID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "Only the owner can delete a group")
		}
		return h.mapGroupError(c, err)
	}
	if m.Role != member.RoleOwner {
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "Only the owner can delete a group")
	}

	if err := h.groups.Delete(c, groupID); err != nil {
		return h.mapGroupError(c, err)
	}
	return httputil.Success(c, fiber.Map{"deleted": true})
}

// mapGroupError converts group-layer errors to HTTP responses.
func (h *GroupHandler) mapGroupError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, group.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Group not found")
	case errors.Is(err, authz.ErrForbidden):
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You do not have access to this group")
	case errors.Is(err, group.ErrNameLength), errors.Is(err, group.ErrDescriptionLength):
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, err.Error())
	default:
		h.log.Error().Err(err).Str("handler", "group").Msg("unhandled group service error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
}
