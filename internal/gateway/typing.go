package gateway

import (
	"context"
	"encoding/json"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/event"
)

// handleTypingStart marks the user as typing and tells the other occupants.
// Repeated starts refresh the ten second marker and rebroadcast, so clients
// that key their indicator off the last event keep showing it.
func (h *Hub) handleTypingStart(c *Client, data json.RawMessage) {
	groupID, ok := c.parseGroupRef(data)
	if !ok {
		return
	}
	if !c.inRoom(groupID) {
		c.sendError(apierrors.Forbidden, "join the group before typing")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	// Room occupancy alone is not enough: a member removed since joining
	// must not keep signalling into the room.
	isMember, err := h.oracle.IsMember(ctx, c.UserID(), groupID)
	if err != nil {
		h.log.Error().Err(err).Stringer("group_id", groupID).Msg("Membership check failed")
		c.sendError(apierrors.InternalError, "could not verify membership")
		return
	}
	if !isMember {
		c.sendError(apierrors.Forbidden, "you are not a member of this group")
		return
	}

	if err := h.presence.SetTyping(ctx, groupID, c.UserID()); err != nil {
		// The broadcast still goes out; the marker only backs the
		// disconnect sweep and cross-node state.
		h.log.Warn().Err(err).Stringer("group_id", groupID).Msg("Failed to set typing marker")
	}

	h.broadcast(groupID, event.UserTyping, event.TypingPayload{
		GroupID:  groupID.String(),
		UserID:   c.UserID().String(),
		UserName: c.UserName(),
	}, c)
}

// handleTypingStop clears the typing marker. The stop broadcast only goes out
// when a marker actually existed, so a stop after expiry stays silent.
func (h *Hub) handleTypingStop(c *Client, data json.RawMessage) {
	groupID, ok := c.parseGroupRef(data)
	if !ok {
		return
	}
	if !c.inRoom(groupID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	existed, err := h.presence.ClearTyping(ctx, groupID, c.UserID())
	if err != nil {
		h.log.Warn().Err(err).Stringer("group_id", groupID).Msg("Failed to clear typing marker")
		return
	}
	if !existed {
		return
	}

	h.broadcast(groupID, event.UserStoppedTyping, event.TypingPayload{
		GroupID:  groupID.String(),
		UserID:   c.UserID().String(),
		UserName: c.UserName(),
	}, c)
}
