package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/event"
	"github.com/decidr-app/decidr-server/internal/message"
	"github.com/decidr-app/decidr-server/internal/metrics"
)

// handleSendMessage validates, persists, and fans out a new message. The
// sender must be a group member and must have joined the room on this
// session; the broadcast includes the sender, which doubles as their delivery
// receipt.
func (h *Hub) handleSendMessage(c *Client, data json.RawMessage) {
	var p event.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(apierrors.ValidationError, "invalid payload")
		return
	}

	groupID, err := uuid.Parse(p.GroupID)
	if err != nil {
		c.sendError(apierrors.ValidationError, "groupId must be a valid id")
		return
	}

	msgType := p.Type
	if msgType == "" {
		msgType = message.TypeText
	}
	if !message.ValidStoredType(msgType) {
		c.sendError(apierrors.ValidationError, "type must be TEXT, IMAGE, or FILE")
		return
	}

	content, err := message.ValidateContent(p.Content, msgType)
	if err != nil {
		c.sendError(apierrors.ValidationError, err.Error())
		return
	}

	var replyToID *uuid.UUID
	if p.ReplyToID != nil {
		id, err := uuid.Parse(*p.ReplyToID)
		if err != nil {
			c.sendError(apierrors.ValidationError, "replyToId must be a valid id")
			return
		}
		replyToID = &id
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

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
	if !c.inRoom(groupID) {
		c.sendError(apierrors.Forbidden, "join the group before sending messages")
		return
	}

	msg, err := h.messages.Create(ctx, message.CreateParams{
		GroupID:   groupID,
		SenderID:  c.UserID(),
		Type:      msgType,
		Content:   content,
		ReplyToID: replyToID,
	})
	if err != nil {
		if errors.Is(err, message.ErrReplyNotFound) {
			c.sendError(apierrors.ValidationError, "replyToId does not name a message in this group")
			return
		}
		h.log.Error().Err(err).Stringer("group_id", groupID).Msg("Failed to persist message")
		c.sendError(apierrors.InternalError, "could not send message")
		return
	}
	metrics.MessagesSent.WithLabelValues("socket").Inc()

	h.broadcast(groupID, event.MessageReceived, event.FromMessage(msg), nil)

	// Sending implicitly ends typing.
	existed, err := h.presence.ClearTyping(ctx, groupID, c.UserID())
	if err != nil {
		h.log.Warn().Err(err).Stringer("group_id", groupID).Msg("Failed to clear typing after send")
		return
	}
	if existed {
		h.broadcast(groupID, event.UserStoppedTyping, event.TypingPayload{
			GroupID:  groupID.String(),
			UserID:   c.UserID().String(),
			UserName: c.UserName(),
		}, c)
	}
}

// handleGetGroupMessages answers a history request with one page of messages,
// oldest first. Access requires membership or being the group's creator, not
// a joined room.
func (h *Hub) handleGetGroupMessages(c *Client, data json.RawMessage) {
	var p event.GetGroupMessagesPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(apierrors.ValidationError, "invalid payload")
		return
	}

	groupID, err := uuid.Parse(p.GroupID)
	if err != nil {
		c.sendError(apierrors.ValidationError, "groupId must be a valid id")
		return
	}

	var before *uuid.UUID
	if p.Cursor != nil {
		id, err := uuid.Parse(*p.Cursor)
		if err != nil {
			c.sendError(apierrors.ValidationError, "cursor must be a valid message id")
			return
		}
		before = &id
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if _, err := h.oracle.AssertGroupAccess(ctx, c.UserID(), groupID); err != nil {
		c.sendGroupAccessError(err)
		return
	}

	page, err := message.HistoryPage(ctx, h.messages, groupID, before, p.Limit)
	if err != nil {
		h.log.Error().Err(err).Stringer("group_id", groupID).Msg("Failed to load history page")
		c.sendError(apierrors.InternalError, "could not load messages")
		return
	}

	wire := make([]event.WireMessage, 0, len(page.Messages))
	for i := range page.Messages {
		wire = append(wire, event.FromMessage(&page.Messages[i]))
	}
	var cursor *string
	if page.NextCursor != nil {
		s := page.NextCursor.String()
		cursor = &s
	}

	c.sendEvent(event.GroupMessages, event.GroupMessagesPayload{
		GroupID:     groupID.String(),
		Messages:    wire,
		HasNextPage: page.HasNextPage,
		NextCursor:  cursor,
	})
}
