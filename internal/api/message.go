package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/attachment"
	"github.com/decidr-app/decidr-server/internal/authz"
	"github.com/decidr-app/decidr-server/internal/event"
	"github.com/decidr-app/decidr-server/internal/group"
	"github.com/decidr-app/decidr-server/internal/httputil"
	"github.com/decidr-app/decidr-server/internal/member"
	"github.com/decidr-app/decidr-server/internal/message"
	"github.com/decidr-app/decidr-server/internal/metrics"
)

// Broadcaster fans events out to the sessions currently in a room. The
// gateway hub implements it; REST writes use it so socket clients see HTTP
// traffic in real time.
type Broadcaster interface {
	PublishToRoom(groupID uuid.UUID, name string, payload any)
}

// MessageHandler serves message endpoints.
type MessageHandler struct {
	messages    message.Repository
	attachments attachment.Repository
	oracle      *authz.Oracle
	rooms       Broadcaster
	log         zerolog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages message.Repository, attachments attachment.Repository, oracle *authz.Oracle, rooms Broadcaster, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, attachments: attachments, oracle: oracle, rooms: rooms, log: logger}
}

// maxAttachmentsPerMessage caps how many uploaded objects a single message
// may reference.
const maxAttachmentsPerMessage = 10

type attachmentRequest struct {
	URL      string  `json:"url"`
	MimeType *string `json:"mimeType"`
	Size     *int64  `json:"size"`
}

type createMessageRequest struct {
	GroupID     string              `json:"groupId"`
	Content     string              `json:"content"`
	Type        string              `json:"type"`
	ReplyToID   *string             `json:"replyToId"`
	Attachments []attachmentRequest `json:"attachments"`
}

// Create handles POST /api/v1/messages. Unlike the socket path, the sender
// does not need a joined room, only membership; the write is fanned out to
// whoever is in the room.
func (h *MessageHandler) Create(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}

	var body createMessageRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}
	groupID, err := uuid.Parse(body.GroupID)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "groupId must be a valid id")
	}

	msgType := body.Type
	if msgType == "" {
		msgType = message.TypeText
	}
	if !message.ValidStoredType(msgType) {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "type must be TEXT, IMAGE, or FILE")
	}
	content, err := message.ValidateContent(body.Content, msgType)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	var replyToID *uuid.UUID
	if body.ReplyToID != nil {
		id, err := uuid.Parse(*body.ReplyToID)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "replyToId must be a valid id")
		}
		replyToID = &id
	}

	if len(body.Attachments) > maxAttachmentsPerMessage {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "too many attachments")
	}
	for _, a := range body.Attachments {
		if a.URL == "" {
			return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "attachment url must not be empty")
		}
	}

	isMember, err := h.oracle.IsMember(c, identity.UserID, groupID)
	if err != nil {
		return h.mapMessageError(c, err)
	}
	if !isMember {
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You are not a member of this group")
	}

	msg, err := h.messages.Create(c, message.CreateParams{
		GroupID:   groupID,
		SenderID:  identity.UserID,
		Type:      msgType,
		Content:   content,
		ReplyToID: replyToID,
	})
	if err != nil {
		return h.mapMessageError(c, err)
	}
	metrics.MessagesSent.WithLabelValues("rest").Inc()

	for _, a := range body.Attachments {
		stored, err := h.attachments.Create(c, attachment.CreateParams{
			MessageID: msg.ID,
			URL:       a.URL,
			MimeType:  a.MimeType,
			Size:      a.Size,
		})
		if err != nil {
			return h.mapMessageError(c, err)
		}
		msg.Attachments = append(msg.Attachments, *stored)
	}

	wire := event.FromMessage(msg)
	h.rooms.PublishToRoom(groupID, event.MessageReceived, wire)

	return httputil.SuccessStatus(c, fiber.StatusCreated, wire)
}

// List handles GET /api/v1/groups/:groupID/messages with limit and cursor
// query parameters. Pages come back oldest first, mirroring the socket's
// get_group_messages.
func (h *MessageHandler) List(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}
	groupID, ok := parseIDParam(c, "groupID")
	if !ok {
		return nil
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "limit must be an integer")
		}
		limit = n
	}

	var before *uuid.UUID
	if raw := c.Query("cursor"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "cursor must be a valid message id")
		}
		before = &id
	}

	if _, err := h.oracle.AssertGroupAccess(c, identity.UserID, groupID); err != nil {
		return h.mapMessageError(c, err)
	}

	page, err := message.HistoryPage(c, h.messages, groupID, before, limit)
	if err != nil {
		return h.mapMessageError(c, err)
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

	return httputil.Success(c, event.GroupMessagesPayload{
		GroupID:     groupID.String(),
		Messages:    wire,
		HasNextPage: page.HasNextPage,
		NextCursor:  cursor,
	})
}

// Get handles GET /api/v1/messages/:messageID.
func (h *MessageHandler) Get(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}
	messageID, ok := parseIDParam(c, "messageID")
	if !ok {
		return nil
	}

	msg, err := h.messages.GetByID(c, messageID)
	if err != nil {
		return h.mapMessageError(c, err)
	}
	if _, err := h.oracle.AssertGroupAccess(c, identity.UserID, msg.GroupID); err != nil {
		return h.mapMessageError(c, err)
	}
	return httputil.Success(c, event.FromMessage(msg))
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

// Update handles PUT /api/v1/messages/:messageID. Only the sender may edit;
// room occupants hear message_updated.
func (h *MessageHandler) Update(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}
	messageID, ok := parseIDParam(c, "messageID")
	if !ok {
		return nil
	}

	var body updateMessageRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "Invalid request body")
	}

	msg, err := h.messages.GetByID(c, messageID)
	if err != nil {
		return h.mapMessageError(c, err)
	}
	if msg.SenderID != identity.UserID {
		return h.mapMessageError(c, message.ErrNotSender)
	}

	content, err := message.ValidateContent(body.Content, msg.Type)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	updated, err := h.messages.UpdateContent(c, messageID, content)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	wire := event.FromMessage(updated)
	h.rooms.PublishToRoom(updated.GroupID, event.MessageUpdated, wire)
	return httputil.Success(c, wire)
}

// Delete handles DELETE /api/v1/messages/:messageID. The sender may delete
// their own message; owners and admins may delete any message in their group.
// Attachments cascade; replies keep their row with the reference nulled.
func (h *MessageHandler) Delete(c fiber.Ctx) error {
	identity, ok := requireIdentity(c)
	if !ok {
		return nil
	}
	messageID, ok := parseIDParam(c, "messageID")
	if !ok {
		return nil
	}

	msg, err := h.messages.GetByID(c, messageID)
	if err != nil {
		return h.mapMessageError(c, err)
	}

	if msg.SenderID != identity.UserID {
		m, err := h.oracle.GetMembership(c, identity.UserID, msg.GroupID)
		if err != nil {
			if errors.Is(err, member.ErrNotFound) {
				return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You cannot delete this message")
			}
			return h.mapMessageError(c, err)
		}
		if m.Role != member.RoleOwner && m.Role != member.RoleAdmin {
			return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You cannot delete this message")
		}
	}

	if err := h.messages.DeleteCascade(c, messageID); err != nil {
		return h.mapMessageError(c, err)
	}

	h.rooms.PublishToRoom(msg.GroupID, event.MessageDeleted, event.MessageDeletedPayload{
		GroupID:   msg.GroupID.String(),
		MessageID: messageID.String(),
	})
	return httputil.Success(c, fiber.Map{"deleted": true})
}

// mapMessageError converts message-layer errors to HTTP responses.
func (h *MessageHandler) mapMessageError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, message.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Message not found")
	case errors.Is(err, group.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apierrors.NotFound, "Group not found")
	case errors.Is(err, message.ErrReplyNotFound):
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, err.Error())
	case errors.Is(err, message.ErrEmptyContent), errors.Is(err, message.ErrContentTooLong):
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, err.Error())
	case errors.Is(err, message.ErrNotSender):
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, err.Error())
	case errors.Is(err, authz.ErrForbidden):
		return httputil.Fail(c, fiber.StatusForbidden, apierrors.Forbidden, "You do not have access to this group")
	default:
		h.log.Error().Err(err).Str("handler", "message").Msg("unhandled message service error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
}
