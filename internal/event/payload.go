package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/message"
)

// Client-to-server payloads.

// AuthenticatePayload carries the access token when the client authenticates
// in-band instead of via the upgrade request header.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// GroupRef is the payload of events that only name a room: join_group,
// leave_group, typing_start, typing_stop, get_room_info.
type GroupRef struct {
	GroupID string `json:"groupId"`
}

// SendMessagePayload carries a new message.
type SendMessagePayload struct {
	GroupID   string  `json:"groupId"`
	Content   string  `json:"content"`
	Type      string  `json:"type,omitempty"`
	ReplyToID *string `json:"replyToId,omitempty"`
}

// GetGroupMessagesPayload requests a history page.
type GetGroupMessagesPayload struct {
	GroupID string  `json:"groupId"`
	Limit   int     `json:"limit,omitempty"`
	Cursor  *string `json:"cursor,omitempty"`
}

// Server-to-client payloads.

// ErrorPayload is the data of every error frame.
type ErrorPayload struct {
	Code    apierrors.Code `json:"code"`
	Message string         `json:"message"`
}

// AuthenticatedPayload acknowledges a successful in-band authentication.
type AuthenticatedPayload struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// WireUser is the reduced user shape embedded in messages and presence
// events.
type WireUser struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email,omitempty"`
	Image *string `json:"image,omitempty"`
}

// WireReply is the reply-parent snippet embedded in messages.
type WireReply struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	User    WireUser `json:"user"`
}

// WireAttachment is an attachment as it appears on the wire.
type WireAttachment struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	MimeType *string `json:"mimeType,omitempty"`
	Size     *int64  `json:"size,omitempty"`
}

// WireMessage is a hydrated message as it appears on the wire. The sender
// appears twice: senderId at the top level and the expanded user object.
type WireMessage struct {
	ID          string           `json:"id"`
	GroupID     string           `json:"groupId"`
	SenderID    string           `json:"senderId"`
	User        WireUser         `json:"user"`
	Type        string           `json:"type"`
	Content     string           `json:"content"`
	ReplyToID   *string          `json:"replyToId,omitempty"`
	ReplyTo     *WireReply       `json:"replyTo,omitempty"`
	Attachments []WireAttachment `json:"attachments"`
	CreatedAt   string           `json:"createdAt"`
	UpdatedAt   string           `json:"updatedAt"`
}

// FromMessage converts a hydrated storage message to its wire shape.
// Timestamps are RFC 3339 in UTC.
func FromMessage(m *message.Message) WireMessage {
	wm := WireMessage{
		ID:       m.ID.String(),
		GroupID:  m.GroupID.String(),
		SenderID: m.SenderID.String(),
		User: WireUser{
			ID:    m.SenderID.String(),
			Name:  m.SenderName,
			Email: m.SenderEmail,
			Image: m.SenderImage,
		},
		Type:        m.Type,
		Content:     m.Content,
		Attachments: make([]WireAttachment, 0, len(m.Attachments)),
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   m.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.ReplyToID != nil {
		s := m.ReplyToID.String()
		wm.ReplyToID = &s
	}
	if m.ReplyTo != nil {
		wm.ReplyTo = &WireReply{
			ID:      m.ReplyTo.ID.String(),
			Content: m.ReplyTo.Content,
			User: WireUser{
				ID:   m.ReplyTo.SenderID.String(),
				Name: m.ReplyTo.SenderName,
			},
		}
	}
	for _, a := range m.Attachments {
		wm.Attachments = append(wm.Attachments, WireAttachment{
			ID:       a.ID.String(),
			URL:      a.URL,
			MimeType: a.MimeType,
			Size:     a.Size,
		})
	}
	return wm
}

// NewSystemMessage synthesizes a SYSTEM message for fan-out. System messages
// are never persisted, so their ids live outside the UUID space.
func NewSystemMessage(groupID uuid.UUID, content string) WireMessage {
	now := time.Now().UTC()
	return WireMessage{
		ID:       fmt.Sprintf("system-%d", now.UnixNano()),
		GroupID:  groupID.String(),
		SenderID: "system",
		User: WireUser{
			ID:   "system",
			Name: "System",
		},
		Type:        message.TypeSystem,
		Content:     content,
		Attachments: []WireAttachment{},
		CreatedAt:   now.Format(time.RFC3339Nano),
		UpdatedAt:   now.Format(time.RFC3339Nano),
	}
}

// MessageDeletedPayload announces a deleted message to room occupants.
type MessageDeletedPayload struct {
	GroupID   string `json:"groupId"`
	MessageID string `json:"messageId"`
}

// GroupMessagesPayload is one page of history, oldest first.
type GroupMessagesPayload struct {
	GroupID     string        `json:"groupId"`
	Messages    []WireMessage `json:"messages"`
	HasNextPage bool          `json:"hasNextPage"`
	NextCursor  *string       `json:"nextCursor,omitempty"`
}

// TypingPayload announces a typing state change in a room.
type TypingPayload struct {
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// PresencePayload announces a user entering or leaving a room. memberCount is
// the room's live-session count after the change.
type PresencePayload struct {
	GroupID     string `json:"groupId"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName,omitempty"`
	MemberCount int    `json:"memberCount"`
}

// JoinedGroupPayload acknowledges the caller's own join with the room's
// live-session count.
type JoinedGroupPayload struct {
	GroupID     string `json:"groupId"`
	MemberCount int    `json:"memberCount"`
}

// LeftGroupPayload acknowledges the caller's own leave with the room's
// live-session count after the exit.
type LeftGroupPayload struct {
	GroupID     string `json:"groupId"`
	MemberCount int    `json:"memberCount"`
}

// RoomInfoPayload answers get_room_info with the ids of the room's online
// members.
type RoomInfoPayload struct {
	GroupID       string   `json:"groupId"`
	OnlineMembers []string `json:"onlineMembers"`
	MemberCount   int      `json:"memberCount"`
}
