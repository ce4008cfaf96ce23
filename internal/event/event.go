// Package event defines the socket wire protocol: the envelope frame, the
// event names both directions speak, and the JSON payload shapes.
package event

import "encoding/json"

// Frame is the envelope for every socket message in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client-to-server event names.
const (
	Authenticate     = "authenticate"
	JoinGroup        = "join_group"
	LeaveGroup       = "leave_group"
	SendMessage      = "send_message"
	TypingStart      = "typing_start"
	TypingStop       = "typing_stop"
	GetGroupMessages = "get_group_messages"
	GetRoomInfo      = "get_room_info"
)

// Server-to-client event names.
const (
	Authenticated      = "authenticated"
	JoinedGroupSuccess = "joined_group_success"
	LeftGroupSuccess   = "left_group_success"
	UserJoinedGroup    = "user_joined_group"
	UserLeftGroup      = "user_left_group"
	MessageReceived    = "message_received"
	MessageUpdated     = "message_updated"
	MessageDeleted     = "message_deleted"
	GroupMessages      = "group_messages"
	UserTyping         = "user_typing"
	UserStoppedTyping  = "user_stopped_typing"
	RoomMembersUpdate  = "room_members_update"
	Error              = "error"
)

// Encode marshals a payload into a complete frame ready for the socket.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
