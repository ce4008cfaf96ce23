package event

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/decidr-app/decidr-server/internal/message"
)

// keys returns the top-level JSON object keys of a marshalled payload.
func keys(t *testing.T, v any) map[string]json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	return out
}

func TestFromMessageWireKeys(t *testing.T) {
	t.Parallel()

	sender := uuid.New()
	replyID := uuid.New()
	m := &message.Message{
		ID:         uuid.New(),
		GroupID:    uuid.New(),
		SenderID:   sender,
		Type:       message.TypeText,
		Content:    "hi",
		ReplyToID:  &replyID,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		SenderName: "alice",
		ReplyTo: &message.ReplySnippet{
			ID:         replyID,
			Content:    "earlier",
			SenderID:   uuid.New(),
			SenderName: "bob",
		},
	}

	got := keys(t, FromMessage(m))
	for _, k := range []string{"id", "groupId", "senderId", "user", "type", "content", "replyToId", "replyTo", "createdAt"} {
		if _, ok := got[k]; !ok {
			t.Errorf("wire message missing %q key", k)
		}
	}
	if string(got["senderId"]) != `"`+sender.String()+`"` {
		t.Errorf("senderId = %s, want %s", got["senderId"], sender)
	}
	if string(got["replyToId"]) != `"`+replyID.String()+`"` {
		t.Errorf("replyToId = %s, want %s", got["replyToId"], replyID)
	}

	// Without a reply the optional keys stay off the wire entirely.
	m.ReplyToID = nil
	m.ReplyTo = nil
	got = keys(t, FromMessage(m))
	if _, ok := got["replyToId"]; ok {
		t.Error("replyToId should be omitted when absent")
	}
	if _, ok := got["replyTo"]; ok {
		t.Error("replyTo should be omitted when absent")
	}
}

func TestPresencePayloadWireKeys(t *testing.T) {
	t.Parallel()

	got := keys(t, PresencePayload{GroupID: "g", UserID: "u", UserName: "n", MemberCount: 3})
	for _, k := range []string{"groupId", "userId", "userName", "memberCount"} {
		if _, ok := got[k]; !ok {
			t.Errorf("presence payload missing %q key", k)
		}
	}

	got = keys(t, JoinedGroupPayload{GroupID: "g", MemberCount: 2})
	if _, ok := got["memberCount"]; !ok {
		t.Error("joined_group_success missing memberCount key")
	}
	got = keys(t, LeftGroupPayload{GroupID: "g", MemberCount: 1})
	if _, ok := got["memberCount"]; !ok {
		t.Error("left_group_success missing memberCount key")
	}

	got = keys(t, RoomInfoPayload{GroupID: "g", OnlineMembers: []string{"u"}, MemberCount: 1})
	if _, ok := got["onlineMembers"]; !ok {
		t.Error("room_members_update missing onlineMembers key")
	}
	if _, ok := got["memberCount"]; !ok {
		t.Error("room_members_update missing memberCount key")
	}
}

func TestNewSystemMessage(t *testing.T) {
	t.Parallel()

	groupID := uuid.New()
	wm := NewSystemMessage(groupID, "alice joined the group")

	if !strings.HasPrefix(wm.ID, "system-") {
		t.Errorf("id = %q, want system- prefix", wm.ID)
	}
	if wm.SenderID != "system" || wm.User.ID != "system" {
		t.Errorf("sender = %s/%s, want system", wm.SenderID, wm.User.ID)
	}
	if wm.Type != message.TypeSystem {
		t.Errorf("type = %s, want %s", wm.Type, message.TypeSystem)
	}
	if wm.GroupID != groupID.String() {
		t.Errorf("groupId = %s, want %s", wm.GroupID, groupID)
	}
}
