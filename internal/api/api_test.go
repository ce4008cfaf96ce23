package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/attachment"
	"github.com/decidr-app/decidr-server/internal/auth"
	"github.com/decidr-app/decidr-server/internal/group"
	"github.com/decidr-app/decidr-server/internal/member"
	"github.com/decidr-app/decidr-server/internal/message"
)

// fakeAuth injects an authenticated identity, bypassing token verification.
func fakeAuth(userID uuid.UUID) fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Locals("identity", auth.Identity{UserID: userID, Email: "test@example.com"})
		return c.Next()
	}
}

// fakeBroadcaster records room publishes.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	GroupID uuid.UUID
	Name    string
	Payload any
}

func (b *fakeBroadcaster) PublishToRoom(groupID uuid.UUID, name string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{GroupID: groupID, Name: name, Payload: payload})
}

func (b *fakeBroadcaster) published(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

// fakeGroupRepo implements group.Repository for handler tests.
type fakeGroupRepo struct {
	groups map[uuid.UUID]*group.Group
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{groups: make(map[uuid.UUID]*group.Group)}
}

func (r *fakeGroupRepo) Create(_ context.Context, params group.CreateParams) (*group.Group, error) {
	g := &group.Group{
		ID:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		IsPrivate:   params.IsPrivate,
		CreatorID:   params.CreatorID,
		CreatedAt:   time.Now(),
	}
	r.groups[g.ID] = g
	return g, nil
}
func (r *fakeGroupRepo) GetByID(_ context.Context, id uuid.UUID) (*group.Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, group.ErrNotFound
	}
	return g, nil
}
func (r *fakeGroupRepo) ListForUser(context.Context, uuid.UUID) ([]group.Group, error) {
	var out []group.Group
	for _, g := range r.groups {
		out = append(out, *g)
	}
	return out, nil
}
func (r *fakeGroupRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.groups[id]; !ok {
		return group.ErrNotFound
	}
	delete(r.groups, id)
	return nil
}

// fakeMemberRepo implements member.Repository for handler tests.
type fakeMemberRepo struct {
	memberships map[uuid.UUID]map[uuid.UUID]*member.Membership
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{memberships: make(map[uuid.UUID]map[uuid.UUID]*member.Membership)}
}

func (r *fakeMemberRepo) seed(userID, groupID uuid.UUID, role string) {
	if r.memberships[groupID] == nil {
		r.memberships[groupID] = make(map[uuid.UUID]*member.Membership)
	}
	r.memberships[groupID][userID] = &member.Membership{
		UserID:   userID,
		GroupID:  groupID,
		Role:     role,
		JoinedAt: time.Now(),
		UserName: "user-" + userID.String()[:8],
	}
}

func (r *fakeMemberRepo) Get(_ context.Context, userID, groupID uuid.UUID) (*member.Membership, error) {
	m, ok := r.memberships[groupID][userID]
	if !ok {
		return nil, member.ErrNotFound
	}
	cp := *m
	return &cp, nil
}
func (r *fakeMemberRepo) ListByGroup(_ context.Context, groupID uuid.UUID) ([]member.Membership, error) {
	var out []member.Membership
	for _, m := range r.memberships[groupID] {
		out = append(out, *m)
	}
	return out, nil
}
func (r *fakeMemberRepo) Add(_ context.Context, userID, groupID uuid.UUID, role string) (*member.Membership, error) {
	if _, ok := r.memberships[groupID][userID]; ok {
		return nil, member.ErrAlreadyMember
	}
	r.seed(userID, groupID, role)
	return r.Get(context.Background(), userID, groupID)
}
func (r *fakeMemberRepo) Remove(_ context.Context, userID, groupID uuid.UUID) error {
	if _, ok := r.memberships[groupID][userID]; !ok {
		return member.ErrNotFound
	}
	delete(r.memberships[groupID], userID)
	return nil
}
func (r *fakeMemberRepo) UpdateRole(_ context.Context, userID, groupID uuid.UUID, role string) (*member.Membership, error) {
	m, ok := r.memberships[groupID][userID]
	if !ok {
		return nil, member.ErrNotFound
	}
	m.Role = role
	cp := *m
	return &cp, nil
}
func (r *fakeMemberRepo) TransferOwnership(_ context.Context, groupID, currentOwner, newOwner uuid.UUID) error {
	cur, ok := r.memberships[groupID][currentOwner]
	if !ok || cur.Role != member.RoleOwner {
		return member.ErrNotFound
	}
	next, ok := r.memberships[groupID][newOwner]
	if !ok {
		return member.ErrNotFound
	}
	cur.Role = member.RoleAdmin
	next.Role = member.RoleOwner
	return nil
}

// fakeMessageRepo implements message.Repository backed by a newest-first
// slice.
type fakeMessageRepo struct {
	messages []message.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (r *fakeMessageRepo) Create(_ context.Context, params message.CreateParams) (*message.Message, error) {
	if params.ReplyToID != nil {
		found := false
		for i := range r.messages {
			if r.messages[i].ID == *params.ReplyToID && r.messages[i].GroupID == params.GroupID {
				found = true
				break
			}
		}
		if !found {
			return nil, message.ErrReplyNotFound
		}
	}
	now := time.Now()
	msg := message.Message{
		ID:         message.NewID(),
		GroupID:    params.GroupID,
		SenderID:   params.SenderID,
		Type:       params.Type,
		Content:    params.Content,
		ReplyToID:  params.ReplyToID,
		CreatedAt:  now,
		UpdatedAt:  now,
		SenderName: "testuser",
	}
	r.messages = append([]message.Message{msg}, r.messages...)
	return &msg, nil
}
func (r *fakeMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*message.Message, error) {
	for i := range r.messages {
		if r.messages[i].ID == id {
			cp := r.messages[i]
			return &cp, nil
		}
	}
	return nil, message.ErrNotFound
}
func (r *fakeMessageRepo) ListForGroup(_ context.Context, groupID uuid.UUID, before *uuid.UUID, limit int) ([]message.Message, error) {
	var out []message.Message
	skipping := before != nil
	for _, m := range r.messages {
		if m.GroupID != groupID {
			continue
		}
		if skipping {
			if m.ID == *before {
				skipping = false
			}
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
func (r *fakeMessageRepo) UpdateContent(_ context.Context, id uuid.UUID, content string) (*message.Message, error) {
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages[i].Content = content
			r.messages[i].UpdatedAt = time.Now()
			cp := r.messages[i]
			return &cp, nil
		}
	}
	return nil, message.ErrNotFound
}
func (r *fakeMessageRepo) DeleteCascade(_ context.Context, id uuid.UUID) error {
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return nil
		}
	}
	return message.ErrNotFound
}

// fakeAttachmentRepo implements attachment.Repository for handler tests.
type fakeAttachmentRepo struct {
	attachments []attachment.Attachment
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{}
}

func (r *fakeAttachmentRepo) Create(_ context.Context, params attachment.CreateParams) (*attachment.Attachment, error) {
	a := attachment.Attachment{
		ID:        uuid.New(),
		MessageID: params.MessageID,
		URL:       params.URL,
		MimeType:  params.MimeType,
		Size:      params.Size,
		CreatedAt: time.Now(),
	}
	r.attachments = append(r.attachments, a)
	return &a, nil
}
func (r *fakeAttachmentRepo) ListByMessage(_ context.Context, messageID uuid.UUID) ([]attachment.Attachment, error) {
	var out []attachment.Attachment
	for _, a := range r.attachments {
		if a.MessageID == messageID {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- request helpers ---

func jsonReq(method, url, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func doReq(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return body
}

type successEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func parseSuccess(t *testing.T, body []byte) successEnvelope {
	t.Helper()
	var env successEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal success envelope: %v (body: %s)", err, body)
	}
	return env
}

type errorEnvelope struct {
	Error struct {
		Code    apierrors.Code `json:"code"`
		Message string         `json:"message"`
	} `json:"error"`
}

func parseError(t *testing.T, body []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (body: %s)", err, body)
	}
	return env
}
