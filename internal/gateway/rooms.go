package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/event"
	"github.com/decidr-app/decidr-server/internal/group"
	"github.com/decidr-app/decidr-server/internal/metrics"
)

// registryShards is the number of locks the room registry is split across.
// Room ids hash uniformly, so contention on any one shard stays low.
const registryShards = 16

// registry is the in-process view of which sessions occupy which rooms. It is
// the fan-out source for broadcasts and the fallback presence answer when
// redis is unreachable.
type registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[*Client]struct{}
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i].rooms = make(map[uuid.UUID]map[*Client]struct{})
	}
	return r
}

func (r *registry) shard(groupID uuid.UUID) *registryShard {
	return &r.shards[groupID[0]%registryShards]
}

// add registers a session in a room and reports whether it was already there.
func (r *registry) add(groupID uuid.UUID, c *Client) (already bool) {
	s := r.shard(groupID)
	s.mu.Lock()
	defer s.mu.Unlock()

	occupants, ok := s.rooms[groupID]
	if !ok {
		occupants = make(map[*Client]struct{})
		s.rooms[groupID] = occupants
	}
	if _, ok := occupants[c]; ok {
		return true
	}
	occupants[c] = struct{}{}
	return false
}

// remove drops a session from a room and reports whether it was there.
func (r *registry) remove(groupID uuid.UUID, c *Client) (existed bool) {
	s := r.shard(groupID)
	s.mu.Lock()
	defer s.mu.Unlock()

	occupants, ok := s.rooms[groupID]
	if !ok {
		return false
	}
	if _, ok := occupants[c]; !ok {
		return false
	}
	delete(occupants, c)
	if len(occupants) == 0 {
		delete(s.rooms, groupID)
	}
	return true
}

// snapshot copies the room's occupant list so callers can fan out without
// holding the shard lock.
func (r *registry) snapshot(groupID uuid.UUID) []*Client {
	s := r.shard(groupID)
	s.mu.Lock()
	defer s.mu.Unlock()

	occupants := s.rooms[groupID]
	out := make([]*Client, 0, len(occupants))
	for c := range occupants {
		out = append(out, c)
	}
	return out
}

// userSessionCount reports how many of the room's sessions belong to userID.
func (r *registry) userSessionCount(groupID, userID uuid.UUID) int {
	s := r.shard(groupID)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for c := range s.rooms[groupID] {
		if c.UserID() == userID {
			n++
		}
	}
	return n
}

// sessionCount reports how many live sessions occupy the room.
func (r *registry) sessionCount(groupID uuid.UUID) int {
	s := r.shard(groupID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[groupID])
}

// handleJoinGroup admits a session into a room after a membership check. The
// first session a user brings into a room announces user_joined_group to the
// other occupants; further sessions join silently. The caller always receives
// joined_group_success.
func (h *Hub) handleJoinGroup(c *Client, data json.RawMessage) {
	groupID, ok := c.parseGroupRef(data)
	if !ok {
		return
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

	if already := h.rooms.add(groupID, c); already {
		// Rejoining a room this session already occupies is an ack-only
		// no-op.
		c.sendEvent(event.JoinedGroupSuccess, event.JoinedGroupPayload{
			GroupID:     groupID.String(),
			MemberCount: h.rooms.sessionCount(groupID),
		})
		return
	}
	c.trackRoom(groupID)
	metrics.RoomOccupancy.Inc()

	first, err := h.presence.JoinRoom(ctx, c.UserID(), groupID, c.SessionID())
	if err != nil {
		// Degraded presence: the registry remains the authority. This
		// session is the user's first in the room iff it is their only one.
		h.log.Warn().Err(err).Stringer("group_id", groupID).Msg("Presence join failed, using registry")
		first = h.rooms.userSessionCount(groupID, c.UserID()) == 1
	}

	sessions := h.rooms.sessionCount(groupID)

	if first {
		h.broadcast(groupID, event.UserJoinedGroup, event.PresencePayload{
			GroupID:     groupID.String(),
			UserID:      c.UserID().String(),
			UserName:    c.UserName(),
			MemberCount: sessions,
		}, c)
	}

	c.sendEvent(event.JoinedGroupSuccess, event.JoinedGroupPayload{
		GroupID:     groupID.String(),
		MemberCount: sessions,
	})

	h.log.Debug().Stringer("group_id", groupID).Str("session_id", c.SessionID()).
		Bool("first", first).Msg("Session joined room")
}

// handleLeaveGroup removes a session from a room. Leaving a room the session
// never joined still acks, so client retries stay harmless.
func (h *Hub) handleLeaveGroup(c *Client, data json.RawMessage) {
	groupID, ok := c.parseGroupRef(data)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	h.leaveRoom(ctx, c, groupID)
	c.sendEvent(event.LeftGroupSuccess, event.LeftGroupPayload{
		GroupID:     groupID.String(),
		MemberCount: h.rooms.sessionCount(groupID),
	})
}

// leaveRoom is the shared exit path for leave_group and the disconnect sweep.
// When the user's last session leaves, the other occupants hear
// user_left_group. Reports whether this was the user's last session in the
// room.
func (h *Hub) leaveRoom(ctx context.Context, c *Client, groupID uuid.UUID) (last bool) {
	if existed := h.rooms.remove(groupID, c); !existed {
		return false
	}
	c.untrackRoom(groupID)
	metrics.RoomOccupancy.Dec()

	last, err := h.presence.LeaveRoom(ctx, c.UserID(), groupID, c.SessionID())
	if err != nil {
		h.log.Warn().Err(err).Stringer("group_id", groupID).Msg("Presence leave failed, using registry")
		last = h.rooms.userSessionCount(groupID, c.UserID()) == 0
	}

	if last {
		h.broadcast(groupID, event.UserLeftGroup, event.PresencePayload{
			GroupID:     groupID.String(),
			UserID:      c.UserID().String(),
			UserName:    c.UserName(),
			MemberCount: h.rooms.sessionCount(groupID),
		}, c)
	}
	return last
}

// handleGetRoomInfo answers with the room's online occupants. Membership (or
// being the group's creator) is required, but having joined the room is not.
func (h *Hub) handleGetRoomInfo(c *Client, data json.RawMessage) {
	groupID, ok := c.parseGroupRef(data)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if _, err := h.oracle.AssertGroupAccess(ctx, c.UserID(), groupID); err != nil {
		c.sendGroupAccessError(err)
		return
	}

	onlineIDs, err := h.presence.RoomUsers(ctx, groupID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("group_id", groupID).Msg("Presence read failed, using registry")
		onlineIDs = h.registryUsers(groupID)
	}
	online := make(map[uuid.UUID]struct{}, len(onlineIDs))
	for _, id := range onlineIDs {
		online[id] = struct{}{}
	}

	memberships, err := h.members.ListByGroup(ctx, groupID)
	if err != nil {
		h.log.Error().Err(err).Stringer("group_id", groupID).Msg("Failed to list group members")
		c.sendError(apierrors.InternalError, "could not load room info")
		return
	}

	ids := make([]string, 0, len(online))
	for _, m := range memberships {
		if _, ok := online[m.UserID]; !ok {
			continue
		}
		ids = append(ids, m.UserID.String())
	}

	c.sendEvent(event.RoomMembersUpdate, event.RoomInfoPayload{
		GroupID:       groupID.String(),
		OnlineMembers: ids,
		MemberCount:   len(ids),
	})
}

// registryUsers lists the distinct users the registry sees in a room.
func (h *Hub) registryUsers(groupID uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, c := range h.rooms.snapshot(groupID) {
		id := c.UserID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// parseGroupRef decodes a payload that names a room. Failures answer with a
// validation error and keep the connection open.
func (c *Client) parseGroupRef(data json.RawMessage) (uuid.UUID, bool) {
	var p event.GroupRef
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(apierrors.ValidationError, "invalid payload")
		return uuid.Nil, false
	}
	groupID, err := uuid.Parse(p.GroupID)
	if err != nil {
		c.sendError(apierrors.ValidationError, "groupId must be a valid id")
		return uuid.Nil, false
	}
	return groupID, true
}

// sendGroupAccessError maps oracle access failures to wire errors.
func (c *Client) sendGroupAccessError(err error) {
	switch {
	case errors.Is(err, group.ErrNotFound):
		c.sendError(apierrors.NotFound, "group not found")
	case isForbidden(err):
		c.sendError(apierrors.Forbidden, "you do not have access to this group")
	default:
		c.log.Error().Err(err).Msg("Group access check failed")
		c.sendError(apierrors.InternalError, "could not verify group access")
	}
}
