// Package presence tracks which users are online, which rooms they occupy,
// and who is typing, as TTL'd redis sets. Every key expires on its own so a
// crashed node can never leak presence forever; the TTLs are refreshed by
// normal traffic.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key lifetimes. Socket keys ride a sliding one hour window refreshed by
// activity; room membership keys live a day; typing keys expire absolutely
// after ten seconds and are never refreshed except by another typing_start.
const (
	SocketTTL = time.Hour
	RoomTTL   = 24 * time.Hour
	TypingTTL = 10 * time.Second
)

// Store provides the presence operations over a redis client.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a presence store.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func userSocketsKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:sockets", userID)
}

func roomUsersKey(groupID uuid.UUID) string {
	return fmt.Sprintf("room:%s:users", groupID)
}

func userRoomsKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:rooms", userID)
}

func roomSocketsKey(userID, groupID uuid.UUID) string {
	return fmt.Sprintf("user:%s:sockets:%s", userID, groupID)
}

func typingKey(groupID, userID uuid.UUID) string {
	return fmt.Sprintf("typing:%s:%s", groupID, userID)
}

// AddSocket records a live session for a user and refreshes the socket key's
// sliding window.
func (s *Store) AddSocket(ctx context.Context, userID uuid.UUID, sessionID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, userSocketsKey(userID), sessionID)
	pipe.Expire(ctx, userSocketsKey(userID), SocketTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add socket: %w", err)
	}
	return nil
}

// RemoveSocket drops a session from a user's socket set.
func (s *Store) RemoveSocket(ctx context.Context, userID uuid.UUID, sessionID string) error {
	if err := s.rdb.SRem(ctx, userSocketsKey(userID), sessionID).Err(); err != nil {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// JoinRoom records a session joining a room and reports whether this is the
// user's first live session there. All writes run in one MULTI/EXEC so two
// sessions joining at once cannot both observe a first join.
func (s *Store) JoinRoom(ctx context.Context, userID, groupID uuid.UUID, sessionID string) (first bool, err error) {
	pipe := s.rdb.TxPipeline()
	added := pipe.SAdd(ctx, roomUsersKey(groupID), userID.String())
	pipe.Expire(ctx, roomUsersKey(groupID), RoomTTL)
	pipe.SAdd(ctx, userRoomsKey(userID), groupID.String())
	pipe.Expire(ctx, userRoomsKey(userID), RoomTTL)
	pipe.SAdd(ctx, roomSocketsKey(userID, groupID), sessionID)
	pipe.Expire(ctx, roomSocketsKey(userID, groupID), SocketTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("join room: %w", err)
	}
	return added.Val() == 1, nil
}

// LeaveRoom records a session leaving a room and reports whether the user now
// has no sessions left there. On a last leave the user is removed from the
// room's user set and the room from the user's room set.
func (s *Store) LeaveRoom(ctx context.Context, userID, groupID uuid.UUID, sessionID string) (last bool, err error) {
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, roomSocketsKey(userID, groupID), sessionID)
	remaining := pipe.SCard(ctx, roomSocketsKey(userID, groupID))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("leave room: %w", err)
	}
	if remaining.Val() > 0 {
		return false, nil
	}

	pipe = s.rdb.TxPipeline()
	pipe.Del(ctx, roomSocketsKey(userID, groupID))
	pipe.SRem(ctx, roomUsersKey(groupID), userID.String())
	pipe.SRem(ctx, userRoomsKey(userID), groupID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("leave room cleanup: %w", err)
	}
	return true, nil
}

// RoomUsers returns the ids of users with at least one live session in the
// room.
func (s *Store) RoomUsers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	raw, err := s.rdb.SMembers(ctx, roomUsersKey(groupID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list room users: %w", err)
	}
	return parseUUIDs(raw), nil
}

// SetTyping marks a user as typing in a room for TypingTTL. Repeated calls
// reset the window.
func (s *Store) SetTyping(ctx context.Context, groupID, userID uuid.UUID) error {
	if err := s.rdb.Set(ctx, typingKey(groupID, userID), "1", TypingTTL).Err(); err != nil {
		return fmt.Errorf("set typing: %w", err)
	}
	return nil
}

// ClearTyping removes a typing marker and reports whether it existed, so
// callers can skip the stop broadcast when the marker already expired.
func (s *Store) ClearTyping(ctx context.Context, groupID, userID uuid.UUID) (existed bool, err error) {
	n, err := s.rdb.Del(ctx, typingKey(groupID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("clear typing: %w", err)
	}
	return n > 0, nil
}

// TypingRooms returns the rooms where the user has a live typing marker.
func (s *Store) TypingRooms(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	pattern := fmt.Sprintf("typing:*:%s", userID)
	var rooms []uuid.UUID

	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// typing:{group}:{user}
		if len(key) < len("typing:")+36 {
			continue
		}
		groupID, err := uuid.Parse(key[len("typing:") : len("typing:")+36])
		if err != nil {
			continue
		}
		rooms = append(rooms, groupID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan typing keys: %w", err)
	}
	return rooms, nil
}

func parseUUIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
