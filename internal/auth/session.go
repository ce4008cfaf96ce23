package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key patterns:
//
//	session:{refreshToken}  → user_id (STRING with TTL)
//	user_sessions:{user_id} → SET of refresh tokens
//
// A session row stores the refresh token alone; access tokens are never
// persisted.

func sessionKey(token string) string {
	return "session:" + token
}

func userSessionsKey(userID uuid.UUID) string {
	return "user_sessions:" + userID.String()
}

// rotateScript atomically consumes an old refresh token and records a new
// one. Returns the user ID on success, or false if the old token was not
// found (expired or already rotated).
//
//	KEYS[1] = session:{oldToken}
//	ARGV[1] = oldToken
//	ARGV[2] = newToken
//	ARGV[3] = TTL in seconds
var rotateScript = redis.NewScript(`
local userId = redis.call('GET', KEYS[1])
if not userId then
    return false
end

redis.call('DEL', KEYS[1])

local userSetKey = 'user_sessions:' .. userId
redis.call('SREM', userSetKey, ARGV[1])

redis.call('SET', 'session:' .. ARGV[2], userId, 'EX', tonumber(ARGV[3]))
redis.call('SADD', userSetKey, ARGV[2])
redis.call('EXPIRE', userSetKey, tonumber(ARGV[3]))

return userId
`)

// SessionStore persists refresh-token sessions in Redis.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStore creates a refresh session store with the given TTL.
func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl}
}

// Create records a refresh token for the user.
func (s *SessionStore) Create(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, sessionKey(refreshToken), userID.String(), s.ttl)
	pipe.SAdd(ctx, userSessionsKey(userID), refreshToken)
	pipe.Expire(ctx, userSessionsKey(userID), s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Rotate atomically replaces oldToken with newToken and returns the owning
// user ID. Returns ErrSessionNotFound when the old token is unknown, which
// callers should treat as a possible token-reuse signal.
func (s *SessionStore) Rotate(ctx context.Context, oldToken, newToken string) (uuid.UUID, error) {
	res, err := rotateScript.Run(ctx, s.rdb,
		[]string{sessionKey(oldToken)},
		oldToken, newToken, int(s.ttl.Seconds()),
	).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("rotate session: %w", err)
	}

	raw, ok := res.(string)
	if !ok {
		return uuid.Nil, ErrSessionNotFound
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse session user id: %w", err)
	}
	return userID, nil
}

// Revoke removes a single refresh session.
func (s *SessionStore) Revoke(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, sessionKey(refreshToken))
	pipe.SRem(ctx, userSessionsKey(userID), refreshToken)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
