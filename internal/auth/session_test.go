package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestSessionStore(t *testing.T, ttl time.Duration) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewSessionStore(rdb, ttl), mr
}

func TestSessionRotate(t *testing.T) {
	t.Parallel()
	store, mr := newTestSessionStore(t, time.Hour)
	userID := uuid.New()

	if err := store.Create(t.Context(), userID, "old-token"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := store.Rotate(t.Context(), "old-token", "new-token")
	if err != nil {
		t.Fatalf("Rotate() error: %v", err)
	}
	if got != userID {
		t.Errorf("Rotate() user = %s, want %s", got, userID)
	}

	// The old token is consumed; replaying it signals reuse.
	if _, err := store.Rotate(t.Context(), "old-token", "another"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("replayed Rotate() error = %v, want ErrSessionNotFound", err)
	}

	if !mr.Exists("session:new-token") {
		t.Error("new session key missing after rotate")
	}
	if mr.Exists("session:old-token") {
		t.Error("old session key survived rotate")
	}
}

func TestSessionRotateUnknownToken(t *testing.T) {
	t.Parallel()
	store, _ := newTestSessionStore(t, time.Hour)

	if _, err := store.Rotate(t.Context(), "never-issued", "new"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Rotate(unknown) error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()
	store, mr := newTestSessionStore(t, time.Minute)
	userID := uuid.New()

	if err := store.Create(t.Context(), userID, "short-lived"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Rotate(t.Context(), "short-lived", "new"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Rotate(expired) error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionRevoke(t *testing.T) {
	t.Parallel()
	store, mr := newTestSessionStore(t, time.Hour)
	userID := uuid.New()

	if err := store.Create(t.Context(), userID, "tok"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := store.Revoke(t.Context(), userID, "tok"); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	if mr.Exists("session:tok") {
		t.Error("session key survived revoke")
	}
	if _, err := store.Rotate(t.Context(), "tok", "new"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Rotate(revoked) error = %v, want ErrSessionNotFound", err)
	}
}
