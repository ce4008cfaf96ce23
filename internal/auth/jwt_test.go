package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	keys, err := NewTestKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	return NewVerifier(keys, "decidr-backend", "decidr-client")
}

func TestMintAndVerifyAccess(t *testing.T) {
	t.Parallel()
	v := newTestVerifier(t)
	userID := uuid.New()

	token, err := v.Mint(TokenParams{UserID: userID, Email: "a@b.com", EmailVerified: true}, KindAccess, time.Minute)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	claims, err := v.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess() error: %v", err)
	}
	if claims.Email != "a@b.com" || !claims.EmailVerified {
		t.Errorf("claims = %+v, want email a@b.com verified", claims)
	}
	got, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID() error: %v", err)
	}
	if got != userID {
		t.Errorf("UserID() = %s, want %s", got, userID)
	}
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	t.Parallel()
	v := newTestVerifier(t)

	refresh, err := v.Mint(TokenParams{UserID: uuid.New()}, KindRefresh, time.Minute)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	if _, err := v.VerifyAccess(refresh); !errors.Is(err, ErrWrongTokenKind) {
		t.Errorf("VerifyAccess(refresh token) error = %v, want ErrWrongTokenKind", err)
	}
	if _, err := v.Verify(refresh, KindRefresh); err != nil {
		t.Errorf("Verify(refresh, refresh) error = %v, want nil", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()
	v := newTestVerifier(t)

	token, err := v.Mint(TokenParams{UserID: uuid.New()}, KindAccess, -time.Minute)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	if _, err := v.VerifyAccess(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("VerifyAccess(expired) error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	t.Parallel()
	keys, err := NewTestKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	minter := NewVerifier(keys, "someone-else", "decidr-client")
	verifier := NewVerifier(keys, "decidr-backend", "decidr-client")

	token, err := minter.Mint(TokenParams{UserID: uuid.New()}, KindAccess, time.Minute)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	if _, err := verifier.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("VerifyAccess(wrong issuer) error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	t.Parallel()
	a := newTestVerifier(t)
	b := newTestVerifier(t)

	token, err := a.Mint(TokenParams{UserID: uuid.New()}, KindAccess, time.Minute)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	if _, err := b.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("VerifyAccess(foreign key) error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()
	v := newTestVerifier(t)

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := v.VerifyAccess(tok); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("VerifyAccess(%q) error = %v, want ErrTokenInvalid", tok, err)
		}
	}
}
