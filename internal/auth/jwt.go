package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "kind" claim. Socket handshakes and REST
// middleware accept only access tokens; the refresh endpoint accepts only
// refresh tokens.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims holds the JWT claims for Decidr tokens.
type Claims struct {
	Kind          string `json:"kind"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	jwt.RegisteredClaims
}

// TokenParams groups the identity fields embedded in a minted token.
type TokenParams struct {
	UserID        uuid.UUID
	Email         string
	EmailVerified bool
}

// Verifier validates tokens against the configured key pair, issuer, and
// audience. It is the verify(token) capability consumed by the gateway and
// the REST middleware.
type Verifier struct {
	keys     *KeyPair
	issuer   string
	audience string
}

// NewVerifier creates a token verifier.
func NewVerifier(keys *KeyPair, issuer, audience string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer, audience: audience}
}

// Mint creates a signed token of the given kind. The key pair must include
// the private key.
func (v *Verifier) Mint(params TokenParams, kind string, ttl time.Duration) (string, error) {
	if v.keys.Private == nil {
		return "", fmt.Errorf("mint %s token: no private key loaded", kind)
	}

	now := time.Now()
	claims := Claims{
		Kind:          kind,
		Email:         params.Email,
		EmailVerified: params.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   params.UserID.String(),
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(v.keys.Private)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify parses and validates a token, enforcing EdDSA signing, issuer,
// audience, and the expected kind claim.
func (v *Verifier) Verify(tokenStr, kind string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.keys.Public, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithAudience(v.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if claims.Kind != kind {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}

// VerifyAccess is shorthand for Verify with the access kind.
func (v *Verifier) VerifyAccess(tokenStr string) (*Claims, error) {
	return v.Verify(tokenStr, KindAccess)
}

// UserID parses the subject claim into a user id.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrTokenInvalid
	}
	return id, nil
}
