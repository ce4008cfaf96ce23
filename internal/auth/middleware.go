package auth

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/httputil"
)

// Identity is the authenticated caller bound to the request by RequireAuth.
type Identity struct {
	UserID        uuid.UUID
	Email         string
	EmailVerified bool
}

// IdentityFromCtx returns the identity stored by RequireAuth, or false when
// the request is unauthenticated.
func IdentityFromCtx(c fiber.Ctx) (Identity, bool) {
	id, ok := c.Locals("identity").(Identity)
	return id, ok
}

// RequireAuth returns Fiber middleware that validates a Bearer access token
// from the Authorization header and stores the caller's Identity in Locals.
// Refresh tokens are rejected here; only the refresh endpoint accepts them.
func RequireAuth(verifier *Verifier) fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Missing authorization header")
		}

		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Invalid authorization format")
		}
		tokenStr := header[len(prefix):]

		claims, err := verifier.VerifyAccess(tokenStr)
		if err != nil {
			message := "Invalid token"
			switch {
			case errors.Is(err, ErrTokenExpired):
				message = "Token has expired"
			case errors.Is(err, ErrWrongTokenKind):
				message = "Access token required"
			}
			return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, message)
		}

		userID, err := claims.UserID()
		if err != nil {
			return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Invalid token subject")
		}

		c.Locals("identity", Identity{
			UserID:        userID,
			Email:         claims.Email,
			EmailVerified: claims.EmailVerified,
		})
		return c.Next()
	}
}
