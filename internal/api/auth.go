package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/auth"
	"github.com/decidr-app/decidr-server/internal/config"
	"github.com/decidr-app/decidr-server/internal/httputil"
	"github.com/decidr-app/decidr-server/internal/user"
)

// AuthHandler serves token lifecycle endpoints. Sign-in itself lives in the
// external identity service; this surface only rotates and revokes the
// refresh sessions it issued.
type AuthHandler struct {
	verifier *auth.Verifier
	sessions *auth.SessionStore
	users    user.Repository
	cfg      *config.Config
	log      zerolog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(verifier *auth.Verifier, sessions *auth.SessionStore, users user.Repository, cfg *config.Config, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{verifier: verifier, sessions: sessions, users: users, cfg: cfg, log: logger}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /api/v1/auth/refresh. The old refresh token is
// consumed atomically; presenting an already-rotated token fails and is a
// reuse signal.
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var body refreshRequest
	if err := c.Bind().Body(&body); err != nil || body.RefreshToken == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "refreshToken is required")
	}

	claims, err := h.verifier.Verify(body.RefreshToken, auth.KindRefresh)
	if err != nil {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Invalid refresh token")
	}
	tokenUserID, err := claims.UserID()
	if err != nil {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Invalid token subject")
	}

	u, err := h.users.GetByID(c, tokenUserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Unknown user")
		}
		h.log.Error().Err(err).Msg("failed to load user during refresh")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}

	params := auth.TokenParams{UserID: u.ID, Email: u.Email, EmailVerified: u.EmailVerified}

	newRefresh, err := h.verifier.Mint(params, auth.KindRefresh, h.cfg.JWTRefreshTTL)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to mint refresh token")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}

	sessionUserID, err := h.sessions.Rotate(c, body.RefreshToken, newRefresh)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			h.log.Warn().Stringer("user_id", tokenUserID).Msg("refresh token reuse or expiry detected")
			return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Session expired, sign in again")
		}
		h.log.Error().Err(err).Msg("failed to rotate session")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
	if sessionUserID != tokenUserID {
		// The stored session belongs to someone else; treat as invalid.
		_ = h.sessions.Revoke(c, sessionUserID, newRefresh)
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Invalid refresh token")
	}

	access, err := h.verifier.Mint(params, auth.KindAccess, h.cfg.JWTAccessTTL)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to mint access token")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}

	return httputil.Success(c, tokenPairResponse{AccessToken: access, RefreshToken: newRefresh})
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout handles POST /api/v1/auth/logout. Requires a valid access token and
// revokes the presented refresh session.
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	identity, ok := auth.IdentityFromCtx(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Authentication required")
	}

	var body logoutRequest
	if err := c.Bind().Body(&body); err != nil || body.RefreshToken == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, "refreshToken is required")
	}

	if err := h.sessions.Revoke(c, identity.UserID, body.RefreshToken); err != nil {
		h.log.Error().Err(err).Msg("failed to revoke session")
		return httputil.Fail(c, fiber.StatusInternalServerError, apierrors.InternalError, "An internal error occurred")
	}
	return httputil.SuccessStatus(c, fiber.StatusOK, fiber.Map{"revoked": true})
}

// requireIdentity extracts the authenticated caller. When the request is
// unauthenticated the response is already written and ok is false.
func requireIdentity(c fiber.Ctx) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromCtx(c)
	if !ok {
		_ = httputil.Fail(c, fiber.StatusUnauthorized, apierrors.Unauthorized, "Authentication required")
		return auth.Identity{}, false
	}
	return identity, true
}

// parseIDParam parses a UUID route parameter. On a malformed id the
// validation error response is already written and ok is false.
func parseIDParam(c fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		_ = httputil.Fail(c, fiber.StatusBadRequest, apierrors.ValidationError, name+" must be a valid id")
		return uuid.Nil, false
	}
	return id, true
}
