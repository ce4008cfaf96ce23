package auth

import "errors"

// Sentinel errors for authentication failure modes.
var (
	ErrTokenInvalid    = errors.New("token is missing, malformed, or has an invalid signature")
	ErrTokenExpired    = errors.New("token has expired")
	ErrWrongTokenKind  = errors.New("token kind is not valid for this operation")
	ErrSessionNotFound = errors.New("refresh session not found or expired")
)
