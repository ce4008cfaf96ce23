// Package apierrors defines the error code taxonomy shared by the REST API
// and the socket gateway. Codes are stable strings; clients switch on them.
package apierrors

// Code identifies a class of failure in API responses and gateway error
// events.
type Code string

const (
	// ValidationError covers input that fails schema or intrinsic
	// constraints: empty content, over-length content, invalid cursor,
	// malformed id, reply target in another group.
	ValidationError Code = "VALIDATION_ERROR"

	// Unauthorized means the token is missing, invalid, expired, or of the
	// wrong kind.
	Unauthorized Code = "UNAUTHORIZED"

	// Forbidden means the user is not a member, not joined to the room, or
	// lacks the role required for a management operation.
	Forbidden Code = "FORBIDDEN"

	// NotFound means the group, message, or membership target does not exist.
	NotFound Code = "NOT_FOUND"

	// Conflict covers duplicate membership and removal of the sole owner.
	Conflict Code = "CONFLICT"

	// InternalError is returned when the store or cache is unavailable or an
	// unexpected failure occurred. Internals are never leaked to clients.
	InternalError Code = "INTERNAL_ERROR"
)
