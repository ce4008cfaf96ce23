package gateway

import "errors"

// Custom WebSocket close codes used by the socket protocol. Standard codes
// (1000, 1001) are defined by RFC 6455; the 4000 range is reserved for
// application use.
const (
	CloseUnknownError     = 4000
	CloseDecodeError      = 4002
	CloseNotAuthenticated = 4003
	CloseAuthFailed       = 4004
	CloseRateLimited      = 4008
)

// ErrMaxConnections is returned by register when the hub is at capacity.
var ErrMaxConnections = errors.New("maximum connections reached")
