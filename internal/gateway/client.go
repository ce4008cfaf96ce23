package gateway

import (
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/decidr-app/decidr-server/internal/apierrors"
	"github.com/decidr-app/decidr-server/internal/event"
)

const (
	// maxMessageSize is the maximum size in bytes of a single inbound
	// WebSocket message.
	maxMessageSize = 16384

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// authTimeout is how long a client has to authenticate after connecting.
	authTimeout = 30 * time.Second
)

// Session states. Transitions only move forward: connecting →
// authenticating → active → closing → closed.
const (
	stateConnecting int32 = iota
	stateAuthenticating
	stateActive
	stateClosing
	stateClosed
)

// Client represents a single WebSocket session. Each client runs two
// goroutines (readPump and writePump) and talks to the Hub through its send
// channel and handler methods. One user may hold any number of concurrent
// clients.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	state atomic.Int32

	// Identity, written once during authentication and read by the Hub
	// during dispatch.
	mu        sync.RWMutex
	userID    uuid.UUID
	userName  string
	userEmail string
	sessionID string

	// Rooms this session has joined, maintained by the room registry and
	// drained by the disconnect sweep.
	rooms map[uuid.UUID]struct{}

	// Rate limiting state (only accessed from readPump, no mutex needed).
	eventCount  int
	windowStart time.Time
}

func newClient(hub *Hub, conn *websocket.Conn, logger zerolog.Logger) *Client {
	c := &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, hub.cfg.GatewaySendBuffer),
		log:   logger,
		rooms: make(map[uuid.UUID]struct{}),
	}
	c.state.Store(stateConnecting)
	return c
}

// UserID returns the authenticated user id.
func (c *Client) UserID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// UserName returns the authenticated user's display name.
func (c *Client) UserName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userName
}

// SessionID returns the session identifier assigned at authentication.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// IsActive reports whether the session has authenticated and not begun
// closing.
func (c *Client) IsActive() bool {
	return c.state.Load() == stateActive
}

// joinedRooms snapshots the rooms this session currently occupies.
func (c *Client) joinedRooms() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (c *Client) trackRoom(groupID uuid.UUID) {
	c.mu.Lock()
	c.rooms[groupID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) inRoom(groupID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[groupID]
	return ok
}

func (c *Client) untrackRoom(groupID uuid.UUID) {
	c.mu.Lock()
	delete(c.rooms, groupID)
	c.mu.Unlock()
}

// readPump reads frames from the WebSocket connection and routes them by
// event name. It runs in its own goroutine and owns connection teardown when
// the read loop exits.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	authTimer := time.AfterFunc(authTimeout, func() {
		if !c.IsActive() {
			c.log.Debug().Msg("Client did not authenticate in time")
			c.closeWithCode(CloseNotAuthenticated, "authentication timeout")
		}
	})
	defer authTimer.Stop()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		if c.rateLimited() {
			c.closeWithCode(CloseRateLimited, "rate limit exceeded")
			return
		}

		var frame event.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.closeWithCode(CloseDecodeError, "invalid JSON")
			return
		}

		if frame.Event == event.Authenticate {
			authTimer.Stop()
			c.handleAuthenticate(frame.Data)
			continue
		}

		if !c.IsActive() {
			c.sendError(apierrors.Unauthorized, "authenticate first")
			c.closeWithCode(CloseNotAuthenticated, "not authenticated")
			return
		}

		c.hub.dispatch(c, frame)
	}
}

// writePump writes frames from the send channel to the WebSocket connection.
// It runs in its own goroutine and exits when the send channel is closed.
func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}
}

// handleAuthenticate processes an in-band authenticate event.
func (c *Client) handleAuthenticate(data json.RawMessage) {
	if !c.state.CompareAndSwap(stateConnecting, stateAuthenticating) {
		c.sendError(apierrors.Conflict, "already authenticated")
		return
	}

	var p event.AuthenticatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.closeWithCode(CloseDecodeError, "invalid authenticate payload")
		return
	}
	if p.Token == "" {
		c.closeWithCode(CloseAuthFailed, "token required")
		return
	}

	c.hub.handleAuthenticate(c, p.Token)
}

// enqueue hands a frame to the write pump. If the buffer is full the frame is
// dropped and the connection closed so one slow consumer cannot stall a room
// broadcast.
func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Msg("Client send buffer full, closing connection")
		c.hub.noteDrop()
		c.hub.unregister(c)
		_ = c.conn.Close()
	}
}

// sendEvent encodes and enqueues an outbound event frame.
func (c *Client) sendEvent(name string, payload any) {
	frame, err := event.Encode(name, payload)
	if err != nil {
		c.log.Error().Err(err).Str("event", name).Msg("Failed to encode event")
		return
	}
	c.enqueue(frame)
}

// sendError enqueues an error frame. The connection stays open; fatal
// failures use closeWithCode instead.
func (c *Client) sendError(code apierrors.Code, message string) {
	c.sendEvent(event.Error, event.ErrorPayload{Code: code, Message: message})
}

// closeSend closes the send channel, terminating the write pump. Must only
// be called once; the Hub guards this with its registry bookkeeping.
func (c *Client) closeSend() {
	close(c.send)
}

// closeWithCode sends a WebSocket close frame with the given code and reason,
// then closes the underlying connection.
func (c *Client) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// rateLimited reports whether the client has exceeded the configured inbound
// event rate.
func (c *Client) rateLimited() bool {
	now := time.Now()
	window := time.Duration(c.hub.cfg.RateLimitWSWindowSeconds) * time.Second
	if now.Sub(c.windowStart) > window {
		c.eventCount = 0
		c.windowStart = now
	}
	c.eventCount++
	return c.eventCount > c.hub.cfg.RateLimitWSCount
}

// NewSessionID generates a unique session identifier.
func NewSessionID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + uuid.New().String()[:8]
}
