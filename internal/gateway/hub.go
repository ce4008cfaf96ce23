package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/decidr-app/decidr-server/internal/auth"
	"github.com/decidr-app/decidr-server/internal/authz"
	"github.com/decidr-app/decidr-server/internal/config"
	"github.com/decidr-app/decidr-server/internal/event"
	"github.com/decidr-app/decidr-server/internal/group"
	"github.com/decidr-app/decidr-server/internal/member"
	"github.com/decidr-app/decidr-server/internal/message"
	"github.com/decidr-app/decidr-server/internal/metrics"
	"github.com/decidr-app/decidr-server/internal/presence"
	"github.com/decidr-app/decidr-server/internal/user"
)

// handlerTimeout bounds the storage work done for a single inbound event.
const handlerTimeout = 10 * time.Second

// Oracle is the slice of the authorization oracle the gateway consumes.
type Oracle interface {
	VerifyToken(tokenStr string) (*auth.Identity, error)
	IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
	AssertGroupAccess(ctx context.Context, userID, groupID uuid.UUID) (*group.Group, error)
}

// Hub is the socket connection registry and room fan-out engine. Clients
// register after authenticating; the Hub routes their events to handlers and
// broadcasts room traffic to the sessions the registry holds.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	rooms    *registry
	cfg      *config.Config
	oracle   Oracle
	users    user.Repository
	members  member.Repository
	messages message.Repository
	presence *presence.Store
	log      zerolog.Logger
}

// NewHub creates a gateway hub.
func NewHub(
	cfg *config.Config,
	oracle Oracle,
	users user.Repository,
	members member.Repository,
	messages message.Repository,
	presenceStore *presence.Store,
	logger zerolog.Logger,
) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		rooms:    newRegistry(),
		cfg:      cfg,
		oracle:   oracle,
		users:    users,
		members:  members,
		messages: messages,
		presence: presenceStore,
		log:      logger.With().Str("component", "gateway").Logger(),
	}
}

// ServeWebSocket runs an upgraded WebSocket connection. A token presented at
// the upgrade request authenticates immediately; otherwise the client has
// authTimeout to send an authenticate event. Blocks until the connection
// closes.
func (h *Hub) ServeWebSocket(conn *websocket.Conn, headerToken string) {
	client := newClient(h, conn, h.log)

	go client.writePump()

	if headerToken != "" {
		client.state.Store(stateAuthenticating)
		h.handleAuthenticate(client, headerToken)
	}

	client.readPump()
}

// handleAuthenticate verifies a token, loads the user, and promotes the
// session to active. Any failure closes the connection with CloseAuthFailed.
func (h *Hub) handleAuthenticate(c *Client, token string) {
	identity, err := h.oracle.VerifyToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("Socket token verification failed")
		c.closeWithCode(CloseAuthFailed, "invalid token")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	u, err := h.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			c.closeWithCode(CloseAuthFailed, "unknown user")
			return
		}
		h.log.Error().Err(err).Stringer("user_id", identity.UserID).Msg("Failed to load user during authentication")
		c.closeWithCode(CloseUnknownError, "internal error")
		return
	}

	sessionID := NewSessionID()
	c.mu.Lock()
	c.userID = u.ID
	c.userName = u.Name
	c.userEmail = u.Email
	c.sessionID = sessionID
	c.mu.Unlock()

	if err := h.register(c); err != nil {
		h.log.Warn().Err(err).Msg("Failed to register client")
		c.closeWithCode(CloseUnknownError, "registration failed")
		return
	}
	if !c.state.CompareAndSwap(stateAuthenticating, stateActive) {
		// The reader tore the connection down while registration was in
		// flight; undo it instead of leaking a closing session.
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			metrics.ConnectedSessions.Set(float64(len(h.clients)))
		}
		h.mu.Unlock()
		return
	}

	if err := h.presence.AddSocket(ctx, u.ID, sessionID); err != nil {
		h.log.Warn().Err(err).Stringer("user_id", u.ID).Msg("Failed to record socket presence")
	}

	c.sendEvent(event.Authenticated, event.AuthenticatedPayload{
		UserID:    u.ID.String(),
		SessionID: sessionID,
	})

	h.log.Info().Stringer("user_id", u.ID).Str("session_id", sessionID).Msg("Session authenticated")
}

// register adds an authenticated client to the Hub. Unlike single-session
// gateways there is no displacement: one user may hold many sessions.
func (h *Hub) register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.cfg.GatewayMaxConnections {
		return ErrMaxConnections
	}
	h.clients[c] = struct{}{}
	metrics.ConnectedSessions.Set(float64(len(h.clients)))
	return nil
}

// unregister tears a session down exactly once: it leaves every joined room,
// clears typing markers, and drops the socket from presence. Safe to call
// from any teardown path.
func (h *Hub) unregister(c *Client) {
	var prev int32
	for {
		prev = c.state.Load()
		if prev == stateClosing || prev == stateClosed {
			return
		}
		if c.state.CompareAndSwap(prev, stateClosing) {
			break
		}
	}

	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		metrics.ConnectedSessions.Set(float64(len(h.clients)))
		h.mu.Unlock()
		c.closeSend()
	} else {
		h.mu.Unlock()
	}

	if prev == stateActive {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.sweep(ctx, c)
	}

	c.state.Store(stateClosed)
	h.log.Debug().Str("session_id", c.SessionID()).Msg("Session unregistered")
}

// sweep is the disconnect cleanup: leave every room the session occupied
// (announcing user_left_group where it was the user's last session), clear
// every typing marker the user holds, and drop the socket id.
func (h *Hub) sweep(ctx context.Context, c *Client) {
	userID := c.UserID()

	joined := c.joinedRooms()
	for _, groupID := range joined {
		h.leaveRoom(ctx, c, groupID)
	}

	// Typing markers key on the user, not the session, so the scan is the
	// authority on which rooms hold one. When the scan fails, the session's
	// own rooms are the best remaining answer.
	typingRooms, err := h.presence.TypingRooms(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Stringer("user_id", userID).Msg("Failed to scan typing markers")
		typingRooms = joined
	}
	for _, groupID := range typingRooms {
		existed, err := h.presence.ClearTyping(ctx, groupID, userID)
		if err != nil {
			h.log.Warn().Err(err).Stringer("group_id", groupID).Msg("Failed to clear typing on disconnect")
			continue
		}
		if existed {
			h.broadcast(groupID, event.UserStoppedTyping, event.TypingPayload{
				GroupID:  groupID.String(),
				UserID:   userID.String(),
				UserName: c.UserName(),
			}, c)
		}
	}

	if err := h.presence.RemoveSocket(ctx, userID, c.SessionID()); err != nil {
		h.log.Warn().Err(err).Stringer("user_id", userID).Msg("Failed to remove socket presence")
	}
}

// dispatch routes an inbound frame from an active session to its handler.
func (h *Hub) dispatch(c *Client, frame event.Frame) {
	metrics.EventsHandled.WithLabelValues(frame.Event).Inc()

	switch frame.Event {
	case event.JoinGroup:
		h.handleJoinGroup(c, frame.Data)
	case event.LeaveGroup:
		h.handleLeaveGroup(c, frame.Data)
	case event.SendMessage:
		h.handleSendMessage(c, frame.Data)
	case event.GetGroupMessages:
		h.handleGetGroupMessages(c, frame.Data)
	case event.GetRoomInfo:
		h.handleGetRoomInfo(c, frame.Data)
	case event.TypingStart:
		h.handleTypingStart(c, frame.Data)
	case event.TypingStop:
		h.handleTypingStop(c, frame.Data)
	default:
		// Unknown events are ignored so protocol additions never break
		// older peers.
		h.log.Debug().Str("event", frame.Event).Msg("Ignoring unknown event")
	}
}

// broadcast fans an event out to every active session in a room, optionally
// excluding one. Encoding happens once; a session with a full send buffer is
// dropped rather than letting it stall the room.
func (h *Hub) broadcast(groupID uuid.UUID, name string, payload any, exclude *Client) {
	frame, err := event.Encode(name, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", name).Msg("Failed to encode broadcast")
		return
	}

	for _, c := range h.rooms.snapshot(groupID) {
		if c == exclude || !c.IsActive() {
			continue
		}
		c.enqueue(frame)
	}
}

// PublishToRoom broadcasts an event to all sessions in a room. It is the
// bridge the REST surface uses to fan out writes that arrived over HTTP.
func (h *Hub) PublishToRoom(groupID uuid.UUID, name string, payload any) {
	h.broadcast(groupID, name, payload, nil)
}

// noteDrop records a frame lost to a full send queue.
func (h *Hub) noteDrop() {
	metrics.BroadcastDrops.Inc()
}

// SessionCount returns the number of registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection with a Going Away status and runs each
// session's disconnect sweep so presence keys do not linger for their full
// TTL.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait),
		)
		h.unregister(c)
		_ = c.conn.Close()
	}
	h.log.Info().Int("sessions", len(clients)).Msg("Gateway hub shut down")
}

func isForbidden(err error) bool {
	return errors.Is(err, authz.ErrForbidden)
}
