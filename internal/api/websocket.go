package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homey-core/internal/device"
	"github.com/nerrad567/homey-core/internal/identity"
	"github.com/nerrad567/homey-core/internal/infrastructure/config"
	"github.com/nerrad567/homey-core/internal/infrastructure/logging"
	"github.com/nerrad567/homey-core/internal/session"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeSignIn      = "signin"
	WSTypeSignUp      = "signup"
	WSTypeSignOut     = "signout"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsAuthTimeout bounds an in-band sign-in, sign-up or sign-out.
	wsAuthTimeout = 10 * time.Second
)

// MessageAuthPending answers an auth message sent while another one on the
// same connection has not finished.
const MessageAuthPending = "Authentication already in progress"

// Live feed channels. New connections are subscribed to both.
const (
	ChannelDevices = "devices.changed"
	ChannelSession = "session.changed"
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// devicesChangedPayload carries the change (absent in the initial
// snapshot) and the regrouped rooms.
type devicesChangedPayload struct {
	Change *device.Change     `json:"change,omitempty"`
	Rooms  []device.RoomGroup `json:"rooms"`
}

// viewStatePayload is a session.State without tokens.
type viewStatePayload struct {
	Authenticated bool           `json:"authenticated"`
	Loading       bool           `json:"loading"`
	Pending       bool           `json:"pending"`
	User          *identity.User `json:"user,omitempty"`
}

func newViewStatePayload(st session.State) viewStatePayload {
	p := viewStatePayload{
		Authenticated: st.Authenticated(),
		Loading:       st.Loading,
		Pending:       st.Pending,
	}
	if st.Session != nil {
		u := st.Session.User
		p.User = &u
	}
	return p
}

// Hub tracks WebSocket connections and broadcasts events to them.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected dashboard view.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex

	devices *device.Store
	view    *session.Store
	viewSub *session.Subscription
	once    sync.Once
	userID  string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "user_id", client.userID, "clients", h.ClientCount())
}

// Unregister removes a client and tears down its view. Only the caller
// that actually removes the client closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	client.release()
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast sends an event to every subscribed client. Device events only
// reach views that are signed in.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeEvent(channel, payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.accepts(channel) {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for client := range clients {
		close(client.send)
		client.release()
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// handleWebSocket mounts a view and upgrades the connection.
//
// With a ticket from POST /auth/ws-ticket the view starts signed in as the
// ticket's session. Without one it starts signed out and the client signs
// in over the socket with signin and signup messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var accessToken, userID string
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		entry, ok := s.tickets.consume(ticket, time.Now())
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
		accessToken, userID = entry.accessToken, entry.userID
	}

	view := session.New(s.identity, s.logger)
	if err := view.Init(r.Context(), accessToken); err != nil {
		view.Close()
		s.logger.Error("websocket session check failed", "error", err)
		writeInternalError(w, "failed to check session")
		return
	}
	if accessToken != "" && !view.State().Authenticated() {
		view.Close()
		writeUnauthorized(w, "session expired or signed out")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		view.Close()
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{
			ChannelDevices: {},
			ChannelSession: {},
		},
		devices: s.devices,
		view:    view,
		userID:  userID,
	}
	client.viewSub = view.Subscribe(func(st session.State) {
		client.sendEvent(ChannelSession, newViewStatePayload(st))
	})

	s.hub.Register(client)
	client.sendEvent(ChannelSession, newViewStatePayload(view.State()))
	client.sendSnapshot()

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// release detaches the client's view from the identity provider.
func (c *WSClient) release() {
	c.once.Do(func() {
		if c.viewSub != nil {
			c.viewSub.Unsubscribe()
		}
		if c.view != nil {
			c.view.Close()
		}
	})
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message counts as liveness.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscription(msg, true)
	case WSTypeUnsubscribe:
		c.handleSubscription(msg, false)
	case WSTypeSignIn, WSTypeSignUp:
		// Runs beside the read loop so a second submission sees the first
		// one pending.
		go c.handleCredentials(msg)
	case WSTypeSignOut:
		c.handleSignOut(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *WSClient) handleSubscription(msg WSMessage, subscribe bool) {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(payloadBytes, &sub); err != nil {
		c.sendError(msg.ID, "invalid subscription payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if subscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: sub.Channels})
}

// handleCredentials signs the view in or up with the message's email and
// password. A successful sign-in is followed by a device snapshot.
func (c *WSClient) handleCredentials(msg WSMessage) {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}
	var creds credentialsRequest
	if err := json.Unmarshal(payloadBytes, &creds); err != nil {
		c.sendError(msg.ID, "invalid credentials payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsAuthTimeout)
	defer cancel()

	if msg.Type == WSTypeSignUp {
		user, err := c.view.SignUp(ctx, creds.Email, creds.Password)
		if err != nil {
			c.sendError(msg.ID, viewErrorMessage(err))
			return
		}
		c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
			"message": MessageAccountCreated,
			"user":    user,
		})
		return
	}

	sess, err := c.view.SignIn(ctx, creds.Email, creds.Password)
	if err != nil {
		c.sendError(msg.ID, viewErrorMessage(err))
		return
	}
	c.sendResponse(msg.ID, WSTypeResponse, sessionResponse{Message: MessageWelcomeBack, Session: sess})
	c.sendSnapshot()
}

// handleSignOut signs the view out. The session.changed event goes out
// before the response.
func (c *WSClient) handleSignOut(msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), wsAuthTimeout)
	defer cancel()

	if err := c.view.SignOut(ctx); err != nil {
		c.sendError(msg.ID, viewErrorMessage(err))
		return
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]string{"message": MessageSignedOut})
}

func viewErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrAuthPending):
		return MessageAuthPending
	case errors.Is(err, session.ErrClosed):
		return "connection closed"
	}
	return identity.UserMessage(err)
}

// accepts reports whether a broadcast on channel should reach this client.
// Device events need a session whose access token has not expired; a view
// left behind by an expired session stops receiving them until it is
// refreshed.
func (c *WSClient) accepts(channel string) bool {
	if !c.isSubscribed(channel) {
		return false
	}
	if channel == ChannelDevices {
		return c.view.State().Active(time.Now())
	}
	return true
}

// sendSnapshot sends the current rooms as a devices.changed event with no
// change, if the view may see them.
func (c *WSClient) sendSnapshot() {
	if !c.accepts(ChannelDevices) {
		return
	}
	c.sendEvent(ChannelDevices, devicesChangedPayload{Rooms: c.devices.Snapshot().Rooms()})
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// trySend queues data without blocking. A full buffer drops the message;
// a closed channel (client gone) is absorbed.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		_ = recover()
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) sendEvent(channel string, payload any) {
	if !c.isSubscribed(channel) {
		return
	}
	data, err := encodeEvent(channel, payload)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}

func encodeEvent(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}
