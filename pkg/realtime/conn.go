package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teamkard/teamkard/pkg/logger"
	"github.com/teamkard/teamkard/pkg/protocol"
)

// conn is the per-connection protocol state machine. Its lifecycle:
// unauthenticated until the first successful authorize intent, then
// authenticated with zero or more project subscriptions, then closed.
//
// Goroutines owned by a connection:
//   - readPump: processes inbound intents strictly in arrival order
//   - writePump: sole writer of the socket, draining c.send
//   - drainLocal: filters the connection-private action stream into send
//   - one forward loop per project subscription: backflow delivery plus
//     the keep-alive ticker
type conn struct {
	g  *Gateway
	id string
	ws *websocket.Conn

	send  chan []byte
	local chan protocol.Action

	mu      sync.RWMutex
	session *Session

	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(g *Gateway, ws *websocket.Conn) *conn {
	return &conn{
		g:      g,
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		local:  make(chan protocol.Action, sendBufferSize),
		closed: make(chan struct{}),
	}
}

func (c *conn) currentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *conn) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *conn) alive() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// close cancels everything the connection owns: the owned goroutines via
// the closed channel, then every backflow subscription the session held.
// Safe to call from any goroutine, any number of times.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()

		if s := c.currentSession(); s != nil {
			for _, sub := range s.Subscriptions() {
				sub.Backflow.Cancel()
			}
		}
		logger.DebugCF("ws", "Connection closed", map[string]interface{}{
			"conn_id": c.id,
		})
	})
}

// readPump processes inbound frames one at a time. No intent is handled
// before the previous one finished — ordering within a connection is
// strict. A failure to handle one message never terminates the loop; only
// transport errors and close_session do.
func (c *conn) readPump() {
	c.ws.SetReadLimit(maxFrameSize)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.DebugCF("ws", "Read error", map[string]interface{}{
					"conn_id": c.id, "error": err.Error(),
				})
			}
			return
		}

		in, err := protocol.ParseIntent(data)
		if err != nil {
			// Malformed frame: log and skip, connection stays open.
			logger.WarnCF("ws", "Dropping malformed intent", map[string]interface{}{
				"conn_id": c.id, "error": err.Error(),
			})
			continue
		}

		if done := c.handleIntent(in); done {
			return
		}
	}
}

// handleIntent dispatches one parsed intent. Returns true when the
// connection should stop reading (explicit close_session).
func (c *conn) handleIntent(in *protocol.Intent) bool {
	switch in.Type {
	case protocol.IntentAuthorize:
		c.authorize(in.JWT)
		return false

	case protocol.IntentCloseSession:
		c.close()
		return true
	}

	session := c.currentSession()
	if session == nil {
		// Any non-authorize intent before a session exists: tell the
		// requester and keep waiting. The connection is not closed.
		c.emitLocal(protocol.Unauthorized())
		return false
	}

	switch in.Type {
	case protocol.IntentKanbanStart, protocol.IntentMessengerStart:
		c.startObservation(session, in)
		return false

	case protocol.IntentKanbanStop, protocol.IntentMessengerStop:
		if !session.Stop(in.ProjectID, in.Domain()) {
			logger.DebugCF("ws", "Stop for unsubscribed project ignored", map[string]interface{}{
				"conn_id": c.id, "project": int64(in.ProjectID),
			})
		}
		return false
	}

	// Every remaining intent targets a project the session must already
	// observe. Unknown subscriptions are dropped silently — the client
	// gets no error frame for them.
	sub := session.Subscription(in.ProjectID)
	if sub == nil {
		logger.DebugCF("ws", "Intent for unsubscribed project dropped", map[string]interface{}{
			"conn_id": c.id, "project": int64(in.ProjectID), "intent": in.Type,
		})
		return false
	}

	var err error
	switch in.Domain() {
	case protocol.DomainKanban:
		err = c.dispatchKanban(in, sub)
	case protocol.DomainMessenger:
		err = c.dispatchMessenger(session, in, sub)
	}
	if err != nil {
		// Collaborator failure: logged at the per-message boundary, no
		// action emitted, next intent still processed.
		logger.ErrorCF("ws", "Intent failed", map[string]interface{}{
			"conn_id": c.id, "intent": in.Type, "error": err.Error(),
		})
	}
	return false
}

// authorize resolves the token and establishes the session. Resolution
// failure leaves the connection unauthenticated; only a log records it.
func (c *conn) authorize(token string) {
	if c.currentSession() != nil {
		logger.DebugCF("ws", "Duplicate authorize ignored", map[string]interface{}{
			"conn_id": c.id,
		})
		return
	}

	user, err := c.g.resolver.Resolve(token)
	if err != nil {
		logger.WarnCF("ws", "Authorization failed", map[string]interface{}{
			"conn_id": c.id, "error": err.Error(),
		})
		return
	}

	c.setSession(NewSession(user))
	logger.InfoCF("ws", "Session established", map[string]interface{}{
		"conn_id": c.id, "user": user.ID.String(), "type": string(user.Type),
	})
}

// startObservation upserts the project subscription and, the first time
// a project is observed by this connection, starts its forward loop.
func (c *conn) startObservation(session *Session, in *protocol.Intent) {
	sub, created := session.Upsert(in.ProjectID, in.Domain(), c.g.registry)
	if created {
		go c.forward(sub)
		logger.DebugCF("ws", "Project observation started", map[string]interface{}{
			"conn_id": c.id, "project": int64(in.ProjectID),
		})
	}
}

// forward drains one subscription's backflow channel into the socket and
// emits a keep_alive every interval. It self-terminates when the
// connection dies, checking liveness every keep-alive cycle instead of
// relying on cancellation delivery alone.
func (c *conn) forward(sub *ProjectSubscription) {
	ticker := time.NewTicker(c.g.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case action, ok := <-sub.Backflow.C():
			if !ok {
				return
			}
			c.deliver(action)

		case <-ticker.C:
			if !c.alive() {
				return
			}
			c.deliver(protocol.KeepAlive())

		case <-c.closed:
			return
		}
	}
}

// drainLocal pushes the connection-private action stream through the same
// filter as backflow traffic. Unauthorized and keep_alive are system
// actions and bypass the filter inside deliver.
func (c *conn) drainLocal() {
	for {
		select {
		case action := <-c.local:
			c.deliver(action)
		case <-c.closed:
			return
		}
	}
}

// emitLocal queues an action on the connection-private stream.
func (c *conn) emitLocal(action protocol.Action) {
	select {
	case c.local <- action:
	default:
		logger.WarnCF("ws", "Local stream full, dropping action", map[string]interface{}{
			"conn_id": c.id, "action": action.Type,
		})
	}
}

// allowed applies the fan-out filter: system actions always pass; kanban
// and messenger actions require the matching observation flag on the
// session's subscription for the action's project. No subscription means
// drop, not error.
func (c *conn) allowed(action protocol.Action) bool {
	if action.Domain() == protocol.DomainSystem {
		return true
	}
	session := c.currentSession()
	if session == nil {
		return false
	}
	return session.Observes(action.ProjectID, action.Domain())
}

// deliver filters an action and queues the encoded frame for writePump.
func (c *conn) deliver(action protocol.Action) {
	if !c.allowed(action) {
		return
	}

	data, err := action.Encode()
	if err != nil {
		logger.ErrorCF("ws", "Encode failed", map[string]interface{}{
			"conn_id": c.id, "action": action.Type, "error": err.Error(),
		})
		return
	}

	select {
	case c.send <- data:
	case <-c.closed:
	default:
		logger.WarnCF("ws", "Send queue full, dropping frame", map[string]interface{}{
			"conn_id": c.id, "action": action.Type,
		})
	}
}

// writePump is the only goroutine that writes the socket.
func (c *conn) writePump() {
	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}

		case <-c.closed:
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
