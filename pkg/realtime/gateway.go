// Package realtime drives the persistent WebSocket channel: one session
// state machine per connection, multiplexing project observations over a
// single socket and fanning domain events out through per-project
// backflow topics.
package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teamkard/teamkard/pkg/backflow"
	"github.com/teamkard/teamkard/pkg/domain"
	"github.com/teamkard/teamkard/pkg/identity"
	"github.com/teamkard/teamkard/pkg/kanban"
	"github.com/teamkard/teamkard/pkg/logger"
	"github.com/teamkard/teamkard/pkg/messenger"
)

const (
	// keepAliveInterval is how often every project subscription emits a
	// keep_alive frame. It exists purely to defeat client-side idle
	// timeouts and carries no payload.
	keepAliveInterval = 10 * time.Second

	writeWait      = 10 * time.Second
	maxFrameSize   = 64 * 1024
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Identity is established in-band by the authorize intent, so
		// cross-origin upgrades are allowed through.
		return true
	},
}

// BoardStore is the slice of the kanban collaborator the realtime core
// consumes.
type BoardStore interface {
	Board(projectID domain.ProjectID) (*kanban.Board, error)
	CreateKard(projectID domain.ProjectID, columnID int64, title, description string) (int64, error)
	UpdateKard(kardID int64, title, description string) error
	MoveKard(kardID, toColumnID int64, position int) error
	DeleteKard(kardID int64) error
	CreateColumn(projectID domain.ProjectID, title string) (int64, error)
	UpdateColumn(columnID int64, title string) error
	MoveColumn(columnID int64, position int) error
	DeleteColumn(columnID int64) error
}

// ChatStore is the slice of the messenger collaborator the realtime core
// consumes.
type ChatStore interface {
	CreateMessage(chatID int64, senderID domain.UserID, content string) (*messenger.Message, error)
	CreateChat(projectID domain.ProjectID, name string) (*messenger.Chat, error)
	ChatMessages(chatID, beforeID int64, limit int) ([]messenger.Message, error)
	ProjectChats(projectID domain.ProjectID, userID domain.UserID) ([]messenger.ChatSummary, error)
	MarkRead(userID domain.UserID, messageID int64) error
	MarkReadBefore(userID domain.UserID, chatID, messageID int64) error
	UnreadCount(userID domain.UserID, chatID int64) (int, error)
}

// Gateway owns the shared dependencies of every connection: the backflow
// registry, the identity resolver, and the persistence collaborators.
type Gateway struct {
	registry *backflow.Registry
	resolver identity.Resolver
	boards   BoardStore
	chats    ChatStore

	// keepAlive is overridable so tests can shrink the 10 s window.
	keepAlive time.Duration
}

// NewGateway wires a gateway from its collaborators.
func NewGateway(registry *backflow.Registry, resolver identity.Resolver, boards BoardStore, chats ChatStore) *Gateway {
	return &Gateway{
		registry:  registry,
		resolver:  resolver,
		boards:    boards,
		chats:     chats,
		keepAlive: keepAliveInterval,
	}
}

// HandleWebSocket upgrades the HTTP request and drives the connection
// until it closes. Mounted on the API server's /api/ws route.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorCF("ws", "WebSocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	g.serve(ws)
}

// serve runs one connection to completion.
func (g *Gateway) serve(ws *websocket.Conn) {
	c := newConn(g, ws)
	logger.DebugCF("ws", "Connection opened", map[string]interface{}{
		"conn_id": c.id,
	})

	go c.writePump()
	go c.drainLocal()
	c.readPump()
	c.close()
}
