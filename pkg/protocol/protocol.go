// Package protocol defines the wire vocabulary of the realtime channel:
// Intents are client-originated requests, Actions are server-originated
// events. Both travel as one JSON object per WebSocket text frame with a
// string "type" discriminator. Every variant flowing through the system
// MUST use one of the constants below — no ad-hoc event maps.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teamkard/teamkard/pkg/domain"
	"github.com/teamkard/teamkard/pkg/kanban"
	"github.com/teamkard/teamkard/pkg/messenger"
)

// Variant domains, used by the fan-out filter.
type Domain int

const (
	// DomainSystem actions bypass subscription filtering entirely.
	DomainSystem Domain = iota
	DomainKanban
	DomainMessenger
)

// --- Intent types ---

const (
	IntentAuthorize    = "authorize"
	IntentCloseSession = "close_session"

	IntentKanbanStart        = "kanban.start"
	IntentKanbanStop         = "kanban.stop"
	IntentKanbanGet          = "kanban.get"
	IntentKanbanCreateKard   = "kanban.create_kard"
	IntentKanbanMoveKard     = "kanban.move_kard"
	IntentKanbanUpdateKard   = "kanban.update_kard"
	IntentKanbanDeleteKard   = "kanban.delete_kard"
	IntentKanbanCreateColumn = "kanban.create_column"
	IntentKanbanMoveColumn   = "kanban.move_column"
	IntentKanbanUpdateColumn = "kanban.update_column"
	IntentKanbanDeleteColumn = "kanban.delete_column"

	IntentMessengerStart               = "messenger.start"
	IntentMessengerStop                = "messenger.stop"
	IntentMessengerSendMessage         = "messenger.send_message"
	IntentMessengerCreateChat          = "messenger.create_chat"
	IntentMessengerRequestChatMessages = "messenger.request_chat_messages"
	IntentMessengerRequestChatsList    = "messenger.request_chats_list"
	IntentMessengerReadMessage         = "messenger.read_message"
	IntentMessengerReadMessagesBefore  = "messenger.read_messages_before"
)

var knownIntents = map[string]Domain{
	IntentAuthorize:    DomainSystem,
	IntentCloseSession: DomainSystem,

	IntentKanbanStart:        DomainKanban,
	IntentKanbanStop:         DomainKanban,
	IntentKanbanGet:          DomainKanban,
	IntentKanbanCreateKard:   DomainKanban,
	IntentKanbanMoveKard:     DomainKanban,
	IntentKanbanUpdateKard:   DomainKanban,
	IntentKanbanDeleteKard:   DomainKanban,
	IntentKanbanCreateColumn: DomainKanban,
	IntentKanbanMoveColumn:   DomainKanban,
	IntentKanbanUpdateColumn: DomainKanban,
	IntentKanbanDeleteColumn: DomainKanban,

	IntentMessengerStart:               DomainMessenger,
	IntentMessengerStop:                DomainMessenger,
	IntentMessengerSendMessage:         DomainMessenger,
	IntentMessengerCreateChat:          DomainMessenger,
	IntentMessengerRequestChatMessages: DomainMessenger,
	IntentMessengerRequestChatsList:    DomainMessenger,
	IntentMessengerReadMessage:         DomainMessenger,
	IntentMessengerReadMessagesBefore:  DomainMessenger,
}

// Intent is the inbound envelope. The envelope is parsed exactly once;
// dispatch reads the parsed fields and never re-scans the raw frame.
type Intent struct {
	Type string `json:"type"`

	// authorize
	JWT string `json:"jwt,omitempty"`

	// Routing target. Every kanban/messenger intent carries the project
	// it addresses.
	ProjectID domain.ProjectID `json:"project_id,omitempty"`

	// kanban payload
	KardID      int64  `json:"kard_id,omitempty"`
	ColumnID    int64  `json:"column_id,omitempty"`
	ToColumnID  int64  `json:"to_column_id,omitempty"`
	Position    int    `json:"position,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// messenger payload
	ChatID    int64  `json:"chat_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	BeforeID  int64  `json:"before_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Name      string `json:"name,omitempty"`
	Content   string `json:"content,omitempty"`
}

// ParseIntent decodes one inbound frame. Unknown types are rejected so a
// malformed or unsupported frame can be logged and skipped.
func ParseIntent(data []byte) (*Intent, error) {
	var in Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	if _, ok := knownIntents[in.Type]; !ok {
		return nil, fmt.Errorf("unknown intent type %q", in.Type)
	}
	return &in, nil
}

// Domain classifies the intent for subscription routing.
func (in *Intent) Domain() Domain {
	return knownIntents[in.Type]
}

// --- Action types ---

const (
	ActionUnauthorized = "unauthorized"
	ActionKeepAlive    = "keep_alive"

	ActionKanbanSetState = "kanban.set_state"

	ActionMessengerNewMessage      = "messenger.new_message"
	ActionMessengerNewChat         = "messenger.new_chat"
	ActionMessengerChatMessages    = "messenger.chat_messages"
	ActionMessengerChatsList       = "messenger.chats_list"
	ActionMessengerMessageRead     = "messenger.message_read"
	ActionMessengerChatUnreadCount = "messenger.chat_unread_count"
)

var knownActions = map[string]Domain{
	ActionUnauthorized: DomainSystem,
	ActionKeepAlive:    DomainSystem,

	ActionKanbanSetState: DomainKanban,

	ActionMessengerNewMessage:      DomainMessenger,
	ActionMessengerNewChat:         DomainMessenger,
	ActionMessengerChatMessages:    DomainMessenger,
	ActionMessengerChatsList:       DomainMessenger,
	ActionMessengerMessageRead:     DomainMessenger,
	ActionMessengerChatUnreadCount: DomainMessenger,
}

// Action is the outbound envelope. ProjectID is the routing key the
// fan-out filter matches against a connection's subscriptions; system
// actions leave it zero.
type Action struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`

	ProjectID domain.ProjectID `json:"project_id,omitempty"`

	// kanban payload
	Board *kanban.Board `json:"board,omitempty"`

	// messenger payload
	ChatID      int64                   `json:"chat_id,omitempty"`
	Message     *messenger.Message      `json:"message,omitempty"`
	Chat        *messenger.Chat         `json:"chat,omitempty"`
	Messages    []messenger.Message     `json:"messages,omitempty"`
	Chats       []messenger.ChatSummary `json:"chats,omitempty"`
	MessageID   int64                   `json:"message_id,omitempty"`
	ReaderID    domain.UserID           `json:"reader_id,omitempty"`
	UnreadCount int                     `json:"unread_count,omitempty"`
}

// Domain classifies the action for fan-out filtering.
func (a Action) Domain() Domain {
	return knownActions[a.Type]
}

// Encode serializes the action for one outbound frame.
func (a Action) Encode() ([]byte, error) {
	return json.Marshal(a)
}

func newAction(typ string, projectID domain.ProjectID) Action {
	return Action{Type: typ, Timestamp: time.Now().UTC(), ProjectID: projectID}
}

// Unauthorized is sent to a connection that issued a non-authorize intent
// before establishing a session.
func Unauthorized() Action {
	return newAction(ActionUnauthorized, 0)
}

// KeepAlive carries no payload; it only defeats idle-connection timeouts.
func KeepAlive() Action {
	return newAction(ActionKeepAlive, 0)
}

// KanbanSetState carries the full current board of a project.
func KanbanSetState(projectID domain.ProjectID, board *kanban.Board) Action {
	a := newAction(ActionKanbanSetState, projectID)
	a.Board = board
	return a
}

// NewMessage announces a freshly persisted chat message.
func NewMessage(projectID domain.ProjectID, msg *messenger.Message) Action {
	a := newAction(ActionMessengerNewMessage, projectID)
	a.ChatID = msg.ChatID
	a.Message = msg
	return a
}

// NewChat announces a freshly created chat.
func NewChat(projectID domain.ProjectID, chat *messenger.Chat) Action {
	a := newAction(ActionMessengerNewChat, projectID)
	a.ChatID = chat.ID
	a.Chat = chat
	return a
}

// ChatMessages is the local-only reply to a chat history request.
func ChatMessages(projectID domain.ProjectID, chatID int64, msgs []messenger.Message) Action {
	a := newAction(ActionMessengerChatMessages, projectID)
	a.ChatID = chatID
	a.Messages = msgs
	return a
}

// ChatsList is the local-only reply to a chats-list request.
func ChatsList(projectID domain.ProjectID, chats []messenger.ChatSummary) Action {
	a := newAction(ActionMessengerChatsList, projectID)
	a.Chats = chats
	return a
}

// MessageRead is the local-only acknowledgement of a read mark.
func MessageRead(projectID domain.ProjectID, chatID, messageID int64, reader domain.UserID) Action {
	a := newAction(ActionMessengerMessageRead, projectID)
	a.ChatID = chatID
	a.MessageID = messageID
	a.ReaderID = reader
	return a
}

// ChatUnreadCount is the local-only unread counter refresh after a
// read-before boundary move.
func ChatUnreadCount(projectID domain.ProjectID, chatID int64, count int) Action {
	a := newAction(ActionMessengerChatUnreadCount, projectID)
	a.ChatID = chatID
	a.UnreadCount = count
	return a
}
