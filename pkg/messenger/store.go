// Package messenger is the chat persistence collaborator: project chats,
// messages, and per-user read-state bookkeeping.
package messenger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teamkard/teamkard/pkg/domain"
	"github.com/teamkard/teamkard/pkg/logger"
)

var (
	// ErrChatNotFound is returned when a chat id does not exist.
	ErrChatNotFound = errors.New("messenger: chat not found")
	// ErrMessageNotFound is returned when a message id does not exist.
	ErrMessageNotFound = errors.New("messenger: message not found")
)

// Chat is a named message channel inside a project.
type Chat struct {
	ID        int64            `json:"id"`
	ProjectID domain.ProjectID `json:"project_id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"created_at"`
}

// ChatSummary is a chat plus the derived fields the chats-list reply
// carries: the most recent message and the requester's unread count.
type ChatSummary struct {
	Chat
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// Message is a single chat message.
type Message struct {
	ID        int64         `json:"id"`
	ChatID    int64         `json:"chat_id"`
	SenderID  domain.UserID `json:"sender_id"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store is the SQLite-backed messenger store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the messenger store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open messenger db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init messenger schema: %w", err)
	}

	logger.InfoCF("messenger", "Chat store opened", map[string]interface{}{
		"db_path": path,
	})
	return s, nil
}

// OpenDB wraps an existing database handle. Used when the kanban and
// messenger stores share one SQLite file.
func OpenDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init messenger schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chats_project ON chats(project_id);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id);

	-- Individual per-message read marks.
	CREATE TABLE IF NOT EXISTS read_marks (
		user_id TEXT NOT NULL,
		message_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, message_id),
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	);

	-- "Everything up to message X is read" boundary per user and chat.
	CREATE TABLE IF NOT EXISTS read_before (
		user_id TEXT NOT NULL,
		chat_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, chat_id),
		FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateChat creates a chat in a project and returns it.
func (s *Store) CreateChat(projectID domain.ProjectID, name string) (*Chat, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO chats (project_id, name, created_at) VALUES (?, ?, ?)",
		int64(projectID), name, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Chat{ID: id, ProjectID: projectID, Name: name, CreatedAt: now}, nil
}

// Chat returns a single chat by id.
func (s *Store) Chat(chatID int64) (*Chat, error) {
	row := s.db.QueryRow(
		"SELECT id, project_id, name, created_at FROM chats WHERE id = ?", chatID)
	return scanChat(row)
}

// CreateMessage persists a new message and returns it.
func (s *Store) CreateMessage(chatID int64, senderID domain.UserID, content string) (*Message, error) {
	if _, err := s.Chat(chatID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO messages (chat_id, sender_id, content, created_at) VALUES (?, ?, ?, ?)",
		chatID, string(senderID), content, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, ChatID: chatID, SenderID: senderID, Content: content, CreatedAt: now}, nil
}

// ChatMessages returns up to limit messages of a chat older than beforeID,
// newest first. beforeID <= 0 means "from the latest".
func (s *Store) ChatMessages(chatID, beforeID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, chat_id, sender_id, content, created_at FROM messages WHERE chat_id = ?"
	args := []interface{}{chatID}
	if beforeID > 0 {
		query += " AND id < ?"
		args = append(args, beforeID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// LastMessage returns the newest message of a chat, or nil when empty.
func (s *Store) LastMessage(chatID int64) (*Message, error) {
	row := s.db.QueryRow(`
		SELECT id, chat_id, sender_id, content, created_at
		FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT 1`, chatID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// MarkRead records that a user has read one specific message.
func (s *Store) MarkRead(userID domain.UserID, messageID int64) error {
	var exists int64
	row := s.db.QueryRow("SELECT id FROM messages WHERE id = ?", messageID)
	if err := row.Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		return err
	}

	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO read_marks (user_id, message_id) VALUES (?, ?)",
		string(userID), messageID)
	return err
}

// MarkReadBefore advances the user's read boundary in a chat. The boundary
// never moves backwards.
func (s *Store) MarkReadBefore(userID domain.UserID, chatID, messageID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO read_before (user_id, chat_id, message_id) VALUES (?, ?, ?)
		ON CONFLICT(user_id, chat_id) DO UPDATE SET message_id = excluded.message_id
		WHERE excluded.message_id > read_before.message_id`,
		string(userID), chatID, messageID)
	if err != nil {
		return fmt.Errorf("mark read before: %w", err)
	}
	return nil
}

// UnreadIDs returns the ids of messages in a chat the user has not read:
// newer than the read-before boundary, not individually marked, and not
// sent by the user themselves.
func (s *Store) UnreadIDs(userID domain.UserID, chatID int64) ([]int64, error) {
	rows, err := s.db.Query(`
		SELECT m.id FROM messages m
		WHERE m.chat_id = ?
		  AND m.sender_id != ?
		  AND m.id > COALESCE(
			(SELECT message_id FROM read_before WHERE user_id = ? AND chat_id = ?), 0)
		  AND NOT EXISTS (
			SELECT 1 FROM read_marks r WHERE r.user_id = ? AND r.message_id = m.id)
		ORDER BY m.id`,
		chatID, string(userID), string(userID), chatID, string(userID))
	if err != nil {
		return nil, fmt.Errorf("query unread: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UnreadCount returns the number of unread messages for a user in a chat.
func (s *Store) UnreadCount(userID domain.UserID, chatID int64) (int, error) {
	row := s.db.QueryRow(`
		SELECT COUNT(*) FROM messages m
		WHERE m.chat_id = ?
		  AND m.sender_id != ?
		  AND m.id > COALESCE(
			(SELECT message_id FROM read_before WHERE user_id = ? AND chat_id = ?), 0)
		  AND NOT EXISTS (
			SELECT 1 FROM read_marks r WHERE r.user_id = ? AND r.message_id = m.id)`,
		chatID, string(userID), string(userID), chatID, string(userID))

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ProjectChats lists a project's chats as summaries for the requesting
// user: last message plus unread count per chat.
func (s *Store) ProjectChats(projectID domain.ProjectID, userID domain.UserID) ([]ChatSummary, error) {
	rows, err := s.db.Query(
		"SELECT id, project_id, name, created_at FROM chats WHERE project_id = ? ORDER BY id",
		int64(projectID))
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	chats := []Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]ChatSummary, 0, len(chats))
	for _, c := range chats {
		last, err := s.LastMessage(c.ID)
		if err != nil {
			return nil, err
		}
		unread, err := s.UnreadCount(userID, c.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ChatSummary{Chat: c, LastMessage: last, UnreadCount: unread})
	}
	return summaries, nil
}

// PruneBefore deletes messages created before the cutoff. Returns the
// number of rows removed. Used by the retention janitor.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(
		"DELETE FROM messages WHERE created_at < ?", cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChat(row scanner) (*Chat, error) {
	var c Chat
	var projectID int64
	var created string
	if err := row.Scan(&c.ID, &projectID, &c.Name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	c.ProjectID = domain.ProjectID(projectID)
	c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &c, nil
}

func scanMessage(row scanner) (*Message, error) {
	var m Message
	var sender, created string
	if err := row.Scan(&m.ID, &m.ChatID, &sender, &m.Content, &created); err != nil {
		return nil, err
	}
	m.SenderID = domain.UserID(sender)
	m.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &m, nil
}
