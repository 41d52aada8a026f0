// Package kanban is the board persistence collaborator. It owns the
// columns and kards of every project board and is consumed by the
// realtime core through a narrow interface.
package kanban

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teamkard/teamkard/pkg/domain"
	"github.com/teamkard/teamkard/pkg/logger"
)

// ErrNotFound is returned when a kard or column does not exist.
var ErrNotFound = errors.New("kanban: not found")

// Kard is a single card on a board.
type Kard struct {
	ID          int64     `json:"id"`
	ColumnID    int64     `json:"column_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Column is an ordered lane of kards.
type Column struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
	Kards    []Kard `json:"kards"`
}

// Board is the full kanban state of one project, columns and kards
// ordered by position.
type Board struct {
	ProjectID domain.ProjectID `json:"project_id"`
	Columns   []Column         `json:"columns"`
}

// Store is the SQLite-backed board store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the board store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open kanban db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init kanban schema: %w", err)
	}

	logger.InfoCF("kanban", "Board store opened", map[string]interface{}{
		"db_path": path,
	})
	return s, nil
}

// OpenDB wraps an existing database handle. Used when the kanban and
// messenger stores share one SQLite file.
func OpenDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init kanban schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS columns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		position INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_columns_project ON columns(project_id, position);

	CREATE TABLE IF NOT EXISTS kards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		column_id INTEGER NOT NULL,
		project_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		position INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (column_id) REFERENCES columns(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_kards_column ON kards(column_id, position);
	CREATE INDEX IF NOT EXISTS idx_kards_project ON kards(project_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Board assembles the full current state of a project board.
func (s *Store) Board(projectID domain.ProjectID) (*Board, error) {
	board := &Board{ProjectID: projectID, Columns: []Column{}}

	rows, err := s.db.Query(
		"SELECT id, title, position FROM columns WHERE project_id = ? ORDER BY position",
		int64(projectID))
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.ID, &col.Title, &col.Position); err != nil {
			return nil, err
		}
		col.Kards = []Kard{}
		board.Columns = append(board.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range board.Columns {
		kards, err := s.columnKards(board.Columns[i].ID)
		if err != nil {
			return nil, err
		}
		board.Columns[i].Kards = kards
	}

	return board, nil
}

func (s *Store) columnKards(columnID int64) ([]Kard, error) {
	rows, err := s.db.Query(`
		SELECT id, column_id, title, description, position, created_at, updated_at
		FROM kards WHERE column_id = ? ORDER BY position`, columnID)
	if err != nil {
		return nil, fmt.Errorf("query kards: %w", err)
	}
	defer rows.Close()

	kards := []Kard{}
	for rows.Next() {
		var k Kard
		var created, updated string
		if err := rows.Scan(&k.ID, &k.ColumnID, &k.Title, &k.Description, &k.Position, &created, &updated); err != nil {
			return nil, err
		}
		k.CreatedAt, _ = time.Parse(time.RFC3339, created)
		k.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		kards = append(kards, k)
	}
	return kards, rows.Err()
}

// CreateColumn appends a column at the end of the board.
func (s *Store) CreateColumn(projectID domain.ProjectID, title string) (int64, error) {
	var next int
	row := s.db.QueryRow(
		"SELECT COALESCE(MAX(position), 0) + 1 FROM columns WHERE project_id = ?",
		int64(projectID))
	if err := row.Scan(&next); err != nil {
		return 0, err
	}

	res, err := s.db.Exec(
		"INSERT INTO columns (project_id, title, position, created_at) VALUES (?, ?, ?, ?)",
		int64(projectID), title, next, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("create column: %w", err)
	}
	return res.LastInsertId()
}

// UpdateColumn renames a column.
func (s *Store) UpdateColumn(columnID int64, title string) error {
	res, err := s.db.Exec("UPDATE columns SET title = ? WHERE id = ?", title, columnID)
	if err != nil {
		return fmt.Errorf("update column: %w", err)
	}
	return requireAffected(res)
}

// MoveColumn moves a column to a new position, shifting its neighbours.
func (s *Store) MoveColumn(columnID int64, newPos int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var projectID int64
	var oldPos int
	row := tx.QueryRow("SELECT project_id, position FROM columns WHERE id = ?", columnID)
	if err := row.Scan(&projectID, &oldPos); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if newPos == oldPos {
		return tx.Commit()
	}

	if newPos > oldPos {
		_, err = tx.Exec(`UPDATE columns SET position = position - 1
			WHERE project_id = ? AND position > ? AND position <= ?`,
			projectID, oldPos, newPos)
	} else {
		_, err = tx.Exec(`UPDATE columns SET position = position + 1
			WHERE project_id = ? AND position >= ? AND position < ?`,
			projectID, newPos, oldPos)
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec("UPDATE columns SET position = ? WHERE id = ?", newPos, columnID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteColumn removes a column and, via the FK cascade, its kards.
func (s *Store) DeleteColumn(columnID int64) error {
	res, err := s.db.Exec("DELETE FROM columns WHERE id = ?", columnID)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	return requireAffected(res)
}

// CreateKard appends a kard at the end of a column.
func (s *Store) CreateKard(projectID domain.ProjectID, columnID int64, title, description string) (int64, error) {
	var next int
	row := s.db.QueryRow(
		"SELECT COALESCE(MAX(position), 0) + 1 FROM kards WHERE column_id = ?", columnID)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		INSERT INTO kards (column_id, project_id, title, description, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		columnID, int64(projectID), title, description, next, now, now)
	if err != nil {
		return 0, fmt.Errorf("create kard: %w", err)
	}
	return res.LastInsertId()
}

// UpdateKard rewrites a kard's title and description.
func (s *Store) UpdateKard(kardID int64, title, description string) error {
	res, err := s.db.Exec(
		"UPDATE kards SET title = ?, description = ?, updated_at = ? WHERE id = ?",
		title, description, time.Now().UTC().Format(time.RFC3339), kardID)
	if err != nil {
		return fmt.Errorf("update kard: %w", err)
	}
	return requireAffected(res)
}

// MoveKard moves a kard to a position inside a target column. The source
// column closes the gap; the target column makes room.
func (s *Store) MoveKard(kardID, toColumnID int64, newPos int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var fromColumnID int64
	var oldPos int
	row := tx.QueryRow("SELECT column_id, position FROM kards WHERE id = ?", kardID)
	if err := row.Scan(&fromColumnID, &oldPos); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if fromColumnID == toColumnID {
		if newPos == oldPos {
			return tx.Commit()
		}
		if newPos > oldPos {
			_, err = tx.Exec(`UPDATE kards SET position = position - 1
				WHERE column_id = ? AND position > ? AND position <= ?`,
				fromColumnID, oldPos, newPos)
		} else {
			_, err = tx.Exec(`UPDATE kards SET position = position + 1
				WHERE column_id = ? AND position >= ? AND position < ?`,
				fromColumnID, newPos, oldPos)
		}
		if err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(`UPDATE kards SET position = position - 1
			WHERE column_id = ? AND position > ?`, fromColumnID, oldPos); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE kards SET position = position + 1
			WHERE column_id = ? AND position >= ?`, toColumnID, newPos); err != nil {
			return err
		}
	}

	_, err = tx.Exec(
		"UPDATE kards SET column_id = ?, position = ?, updated_at = ? WHERE id = ?",
		toColumnID, newPos, time.Now().UTC().Format(time.RFC3339), kardID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteKard removes a kard and closes the position gap it leaves.
func (s *Store) DeleteKard(kardID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var columnID int64
	var pos int
	row := tx.QueryRow("SELECT column_id, position FROM kards WHERE id = ?", kardID)
	if err := row.Scan(&columnID, &pos); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if _, err := tx.Exec("DELETE FROM kards WHERE id = ?", kardID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE kards SET position = position - 1
		WHERE column_id = ? AND position > ?`, columnID, pos); err != nil {
		return err
	}
	return tx.Commit()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
