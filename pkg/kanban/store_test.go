package kanban

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/teamkard/teamkard/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kanban.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoardEmpty(t *testing.T) {
	s := newTestStore(t)

	board, err := s.Board(domain.ProjectID(1))
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	if len(board.Columns) != 0 {
		t.Errorf("expected empty board, got %d columns", len(board.Columns))
	}
}

func TestBoardAssemblyOrdering(t *testing.T) {
	s := newTestStore(t)
	project := domain.ProjectID(7)

	todo, err := s.CreateColumn(project, "To Do")
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	doing, err := s.CreateColumn(project, "Doing")
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}

	first, err := s.CreateKard(project, todo, "write docs", "")
	if err != nil {
		t.Fatalf("CreateKard: %v", err)
	}
	second, err := s.CreateKard(project, todo, "review docs", "with the team")
	if err != nil {
		t.Fatalf("CreateKard: %v", err)
	}

	board, err := s.Board(project)
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	if len(board.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(board.Columns))
	}
	if board.Columns[0].ID != todo || board.Columns[1].ID != doing {
		t.Errorf("columns out of creation order: %+v", board.Columns)
	}
	kards := board.Columns[0].Kards
	if len(kards) != 2 || kards[0].ID != first || kards[1].ID != second {
		t.Errorf("kards out of order: %+v", kards)
	}

	// Other projects see nothing.
	other, err := s.Board(domain.ProjectID(8))
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	if len(other.Columns) != 0 {
		t.Errorf("project 8 should be empty, got %d columns", len(other.Columns))
	}
}

func TestMoveKardWithinColumn(t *testing.T) {
	s := newTestStore(t)
	project := domain.ProjectID(1)
	col, _ := s.CreateColumn(project, "lane")

	var ids []int64
	for _, title := range []string{"a", "b", "c"} {
		id, err := s.CreateKard(project, col, title, "")
		if err != nil {
			t.Fatalf("CreateKard: %v", err)
		}
		ids = append(ids, id)
	}

	// Move "c" to the front.
	if err := s.MoveKard(ids[2], col, 1); err != nil {
		t.Fatalf("MoveKard: %v", err)
	}

	board, _ := s.Board(project)
	got := titles(board.Columns[0].Kards)
	want := []string{"c", "a", "b"}
	if !equal(got, want) {
		t.Errorf("order after move = %v, want %v", got, want)
	}
}

func TestMoveKardAcrossColumns(t *testing.T) {
	s := newTestStore(t)
	project := domain.ProjectID(1)
	src, _ := s.CreateColumn(project, "src")
	dst, _ := s.CreateColumn(project, "dst")

	a, _ := s.CreateKard(project, src, "a", "")
	b, _ := s.CreateKard(project, src, "b", "")
	c, _ := s.CreateKard(project, dst, "c", "")
	_ = c

	if err := s.MoveKard(a, dst, 1); err != nil {
		t.Fatalf("MoveKard: %v", err)
	}

	board, _ := s.Board(project)
	if got := titles(board.Columns[0].Kards); !equal(got, []string{"b"}) {
		t.Errorf("source column = %v, want [b]", got)
	}
	if got := titles(board.Columns[1].Kards); !equal(got, []string{"a", "c"}) {
		t.Errorf("target column = %v, want [a c]", got)
	}

	// Source gap closed: "b" now at position 1.
	if board.Columns[0].Kards[0].Position != 1 {
		t.Errorf("gap not closed: %+v", board.Columns[0].Kards[0])
	}
	if b == 0 {
		t.Fatal("unexpected zero id")
	}
}

func TestMoveColumn(t *testing.T) {
	s := newTestStore(t)
	project := domain.ProjectID(2)
	for _, title := range []string{"one", "two", "three"} {
		if _, err := s.CreateColumn(project, title); err != nil {
			t.Fatalf("CreateColumn: %v", err)
		}
	}

	board, _ := s.Board(project)
	if err := s.MoveColumn(board.Columns[0].ID, 3); err != nil {
		t.Fatalf("MoveColumn: %v", err)
	}

	board, _ = s.Board(project)
	got := []string{board.Columns[0].Title, board.Columns[1].Title, board.Columns[2].Title}
	want := []string{"two", "three", "one"}
	if !equal(got, want) {
		t.Errorf("column order = %v, want %v", got, want)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	project := domain.ProjectID(3)
	col, _ := s.CreateColumn(project, "lane")
	kard, _ := s.CreateKard(project, col, "old", "")

	if err := s.UpdateKard(kard, "new title", "desc"); err != nil {
		t.Fatalf("UpdateKard: %v", err)
	}
	if err := s.UpdateColumn(col, "renamed"); err != nil {
		t.Fatalf("UpdateColumn: %v", err)
	}

	board, _ := s.Board(project)
	if board.Columns[0].Title != "renamed" {
		t.Errorf("column title = %q", board.Columns[0].Title)
	}
	if board.Columns[0].Kards[0].Title != "new title" {
		t.Errorf("kard title = %q", board.Columns[0].Kards[0].Title)
	}

	if err := s.DeleteKard(kard); err != nil {
		t.Fatalf("DeleteKard: %v", err)
	}
	if err := s.DeleteColumn(col); err != nil {
		t.Fatalf("DeleteColumn: %v", err)
	}
	board, _ = s.Board(project)
	if len(board.Columns) != 0 {
		t.Errorf("board not empty after delete: %+v", board.Columns)
	}
}

func TestNotFound(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		call func() error
	}{
		{"update kard", func() error { return s.UpdateKard(999, "t", "d") }},
		{"delete kard", func() error { return s.DeleteKard(999) }},
		{"move kard", func() error { return s.MoveKard(999, 1, 1) }},
		{"update column", func() error { return s.UpdateColumn(999, "t") }},
		{"delete column", func() error { return s.DeleteColumn(999) }},
		{"move column", func() error { return s.MoveColumn(999, 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func titles(kards []Kard) []string {
	out := make([]string, len(kards))
	for i, k := range kards {
		out[i] = k.Title
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
