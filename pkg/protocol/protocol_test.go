package protocol

import (
	"encoding/json"
	"testing"

	"github.com/teamkard/teamkard/pkg/domain"
	"github.com/teamkard/teamkard/pkg/kanban"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr bool
		check   func(t *testing.T, in *Intent)
	}{
		{
			name:  "authorize",
			frame: `{"type": "authorize", "jwt": "abc.def.ghi"}`,
			check: func(t *testing.T, in *Intent) {
				if in.JWT != "abc.def.ghi" {
					t.Errorf("jwt = %q", in.JWT)
				}
				if in.Domain() != DomainSystem {
					t.Errorf("domain = %v, want system", in.Domain())
				}
			},
		},
		{
			name:  "kanban start carries project id",
			frame: `{"type": "kanban.start", "project_id": 7}`,
			check: func(t *testing.T, in *Intent) {
				if in.ProjectID != domain.ProjectID(7) {
					t.Errorf("project = %d", in.ProjectID)
				}
				if in.Domain() != DomainKanban {
					t.Errorf("domain = %v, want kanban", in.Domain())
				}
			},
		},
		{
			name:  "move kard payload",
			frame: `{"type": "kanban.move_kard", "project_id": 3, "kard_id": 11, "to_column_id": 4, "position": 2}`,
			check: func(t *testing.T, in *Intent) {
				if in.KardID != 11 || in.ToColumnID != 4 || in.Position != 2 {
					t.Errorf("payload = %+v", in)
				}
			},
		},
		{
			name:  "messenger send",
			frame: `{"type": "messenger.send_message", "project_id": 3, "chat_id": 9, "content": "hi"}`,
			check: func(t *testing.T, in *Intent) {
				if in.ChatID != 9 || in.Content != "hi" {
					t.Errorf("payload = %+v", in)
				}
				if in.Domain() != DomainMessenger {
					t.Errorf("domain = %v, want messenger", in.Domain())
				}
			},
		},
		{name: "not json", frame: `{"type": "auth`, wantErr: true},
		{name: "unknown type", frame: `{"type": "kanban.explode"}`, wantErr: true},
		{name: "missing type", frame: `{"project_id": 1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ParseIntent([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIntent: %v", err)
			}
			tt.check(t, in)
		})
	}
}

func TestActionDomains(t *testing.T) {
	tests := []struct {
		action Action
		want   Domain
	}{
		{Unauthorized(), DomainSystem},
		{KeepAlive(), DomainSystem},
		{KanbanSetState(1, &kanban.Board{ProjectID: 1}), DomainKanban},
		{ChatsList(1, nil), DomainMessenger},
		{ChatUnreadCount(1, 2, 3), DomainMessenger},
	}

	for _, tt := range tests {
		if got := tt.action.Domain(); got != tt.want {
			t.Errorf("%s: domain = %v, want %v", tt.action.Type, got, tt.want)
		}
	}
}

func TestActionRoundTrip(t *testing.T) {
	board := &kanban.Board{
		ProjectID: 7,
		Columns: []kanban.Column{
			{ID: 1, Title: "To Do", Position: 1, Kards: []kanban.Kard{}},
		},
	}
	data, err := KanbanSetState(7, board).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var decoded Action
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Type != ActionKanbanSetState || decoded.ProjectID != 7 {
		t.Errorf("envelope = %+v", decoded)
	}
	if decoded.Board == nil || len(decoded.Board.Columns) != 1 {
		t.Errorf("board lost: %+v", decoded.Board)
	}
}
