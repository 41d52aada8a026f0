package realtime

import (
	"fmt"

	"github.com/teamkard/teamkard/pkg/protocol"
)

// dispatchKanban executes one kanban intent against the board store.
// Every mutation follows the same shape: apply, re-read the full board,
// publish a set_state action to the project's backflow topic so every
// observer converges on the same state. kanban.get skips the mutation
// but still answers through the topic.
func (c *conn) dispatchKanban(in *protocol.Intent, sub *ProjectSubscription) error {
	switch in.Type {
	case protocol.IntentKanbanGet:
		// No mutation, fall through to the state publish below.

	case protocol.IntentKanbanCreateKard:
		if _, err := c.g.boards.CreateKard(in.ProjectID, in.ColumnID, in.Title, in.Description); err != nil {
			return fmt.Errorf("create kard: %w", err)
		}

	case protocol.IntentKanbanMoveKard:
		if err := c.g.boards.MoveKard(in.KardID, in.ToColumnID, in.Position); err != nil {
			return fmt.Errorf("move kard %d: %w", in.KardID, err)
		}

	case protocol.IntentKanbanUpdateKard:
		if err := c.g.boards.UpdateKard(in.KardID, in.Title, in.Description); err != nil {
			return fmt.Errorf("update kard %d: %w", in.KardID, err)
		}

	case protocol.IntentKanbanDeleteKard:
		if err := c.g.boards.DeleteKard(in.KardID); err != nil {
			return fmt.Errorf("delete kard %d: %w", in.KardID, err)
		}

	case protocol.IntentKanbanCreateColumn:
		if _, err := c.g.boards.CreateColumn(in.ProjectID, in.Title); err != nil {
			return fmt.Errorf("create column: %w", err)
		}

	case protocol.IntentKanbanMoveColumn:
		if err := c.g.boards.MoveColumn(in.ColumnID, in.Position); err != nil {
			return fmt.Errorf("move column %d: %w", in.ColumnID, err)
		}

	case protocol.IntentKanbanUpdateColumn:
		if err := c.g.boards.UpdateColumn(in.ColumnID, in.Title); err != nil {
			return fmt.Errorf("update column %d: %w", in.ColumnID, err)
		}

	case protocol.IntentKanbanDeleteColumn:
		if err := c.g.boards.DeleteColumn(in.ColumnID); err != nil {
			return fmt.Errorf("delete column %d: %w", in.ColumnID, err)
		}

	default:
		return fmt.Errorf("unhandled kanban intent %q", in.Type)
	}

	board, err := c.g.boards.Board(in.ProjectID)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	sub.Backflow.Publish(protocol.KanbanSetState(in.ProjectID, board))
	return nil
}
