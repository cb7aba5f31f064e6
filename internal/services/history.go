package services

import (
	"context"

	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/undo"
)

// History exposes undo and redo to callers and announces both on the bus.
type History struct {
	mutator
}

func NewHistory(d Deps) *History {
	return &History{mutator: newMutator(d, log.ComponentHistory)}
}

func (h *History) Undo(ctx context.Context) (undo.Command, error) {
	cmd, err := h.History.Undo(ctx)
	if err != nil {
		h.fail(ctx, log.OpUndo, err)
		return cmd, err
	}
	h.logger.InfoContext(ctx, "Undone", log.FieldOperation, cmd.Kind, "label", cmd.Label)
	h.Bus.Publish(events.HistoryUndo, cmd.Label)
	return cmd, nil
}

func (h *History) Redo(ctx context.Context) (undo.Command, error) {
	cmd, err := h.History.Redo(ctx)
	if err != nil {
		h.fail(ctx, log.OpRedo, err)
		return cmd, err
	}
	h.logger.InfoContext(ctx, "Redone", log.FieldOperation, cmd.Kind, "label", cmd.Label)
	h.Bus.Publish(events.HistoryRedo, cmd.Label)
	return cmd, nil
}

func (h *History) CanUndo() bool  { return h.History.CanUndo() }
func (h *History) CanRedo() bool  { return h.History.CanRedo() }
func (h *History) UndoCount() int { return h.History.UndoCount() }
func (h *History) RedoCount() int { return h.History.RedoCount() }

// Clear drops the whole history, as an import does.
func (h *History) Clear() { h.History.Clear() }
