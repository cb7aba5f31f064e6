// Package undo keeps a bounded history of reversible mutations.
package undo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"watchbook/internal/core"
)

const DefaultCapacity = 100

// Action runs one direction of a command.
type Action func(ctx context.Context) error

// Command is a recorded mutation. Forward re-applies it, Inverse reverts it.
type Command struct {
	Kind      string
	Label     string
	Timestamp time.Time
	Forward   Action
	Inverse   Action
}

// Stack holds undo and redo lists, each bounded by the capacity.
type Stack struct {
	mu       sync.Mutex
	capacity int
	undo     []Command
	redo     []Command
}

func NewStack(capacity int) *Stack {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stack{capacity: capacity}
}

// Push records cmd, clears the redo list and evicts the oldest command when
// full. A command without both actions is rejected.
func (s *Stack) Push(cmd Command) error {
	if cmd.Forward == nil || cmd.Inverse == nil {
		return fmt.Errorf("push %s: %w", cmd.Kind, core.ErrNoInverse)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = appendBounded(s.undo, cmd, s.capacity)
	s.redo = nil
	return nil
}

func appendBounded(list []Command, cmd Command, capacity int) []Command {
	list = append(list, cmd)
	if over := len(list) - capacity; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	return list
}

// Undo runs the inverse of the newest command and moves it to the redo
// list. When the inverse fails the command stays on the undo list.
func (s *Stack) Undo(ctx context.Context) (Command, error) {
	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		return Command{}, core.ErrNothingToUndo
	}
	cmd := s.undo[len(s.undo)-1]
	s.mu.Unlock()

	if err := cmd.Inverse(ctx); err != nil {
		return cmd, fmt.Errorf("undo %s: %w", cmd.Kind, err)
	}

	s.mu.Lock()
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = appendBounded(s.redo, cmd, s.capacity)
	s.mu.Unlock()
	return cmd, nil
}

// Redo runs the forward action of the newest undone command.
func (s *Stack) Redo(ctx context.Context) (Command, error) {
	s.mu.Lock()
	if len(s.redo) == 0 {
		s.mu.Unlock()
		return Command{}, core.ErrNothingToRedo
	}
	cmd := s.redo[len(s.redo)-1]
	s.mu.Unlock()

	if err := cmd.Forward(ctx); err != nil {
		return cmd, fmt.Errorf("redo %s: %w", cmd.Kind, err)
	}

	s.mu.Lock()
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = appendBounded(s.undo, cmd, s.capacity)
	s.mu.Unlock()
	return cmd, nil
}

func (s *Stack) CanUndo() bool { return s.UndoCount() > 0 }
func (s *Stack) CanRedo() bool { return s.RedoCount() > 0 }

func (s *Stack) UndoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo)
}

func (s *Stack) RedoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo)
}

// Peek returns the command Undo would revert.
func (s *Stack) Peek() (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.undo) == 0 {
		return Command{}, false
	}
	return s.undo[len(s.undo)-1], true
}

// Clear drops both lists.
func (s *Stack) Clear() {
	s.mu.Lock()
	s.undo, s.redo = nil, nil
	s.mu.Unlock()
}
