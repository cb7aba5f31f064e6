// Package services holds the domain modules. Every mutation runs through the
// state hub, is recorded on the undo stack and is then announced on the bus.
package services

import (
	"context"
	"time"

	"watchbook/internal/core"
	"watchbook/internal/currency"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/state"
	"watchbook/internal/undo"
)

// Deps are the collaborators shared by all modules.
type Deps struct {
	Hub      *state.Hub
	Bus      *events.Bus
	History  *undo.Stack
	Currency *currency.Engine
	Logger   *log.Logger
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Currency == nil {
		d.Currency = currency.NewEngine(nil, d.Now)
	}
	if d.History == nil {
		d.History = undo.NewStack(0)
	}
	return d
}

// emission is a domain event queued by a mutation and published after the
// mutation is committed and recorded.
type emission struct {
	topic   string
	payload any
}

// mutator is embedded by every module.
type mutator struct {
	Deps
	logger *log.Logger
}

func newMutator(d Deps, component string) mutator {
	d = d.withDefaults()
	return mutator{Deps: d, logger: d.Logger.WithComponent(component)}
}

// mutate applies fn to the state. On success the change is pushed on the
// undo stack, state change events go out and then the queued domain events.
// On failure nothing changes and a single notification is shown.
func (m *mutator) mutate(ctx context.Context, kind, label string, fn func(s *state.State) ([]emission, error)) error {
	var queued []emission
	change, err := m.Hub.Update(ctx, func(s *state.State) error {
		var err error
		queued, err = fn(s)
		return err
	})
	if err != nil {
		m.fail(ctx, kind, err)
		return err
	}
	if change.Empty() {
		return nil
	}

	if err := m.History.Push(m.command(kind, label, change)); err != nil {
		m.logger.WarnContext(ctx, "Mutation not recorded", log.FieldOperation, kind, log.FieldError, err)
	}
	m.Hub.Publish(change)
	for _, e := range queued {
		m.Bus.Publish(e.topic, e.payload)
	}
	return nil
}

func (m *mutator) command(kind, label string, change state.Change) undo.Command {
	apply := func(p state.Patch) undo.Action {
		return func(ctx context.Context) error {
			ch, err := m.Hub.Apply(ctx, p)
			if err != nil {
				return err
			}
			m.Hub.Publish(ch)
			return nil
		}
	}
	return undo.Command{
		Kind:      kind,
		Label:     label,
		Timestamp: m.Now(),
		Forward:   apply(change.After),
		Inverse:   apply(change.Before),
	}
}

// fail logs err and shows it to the user once.
func (m *mutator) fail(ctx context.Context, op string, err error) {
	m.logger.WarnContext(ctx, "Operation failed",
		log.FieldOperation, op,
		log.FieldError, err)
	if m.Bus != nil {
		m.Bus.Notify(events.LevelError, core.Kind(err), core.Notice(err))
	}
}

// reject reports a validation failure that never reached the hub.
func (m *mutator) reject(ctx context.Context, op string, err error) error {
	m.fail(ctx, op, err)
	return err
}
