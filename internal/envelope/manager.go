package envelope

import (
	"context"
	"errors"
	"fmt"
	"time"

	"watchbook/internal/core"
	"watchbook/internal/events"
	"watchbook/internal/fileio"
	"watchbook/internal/log"
	"watchbook/internal/services"
	"watchbook/internal/state"
)

// Manager exports the application state and replaces it from bundles.
type Manager struct {
	deps   services.Deps
	logger *log.Logger
}

func NewManager(d services.Deps) *Manager {
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Manager{deps: d, logger: d.Logger.WithComponent(log.ComponentEnvelope)}
}

// Bundle returns the current state as a bundle dated now.
func (m *Manager) Bundle() Bundle {
	return FromState(m.deps.Hub.Snapshot(), m.deps.Now())
}

// Export encodes the current state.
func (m *Manager) Export(ctx context.Context) ([]byte, error) {
	data, err := Encode(m.Bundle())
	if err != nil {
		m.fail(ctx, log.OpExport, err)
		return nil, err
	}
	return data, nil
}

// ExportTo writes the bundle through fio under its dated name and records
// the export time. It returns where the bundle went.
func (m *Manager) ExportTo(ctx context.Context, fio fileio.FileIO) (string, error) {
	data, err := m.Export(ctx)
	if err != nil {
		return "", err
	}
	loc, err := fio.Write(ctx, fileio.BundleName(m.deps.Now()), data)
	if err != nil {
		m.fail(ctx, log.OpExport, err)
		return "", err
	}
	if err := m.MarkExported(ctx); err != nil {
		return loc, err
	}
	m.logger.InfoContext(ctx, "Exported bundle",
		log.FieldFile, loc,
		log.FieldBytes, len(data))
	return loc, nil
}

// MarkExported records now as the last manual export.
func (m *Manager) MarkExported(ctx context.Context) error {
	ts := m.deps.Now().UnixMilli()
	change, err := m.deps.Hub.Update(ctx, func(s *state.State) error {
		s.LastManualExport = ts
		return nil
	})
	if err != nil {
		m.fail(ctx, log.OpExport, err)
		return err
	}
	m.deps.Hub.Publish(change)
	return nil
}

// ImportFrom reads name through fio and imports it.
func (m *Manager) ImportFrom(ctx context.Context, fio fileio.FileIO, name string) (Result, error) {
	data, err := fio.Read(ctx, name)
	if err != nil {
		m.fail(ctx, log.OpImport, err)
		return Result{}, err
	}
	return m.Import(ctx, data)
}

// Import replaces the whole state with the bundle in data. Every stored
// key is backed up first. Any failure, cancellation included, writes the
// pre-import state back from memory so the state is exactly what it was
// before. The undo history is cleared on success.
func (m *Manager) Import(ctx context.Context, data []byte) (Result, error) {
	b, res, err := Parse(data, m.deps.Currency)
	if err != nil {
		m.fail(ctx, log.OpImport, err)
		return res, err
	}

	hub := m.deps.Hub
	if err := hub.BeginExclusive(); err != nil {
		m.fail(ctx, log.OpImport, err)
		return res, err
	}
	defer hub.EndExclusive()

	checkpoint, err := hub.Store().Checkpoint(ctx)
	if err != nil {
		err = fmt.Errorf("pre-import backup: %w", err)
		m.fail(ctx, log.OpImport, err)
		return res, err
	}

	before := hub.Snapshot()
	next := b.State(m.deps.Now())
	next.LastManualExport = before.LastManualExport

	change, err := m.replace(ctx, next)
	if err != nil {
		m.rollback(context.WithoutCancel(ctx), before, checkpoint)
		m.fail(ctx, log.OpImport, err)
		return res, err
	}

	if m.deps.History != nil {
		m.deps.History.Clear()
	}
	hub.Publish(change)
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(events.StoreImported, res)
	}
	m.logger.InfoContext(ctx, "Imported bundle",
		log.FieldVersion, res.Version,
		"months", res.Months,
		"orders", res.Orders,
		"clients", res.Clients)
	return res, nil
}

func (m *Manager) replace(ctx context.Context, next state.State) (state.Change, error) {
	st := m.deps.Hub.Store()
	if err := st.ClearPrefix(ctx); err != nil {
		return state.Change{}, err
	}
	if err := ctx.Err(); err != nil {
		return state.Change{}, fmt.Errorf("import cancelled: %w", err)
	}
	change, err := m.deps.Hub.ReplaceAll(ctx, next)
	if err != nil {
		return state.Change{}, err
	}
	if err := ctx.Err(); err != nil {
		return state.Change{}, fmt.Errorf("import cancelled: %w", err)
	}
	return change, nil
}

// rollback drops the backups the failed import wrote and then writes the
// pre-import state back. The checkpoint tells which keys were stored.
func (m *Manager) rollback(ctx context.Context, before state.State, checkpoint map[string]int64) {
	vault := m.deps.Hub.Store().Vault()
	stored := make([]string, 0, len(checkpoint))
	for key, ts := range checkpoint {
		stored = append(stored, key)
		if _, err := vault.DiscardAfter(ctx, key, ts); err != nil {
			m.logger.WarnContext(ctx, "Rollback backup cleanup failed",
				log.FieldKey, key,
				log.FieldError, err)
		}
	}
	if err := m.deps.Hub.Reinstate(ctx, before, stored); err != nil {
		m.logger.ErrorContext(ctx, "Rollback incomplete", log.FieldError, err)
		return
	}
	m.logger.WarnContext(ctx, "Import rolled back", "keys", len(stored))
}

func (m *Manager) fail(ctx context.Context, op string, err error) {
	m.logger.WarnContext(ctx, "Operation failed",
		log.FieldOperation, op,
		log.FieldError, err)
	if m.deps.Bus == nil {
		return
	}
	kind := core.Kind(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = "Cancelled"
	}
	m.deps.Bus.Notify(events.LevelError, kind, core.Notice(err))
}
