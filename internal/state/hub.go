package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"watchbook/internal/core"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/store"
)

// Change describes one committed mutation: the keys that changed with their
// encoded values before and after.
type Change struct {
	Keys   []string
	Before Patch
	After  Patch
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool { return len(c.Keys) == 0 }

// KeyChange is the payload of state:<key>:changed: the encoded value of one
// key before and after the commit.
type KeyChange struct {
	Key    string
	Before json.RawMessage
	After  json.RawMessage
}

// ChangedMonths lists the months whose snapshot differs between Before and
// After of a monthlyData change. ok is false when either side cannot be
// decoded and the caller has to assume every month changed.
func (c KeyChange) ChangedMonths() (months []core.MonthKey, ok bool) {
	var before, after map[core.MonthKey]json.RawMessage
	if err := decodeOptional(c.Before, &before); err != nil {
		return nil, false
	}
	if err := decodeOptional(c.After, &after); err != nil {
		return nil, false
	}
	for m, b := range before {
		if a, found := after[m]; !found || !bytes.Equal(compact(a), compact(b)) {
			months = append(months, m)
		}
	}
	for m := range after {
		if _, found := before[m]; !found {
			months = append(months, m)
		}
	}
	slices.Sort(months)
	return months, true
}

// RateChanged reports whether the USD rate differs between Before and After
// of a settings change. Undecodable values count as changed.
func (c KeyChange) RateChanged() bool {
	var before, after core.Settings
	if decodeOptional(c.Before, &before) != nil || decodeOptional(c.After, &after) != nil {
		return true
	}
	return before.Normalize().USDRate != after.Normalize().USDRate
}

func decodeOptional(data json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func compact(data json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return data
	}
	return buf.Bytes()
}

// Hub owns the in-memory state. Reads never touch the store; every write
// goes through Update which persists the changed keys before the new state
// becomes visible.
type Hub struct {
	store  *store.Store
	bus    *events.Bus
	logger *log.Logger
	now    func() time.Time

	txMu  sync.Mutex // one mutation at a time
	mu    sync.RWMutex
	state State
	busy  bool
}

func NewHub(st *store.Store, bus *events.Bus, logger *log.Logger, now func() time.Time) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Hub{
		store:  st,
		bus:    bus,
		logger: logger.WithComponent(log.ComponentState),
		now:    now,
		state:  Empty(now()),
	}
}

func (h *Hub) Store() *store.Store { return h.store }
func (h *Hub) Bus() *events.Bus    { return h.bus }

// Load replaces the in-memory state with what the store holds. Corrupt keys
// are logged and fall back to their defaults.
func (h *Hub) Load(ctx context.Context) error {
	s := Empty(h.now())
	for _, k := range Keys {
		data, ok, err := h.store.LoadRaw(ctx, k)
		if errors.Is(err, core.ErrCorruptData) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		if !ok {
			continue
		}
		decoded := s.Clone()
		if err := decoded.Decode(k, data); err != nil {
			h.store.MarkCorrupt(ctx, k, err)
			continue
		}
		s = decoded
	}
	s.Normalize(h.now())

	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
	h.logger.InfoContext(ctx, "State loaded",
		"months", len(s.MonthlyData),
		"clients", len(s.Clients),
		"inventory", len(s.Inventory))
	return nil
}

// Snapshot returns a deep copy of the whole state.
func (h *Hub) Snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Clone()
}

// Read runs fn against the live state under a read lock. fn must not keep
// references past its return.
func (h *Hub) Read(fn func(s *State)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn(&h.state)
}

// Get returns a copy of the value behind key.
func (h *Hub) Get(key string) (any, error) {
	s := h.Snapshot()
	return s.Value(key)
}

// Set replaces key with value, persists it and emits state:<key>:changed.
func (h *Hub) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("set %s: %w: %v", key, core.ErrSerialization, err)
	}
	change, err := h.Update(ctx, func(s *State) error {
		return s.Decode(key, data)
	})
	if err != nil {
		return err
	}
	h.Publish(change)
	return nil
}

// Update applies fn to a copy of the state, persists every key whose
// encoding changed and then swaps the copy in. On any error the in-memory
// state is untouched and keys already written are restored. The returned
// change must be passed to Publish once the caller has recorded it.
func (h *Hub) Update(ctx context.Context, fn func(s *State) error) (Change, error) {
	h.txMu.Lock()
	defer h.txMu.Unlock()

	h.mu.RLock()
	busy := h.busy
	cur := h.state.Clone()
	h.mu.RUnlock()
	if busy {
		return Change{}, core.ErrBusy
	}
	return h.commit(ctx, cur, fn, false)
}

// Apply writes the keys of p back, as undo and redo do.
func (h *Hub) Apply(ctx context.Context, p Patch) (Change, error) {
	return h.Update(ctx, func(s *State) error { return s.Apply(p) })
}

// ReplaceAll installs s and writes every key, changed or not. It is meant
// for import and ignores the exclusive flag the importer holds.
func (h *Hub) ReplaceAll(ctx context.Context, s State) (Change, error) {
	h.txMu.Lock()
	defer h.txMu.Unlock()

	h.mu.RLock()
	cur := h.state.Clone()
	h.mu.RUnlock()
	return h.commit(ctx, cur, func(n *State) error {
		*n = s.Clone()
		return nil
	}, true)
}

// Reinstate makes s the in-memory state again and rewrites the store from
// it: every prefixed key is dropped, then the keys in stored are written
// back. It undoes a failed import without depending on backups, which an
// emergency cleanup may already have evicted. Like ReplaceAll it ignores
// the exclusive flag.
func (h *Hub) Reinstate(ctx context.Context, s State, stored []string) error {
	h.txMu.Lock()
	defer h.txMu.Unlock()

	h.mu.Lock()
	h.state = s.Clone()
	h.mu.Unlock()

	var errs []error
	if err := h.store.ClearPrefix(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, k := range Keys {
		if !slices.Contains(stored, k) {
			continue
		}
		data, err := s.Encode(k)
		if err == nil {
			err = h.store.SaveRaw(ctx, k, data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("reinstate %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) commit(ctx context.Context, cur State, fn func(s *State) error, all bool) (Change, error) {
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return Change{}, err
	}
	next.Normalize(h.now())

	change := Change{Before: Patch{}, After: Patch{}}
	for _, k := range Keys {
		before, err := cur.Encode(k)
		if err != nil {
			return Change{}, err
		}
		after, err := next.Encode(k)
		if err != nil {
			return Change{}, err
		}
		if !all && bytes.Equal(before, after) {
			continue
		}
		change.Keys = append(change.Keys, k)
		change.Before[k] = before
		change.After[k] = after
	}

	for i, k := range change.Keys {
		if err := h.store.SaveRaw(ctx, k, change.After[k]); err != nil {
			h.rollback(ctx, change.Keys[:i], change.Before)
			return Change{}, fmt.Errorf("persist %s: %w", k, err)
		}
	}

	h.mu.Lock()
	h.state = next
	h.mu.Unlock()
	return change, nil
}

func (h *Hub) rollback(ctx context.Context, keys []string, before Patch) {
	for _, k := range keys {
		if err := h.store.SaveRaw(ctx, k, before[k]); err != nil {
			h.logger.ErrorContext(ctx, "Rollback failed",
				log.FieldKey, k,
				log.FieldError, err)
		}
	}
}

// Publish emits state:<key>:changed for every key of c with a KeyChange
// payload.
func (h *Hub) Publish(c Change) {
	if h.bus == nil {
		return
	}
	for _, k := range c.Keys {
		h.bus.Publish(events.StateChanged(k), KeyChange{Key: k, Before: c.Before[k], After: c.After[k]})
	}
}

// Subscribe registers fn for changes of key; "*" matches every key.
func (h *Hub) Subscribe(key string, fn events.Handler) func() {
	if key == "*" {
		return h.bus.Subscribe("state:*", fn)
	}
	return h.bus.Subscribe(events.StateChanged(key), fn)
}

// BeginExclusive takes the import lock. While it is held Update fails with
// ErrBusy.
func (h *Hub) BeginExclusive() error {
	h.txMu.Lock()
	defer h.txMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.busy {
		return core.ErrBusy
	}
	h.busy = true
	return nil
}

func (h *Hub) EndExclusive() {
	h.mu.Lock()
	h.busy = false
	h.mu.Unlock()
}

func (h *Hub) Busy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.busy
}
