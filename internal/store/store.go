// Package store is the keyed persistence layer: JSON values under a
// namespaced key, rolling backups on every save and a health report.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"watchbook/internal/core"
	"watchbook/internal/log"
	"watchbook/internal/storage"
)

const DefaultPrefix = "orderSystem_"

// Health thresholds as a fraction of the quota.
const (
	WarningRatio = 0.80
	ErrorRatio   = 0.95
)

// Status is the aggregate health of the medium.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Health is a point-in-time report on the medium.
type Health struct {
	Status      Status    `json:"status"`
	UsedBytes   int64     `json:"usedBytes"`
	QuotaBytes  int64     `json:"quotaBytes"`
	UsageRatio  float64   `json:"usageRatio"`
	BackupCount int       `json:"backupCount"`
	LastSave    time.Time `json:"lastSave"`
	Error       string    `json:"error,omitempty"`
}

// ErrorHook observes failed writes.
type ErrorHook func(key string, err error)

// Options configures a Store. Zero values take the documented defaults.
type Options struct {
	Prefix       string
	BackupKeep   int
	BackupMaxAge time.Duration
	Now          func() time.Time
	Logger       *log.Logger
}

// Store maps logical keys to JSON values on a medium. Saves are serialized;
// a backup of every successful save is written inside the same critical
// section.
type Store struct {
	medium storage.Medium
	prefix string
	vault  *Vault
	now    func() time.Time
	logger *log.Logger

	mu       sync.Mutex
	lastSave time.Time
	lastErr  error
	corrupt  map[string]struct{}
	hooks    []ErrorHook
}

func New(medium storage.Medium, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	s := &Store{
		medium:  medium,
		prefix:  opts.Prefix,
		now:     opts.Now,
		logger:  opts.Logger.WithComponent(log.ComponentStore),
		corrupt: make(map[string]struct{}),
	}
	s.vault = newVault(medium, opts.Prefix, opts.BackupKeep, opts.BackupMaxAge, opts.Now, opts.Logger)
	return s
}

func (s *Store) Prefix() string         { return s.prefix }
func (s *Store) Vault() *Vault          { return s.vault }
func (s *Store) Medium() storage.Medium { return s.medium }

// OnError registers a hook called after every failed write.
func (s *Store) OnError(h ErrorHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// Save serializes value and writes it under key.
func (s *Store) Save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		err = fmt.Errorf("save %s: %w: %v", key, core.ErrSerialization, err)
		s.mu.Lock()
		s.fail(key, err)
		s.mu.Unlock()
		return err
	}
	return s.SaveRaw(ctx, key, data)
}

// SaveRaw writes an already serialized JSON document under key. When the
// medium is full it drops all but the newest backup of every key and tries
// once more.
func (s *Store) SaveRaw(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !json.Valid(data) {
		err := fmt.Errorf("save %s: %w", key, core.ErrSerialization)
		s.fail(key, err)
		return err
	}
	err := s.medium.Set(ctx, s.prefix+key, data)
	if errors.Is(err, core.ErrQuotaExceeded) {
		removed, cerr := s.vault.EmergencyCleanup(ctx)
		if cerr != nil {
			s.logger.WarnContext(ctx, "Emergency cleanup failed", log.FieldKey, key, log.FieldError, cerr)
		}
		if removed > 0 {
			s.logger.WarnContext(ctx, "Storage full, removed old backups",
				log.FieldKey, key,
				"removed", removed)
			err = s.medium.Set(ctx, s.prefix+key, data)
		}
	}
	if err != nil {
		err = fmt.Errorf("save %s: %w", key, err)
		s.fail(key, err)
		return err
	}

	s.lastSave = s.now()
	s.lastErr = nil
	delete(s.corrupt, key)
	s.logger.DebugContext(ctx, "Saved key", log.NewFields().WithKey(key, len(data)).ToSlice()...)

	if _, err := s.vault.snapshot(ctx, key, data); err != nil {
		s.logger.WarnContext(ctx, "Backup not written",
			log.FieldKey, key,
			log.FieldError, err)
	}
	return nil
}

func (s *Store) fail(key string, err error) {
	s.lastErr = err
	s.logger.Error("Write failed",
		log.FieldKey, key,
		log.FieldOperation, log.OpSave,
		log.FieldError, err)
	for _, h := range s.hooks {
		h(key, err)
	}
}

// Load decodes the value under key into dst. It reports false when the key
// is absent. Undecodable data is marked corrupt and reported as
// ErrCorruptData together with false.
func (s *Store) Load(ctx context.Context, key string, dst any) (bool, error) {
	data, ok, err := s.LoadRaw(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.MarkCorrupt(ctx, key, err)
		return false, fmt.Errorf("load %s: %w: %v", key, core.ErrCorruptData, err)
	}
	return true, nil
}

// LoadRaw returns the stored bytes under key. Invalid JSON is marked corrupt.
func (s *Store) LoadRaw(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := s.medium.Get(ctx, s.prefix+key)
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	if !json.Valid(data) {
		s.MarkCorrupt(ctx, key, errors.New("invalid json"))
		return nil, false, fmt.Errorf("load %s: %w", key, core.ErrCorruptData)
	}
	return data, true, nil
}

// MarkCorrupt records that key could not be decoded; it becomes eligible for
// restore until the next successful save.
func (s *Store) MarkCorrupt(ctx context.Context, key string, cause error) {
	s.mu.Lock()
	s.corrupt[key] = struct{}{}
	s.mu.Unlock()
	s.logger.WarnContext(ctx, "Corrupt data, treating key as absent",
		log.FieldKey, key,
		log.FieldOperation, log.OpLoad,
		log.FieldError, cause)
}

// CorruptKeys lists keys whose last load failed to decode, sorted.
func (s *Store) CorruptKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.corrupt))
	for k := range s.corrupt {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.medium.Delete(ctx, s.prefix+key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Keys lists the logical keys currently stored under the prefix.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	full, err := s.medium.Keys(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, s.prefix))
	}
	return keys, nil
}

// ClearPrefix removes every key under the prefix. Backups live under a
// different prefix and survive.
func (s *Store) ClearPrefix(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.medium.Keys(ctx, s.prefix)
	if err != nil {
		return fmt.Errorf("clear prefix: %w", err)
	}
	for _, k := range keys {
		if err := s.medium.Delete(ctx, k); err != nil {
			return fmt.Errorf("clear prefix: %w", err)
		}
	}
	s.corrupt = make(map[string]struct{})
	return nil
}

// Checkpoint backs up the current value of every stored key and returns
// the backup timestamp per key. Keys holding invalid JSON are skipped.
func (s *Store) Checkpoint(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	full, err := s.medium.Keys(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	out := make(map[string]int64, len(full))
	for _, fk := range full {
		data, ok, err := s.medium.Get(ctx, fk)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", fk, err)
		}
		if !ok || !json.Valid(data) {
			continue
		}
		key := strings.TrimPrefix(fk, s.prefix)
		ts, err := s.vault.snapshot(ctx, key, data)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", key, err)
		}
		out[key] = ts
	}
	return out, nil
}

// Restore writes the backup of key taken at ts back as the current value
// and returns it.
func (s *Store) Restore(ctx context.Context, key string, ts int64) (json.RawMessage, error) {
	rec, err := s.vault.Get(ctx, key, ts)
	if err != nil {
		return nil, err
	}
	if err := s.SaveRaw(ctx, key, rec.Payload); err != nil {
		return nil, fmt.Errorf("restore %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "Restored key from backup",
		log.FieldKey, key,
		log.FieldTimestamp, ts)
	return rec.Payload, nil
}

// LastSave returns the time of the last successful write.
func (s *Store) LastSave() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSave
}

// Health samples the medium.
func (s *Store) Health(ctx context.Context) Health {
	s.mu.Lock()
	lastSave, lastErr := s.lastSave, s.lastErr
	s.mu.Unlock()

	h := Health{Status: StatusOK, LastSave: lastSave}
	usage, err := s.medium.Usage(ctx)
	if err != nil {
		h.Status = StatusError
		h.Error = err.Error()
		return h
	}
	h.UsedBytes, h.QuotaBytes, h.UsageRatio = usage.Used, usage.Quota, usage.Ratio()
	if n, err := s.vault.Count(ctx); err == nil {
		h.BackupCount = n
	}

	switch {
	case lastErr != nil:
		h.Status = StatusError
		h.Error = lastErr.Error()
	case h.UsageRatio >= ErrorRatio:
		h.Status = StatusError
	case h.UsageRatio >= WarningRatio:
		h.Status = StatusWarning
	}
	return h
}
