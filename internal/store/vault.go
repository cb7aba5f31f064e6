package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"watchbook/internal/core"
	"watchbook/internal/log"
	"watchbook/internal/storage"
)

const (
	BackupPrefix        = "backup_"
	DefaultBackupKeep   = 5
	DefaultBackupMaxAge = 24 * time.Hour
)

// Record is one backup snapshot of a logical key.
type Record struct {
	Key       string          `json:"key"`
	Timestamp int64           `json:"timestamp"`
	Size      int             `json:"size"`
	Payload   json.RawMessage `json:"payload"`
}

// Time returns the snapshot time.
func (r Record) Time() time.Time { return time.UnixMilli(r.Timestamp) }

// Vault keeps rolling snapshots per logical key under
// backup_<prefix><key>_<epoch-ms>. Retention keeps the newest Keep
// snapshots plus every snapshot younger than MaxAge.
type Vault struct {
	medium storage.Medium
	prefix string
	keep   int
	maxAge time.Duration
	now    func() time.Time
	logger *log.Logger

	mu     sync.Mutex
	lastTS map[string]int64
}

func newVault(medium storage.Medium, prefix string, keep int, maxAge time.Duration, now func() time.Time, logger *log.Logger) *Vault {
	if keep <= 0 {
		keep = DefaultBackupKeep
	}
	if maxAge <= 0 {
		maxAge = DefaultBackupMaxAge
	}
	return &Vault{
		medium: medium,
		prefix: prefix,
		keep:   keep,
		maxAge: maxAge,
		now:    now,
		logger: logger.WithComponent(log.ComponentBackup),
		lastTS: make(map[string]int64),
	}
}

func (v *Vault) keyPrefix() string { return BackupPrefix + v.prefix }

func (v *Vault) backupKey(key string, ts int64) string {
	return v.keyPrefix() + key + "_" + strconv.FormatInt(ts, 10)
}

// parseBackupKey splits a full backup key into logical key and timestamp.
func (v *Vault) parseBackupKey(full string) (string, int64, bool) {
	rest, ok := strings.CutPrefix(full, v.keyPrefix())
	if !ok {
		return "", 0, false
	}
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 {
		return "", 0, false
	}
	ts, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return rest[:i], ts, true
}

// nextTimestamp returns now in ms, bumped past the last snapshot of key so
// two saves in the same millisecond do not collide.
func (v *Vault) nextTimestamp(key string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	ts := v.now().UnixMilli()
	if last := v.lastTS[key]; ts <= last {
		ts = last + 1
	}
	v.lastTS[key] = ts
	return ts
}

// snapshot writes a backup of payload and prunes old ones. A full medium
// triggers one emergency cleanup and a retry.
func (v *Vault) snapshot(ctx context.Context, key string, payload []byte) (int64, error) {
	ts := v.nextTimestamp(key)
	rec := Record{Key: key, Timestamp: ts, Size: len(payload), Payload: payload}
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode backup %s: %w", key, err)
	}

	bk := v.backupKey(key, ts)
	err = v.medium.Set(ctx, bk, data)
	if errors.Is(err, core.ErrQuotaExceeded) {
		removed, cerr := v.EmergencyCleanup(ctx)
		if cerr != nil {
			return 0, fmt.Errorf("emergency cleanup: %w", cerr)
		}
		v.logger.WarnContext(ctx, "Storage full, removed old backups",
			log.FieldKey, key,
			"removed", removed)
		err = v.medium.Set(ctx, bk, data)
	}
	if err != nil {
		return 0, fmt.Errorf("write backup %s: %w", key, err)
	}
	return ts, v.prune(ctx, key)
}

// list returns the backups of every key (or only key when non-empty),
// newest first per key.
func (v *Vault) list(ctx context.Context, key string) (map[string][]int64, error) {
	prefix := v.keyPrefix()
	if key != "" {
		prefix += key + "_"
	}
	full, err := v.medium.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	out := make(map[string][]int64)
	for _, f := range full {
		k, ts, ok := v.parseBackupKey(f)
		if !ok || (key != "" && k != key) {
			continue
		}
		out[k] = append(out[k], ts)
	}
	for k := range out {
		sort.Slice(out[k], func(i, j int) bool { return out[k][i] > out[k][j] })
	}
	return out, nil
}

func (v *Vault) prune(ctx context.Context, key string) error {
	all, err := v.list(ctx, key)
	if err != nil {
		return err
	}
	cutoff := v.now().Add(-v.maxAge).UnixMilli()
	for i, ts := range all[key] {
		if i < v.keep || ts > cutoff {
			continue
		}
		if err := v.medium.Delete(ctx, v.backupKey(key, ts)); err != nil {
			return fmt.Errorf("evict backup: %w", err)
		}
	}
	return nil
}

// EmergencyCleanup keeps only the newest backup of every key and returns
// how many were removed.
func (v *Vault) EmergencyCleanup(ctx context.Context) (int, error) {
	all, err := v.list(ctx, "")
	if err != nil {
		return 0, err
	}
	removed := 0
	for key, stamps := range all {
		for _, ts := range stamps[min(1, len(stamps)):] {
			if err := v.medium.Delete(ctx, v.backupKey(key, ts)); err != nil {
				return removed, fmt.Errorf("evict backup: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}

// DiscardAfter removes the backups of key taken after ts and returns how
// many were removed.
func (v *Vault) DiscardAfter(ctx context.Context, key string, ts int64) (int, error) {
	all, err := v.list(ctx, key)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, t := range all[key] {
		if t <= ts {
			break
		}
		if err := v.medium.Delete(ctx, v.backupKey(key, t)); err != nil {
			return removed, fmt.Errorf("discard backup: %w", err)
		}
		removed++
	}
	return removed, nil
}

// ListBackups returns the backups of key, newest first.
func (v *Vault) ListBackups(ctx context.Context, key string) ([]Record, error) {
	all, err := v.list(ctx, key)
	if err != nil {
		return nil, err
	}
	return v.records(ctx, key, all[key])
}

// ListAll returns every backup grouped by logical key, newest first.
func (v *Vault) ListAll(ctx context.Context) (map[string][]Record, error) {
	all, err := v.list(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Record, len(all))
	for key, stamps := range all {
		recs, err := v.records(ctx, key, stamps)
		if err != nil {
			return nil, err
		}
		out[key] = recs
	}
	return out, nil
}

func (v *Vault) records(ctx context.Context, key string, stamps []int64) ([]Record, error) {
	recs := make([]Record, 0, len(stamps))
	for _, ts := range stamps {
		rec, err := v.Get(ctx, key, ts)
		if errors.Is(err, core.ErrCorruptData) {
			v.logger.WarnContext(ctx, "Skipping unreadable backup", log.FieldKey, key, log.FieldTimestamp, ts)
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Get reads one backup record.
func (v *Vault) Get(ctx context.Context, key string, ts int64) (Record, error) {
	data, ok, err := v.medium.Get(ctx, v.backupKey(key, ts))
	if err != nil {
		return Record{}, fmt.Errorf("read backup %s@%d: %w", key, ts, err)
	}
	if !ok {
		return Record{}, fmt.Errorf("backup %s@%d: %w", key, ts, core.ErrBackupMissing)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("backup %s@%d: %w", key, ts, core.ErrCorruptData)
	}
	return rec, nil
}

// Latest returns the newest backup of key.
func (v *Vault) Latest(ctx context.Context, key string) (Record, error) {
	all, err := v.list(ctx, key)
	if err != nil {
		return Record{}, err
	}
	if len(all[key]) == 0 {
		return Record{}, fmt.Errorf("backup %s: %w", key, core.ErrBackupMissing)
	}
	return v.Get(ctx, key, all[key][0])
}

// Count returns the number of backups across all keys.
func (v *Vault) Count(ctx context.Context) (int, error) {
	keys, err := v.medium.Keys(ctx, v.keyPrefix())
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// CountByKey returns the number of backups per logical key.
func (v *Vault) CountByKey(ctx context.Context) (map[string]int, error) {
	all, err := v.list(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(all))
	for k, stamps := range all {
		out[k] = len(stamps)
	}
	return out, nil
}
