// Package storage holds the persistence media behind the keyed store. A
// medium is a flat byte-valued map with a byte quota, the server-side
// analogue of browser local storage.
package storage

import (
	"context"
	"fmt"
	"strings"

	"watchbook/internal/core"
)

// Medium is a quota-bounded key/value medium. Set must either write the whole
// value or leave the previous one untouched.
type Medium interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Usage(ctx context.Context) (Usage, error)
	Close() error
}

// Usage reports bytes in use against the quota. A zero quota means the
// medium is unbounded.
type Usage struct {
	Used  int64
	Quota int64
}

// Ratio is Used/Quota, zero for unbounded media.
func (u Usage) Ratio() float64 {
	if u.Quota <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Quota)
}

// EntrySize is the number of bytes an entry occupies against the quota.
func EntrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}

// checkQuota returns ErrQuotaExceeded when replacing an entry of oldSize
// bytes with one of newSize bytes would overflow the quota.
func checkQuota(key string, used, oldSize, newSize, quota int64) error {
	if quota <= 0 {
		return nil
	}
	if used-oldSize+newSize > quota {
		return fmt.Errorf("set %s (%d bytes, %d/%d used): %w", key, newSize, used, quota, core.ErrQuotaExceeded)
	}
	return nil
}

// escapeLike escapes the LIKE wildcards of a key prefix.
func escapeLike(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

var (
	_ Medium = (*MemoryMedium)(nil)
	_ Medium = (*SQLiteMedium)(nil)
	_ Medium = (*PostgresMedium)(nil)
)
