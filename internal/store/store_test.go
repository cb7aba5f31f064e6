package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbook/internal/core"
	"watchbook/internal/log"
	"watchbook/internal/storage"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func newClock() *clock                   { return &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)} }
func newStore(m storage.Medium, c *clock) *Store {
	return New(m, Options{Now: c.Now, Logger: log.Nop()})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	s := newStore(storage.NewMemoryMedium(0), c)

	type payload struct {
		Name  string         `json:"name"`
		Items map[string]int `json:"items"`
	}
	in := payload{Name: "x", Items: map[string]int{"a": 1, "b": 2}}
	require.NoError(t, s.Save(ctx, "settings", in))

	var out payload
	ok, err := s.Load(ctx, "settings", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
	assert.Equal(t, c.Now(), s.LastSave())

	ok, err = s.Load(ctx, "missing", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveUsesPrefix(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemoryMedium(0)
	s := newStore(m, newClock())
	require.NoError(t, s.Save(ctx, "currentMonth", "2024-11"))

	_, ok, _ := m.Get(ctx, "orderSystem_currentMonth")
	assert.True(t, ok)
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"currentMonth"}, keys)
}

func TestSaveSerializationError(t *testing.T) {
	ctx := context.Background()
	s := newStore(storage.NewMemoryMedium(0), newClock())
	var hooked error
	s.OnError(func(_ string, err error) { hooked = err })

	err := s.Save(ctx, "bad", map[string]any{"f": func() {}})
	assert.ErrorIs(t, err, core.ErrSerialization)
	assert.ErrorIs(t, hooked, core.ErrSerialization)
	assert.Equal(t, StatusError, s.Health(ctx).Status)
}

func TestLoadCorruptData(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemoryMedium(0)
	s := newStore(m, newClock())
	require.NoError(t, m.Set(ctx, "orderSystem_clientsData", []byte("{not json")))

	var v map[string]any
	ok, err := s.Load(ctx, "clientsData", &v)
	assert.False(t, ok)
	assert.ErrorIs(t, err, core.ErrCorruptData)
	assert.Equal(t, []string{"clientsData"}, s.CorruptKeys())

	require.NoError(t, s.Save(ctx, "clientsData", map[string]any{}))
	assert.Empty(t, s.CorruptKeys())
}

func TestQuotaExceededLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemoryMedium(0)
	s := newStore(m, newClock())
	var failures int
	s.OnError(func(string, error) { failures++ })

	require.NoError(t, s.Save(ctx, "settings", map[string]int{"a": 1}))
	usage, _ := m.Usage(ctx)
	m.SetQuota(usage.Used + 10)

	err := s.Save(ctx, "settings", map[string]string{"a": "a much longer value that does not fit"})
	require.ErrorIs(t, err, core.ErrQuotaExceeded)
	assert.Equal(t, 1, failures)

	var got map[string]int
	ok, err := s.Load(ctx, "settings", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"a": 1}, got)

	h := s.Health(ctx)
	assert.Equal(t, StatusError, h.Status)
	assert.NotEmpty(t, h.Error)
}

func TestQuotaExceededRetriesAfterEvictingBackups(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemoryMedium(0)
	c := newClock()
	s := newStore(m, c)
	var failures int
	s.OnError(func(string, error) { failures++ })

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Save(ctx, "settings", strings.Repeat(string(rune('a'+i)), 40)))
		c.Advance(time.Second)
	}
	usage, _ := m.Usage(ctx)
	m.SetQuota(usage.Used + 10)

	want := strings.Repeat("z", 60)
	require.NoError(t, s.Save(ctx, "settings", want))
	assert.Zero(t, failures)

	var got string
	ok, err := s.Load(ctx, "settings", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	byKey, err := s.Vault().CountByKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, byKey["settings"])
}

func TestHealthThresholds(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		fill  int
		quota int64
		want  Status
	}{
		{"ok", 10, 100, StatusOK},
		{"warning at 80%", 80, 100, StatusWarning},
		{"error at 95%", 95, 100, StatusError},
		{"unbounded", 1000, 0, StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := storage.NewMemoryMedium(tt.quota)
			// key "f" is one byte
			require.NoError(t, m.Set(ctx, "f", make([]byte, tt.fill-1)))
			s := newStore(m, newClock())
			h := s.Health(ctx)
			assert.Equal(t, tt.want, h.Status)
			assert.Equal(t, int64(tt.fill), h.UsedBytes)
		})
	}
}

func TestClearPrefixKeepsBackups(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemoryMedium(0)
	s := newStore(m, newClock())
	require.NoError(t, s.Save(ctx, "settings", 1))
	require.NoError(t, s.Save(ctx, "inventory", 2))
	require.NoError(t, m.Set(ctx, "unrelated", []byte("1")))

	require.NoError(t, s.ClearPrefix(ctx))
	keys, _ := s.Keys(ctx)
	assert.Empty(t, keys)
	_, ok, _ := m.Get(ctx, "unrelated")
	assert.True(t, ok)
	n, _ := s.Vault().Count(ctx)
	assert.Equal(t, 2, n)
}

func TestCheckpointRestoresAfterClear(t *testing.T) {
	ctx := context.Background()
	s := newStore(storage.NewMemoryMedium(0), newClock())
	require.NoError(t, s.Save(ctx, "settings", map[string]int{"a": 1}))
	require.NoError(t, s.Save(ctx, "settings", map[string]int{"a": 2}))
	require.NoError(t, s.Save(ctx, "inventory", []int{7}))

	cp, err := s.Checkpoint(ctx)
	require.NoError(t, err)
	require.Len(t, cp, 2)

	require.NoError(t, s.ClearPrefix(ctx))
	require.NoError(t, s.Save(ctx, "settings", map[string]int{"a": 99}))

	for k, ts := range cp {
		_, err := s.Restore(ctx, k, ts)
		require.NoError(t, err)
	}
	var got map[string]int
	ok, err := s.Load(ctx, "settings", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got["a"])
	var inv []int
	_, err = s.Load(ctx, "inventory", &inv)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, inv)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := newStore(storage.NewMemoryMedium(0), newClock())
	require.NoError(t, s.Save(ctx, "settings", 1))
	require.NoError(t, s.Remove(ctx, "settings"))
	var v int
	ok, err := s.Load(ctx, "settings", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMediumErrorIsWrapped(t *testing.T) {
	ctx := context.Background()
	s := newStore(failingMedium{storage.NewMemoryMedium(0)}, newClock())
	err := s.Save(ctx, "k", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBroken))
}

var errBroken = errors.New("broken medium")

type failingMedium struct{ *storage.MemoryMedium }

func (failingMedium) Set(context.Context, string, []byte) error { return errBroken }
