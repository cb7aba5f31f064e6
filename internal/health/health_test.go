package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/state"
	"watchbook/internal/storage"
	"watchbook/internal/store"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	seen []events.Notification
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.seen {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recorder) only(kind string) []string {
	var out []string
	for _, k := range r.kinds() {
		if k == kind {
			out = append(out, k)
		}
	}
	return out
}

type fixture struct {
	medium  *storage.MemoryMedium
	hub     *state.Hub
	metrics *Metrics
	monitor *Monitor
	rec     *recorder
}

func newFixture(t *testing.T, quota int64, fill int) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return now }
	m := storage.NewMemoryMedium(quota)
	if fill > 0 {
		// key "f" is one byte
		require.NoError(t, m.Set(ctx, "f", make([]byte, fill-1)))
	}
	bus := events.NewBus(log.Nop())
	st := store.New(m, store.Options{Now: clock, Logger: log.Nop()})
	hub := state.NewHub(st, bus, log.Nop(), clock)
	require.NoError(t, hub.Load(ctx))

	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	metrics.Attach(st, bus)

	rec := &recorder{}
	bus.Subscribe(events.NotificationShow, func(ev events.Event) {
		rec.mu.Lock()
		rec.seen = append(rec.seen, ev.Payload.(events.Notification))
		rec.mu.Unlock()
	})
	mon := NewMonitor(hub, bus, metrics, Config{Interval: 10 * time.Millisecond}, log.Nop(), clock)
	return &fixture{medium: m, hub: hub, metrics: metrics, monitor: mon, rec: rec}
}

func (f *fixture) exported(t *testing.T, at time.Time) {
	t.Helper()
	_, err := f.hub.Update(context.Background(), func(s *state.State) error {
		s.LastManualExport = at.UnixMilli()
		return nil
	})
	require.NoError(t, err)
}

func TestTickHealthyRecentExport(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.exported(t, now.Add(-24*time.Hour))

	res := f.monitor.Tick(context.Background())
	assert.Equal(t, store.StatusOK, res.Health.Status)
	assert.False(t, res.Reminded)
	assert.Empty(t, f.rec.kinds())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.status))
}

func TestTickRemindsOncePerTick(t *testing.T) {
	f := newFixture(t, 0, 0)

	res := f.monitor.Tick(context.Background())
	assert.True(t, res.Reminded)
	assert.Equal(t, []string{KindExportReminder}, f.rec.kinds())

	f.exported(t, now.Add(-8*24*time.Hour))
	f.monitor.Tick(context.Background())
	assert.Equal(t, []string{KindExportReminder, KindExportReminder}, f.rec.kinds())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.notifications.WithLabelValues(events.LevelWarning)))
}

func TestTickStorageLevels(t *testing.T) {
	tests := []struct {
		name   string
		fill   int
		status store.Status
		gauge  float64
		kinds  []string
	}{
		{"ok", 10, store.StatusOK, 0, nil},
		{"warning", 85, store.StatusWarning, 1, []string{KindStorageHealth}},
		{"error", 96, store.StatusError, 2, []string{KindStorageHealth}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 100, tt.fill)

			res := f.monitor.Tick(context.Background())
			assert.Equal(t, tt.status, res.Health.Status)
			assert.Equal(t, tt.kinds, f.rec.only(KindStorageHealth))
			assert.Equal(t, tt.gauge, testutil.ToFloat64(f.metrics.status))
			assert.Equal(t, float64(tt.fill), testutil.ToFloat64(f.metrics.usedBytes))
		})
	}
}

func TestWriteFailuresAreCounted(t *testing.T) {
	f := newFixture(t, 20, 0)
	err := f.hub.Store().Save(context.Background(), "settings", "a value that does not fit")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.writeFailures.WithLabelValues("settings")))
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()

	require.NoError(t, f.monitor.Start(ctx))
	assert.True(t, f.monitor.IsRunning())
	require.Error(t, f.monitor.Start(ctx))

	require.Eventually(t, func() bool { return f.monitor.Ticks() >= 2 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, f.monitor.Stop(stopCtx))
	assert.False(t, f.monitor.IsRunning())
	require.NoError(t, f.monitor.Stop(stopCtx))
}

func TestNewMetricsRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	require.Error(t, err)
}

func TestAssess(t *testing.T) {
	week := 7 * 24 * time.Hour
	recent := now.Add(-time.Hour).UnixMilli()
	tests := []struct {
		name    string
		health  store.Health
		last    int64
		corrupt []string
		level   Level
		overdue bool
		days    int
	}{
		{"protected", store.Health{Status: store.StatusOK, BackupCount: 3}, recent, nil, LevelProtected, false, 0},
		{"never exported", store.Health{Status: store.StatusOK, BackupCount: 3}, 0, nil, LevelAttention, true, -1},
		{"no backups", store.Health{Status: store.StatusOK}, recent, nil, LevelAttention, false, 0},
		{"warning", store.Health{Status: store.StatusWarning, BackupCount: 1}, recent, nil, LevelAttention, false, 0},
		{"error", store.Health{Status: store.StatusError, BackupCount: 1}, recent, nil, LevelAtRisk, false, 0},
		{"corrupt", store.Health{Status: store.StatusOK, BackupCount: 1}, recent, []string{"settings"}, LevelAtRisk, false, 0},
		{"overdue", store.Health{Status: store.StatusOK, BackupCount: 1}, now.Add(-10 * 24 * time.Hour).UnixMilli(), nil, LevelAttention, true, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Assess(tt.health, tt.last, nil, tt.corrupt, now, week)
			assert.Equal(t, tt.level, d.Level)
			assert.Equal(t, tt.overdue, d.ExportOverdue)
			assert.Equal(t, tt.days, d.DaysSinceExport)
			assert.NotNil(t, d.BackupsByKey)
			if tt.level == LevelProtected {
				assert.Empty(t, d.Recommendations)
			} else {
				assert.NotEmpty(t, d.Recommendations)
			}
		})
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.exported(t, now.Add(-2*24*time.Hour))

	d, err := f.monitor.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LevelProtected, d.Level)
	assert.Equal(t, 2, d.DaysSinceExport)
	assert.Equal(t, 1, d.BackupsByKey[state.KeyLastManualExport])
	assert.Equal(t, now, d.LastSave)
}
