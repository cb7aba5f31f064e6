// Package health watches the storage medium, reminds about manual exports
// and derives the protection dashboard.
package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/state"
	"watchbook/internal/store"
)

// Notification kinds raised by the monitor.
const (
	KindStorageHealth  = "StorageHealth"
	KindExportReminder = "ExportReminder"
)

// Config holds the monitor intervals.
type Config struct {
	// Interval between ticks (default: 5m)
	Interval time.Duration

	// ReminderAfter is how long after the last manual export a reminder
	// is raised (default: 7 days)
	ReminderAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Minute,
		ReminderAfter: 7 * 24 * time.Hour,
	}
}

// TickResult is what one tick observed.
type TickResult struct {
	Health   store.Health
	Reminded bool
}

// Monitor samples store health on every tick and raises notifications.
type Monitor struct {
	store   *store.Store
	hub     *state.Hub
	bus     *events.Bus
	metrics *Metrics
	config  Config
	logger  *log.Logger
	now     func() time.Time

	ticks      atomic.Int64
	lastStatus store.Status

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMonitor(hub *state.Hub, bus *events.Bus, metrics *Metrics, config Config, logger *log.Logger, now func() time.Time) *Monitor {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.ReminderAfter <= 0 {
		config.ReminderAfter = def.ReminderAfter
	}
	if logger == nil {
		logger = log.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		store:      hub.Store(),
		hub:        hub,
		bus:        bus,
		metrics:    metrics,
		config:     config,
		logger:     logger.WithComponent(log.ComponentHealth),
		now:        now,
		lastStatus: store.StatusOK,
	}
}

// Start runs the tick loop until Stop or ctx ends. The first tick runs
// immediately. Returns an error if already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("health monitor is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.runLoop(ctx)

	m.logger.InfoContext(ctx, "Health monitor started",
		"interval", m.config.Interval,
		"reminder_after", m.config.ReminderAfter)
	return nil
}

// Stop ends the loop and waits for the current tick to finish.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		m.logger.InfoContext(ctx, "Health monitor stopped")
	case <-ctx.Done():
		m.logger.WarnContext(ctx, "Health monitor stop timed out")
		return ctx.Err()
	}

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	return nil
}

func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Ticks returns how many ticks have completed.
func (m *Monitor) Ticks() int64 { return m.ticks.Load() }

func (m *Monitor) runLoop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.safeTick(ctx)
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.safeTick(ctx)
		}
	}
}

// safeTick keeps the loop alive when a tick panics.
func (m *Monitor) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "Health tick panicked",
				log.FieldOperation, log.OpTick,
				log.FieldError, fmt.Sprint(r))
		}
	}()
	m.Tick(ctx)
}

// Tick samples health, raises a notification when the medium is not ok
// and raises at most one export reminder.
func (m *Monitor) Tick(ctx context.Context) TickResult {
	defer m.ticks.Add(1)

	h := m.store.Health(ctx)
	m.metrics.ObserveHealth(h)

	m.mu.Lock()
	prev := m.lastStatus
	m.lastStatus = h.Status
	m.mu.Unlock()
	if prev != h.Status {
		m.logger.InfoContext(ctx, "Storage health changed",
			log.FieldStatus, h.Status,
			"previous", prev,
			log.FieldUsage, h.UsageRatio)
	}

	switch h.Status {
	case store.StatusWarning:
		m.notify(events.LevelWarning, KindStorageHealth,
			fmt.Sprintf("Хранилището е запълнено на %.0f%%. Експортирайте данните.", h.UsageRatio*100))
	case store.StatusError:
		msg := fmt.Sprintf("Хранилището е почти пълно (%.0f%%). Експортирайте данните веднага.", h.UsageRatio*100)
		if h.Error != "" {
			msg = "Последният запис е неуспешен: " + h.Error
		}
		m.notify(events.LevelError, KindStorageHealth, msg)
	}

	res := TickResult{Health: h}
	last := m.hub.Snapshot().LastManualExport
	if due, days := exportDue(last, m.now(), m.config.ReminderAfter); due {
		m.notify(events.LevelWarning, KindExportReminder, reminderText(last, days))
		res.Reminded = true
	}
	return res
}

func (m *Monitor) notify(level, kind, msg string) {
	if m.bus != nil {
		m.bus.Notify(level, kind, msg)
	}
}

// exportDue reports whether the last manual export (unix ms, 0 for never)
// is older than after, with the whole days elapsed.
func exportDue(last int64, now time.Time, after time.Duration) (bool, int) {
	if last <= 0 {
		return true, -1
	}
	elapsed := now.Sub(time.UnixMilli(last))
	return elapsed >= after, int(elapsed / (24 * time.Hour))
}

func reminderText(last int64, days int) string {
	if last <= 0 {
		return "Данните никога не са експортирани ръчно. Направете резервно копие."
	}
	return fmt.Sprintf("Последният ръчен експорт е преди %d дни. Направете резервно копие.", days)
}
