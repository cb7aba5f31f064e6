package health

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"watchbook/internal/events"
	"watchbook/internal/store"
)

const namespace = "watchbook"

// Metrics exports storage health and failure counters.
type Metrics struct {
	usedBytes     prometheus.Gauge
	usageRatio    prometheus.Gauge
	backups       prometheus.Gauge
	status        prometheus.Gauge
	writeFailures *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		usedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_used_bytes",
			Help:      "Bytes used on the storage medium.",
		}),
		usageRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_usage_ratio",
			Help:      "Used bytes as a fraction of the quota.",
		}),
		backups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backups",
			Help:      "Number of stored backups.",
		}),
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_status",
			Help:      "Storage health: 0 ok, 1 warning, 2 error.",
		}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_write_failures_total",
			Help:      "Failed writes per key.",
		}, []string{"key"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications shown per level.",
		}, []string{"level"}),
	}
	for _, c := range []prometheus.Collector{m.usedBytes, m.usageRatio, m.backups, m.status, m.writeFailures, m.notifications} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// StatusValue maps a health status onto the storage_status gauge.
func StatusValue(s store.Status) float64 {
	switch s {
	case store.StatusWarning:
		return 1
	case store.StatusError:
		return 2
	default:
		return 0
	}
}

func (m *Metrics) ObserveHealth(h store.Health) {
	if m == nil {
		return
	}
	m.usedBytes.Set(float64(h.UsedBytes))
	m.usageRatio.Set(h.UsageRatio)
	m.backups.Set(float64(h.BackupCount))
	m.status.Set(StatusValue(h.Status))
}

func (m *Metrics) WriteFailed(key string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(key).Inc()
}

func (m *Metrics) Notified(level string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(level).Inc()
}

// Attach counts write failures of st and notifications on bus. The
// returned func stops counting notifications.
func (m *Metrics) Attach(st *store.Store, bus *events.Bus) func() {
	if st != nil {
		st.OnError(func(key string, _ error) { m.WriteFailed(key) })
	}
	if bus == nil {
		return func() {}
	}
	return bus.Subscribe(events.NotificationShow, func(ev events.Event) {
		if n, ok := ev.Payload.(events.Notification); ok {
			m.Notified(n.Level)
		}
	})
}
