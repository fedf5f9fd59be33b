package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Queue names used as the queue label on dead-letter metrics.
const (
	QueueEgress        = "egress"
	QueueSubscriptions = "subscriptions"
)

// DLQMetrics tracks dead-letter and delivery statistics per provider pack.
type DLQMetrics struct {
	mu sync.RWMutex

	providerCounts map[string]*DLQProviderMetrics

	deadLetteredTotal *prometheus.CounterVec
	deliveredTotal    *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// DLQProviderMetrics holds counters for a single provider pack.
type DLQProviderMetrics struct {
	DeadLettered  uint64    `json:"dead_lettered"`
	Delivered     uint64    `json:"delivered"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// DLQMetricsSnapshot provides a point-in-time view of dead-letter metrics.
type DLQMetricsSnapshot struct {
	TotalDeadLettered uint64                         `json:"total_dead_lettered"`
	TotalDelivered    uint64                         `json:"total_delivered"`
	ProviderMetrics   map[string]*DLQProviderMetrics `json:"provider_metrics"`
	CollectedAt       time.Time                      `json:"collected_at"`
}

func newDLQCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "packflow",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewDLQMetrics creates a new dead-letter metrics collector.
func NewDLQMetrics(registerer prometheus.Registerer) *DLQMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &DLQMetrics{
		providerCounts:    make(map[string]*DLQProviderMetrics),
		registerer:        registerer,
		deadLetteredTotal: newDLQCounterVec("dlq", "messages_total", "Total number of jobs written to a dead-letter log", []string{"queue", "provider"}),
		deliveredTotal:    newDLQCounterVec("egress", "delivered_total", "Total number of outbound messages delivered", []string{"provider"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *DLQMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.deadLetteredTotal,
		m.deliveredTotal,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordDeadLetter records a job from the named queue being written to a
// dead-letter log.
func (m *DLQMetrics) RecordDeadLetter(queue, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateProviderMetrics(provider)
	metrics.DeadLettered++
	metrics.LastUpdatedAt = time.Now()

	m.deadLetteredTotal.WithLabelValues(queue, provider).Inc()
}

// RecordDelivered records a successful outbound delivery.
func (m *DLQMetrics) RecordDelivered(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateProviderMetrics(provider)
	metrics.Delivered++
	metrics.LastUpdatedAt = time.Now()

	m.deliveredTotal.WithLabelValues(provider).Inc()
}

// GetSnapshot returns a point-in-time snapshot of all dead-letter metrics.
func (m *DLQMetrics) GetSnapshot() DLQMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := DLQMetricsSnapshot{
		ProviderMetrics: make(map[string]*DLQProviderMetrics),
		CollectedAt:     time.Now(),
	}

	for provider, metrics := range m.providerCounts {
		metricsCopy := &DLQProviderMetrics{
			DeadLettered:  metrics.DeadLettered,
			Delivered:     metrics.Delivered,
			LastUpdatedAt: metrics.LastUpdatedAt,
		}
		snapshot.ProviderMetrics[provider] = metricsCopy
		snapshot.TotalDeadLettered += metrics.DeadLettered
		snapshot.TotalDelivered += metrics.Delivered
	}

	return snapshot
}

// GetProviderMetrics returns counters for a specific provider pack.
func (m *DLQMetrics) GetProviderMetrics(provider string) *DLQProviderMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, ok := m.providerCounts[provider]; ok {
		return &DLQProviderMetrics{
			DeadLettered:  metrics.DeadLettered,
			Delivered:     metrics.Delivered,
			LastUpdatedAt: metrics.LastUpdatedAt,
		}
	}
	return nil
}

func (m *DLQMetrics) getOrCreateProviderMetrics(provider string) *DLQProviderMetrics {
	if metrics, ok := m.providerCounts[provider]; ok {
		return metrics
	}
	metrics := &DLQProviderMetrics{}
	m.providerCounts[provider] = metrics
	return metrics
}

// Reset resets all metrics (useful for testing).
func (m *DLQMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providerCounts = make(map[string]*DLQProviderMetrics)
	m.deadLetteredTotal.Reset()
	m.deliveredTotal.Reset()
}
