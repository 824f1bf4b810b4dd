package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type RoyaltyMetrics struct {
	opsAccepted        *prometheus.CounterVec
	opsRejected        *prometheus.CounterVec
	pendingCollections prometheus.Gauge
	payoutQueueDepth   prometheus.Gauge
	payoutFailures     prometheus.Counter
}

var (
	royaltyOnce     sync.Once
	royaltyRegistry *RoyaltyMetrics
)

func Royalty() *RoyaltyMetrics {
	royaltyOnce.Do(func() {
		royaltyRegistry = &RoyaltyMetrics{
			opsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "royalty_operations_accepted_total",
				Help: "Count of accepted vault operations by type.",
			}, []string{"op"}),
			opsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "royalty_operations_rejected_total",
				Help: "Count of rejected vault operations by type and reason.",
			}, []string{"op", "reason"}),
			pendingCollections: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "royalty_pending_collections",
				Help: "Number of collections with a pending distribution balance.",
			}),
			payoutQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "royalty_payout_queue_depth",
				Help: "Transfers waiting in the payout queue.",
			}),
			payoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "royalty_payout_failures_total",
				Help: "Number of outbound transfer attempts that failed delivery.",
			}),
		}
		prometheus.MustRegister(
			royaltyRegistry.opsAccepted,
			royaltyRegistry.opsRejected,
			royaltyRegistry.pendingCollections,
			royaltyRegistry.payoutQueueDepth,
			royaltyRegistry.payoutFailures,
		)
	})
	return royaltyRegistry
}

func (m *RoyaltyMetrics) OperationAccepted(op string) {
	if m == nil {
		return
	}
	m.opsAccepted.WithLabelValues(op).Inc()
}

func (m *RoyaltyMetrics) OperationRejected(op, reason string) {
	if m == nil {
		return
	}
	m.opsRejected.WithLabelValues(op, reason).Inc()
}

func (m *RoyaltyMetrics) SetPendingCollections(n int) {
	if m == nil {
		return
	}
	m.pendingCollections.Set(float64(n))
}

func (m *RoyaltyMetrics) SetPayoutQueueDepth(n int) {
	if m == nil {
		return
	}
	m.payoutQueueDepth.Set(float64(n))
}

func (m *RoyaltyMetrics) PayoutFailed() {
	if m == nil {
		return
	}
	m.payoutFailures.Inc()
}
