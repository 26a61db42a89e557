package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for core operations.
type Metrics struct {
	EscrowsCreated       prometheus.Counter
	EscrowsReleased      prometheus.Counter
	DisputesRaised       prometheus.Counter
	DisputesResolved     *prometheus.CounterVec
	WithdrawalsRequested prometheus.Counter
	DepositsCredited     prometheus.Counter
	DuplicateDeliveries  prometheus.Counter
}

// New creates and registers all counters on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates and registers all counters on the given registerer. Tests
// pass a fresh registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EscrowsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_escrows_created_total",
			Help: "Total number of escrows created.",
		}),
		EscrowsReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_escrows_released_total",
			Help: "Total number of escrows voluntarily released by payers.",
		}),
		DisputesRaised: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_disputes_raised_total",
			Help: "Total number of disputes raised.",
		}),
		DisputesResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowflow_disputes_resolved_total",
			Help: "Total number of disputes resolved, by decision.",
		}, []string{"decision"}),
		WithdrawalsRequested: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_withdrawals_requested_total",
			Help: "Total number of withdrawal requests accepted.",
		}),
		DepositsCredited: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_deposits_credited_total",
			Help: "Total number of inbound deposits credited.",
		}),
		DuplicateDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "escrowflow_duplicate_deliveries_total",
			Help: "Total number of inbound confirmations acknowledged as duplicates.",
		}),
	}
}
