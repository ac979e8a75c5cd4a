package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ledger-wide Prometheus collectors. One instance is built
// in main and shared by the service, the processor and the notifier.
type Metrics struct {
	TransactionsCreated  *prometheus.CounterVec
	StateTransitions     *prometheus.CounterVec
	InsufficientFunds    prometheus.Counter
	ReferenceCollisions  prometheus.Counter
	BatchesCreated       prometheus.Counter
	MandateCharges       *prometheus.CounterVec
	NotificationOutcomes *prometheus.CounterVec
	AdvanceDuration      prometheus.Histogram
}

// New builds and registers the collectors. main passes
// prometheus.DefaultRegisterer; tests pass a throwaway registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TransactionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "transactions_created_total",
				Help:      "Transactions accepted into pending state, by type.",
			},
			[]string{"type"},
		),
		StateTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "state_transitions_total",
				Help:      "Applied state transitions, by from and to state.",
			},
			[]string{"from", "to"},
		),
		InsufficientFunds: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "insufficient_funds_total",
				Help:      "Creations rejected by the derived funds check.",
			},
		),
		ReferenceCollisions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "reference_collisions_total",
				Help:      "Transaction reference collisions that triggered a retry.",
			},
		),
		BatchesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "batches_created_total",
				Help:      "Batch transactions created.",
			},
		),
		MandateCharges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "mandate_charges_total",
				Help:      "Debit mandate charge attempts, by result.",
			},
			[]string{"result"},
		),
		NotificationOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "notification_outcomes_total",
				Help:      "Notification delivery outcomes, by type and result.",
			},
			[]string{"type", "result"},
		),
		AdvanceDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "ledger",
				Name:      "advance_duration_seconds",
				Help:      "Time spent advancing a transaction through the state machine.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}
