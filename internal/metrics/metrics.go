package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity, deposit and recovery
// flows. All methods are safe on a nil receiver so tests can run without a
// registry.
type Metrics struct {
	// Deposit state transitions by resulting state
	DepositTransitions *prometheus.CounterVec

	// Proof verification attempts by outcome
	VerificationOutcomes *prometheus.CounterVec

	// Recovery attempts by workflow kind and outcome
	RecoveryOutcomes *prometheus.CounterVec

	// Refund transactions submitted
	RefundsIssued prometheus.Counter

	// Blockchain provider round-trip latency by operation
	ProviderLatency *prometheus.HistogramVec
}

// New registers and returns the process-wide metrics set. Call once.
func New() *Metrics {
	return &Metrics{
		DepositTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "k33p_deposit_transitions_total",
			Help: "Total deposit state transitions by resulting state",
		}, []string{"state"}),

		VerificationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "k33p_verification_outcomes_total",
			Help: "Total proof verification attempts by outcome",
		}, []string{"outcome"}), // outcome: "verified", "rejected", "exhausted"

		RecoveryOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "k33p_recovery_outcomes_total",
			Help: "Total recovery workflow attempts by kind and outcome",
		}, []string{"kind", "outcome"}),

		RefundsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "k33p_refunds_issued_total",
			Help: "Total refund transactions submitted to the provider",
		}),

		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "k33p_provider_duration_seconds",
			Help:    "Duration of blockchain provider calls by operation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}), // op: "place_funds", "list_utxos", "spend_utxo", "get_confirmations"
	}
}

// IncDepositTransition records a deposit entering the given state.
func (m *Metrics) IncDepositTransition(state string) {
	if m != nil {
		m.DepositTransitions.WithLabelValues(state).Inc()
	}
}

// IncVerification records a proof verification attempt outcome.
func (m *Metrics) IncVerification(outcome string) {
	if m != nil {
		m.VerificationOutcomes.WithLabelValues(outcome).Inc()
	}
}

// IncRecovery records a recovery workflow attempt outcome.
func (m *Metrics) IncRecovery(kind, outcome string) {
	if m != nil {
		m.RecoveryOutcomes.WithLabelValues(kind, outcome).Inc()
	}
}

// IncRefund records a submitted refund transaction.
func (m *Metrics) IncRefund() {
	if m != nil {
		m.RefundsIssued.Inc()
	}
}

// ObserveProvider records the duration of one provider call.
func (m *Metrics) ObserveProvider(op string, d time.Duration) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}
