package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics tracks per-step outcomes of the hourly subscription sweep.
type SweepMetrics struct {
	shopsProcessed     prometheus.Counter
	shopsFailed        prometheus.Counter
	resumed            prometheus.Counter
	billingOutcomes    *prometheus.CounterVec
	materialized       prometheus.Counter
	attemptsPurged     prometheus.Counter
	attemptsReconciled prometheus.Counter
}

// NewSweepMetrics registers the sweep metrics on the provided registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	shopsProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_shops_processed",
		Help: "Shops visited by the sweep, regardless of outcome.",
	})
	shopsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_shops_failed",
		Help: "Shops whose sweep pass ended with an error.",
	})
	resumed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_subscriptions_resumed",
		Help: "Paused subscriptions auto-resumed by the sweep.",
	})
	billingOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_billing_attempts",
		Help: "Billing attempts issued by the sweep, by outcome.",
	}, []string{"outcome"})
	materialized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_pickups_materialized",
		Help: "Pickup rows created for upcoming cycles.",
	})
	attemptsPurged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_attempts_purged",
		Help: "Billing attempt log rows removed past retention.",
	})
	attemptsReconciled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_attempts_reconciled",
		Help: "Stale pending attempts settled by polling the platform.",
	})
	reg.MustRegister(shopsProcessed, shopsFailed, resumed, billingOutcomes, materialized, attemptsPurged, attemptsReconciled)
	return &SweepMetrics{
		shopsProcessed:     shopsProcessed,
		shopsFailed:        shopsFailed,
		resumed:            resumed,
		billingOutcomes:    billingOutcomes,
		materialized:       materialized,
		attemptsPurged:     attemptsPurged,
		attemptsReconciled: attemptsReconciled,
	}
}

// IncShopProcessed counts a visited shop.
func (s *SweepMetrics) IncShopProcessed() {
	if s == nil || s.shopsProcessed == nil {
		return
	}
	s.shopsProcessed.Inc()
}

// IncShopFailed counts a shop whose pass errored.
func (s *SweepMetrics) IncShopFailed() {
	if s == nil || s.shopsFailed == nil {
		return
	}
	s.shopsFailed.Inc()
}

// AddResumed counts subscriptions auto-resumed from pause.
func (s *SweepMetrics) AddResumed(n int) {
	if s == nil || s.resumed == nil || n <= 0 {
		return
	}
	s.resumed.Add(float64(n))
}

// IncBillingOutcome counts one billing attempt by outcome label.
func (s *SweepMetrics) IncBillingOutcome(outcome string) {
	if s == nil || s.billingOutcomes == nil {
		return
	}
	s.billingOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddMaterialized counts pickup rows written ahead of their cycle.
func (s *SweepMetrics) AddMaterialized(n int) {
	if s == nil || s.materialized == nil || n <= 0 {
		return
	}
	s.materialized.Add(float64(n))
}

// AddAttemptsPurged counts attempt log rows deleted past retention.
func (s *SweepMetrics) AddAttemptsPurged(n int64) {
	if s == nil || s.attemptsPurged == nil || n <= 0 {
		return
	}
	s.attemptsPurged.Add(float64(n))
}

// AddAttemptsReconciled counts stale pending attempts settled by the poll.
func (s *SweepMetrics) AddAttemptsReconciled(n int) {
	if s == nil || s.attemptsReconciled == nil || n <= 0 {
		return
	}
	s.attemptsReconciled.Add(float64(n))
}
