package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// RateResolutionsTotal counts rate resolutions by outcome (rule | base | error).
	RateResolutionsTotal *prometheus.CounterVec
	// TotalsRecomputeTotal counts estimate totals recomputations by trigger.
	TotalsRecomputeTotal *prometheus.CounterVec
	// EstimateTransitionsTotal counts estimate lifecycle transitions.
	EstimateTransitionsTotal *prometheus.CounterVec
	// EstimateLockRejections counts financial mutations rejected by the rate lock.
	EstimateLockRejections prometheus.Counter
	// WebhookDeliveriesTotal tracks webhook dispatch outcomes.
	WebhookDeliveriesTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		RateResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_resolutions_total",
			Help:      "Count of effective-rate resolutions by outcome.",
		}, []string{"outcome"})
		TotalsRecomputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_totals_recompute_total",
			Help:      "Count of estimate totals recomputations by triggering mutation.",
		}, []string{"trigger"})
		EstimateTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_transitions_total",
			Help:      "Count of estimate status transitions.",
		}, []string{"from", "to"})
		EstimateLockRejections = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_lock_rejections_total",
			Help:      "Financial mutations rejected because the estimate left draft.",
		})
		WebhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of webhook delivery outcomes.",
		}, []string{"result"})

		RateResolutionsTotal = registerCounterVec(reg, RateResolutionsTotal)
		TotalsRecomputeTotal = registerCounterVec(reg, TotalsRecomputeTotal)
		EstimateTransitionsTotal = registerCounterVec(reg, EstimateTransitionsTotal)
		WebhookDeliveriesTotal = registerCounterVec(reg, WebhookDeliveriesTotal)
		EstimateLockRejections = registerCounter(reg, EstimateLockRejections)
	})
}

// IncRateResolution records one rate resolution outcome (rule | base | error).
func IncRateResolution(outcome string) {
	if RateResolutionsTotal != nil {
		RateResolutionsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncTotalsRecompute records one totals recomputation by triggering mutation.
func IncTotalsRecompute(trigger string) {
	if TotalsRecomputeTotal != nil {
		TotalsRecomputeTotal.WithLabelValues(trigger).Inc()
	}
}

// IncEstimateTransition records one estimate status transition.
func IncEstimateTransition(from, to string) {
	if EstimateTransitionsTotal != nil {
		EstimateTransitionsTotal.WithLabelValues(from, to).Inc()
	}
}

// IncLockRejection records a financial mutation rejected by the rate lock.
func IncLockRejection() {
	if EstimateLockRejections != nil {
		EstimateLockRejections.Inc()
	}
}

// IncWebhookDelivery records one webhook delivery outcome.
func IncWebhookDelivery(result string) {
	if WebhookDeliveriesTotal != nil {
		WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	}
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
