package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	// PipelineRuns counts pipeline executions by tenant and outcome
	// ("ok" / "error").
	PipelineRuns *prometheus.CounterVec

	// QuotaRefusals counts rate-limit refusals by tenant.
	QuotaRefusals *prometheus.CounterVec

	// TransportFailures counts transport failure signals by tenant.
	TransportFailures *prometheus.CounterVec

	// ScheduleFires counts cron firings by schedule outcome
	// ("ok" / "error" / "skipped").
	ScheduleFires *prometheus.CounterVec

	// StageLatency observes per-stage runner latency in seconds.
	StageLatency *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on reg. Pass
// prometheus.NewRegistry() in tests to avoid global registration
// conflicts.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_pipeline_runs_total",
			Help: "Pipeline executions by tenant and outcome.",
		}, []string{"tenant", "outcome"}),
		QuotaRefusals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_quota_refusals_total",
			Help: "Pipeline invocations refused by the rate limiter.",
		}, []string{"tenant"}),
		TransportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_transport_failures_total",
			Help: "Transport failure signals received per tenant.",
		}, []string{"tenant"}),
		ScheduleFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_schedule_fires_total",
			Help: "Cron schedule firings by outcome.",
		}, []string{"outcome"}),
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inkwell_stage_latency_seconds",
			Help:    "Latency of individual stage runner calls.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"tenant"}),
	}
	if reg != nil {
		reg.MustRegister(m.PipelineRuns, m.QuotaRefusals, m.TransportFailures, m.ScheduleFires, m.StageLatency)
	}
	return m
}
