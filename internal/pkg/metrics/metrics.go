package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexgate_verdicts_total",
		Help: "Screening verdicts by chain and result",
	}, []string{"chain", "result"})

	CheckFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexgate_check_failures_total",
		Help: "Failed screening checks by check kind",
	}, []string{"check"})

	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexgate_gate_decisions_total",
		Help: "Trade authorization decisions",
	}, []string{"decision", "code", "trigger"})

	InFlightOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dexgate_inflight_orders",
		Help: "Tokens currently holding the in-flight lock",
	})

	ExecutorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dexgate_executor_latency_seconds",
		Help:    "Order executor call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	PollerFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dexgate_poller_consecutive_failures",
		Help: "Consecutive fetch failures per chain poller",
	}, []string{"chain"})

	PollerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dexgate_poller_state",
		Help: "Current poller state (0 idle, 1 polling, 2 emitting, 3 backoff, 4 stopped)",
	}, []string{"chain"})

	TokensObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexgate_tokens_observed_total",
		Help: "TokenObserved events emitted by pollers",
	}, []string{"chain"})

	ProfileRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexgate_risk_profile_refreshes_total",
		Help: "Risk profile refresh attempts",
	}, []string{"result"})

	AlertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexgate_alerts_dropped_total",
		Help: "Alerts dropped because the alert buffer was full",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dexgate_http_latency_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
