package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_requests_total",
			Help: "Pairing service requests by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kiosk_request_duration_seconds",
			Help:    "Pairing service request handling time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	DroppedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_dropped_requests_total",
			Help: "Connections closed without a response",
		},
		[]string{"reason"},
	)

	PairAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_pair_attempts_total",
			Help: "Pair attempts by result",
		},
		[]string{"result"},
	)

	ActiveTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiosk_active_tokens",
			Help: "Currently valid bearer tokens",
		},
	)

	DiscoveryRepliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosk_discovery_replies_total",
			Help: "Discovery probes answered",
		},
	)

	ActiveDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiosk_active_downloads",
			Help: "Model download jobs in flight",
		},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_downloads_total",
			Help: "Finished model download jobs by final status",
		},
		[]string{"status"},
	)

	UIEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_ui_events_total",
			Help: "UI events published to the kiosk shell",
		},
		[]string{"event"},
	)
)

// Outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
)
