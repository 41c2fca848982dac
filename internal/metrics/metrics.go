// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Verdicts counts classification results by input kind, source and outcome.
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_verdicts_total",
			Help: "Classification verdicts by kind, source and outcome.",
		},
		[]string{"kind", "source", "outcome"},
	)

	// RemoteRequests counts calls to the remote classification backend.
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_remote_requests_total",
			Help: "Remote backend calls by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	RemoteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "safeguard_remote_request_duration_seconds",
			Help:    "Remote backend call latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	Navigations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_navigations_total",
			Help: "Navigation checks by outcome.",
		},
		[]string{"outcome"},
	)

	ImagesBlurred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safeguard_images_blurred_total",
		Help: "Images blurred by the redactor.",
	})

	ImagesRevealed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safeguard_images_revealed_total",
		Help: "Blurred images revealed after a credential check.",
	})

	CredentialChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_credential_checks_total",
			Help: "Credential verifications by result.",
		},
		[]string{"result"},
	)

	Activity = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeguard_activity_events_total",
			Help: "Activity log entries by kind.",
		},
		[]string{"kind"},
	)

	PageSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "safeguard_page_sessions",
		Help: "Pages currently tracked for redaction.",
	})
)
