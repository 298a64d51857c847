// Package metrics exposes the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Webhook deliveries accepted per organization.",
	}, []string{"org"})

	WebhookFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_failures_total",
		Help: "Webhook deliveries that failed processing.",
	}, []string{"org"})

	MediaJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_jobs_total",
		Help: "Media download jobs by outcome.",
	}, []string{"outcome"})

	MediaJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_job_duration_seconds",
		Help:    "Wall time of a media download job.",
		Buckets: prometheus.DefBuckets,
	})

	ScheduledDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduled_dispatched_total",
		Help: "Scheduled message dispatch attempts by outcome.",
	}, []string{"outcome"})

	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Outbound gateway calls by operation and outcome.",
	}, []string{"op", "outcome"})
)
