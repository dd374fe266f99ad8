// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueAssigned counts check-ins that received a queue number, by course.
	QueueAssigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventqueue",
		Name:      "queue_assigned_total",
		Help:      "Registrations checked in and given a queue number.",
	}, []string{"course"})

	// QueueCalls counts channel calls by action (call-next, recall, insert).
	QueueCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventqueue",
		Name:      "queue_calls_total",
		Help:      "Registrants called on a channel.",
	}, []string{"action"})

	// Rejections counts operations rejected before any mutation, by error kind.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventqueue",
		Name:      "rejections_total",
		Help:      "Operations rejected before mutating state.",
	}, []string{"operation", "kind"})

	// Notifications counts notification outcomes: sent, queued, skipped, no_target, failed.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventqueue",
		Name:      "notifications_total",
		Help:      "Queue-call notification outcomes.",
	}, []string{"outcome"})

	// NotifyLatency observes how long a dispatch takes.
	NotifyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eventqueue",
		Name:      "notify_duration_seconds",
		Help:      "Latency of notification dispatch.",
		Buckets:   prometheus.DefBuckets,
	})

	// DisplaySubscribers tracks live display and admin channel-list streams.
	DisplaySubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventqueue",
		Name:      "display_subscribers",
		Help:      "Open live channel subscriptions.",
	})
)

// WorkerJobs counts notification jobs handled by cmd/worker: delivered, retried, dropped.
var WorkerJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "eventqueue",
	Name:      "worker_jobs_total",
	Help:      "Notification jobs processed by the worker.",
}, []string{"outcome"})
