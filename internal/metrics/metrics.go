// Package metrics объявляет метрики Prometheus клиента курьера.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipper_backend_requests_total",
		Help: "Total number of backend API calls by operation and outcome.",
	},
		[]string{"operation", "outcome"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipper_backend_request_duration_seconds",
		Help:    "Latency of backend API calls.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"operation"},
	)

	FallbackAggregationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipper_fallback_aggregations_total",
		Help: "Per-status fallback loads of the all-orders list by result.",
	},
		[]string{"result"},
	)

	CompletionWorkflowTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipper_completion_workflow_total",
		Help: "Order completion attempts by result.",
	},
		[]string{"result"},
	)

	PushMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipper_push_messages_total",
		Help: "Inbound push messages by result.",
	},
		[]string{"result"},
	)
)
