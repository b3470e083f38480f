package ethbind

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the collectors of this package. It has no default Go
// metrics; serve it with "promhttp.HandlerFor" or merge it into your own.
var Registry = prometheus.NewRegistry()

var (
	// RPC metrics
	RpcRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ethbind_rpc_requests_total",
		Help: "JSON-RPC requests by method",
	}, []string{"method"})

	RpcErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ethbind_rpc_errors_total",
		Help: "Failed JSON-RPC requests by method",
	}, []string{"method"})

	RpcRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ethbind_rpc_request_duration_seconds",
		Help:    "JSON-RPC request latency by method",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// Subscription metrics
	ActiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ethbind_active_subscriptions",
		Help: "Subscriptions with a live log filter",
	})

	SubscriptionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ethbind_subscriptions_created_total",
		Help: "Subscriptions whose log filter was created",
	})

	SubscriptionsRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ethbind_subscriptions_removed_total",
		Help: "Subscriptions removed by unsubscribing or closing",
	})

	LogsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ethbind_logs_delivered_total",
		Help: "Decoded logs passed to subscription callbacks",
	})

	DeliveryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ethbind_delivery_errors_total",
		Help: "Errors reported to subscription callbacks by stage",
	}, []string{"stage"})

	// Receipt metrics
	ReceiptPolls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ethbind_receipt_polls_total",
		Help: "Transaction receipt queries",
	})
)

// Stages reported by "DeliveryErrors".
const (
	stageCreate   = "create"
	stageFetch    = "fetch"
	stageDecode   = "decode"
	stageCallback = "callback"
)

func init() {
	Registry.MustRegister(
		RpcRequestsTotal,
		RpcErrorsTotal,
		RpcRequestDuration,
		ActiveSubscriptions,
		SubscriptionsCreated,
		SubscriptionsRemoved,
		LogsDelivered,
		DeliveryErrors,
		ReceiptPolls,
	)
}
