package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_orders_created_total",
		Help: "Total number of orders created",
	}, []string{"currency"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_order_transitions_total",
		Help: "Order status transitions by target status",
	}, []string{"status"})

	ProofsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_proofs_submitted_total",
		Help: "Payment proofs submitted by kind",
	}, []string{"kind"})

	AccessGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_access_granted_total",
		Help: "Total number of new access grants",
	})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_deliveries_total",
		Help: "File deliveries by result",
	}, []string{"result"})

	UpdatesHandledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_updates_handled_total",
		Help: "Inbound chat events by type and outcome",
	}, []string{"type", "outcome"})

	UpdateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shop_update_latency_seconds",
		Help:    "Time spent handling one inbound chat event",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
