package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPRequests counts HTTP requests by method, path and status
var HTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pulsefeed_http_requests_total",
		Help: "Total number of HTTP requests handled",
	},
	[]string{"method", "path", "status"},
)

// HTTPLatency records latency distribution for HTTP requests
var HTTPLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pulsefeed_http_request_duration_seconds",
		Help:    "Latency in seconds to serve HTTP requests",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "path"},
)

// NotificationsCreated counts notifications created by verb
var NotificationsCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pulsefeed_notifications_created_total",
		Help: "Total number of notifications created",
	},
	[]string{"verb"},
)

// WebsocketClients gauges currently connected notification stream clients
var WebsocketClients = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "pulsefeed_websocket_clients",
		Help: "Number of connected websocket notification clients",
	},
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulsefeed_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBIdleConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulsefeed_db_idle_connections",
			Help: "Number of idle connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulsefeed_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPLatency)
	prometheus.MustRegister(NotificationsCreated, WebsocketClients)
	prometheus.MustRegister(DBOpenConns, DBIdleConns, DBInUseConns)
}
