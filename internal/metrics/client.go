// Package metrics provides prometheus collectors for client requests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esplora",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Count of Esplora API requests.",
	}, []string{"operation", "network", "status"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "esplora",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Duration of Esplora API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "network", "status"})
)

// Client tracks metrics for requests to an Esplora server.
type Client struct {
	network string
}

// NewClient constructs a metrics collector for client requests.
func NewClient(network string) *Client {
	if network == "" {
		network = "unknown"
	}
	return &Client{network: network}
}

// Observe records a single request outcome and duration.
func (m Client) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	requestsTotal.WithLabelValues(operation, m.network, status).Inc()
	requestDuration.WithLabelValues(operation, m.network, status).Observe(time.Since(started).Seconds())
}
