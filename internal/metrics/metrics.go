// internal/metrics/metrics.go
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	Transactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wattbridge_bus_transactions_total",
		Help: "Modbus transactions that reached the transport, by device and status",
	}, []string{"device", "status"})

	Retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wattbridge_bus_retries_total",
		Help: "Retried bus attempts, by device and failure kind",
	}, []string{"device", "kind"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wattbridge_cache_hits_total",
		Help: "Reads answered from the request cache",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wattbridge_cache_misses_total",
		Help: "Reads that required a bus transaction",
	})

	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wattbridge_decode_failures_total",
		Help: "Register decode failures, by device",
	}, []string{"device"})

	ConnectionLosses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wattbridge_connection_losses_total",
		Help: "Fatal transport failures observed by the coordinator",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wattbridge_reconnects_total",
		Help: "Successful reconnects performed by the supervisor",
	})

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wattbridge_poll_cycle_seconds",
		Help:    "Duration of one scheduled poll task",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"task"})
)

// Device formats a unit id for use as a metric label.
func Device(unitID uint8) string {
	return strconv.Itoa(int(unitID))
}
