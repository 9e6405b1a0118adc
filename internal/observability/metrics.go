package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	framesRelayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "relay",
			Name:      "frames_relayed_total",
			Help:      "Frames accepted from sources and broadcast.",
		},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Frames rejected by validation, by reason.",
		},
		[]string{"reason"},
	)
	broadcastBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "relay",
			Name:      "broadcast_bytes_total",
			Help:      "Total wire bytes delivered across all destinations.",
		},
	)
	destinationsCurrent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "relayd",
			Subsystem: "relay",
			Name:      "destinations_current",
			Help:      "Destinations currently registered.",
		},
	)
	destinationEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "relay",
			Name:      "destination_evictions_total",
			Help:      "Destinations evicted on failed or partial writes.",
		},
	)
	sourcesRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "relay",
			Name:      "sources_rejected_total",
			Help:      "Source connections rejected by the exclusive source policy.",
		},
	)
	connsThrottled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "accept",
			Name:      "conns_throttled_total",
			Help:      "Connections dropped by per-IP accept limiting.",
		},
		[]string{"endpoint"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesRelayed,
			framesDropped,
			broadcastBytes,
			destinationsCurrent,
			destinationEvictions,
			sourcesRejected,
			connsThrottled,
		)
	})
}

func RecordFrameRelayed(wireBytes, fanout int) {
	RegisterMetrics()
	framesRelayed.Inc()
	broadcastBytes.Add(float64(wireBytes * fanout))
}

func RecordFrameDropped(reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(reason).Inc()
}

func RecordDestinationAdded() {
	RegisterMetrics()
	destinationsCurrent.Inc()
}

func RecordDestinationRemoved() {
	RegisterMetrics()
	destinationsCurrent.Dec()
}

func RecordDestinationEvicted() {
	RegisterMetrics()
	destinationEvictions.Inc()
	destinationsCurrent.Dec()
}

func RecordSourceRejected() {
	RegisterMetrics()
	sourcesRejected.Inc()
}

func RecordConnThrottled(endpoint string) {
	RegisterMetrics()
	connsThrottled.WithLabelValues(endpoint).Inc()
}

// MetricsHandler exposes the default registry for the optional /metrics
// endpoint.
func MetricsHandler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
