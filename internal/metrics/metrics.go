// Package metrics holds the Prometheus collectors for outbound fetches.
// They register with the default registry on import; serve them with promhttp.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "suntrack"

// FetchTotal counts completed upstream requests.
// Labels:
//   - op: upstream name (e.g. "sunrise-sunset", "ipgeolocation", "nominatim")
//   - result: "ok", "transport_error", "status_error", "decode_error" or "error"
var FetchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Total number of upstream fetches, labelled by upstream and result.",
	},
	[]string{"op", "result"},
)

// FetchDuration measures wall time of upstream requests, including decode.
var FetchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Duration of upstream fetches in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"op"},
)

// TrackerUpdatesTotal counts snapshots published by each tracker.
var TrackerUpdatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracker_updates_total",
		Help:      "Total number of state snapshots published, labelled by tracker.",
	},
	[]string{"tracker"},
)

func ObserveFetch(op, result string, d time.Duration) {
	FetchTotal.WithLabelValues(op, result).Inc()
	FetchDuration.WithLabelValues(op).Observe(d.Seconds())
}
