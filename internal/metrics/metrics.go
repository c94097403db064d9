package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All metrics are low-cardinality: no serials, channel ids or unique ids as
// labels.

var (
	DevicesOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hikvision_devices_online",
		Help: "Current number of devices with an established session",
	})

	ISAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hikvision_isapi_requests_total",
		Help: "Total ISAPI requests sent to devices",
	}, []string{"method", "code"}) // code: HTTP status or "error"

	ISAPIErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hikvision_isapi_errors_total",
		Help: "Total failed ISAPI operations by error kind",
	}, []string{"kind"})

	AlertsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hikvision_alerts_received_total",
		Help: "Total alert notifications accepted from devices",
	}, []string{"event_type"})

	AlertsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hikvision_alerts_dropped_total",
		Help: "Total alert notifications dropped before publishing",
	}, []string{"reason"}) // "malformed", "unknown_event", "unknown_device", "duplicate"

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hikvision_poll_duration_seconds",
		Help:    "Duration of one device polling round",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"}) // "events", "infrequent"

	PollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hikvision_poll_errors_total",
		Help: "Total polling rounds that failed or were skipped",
	}, []string{"kind", "reason"})

	SnapshotFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hikvision_snapshot_fallbacks_total",
		Help: "Snapshot requests that switched to the alternate picture URL",
	})

	PublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hikvision_nats_publish_failures_total",
		Help: "Events that could not be published to NATS",
	})
)
