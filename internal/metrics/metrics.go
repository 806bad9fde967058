// Package metrics exposes prometheus instrumentation for the client.
// All metrics are low-cardinality (no device_id/update_id labels).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WSPacketsTotal counts decoded websocket packets by model and action.
	WSPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ufp_ws_packets_total",
			Help: "Total websocket packets decoded by model and action",
		},
		[]string{"model", "action"},
	)

	// WSDecodeErrorsTotal counts frames the codec could not decode.
	WSDecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ufp_ws_decode_errors_total",
			Help: "Total websocket frames dropped due to decode errors",
		},
	)

	// WSReconnectsTotal counts websocket reconnect attempts.
	WSReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ufp_ws_reconnects_total",
			Help: "Total websocket reconnect attempts",
		},
	)

	// WSPacketBytes tracks wire sizes of decoded packets.
	WSPacketBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ufp_ws_packet_bytes",
			Help:    "Wire size of decoded websocket packets",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144},
		},
	)

	// HTTPRetriesTotal counts retried idempotent requests.
	HTTPRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ufp_http_retries_total",
			Help: "Total retried idempotent HTTP requests",
		},
	)

	// EchoesSuppressedTotal counts self-echo field changes suppressed.
	EchoesSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ufp_echoes_suppressed_total",
			Help: "Total self-initiated field echoes suppressed",
		},
	)

	// RebootstrapsTotal counts full graph reloads forced by divergence.
	RebootstrapsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ufp_rebootstraps_total",
			Help: "Total full bootstrap reloads triggered by stream divergence",
		},
	)
)

func RecordPacket(model, action string, size int) {
	WSPacketsTotal.WithLabelValues(model, action).Inc()
	WSPacketBytes.Observe(float64(size))
}

func RecordDecodeError() { WSDecodeErrorsTotal.Inc() }

func RecordReconnect() { WSReconnectsTotal.Inc() }

func RecordHTTPRetry() { HTTPRetriesTotal.Inc() }

func RecordEchoSuppressed() { EchoesSuppressedTotal.Inc() }

func RecordRebootstrap() { RebootstrapsTotal.Inc() }
