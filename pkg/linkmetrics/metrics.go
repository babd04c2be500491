// Package linkmetrics exposes the protocol engine's counters and gauges
// as Prometheus metrics, grounded in the retrieval pack's stats-collector
// repos (runZeroInc-conniver / runZeroInc-sockstats), which wire
// github.com/prometheus/client_golang the same way: package-level
// collectors registered once, updated from the hot path with no
// per-call allocation.
package linkmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dllink_frames_sent_total",
		Help: "Total DATA frames handed to the physical layer on first transmission; retransmits are counted by dllink_retransmits_total.",
	})

	RetransmitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dllink_retransmits_total",
		Help: "Total retransmissions triggered by ack-timer expiry or NAK.",
	})

	WindowOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dllink_window_outstanding",
		Help: "Frames currently sent but not yet acknowledged.",
	})

	AcksReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dllink_acks_received_total",
		Help: "Total ACK frames that matched a pending DATA frame.",
	})

	CrcErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dllink_crc_errors_total",
		Help: "Total inbound frames rejected for a CRC mismatch.",
	})

	FramesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dllink_frames_failed_total",
		Help: "Total DATA frames declared failed after exhausting retries.",
	})
)

// Handler returns the promhttp handler the demo binds to -metrics-addr.
func Handler() http.Handler {
	return promhttp.Handler()
}
