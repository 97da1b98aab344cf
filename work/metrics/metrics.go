package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ActiveSessions tracks the number of relay sessions currently streaming,
// per channel. Each client connection is its own session.
var ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "epg_relay_active_sessions",
	Help: "Number of active relay sessions",
}, []string{"channel"})

// BytesRelayed counts the total TS payload bytes written to clients per
// channel, after packet realignment. This counter only increases.
var BytesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "epg_relay_bytes_relayed",
	Help: "Total bytes relayed to clients",
}, []string{"channel"})

// PacketsRelayed counts the 188-byte transport packets written to clients
// per channel.
var PacketsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "epg_relay_packets_relayed",
	Help: "Total TS packets relayed to clients",
}, []string{"channel"})

// ResyncBytesDiscarded counts bytes dropped while re-acquiring TS packet
// alignment. A non-zero rate usually points at a misbehaving upstream.
var ResyncBytesDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "epg_relay_resync_bytes_discarded",
	Help: "Bytes discarded during TS sync-byte realignment",
}, []string{"channel"})

// UpstreamErrors counts upstream fetch failures per channel. The
// "error_type" label categorizes the failure (rejected, timeout,
// unreachable, redirects, read).
var UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "epg_relay_upstream_errors",
	Help: "Number of upstream fetch errors",
}, []string{"channel", "error_type"})
