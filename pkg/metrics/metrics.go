package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MessagesTotal counts decoded feed messages by kind (trade/quote/depth/bar/system)
var MessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quotefeed_messages_total",
		Help: "Total number of feed messages decoded, by message kind",
	},
	[]string{"kind"},
)

// DroppedFrames counts inbound frames that matched no known shape
var DroppedFrames = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "quotefeed_dropped_frames_total",
		Help: "Total number of inbound frames dropped as unparseable or unrecognized",
	},
)

// ReconnectsTotal counts scheduled reconnect attempts
var ReconnectsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "quotefeed_reconnects_total",
		Help: "Total number of reconnect attempts scheduled after unexpected disconnection",
	},
)

// ListenerPanics counts recovered panics in event listeners
var ListenerPanics = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "quotefeed_listener_panics_total",
		Help: "Total number of panics recovered during listener event delivery",
	},
)

// FrameHandleDuration records the time spent classifying and dispatching one frame
var FrameHandleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "quotefeed_frame_handle_duration_seconds",
		Help:    "Latency in seconds to classify and dispatch one inbound frame",
		Buckets: prometheus.DefBuckets,
	},
)

// Connection and cache gauges
var (
	ConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quotefeed_connection_state",
			Help: "Current connection state (0 disconnected through 5 error)",
		},
	)

	CachedSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quotefeed_cached_symbols",
			Help: "Number of symbols currently held in the quote cache",
		},
	)
)

// PublishedUpdates counts cache updates mirrored to the pub/sub backend
var PublishedUpdates = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quotefeed_published_updates_total",
		Help: "Total number of cache updates published downstream, by backend",
	},
	[]string{"backend"},
)

func init() {
	prometheus.MustRegister(MessagesTotal, DroppedFrames, ReconnectsTotal)
	prometheus.MustRegister(ListenerPanics, FrameHandleDuration)
	prometheus.MustRegister(ConnectionState, CachedSymbols, PublishedUpdates)
}
