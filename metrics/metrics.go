// Package metrics exposes Prometheus counters and histograms for
// stream lifecycle, body bytes, and pipeline depth. It is ambient
// observability, not part of the state machine's contract — no
// operation's behavior depends on these being scraped.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ConnectionsOpened counts connections wrapped by package
	// connection, cumulative for process lifetime.
	ConnectionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "httpstream",
		Name:      "connections_opened_total",
		Help:      "Total connections handed to connection.New.",
	})
	// ConnectionsClosed counts connections torn down via Connection.Close.
	ConnectionsClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "httpstream",
		Name:      "connections_closed_total",
		Help:      "Total connections torn down via Connection.Close.",
	})
	// StreamsCreated counts streams constructed across all connections.
	StreamsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "httpstream",
		Name:      "streams_created_total",
		Help:      "Total streams constructed by Connection.NewStream.",
	})
	// StateTransitions counts stream state transitions, labeled by
	// role and destination state.
	StateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "httpstream",
		Name:      "stream_state_transitions_total",
		Help:      "Stream state transitions, labeled by role and destination state.",
	}, []string{"role", "state"})
	// BodyBytesWritten histograms the size of each WriteChunk call.
	BodyBytesWritten = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "httpstream",
		Name:      "body_chunk_bytes_written",
		Help:      "Size in bytes of each body chunk written.",
		Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
	})
	// PipelineDepth observes the FIFO length at Push time, a proxy
	// for how deep request pipelining goes in practice.
	PipelineDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "httpstream",
		Name:      "pipeline_depth",
		Help:      "Pipeline FIFO length observed when a stream is pushed.",
		Buckets:   prometheus.LinearBuckets(1, 1, 16),
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsOpened,
		ConnectionsClosed,
		StreamsCreated,
		StateTransitions,
		BodyBytesWritten,
		PipelineDepth,
	)
}
