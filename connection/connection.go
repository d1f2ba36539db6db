// Package connection ties one transport socket to the pipeline
// coordinator and acts as the factory for the streams multiplexed
// over it. The connection owns the socket and the pipeline; a Stream
// holds only a non-owning back-reference to both (spec §3
// Ownership, §9 design note).
package connection

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/httpstream/metrics"
	"github.com/gosuda/httpstream/pipeline"
	"github.com/gosuda/httpstream/stream"
	"github.com/gosuda/httpstream/transport"
)

var nextConnectionID atomic.Int64

// Connection is the per-socket object that owns a Transport and the
// Pipeline serializing streams over it.
type Connection struct {
	id   int64
	t    transport.Transport
	pl   *pipeline.Pipeline
	role stream.Role

	mu sync.Mutex
	// peerVersion is the last HTTP version actually observed on this
	// socket (a client stream learns it from a status line; a server
	// stream learns it fresh from every request line, so only the
	// client side needs this remembered across streams). Seeded to
	// HTTP/1.1 optimistically, matching what this module's own client
	// write path always declares, since a brand-new connection has not
	// read anything yet and the zero Version value (HTTP/1.0) would
	// otherwise make every first request on a persistent connection
	// look close-delimited.
	peerVersion transport.Version
}

// New wraps t for role (client or server) and assigns it a process-
// unique id used only for log correlation and metrics labels.
func New(t transport.Transport, role stream.Role) *Connection {
	id := nextConnectionID.Add(1)
	metrics.ConnectionsOpened.Inc()
	log.Debug().Int64("connection_id", id).Str("role", role.String()).Msg("connection: opened")
	return &Connection{
		id:          id,
		t:           t,
		pl:          pipeline.New(),
		role:        role,
		peerVersion: transport.HTTP11,
	}
}

// ID returns the connection's log/metrics correlation id.
func (c *Connection) ID() int64 { return c.id }

// peerVersionHint returns this connection's current best guess at the
// peer's HTTP version.
func (c *Connection) peerVersionHint() transport.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerVersion
}

// setPeerVersion records a version actually learned from the wire, so
// the next stream on this connection starts from real knowledge
// instead of the optimistic default.
func (c *Connection) setPeerVersion(v transport.Version) {
	c.mu.Lock()
	c.peerVersion = v
	c.mu.Unlock()
}

// NewStream returns a fresh stream bound to this connection's
// transport and pipeline, in the idle state.
func (c *Connection) NewStream() *stream.Stream {
	metrics.StreamsCreated.Inc()
	return stream.New(c.role, c.t, c.pl, c.id, c.peerVersionHint(), c.setPeerVersion)
}

// PendingStreams reports how many streams are currently queued on
// this connection's pipeline, for diagnostics.
func (c *Connection) PendingStreams() int {
	return c.pl.Len()
}

// Close tears down the pipeline (waking any blocked Acquire calls)
// and closes the underlying transport if it supports it. The
// connection does not wait for in-flight streams to reach closed;
// callers that need graceful drain should call Stream.Shutdown on
// each stream first.
func (c *Connection) Close() error {
	c.pl.Close()
	metrics.ConnectionsClosed.Inc()
	log.Debug().Int64("connection_id", c.id).Msg("connection: closed")
	if closer, ok := c.t.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
