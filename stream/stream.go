// Package stream implements the per-exchange HTTP/1.x state machine:
// header collection, body framing selection, and the lifecycle
// transitions shared by client and server roles. It is the core of
// this module; see framing for body-framing selection and pipeline
// for the per-connection request lock and FIFO it cooperates with.
package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/httpstream/framing"
	"github.com/gosuda/httpstream/headers"
	"github.com/gosuda/httpstream/metrics"
	"github.com/gosuda/httpstream/pipeline"
	"github.com/gosuda/httpstream/transport"
)

// Stream is the per-exchange state machine described by the package
// doc. A Stream is created by a Connection (not directly) and its
// reference back to that connection's transport and pipeline is
// non-owning: closing a Stream never closes the socket.
type Stream struct {
	role         Role
	t            transport.Transport
	pl           *pipeline.Pipeline
	connectionID int64

	mu         sync.Mutex
	state      State
	stateWake  chan struct{} // closed and replaced on every transition

	headers      *headers.Headers
	headersDone  bool
	headersWake  chan struct{} // closed and replaced when headers/trailers arrive

	reqMethod    string
	peerVersion  transport.Version
	onPeerVersion func(transport.Version) // called by client streams only, to propagate a learned version back to the connection

	bodyWriteType framing.Type
	bodyWriteLeft int64
	closeWhenDone bool
	statsSent     int64

	holdsReqLock bool // true between a successful pipeline.Acquire and this stream's read/write-side completion

	reader framing.Reader // lazily constructed by GetNextChunk
}

// New constructs a stream bound to a connection's transport and
// pipeline. connectionID is carried into structured log fields only.
//
// peerVersion seeds the stream's assumption about the peer's HTTP
// version before anything has actually been read on it: a client
// stream writes its request before it can read anything, so without a
// better guess it must assume something. onPeerVersion, when non-nil,
// is called once a client stream actually learns the peer's version
// from a status line, so the connection can seed the next stream with
// the real value instead of guessing again.
func New(role Role, t transport.Transport, pl *pipeline.Pipeline, connectionID int64, peerVersion transport.Version, onPeerVersion func(transport.Version)) *Stream {
	return &Stream{
		role:          role,
		t:             t,
		pl:            pl,
		connectionID:  connectionID,
		state:         StateIdle,
		stateWake:     make(chan struct{}),
		headers:       headers.NewHeaders(),
		headersWake:   make(chan struct{}),
		bodyWriteType: framing.TypeUnset,
		peerVersion:   peerVersion,
		onPeerVersion: onPeerVersion,
	}
}

// Role reports whether this stream drives the client or server half
// of the exchange.
func (s *Stream) Role() Role { return s.role }

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StatsSent returns the cumulative bytes of body written so far.
func (s *Stream) StatsSent() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsSent
}

// waitState blocks until the state differs from `from`, ctx is done,
// or the stream closes outright. Must be called without s.mu held.
func (s *Stream) waitState(ctx context.Context, from State) (State, error) {
	for {
		s.mu.Lock()
		cur := s.state
		wake := s.stateWake
		s.mu.Unlock()
		if cur != from {
			return cur, nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return cur, ctx.Err()
		}
	}
}

// setState is the only place a transition occurs. It applies the
// lock-release side effects bound to the transition and signals
// stateWake atomically with the change, per the specification's
// "side effects bound to transitions" rule. Must be called with s.mu
// held; it unlocks internally around the (non-blocking) pipeline
// calls and re-locks before returning, so callers can keep using `s`
// after it returns as though they never lost the lock.
func (s *Stream) setState(finished side) {
	from := s.state
	to := nextState(from, finished)
	if to == from {
		return
	}
	s.state = to

	// Determine which role-specific lock/FIFO action this transition
	// triggers, then perform it with s.mu released (pipeline methods
	// take their own lock and must not be called while holding ours).
	var releaseReqLocked, dequeueFIFO bool
	switch finished {
	case sideRemote: // read-side completion
		if s.role == RoleServer {
			releaseReqLocked = true
		} else {
			dequeueFIFO = true
		}
	case sideLocal: // write-side completion
		if s.role == RoleClient {
			releaseReqLocked = true
		} else {
			dequeueFIFO = true
		}
	}

	oldWake := s.stateWake
	s.stateWake = make(chan struct{})
	if releaseReqLocked {
		s.holdsReqLock = false
	}

	s.mu.Unlock()
	if releaseReqLocked {
		s.pl.Release()
	}
	if dequeueFIFO {
		s.pl.PopHead(s)
	}
	close(oldWake)
	metrics.StateTransitions.WithLabelValues(s.role.String(), to.String()).Inc()
	log.Debug().
		Int64("connection_id", s.connectionID).
		Str("role", s.role.String()).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("stream: state transition")
	s.mu.Lock()
}

// openFromIdle moves idle -> open with no lock-release side effect:
// it models "headers sent/received, body phase active" rather than
// either direction finishing. Must be called with s.mu held; a no-op
// once the stream has left idle.
func (s *Stream) openFromIdle() {
	if s.state != StateIdle {
		return
	}
	s.state = StateOpen
	old := s.stateWake
	s.stateWake = make(chan struct{})
	close(old)
}

// signalHeaders wakes headersWake after headers or trailers were added
// (callers set headersDone themselves). Must be called with s.mu held.
func (s *Stream) signalHeaders() {
	old := s.headersWake
	s.headersWake = make(chan struct{})
	close(old)
}
