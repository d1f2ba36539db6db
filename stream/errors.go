package stream

import (
	"context"
	"errors"

	"github.com/gosuda/httpstream/transport"
)

// Expected peer conditions — returned, never panicked. These mirror
// the spec's EPIPE / ETIMEDOUT and are aliases of the transport
// sentinels so callers can errors.Is against either package.
var (
	ErrClosed  = transport.ErrClosed
	ErrTimeout = transport.ErrTimeout
)

// InvariantError marks a programmer error: calling an operation in a
// state the contract forbids, or violating a framing precondition.
// These are never expected conditions and are not meant to be
// recovered from by a well-behaved caller; library code panics with
// one rather than threading it through a fallible return.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "stream: invariant violation: " + e.Msg }

func invariant(msg string) {
	panic(&InvariantError{Msg: msg})
}

var errUnknownTransferEncoding = errors.New("stream: unsupported transfer-encoding")

// translateTransportErr maps a transport-layer error onto the public
// EPIPE/ETIMEDOUT contract; any other transport error is treated as
// fatal per §7 and panics rather than being returned, since this
// library's transports are not expected to fail in ways the protocol
// state machine can meaningfully recover from.
func translateTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrClosed) {
		return ErrClosed
	}
	if errors.Is(err, transport.ErrTimeout) {
		return ErrTimeout
	}
	panic(&InvariantError{Msg: "fatal transport error: " + err.Error()})
}

// translatePipelineErr maps a pipeline.Acquire error (context
// cancellation or pipeline shutdown) onto EPIPE/ETIMEDOUT.
func translatePipelineErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrTimeout
	}
	return ErrClosed
}
