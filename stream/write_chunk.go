package stream

import (
	"context"

	"github.com/gosuda/httpstream/framing"
	"github.com/gosuda/httpstream/metrics"
)

// WriteChunk writes one body chunk using whichever framing
// WriteHeaders selected. endStream declares this is the last chunk of
// the local message; for TypeLength framing the declared
// Content-Length must have been fully accounted for by then.
func (s *Stream) WriteChunk(ctx context.Context, chunk []byte, endStream bool) error {
	s.mu.Lock()
	state := s.state
	role := s.role
	holdsLock := s.holdsReqLock
	isHead := s.pl.IsHead(s)
	bodyType := s.bodyWriteType
	left := s.bodyWriteLeft
	closeWhenDone := s.closeWhenDone
	s.mu.Unlock()

	if state != StateOpen && state != StateHalfClosedRemote {
		invariant("WriteChunk called in state " + state.String())
	}
	if role == RoleClient && !holdsLock {
		invariant("client WriteChunk called without holding the request lock")
	}
	if role == RoleServer && !isHead {
		invariant("server WriteChunk called while not head of pipeline")
	}

	switch bodyType {
	case framing.TypeChunked:
		if len(chunk) > 0 {
			if err := translateTransportErr(s.t.WriteBodyChunk(ctx, chunk)); err != nil {
				return err
			}
		}
		if endStream {
			if err := translateTransportErr(s.t.WriteBodyLastChunk(ctx)); err != nil {
				return err
			}
			if err := translateTransportErr(s.t.WriteHeadersDone(ctx)); err != nil {
				return err
			}
		}
	case framing.TypeLength:
		if len(chunk) > 0 {
			if err := translateTransportErr(s.t.WriteBodyPlain(ctx, chunk)); err != nil {
				return err
			}
		}
		left -= int64(len(chunk))
		s.mu.Lock()
		s.bodyWriteLeft = left
		s.mu.Unlock()
		if endStream && left != 0 {
			invariant("WriteChunk end_stream with body_write_left != 0")
		}
	case framing.TypeClose:
		if len(chunk) > 0 {
			if err := translateTransportErr(s.t.WriteBodyPlain(ctx, chunk)); err != nil {
				return err
			}
		}
	default:
		invariant("WriteChunk called before body framing was chosen")
	}

	s.mu.Lock()
	s.statsSent += int64(len(chunk))
	s.mu.Unlock()
	if len(chunk) > 0 {
		metrics.BodyBytesWritten.Observe(float64(len(chunk)))
	}

	if endStream {
		if closeWhenDone {
			s.t.ShutdownWrite()
		}
		s.mu.Lock()
		s.setState(sideLocal)
		s.mu.Unlock()
	}

	return nil
}
