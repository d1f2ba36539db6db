package stream

import (
	"context"
	"errors"
	"time"

	"github.com/gosuda/httpstream/framing"
)

// Shutdown is best-effort abandonment: it drains any unread remote
// body so the transport is left in a defined state, synthesizes a
// terminal body for an incomplete server response where a framing was
// already chosen, and then forces state to closed regardless of what
// either side actually finished. It never returns an error; failures
// while draining or synthesizing are ignored, since the caller is
// walking away from this exchange either way.
func (s *Stream) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	state := s.state
	role := s.role
	s.mu.Unlock()

	// A client stream in idle has written nothing yet, so there is no
	// response to drain; GetHeaders would treat reading one as an
	// invariant violation (a client must write before it can read). A
	// server stream in idle is legitimately waiting for its next
	// request, so draining it still means reading that request.
	canDrain := state == StateOpen || state == StateHalfClosedLocal ||
		(state == StateIdle && role == RoleServer)
	if canDrain {
		s.drainRemote(ctx)
	}

	s.mu.Lock()
	state = s.state
	role = s.role
	bodyType := s.bodyWriteType
	left := s.bodyWriteLeft
	s.mu.Unlock()

	if role == RoleServer && state == StateHalfClosedRemote && bodyType != framing.TypeUnset {
		s.synthesizeTerminalBody(ctx, bodyType, left)
	}

	s.mu.Lock()
	s.state = StateClosed
	old := s.stateWake
	s.stateWake = make(chan struct{})
	s.mu.Unlock()
	close(old)
}

func (s *Stream) drainRemote(ctx context.Context) {
	for {
		_, err := s.GetNextChunk(ctx)
		if err != nil {
			return
		}
	}
}

func (s *Stream) synthesizeTerminalBody(ctx context.Context, bodyType framing.Type, left int64) {
	switch bodyType {
	case framing.TypeLength:
		if left > 0 {
			zeros := make([]byte, left)
			if err := s.t.WriteBodyPlain(ctx, zeros); err != nil && !errors.Is(err, ErrClosed) {
				return
			}
		}
	case framing.TypeChunked:
		if err := s.t.WriteBodyLastChunk(ctx); err != nil && !errors.Is(err, ErrClosed) {
			return
		}
		s.t.WriteHeadersDone(ctx)
	case framing.TypeClose:
		// nothing to synthesize; the peer detects completion via close.
	}
}
