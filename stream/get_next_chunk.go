package stream

import (
	"context"
	"errors"

	"github.com/gosuda/httpstream/framing"
)

// GetNextChunk returns the next slice of body bytes, constructing a
// body reader from the received headers on first call (obtaining
// those headers via GetHeaders if they are not already cached) and
// reusing that reader on every subsequent call.
//
// When the body is exhausted the reader reports ErrClosed; this
// method translates that into the appropriate state transition
// (half-closed-local -> closed, otherwise -> half-closed-remote) and
// still returns ErrClosed to the caller. Any other error is returned
// unchanged with no state transition.
func (s *Stream) GetNextChunk(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()

	if reader == nil {
		if _, err := s.GetHeaders(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.state == StateClosed || s.state == StateHalfClosedRemote {
			// The remote side already finished without a body (for
			// example a HEAD response), so there is nothing to read.
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if s.reader == nil {
			var err error
			s.reader, err = framing.SelectInbound(s.t, s.headers)
			if err != nil {
				s.mu.Unlock()
				return nil, err
			}
		}
		reader = s.reader
		s.mu.Unlock()
	}

	data, err := reader.Next(ctx)
	if err == nil {
		return data, nil
	}

	if errors.Is(err, ErrClosed) {
		s.mu.Lock()
		if trailers := reader.Trailers(); len(trailers) > 0 {
			for _, f := range trailers {
				s.headers.Add(f.Name, f.Value)
			}
			s.signalHeaders()
		}
		s.setState(sideRemote)
		s.mu.Unlock()
		return nil, ErrClosed
	}

	return nil, err
}
