package stream

import (
	"context"

	"github.com/gosuda/httpstream/framing"
	"github.com/gosuda/httpstream/headers"
	"github.com/gosuda/httpstream/reason"
	"github.com/gosuda/httpstream/transport"
)

// WriteHeaders emits a request (client) or status (server) line
// followed by h's ordinary headers, then chooses the outbound body
// framing exactly once. endStream declares that no body will follow;
// the caller must not call WriteChunk afterward in that case.
func (s *Stream) WriteHeaders(ctx context.Context, h *headers.Headers, endStream bool) error {
	s.mu.Lock()
	state := s.state
	role := s.role
	s.mu.Unlock()

	if state == StateClosed || state == StateHalfClosedLocal {
		return ErrClosed
	}
	if role == RoleServer {
		if state != StateOpen && state != StateHalfClosedRemote {
			invariant("server WriteHeaders called in state " + state.String())
		}
		if !s.pl.IsHead(s) {
			invariant("server WriteHeaders called out of pipeline order")
		}
	}

	if role == RoleClient && state == StateIdle {
		if err := s.clientSendRequestLine(ctx, h); err != nil {
			return err
		}
	} else if role == RoleServer {
		if err := s.serverSendStatusLine(ctx, h); err != nil {
			return err
		}
	}

	s.chooseOutboundFraming(h, endStream)

	if err := s.emitOrdinaryHeaders(ctx, h); err != nil {
		return err
	}
	if err := translateTransportErr(s.t.WriteHeadersDone(ctx)); err != nil {
		return err
	}

	s.mu.Lock()
	closeWhenDone := s.closeWhenDone
	if endStream {
		s.setState(sideLocal)
	}
	s.mu.Unlock()

	if endStream && closeWhenDone {
		s.t.ShutdownWrite()
	}
	return nil
}

func (s *Stream) clientSendRequestLine(ctx context.Context, h *headers.Headers) error {
	method, ok := h.Get(headers.PseudoMethod)
	if !ok || method == "" {
		invariant("client WriteHeaders missing :method")
	}

	var target string
	if method == "CONNECT" {
		authority, ok := h.Get(headers.PseudoAuthority)
		if !ok {
			invariant("CONNECT request missing :authority")
		}
		if _, hasPath := h.Get(headers.PseudoPath); hasPath {
			invariant("CONNECT request must not carry :path")
		}
		target = authority
	} else {
		path, ok := h.Get(headers.PseudoPath)
		if !ok {
			invariant("client WriteHeaders missing :path")
		}
		target = path
	}

	if err := s.pl.Acquire(ctx); err != nil {
		if s.t.EOFWrite() {
			return ErrClosed
		}
		return translatePipelineErr(err)
	}
	s.pl.Push(s)

	s.mu.Lock()
	s.reqMethod = method
	s.holdsReqLock = true
	s.mu.Unlock()

	if err := translateTransportErr(s.t.WriteRequestLine(ctx, method, target, transport.HTTP11)); err != nil {
		return err
	}

	s.mu.Lock()
	s.openFromIdle()
	s.mu.Unlock()
	return nil
}

func (s *Stream) serverSendStatusLine(ctx context.Context, h *headers.Headers) error {
	statusStr, ok := h.Get(headers.PseudoStatus)
	if !ok {
		invariant("server WriteHeaders missing :status")
	}
	status := atoiOrPanic(statusStr)

	s.mu.Lock()
	version := s.peerVersion
	s.mu.Unlock()

	return translateTransportErr(s.t.WriteStatusLine(ctx, version, status, reason.Phrase(status)))
}

// chooseOutboundFraming implements the body-framing priority rules of
// write_headers, exactly once per exchange. A framing.SelectOutbound
// error (unknown transfer-encoding, malformed content-length, or no
// hint a client can use) is an invariant violation per §7, not a
// recoverable condition, so it panics rather than returning.
func (s *Stream) chooseOutboundFraming(h *headers.Headers, endStream bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	method := s.reqMethod
	decision, err := framing.SelectOutbound(h, method, s.peerVersion, endStream, s.role == RoleServer)
	if err != nil {
		invariant(err.Error())
	}

	s.closeWhenDone = decision.CloseWhenDone
	s.bodyWriteType = decision.Type
	s.bodyWriteLeft = decision.Length

	// GET and HEAD requests without a body are sent with no
	// content-length, so the server infers that no body follows.
	if endStream && s.role == RoleClient && method != "HEAD" && method != "GET" && !decision.CloseWhenDone {
		h.Set("content-length", "0")
	}
}

// emitOrdinaryHeaders writes every non-pseudo header in insertion
// order, plus :authority as Host for non-CONNECT requests.
func (s *Stream) emitOrdinaryHeaders(ctx context.Context, h *headers.Headers) error {
	s.mu.Lock()
	role := s.role
	method := s.reqMethod
	s.mu.Unlock()

	if role == RoleClient && method != "CONNECT" {
		if authority, ok := h.Get(headers.PseudoAuthority); ok {
			if err := translateTransportErr(s.t.WriteHeader(ctx, "Host", authority)); err != nil {
				return err
			}
		}
	}
	for _, f := range h.OrdinaryFields() {
		if err := translateTransportErr(s.t.WriteHeader(ctx, f.Name, f.Value)); err != nil {
			return err
		}
	}
	return nil
}
