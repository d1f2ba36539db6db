package stream

import (
	"context"
	"strconv"
	"strings"

	"github.com/gosuda/httpstream/headers"
)

// GetHeaders returns the header set for this exchange, reading it
// from the transport on first call and returning the cached copy on
// every subsequent call (idempotent per the specification).
//
// Server, idle: reads the request line, populates the :method/:path
// (or :authority for CONNECT)/:scheme pseudo-headers, and transitions
// idle -> open. Client, open or half-closed-local with no :status
// yet: must be head-of-pipeline (an invariant violation otherwise),
// then reads the status line.
// Client, idle: an invariant violation — a client stream must write
// its request before it can read a response.
func (s *Stream) GetHeaders(ctx context.Context) (*headers.Headers, error) {
	s.mu.Lock()
	if s.headersDone {
		h := s.headers.Clone()
		s.mu.Unlock()
		return h, nil
	}
	role, state := s.role, s.state
	hasStatus := s.headers.Has(headers.PseudoStatus)
	s.mu.Unlock()

	switch {
	case role == RoleServer && state == StateIdle:
		if err := s.serverReadRequestLine(ctx); err != nil {
			return nil, err
		}
	case role == RoleClient && (state == StateOpen || state == StateHalfClosedLocal) && !hasStatus:
		if err := s.clientReadStatusLine(ctx); err != nil {
			return nil, err
		}
	case role == RoleClient && state == StateIdle:
		invariant("client GetHeaders called before WriteHeaders (no request sent yet)")
	default:
		// Headers already pending completion from a prior partial
		// read, or a state this operation doesn't own; fall through
		// to field-line collection below, which is a no-op once
		// headersDone is true (checked again at the top on retry).
	}

	if err := s.readFieldLines(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.detectNoBody()
	h := s.headers.Clone()
	done := s.headersDone
	s.mu.Unlock()
	if !done {
		// readFieldLines always sets headersDone; this branch exists
		// only to document the invariant, never reached.
		invariant("headers not marked done after field-line collection")
	}
	return h, nil
}

func (s *Stream) serverReadRequestLine(ctx context.Context) error {
	if err := s.pl.Acquire(ctx); err != nil {
		return translatePipelineErr(err)
	}
	s.mu.Lock()
	s.holdsReqLock = true
	s.mu.Unlock()
	s.pl.Push(s)

	method, target, version, err := s.t.ReadRequestLine(ctx)
	if err != nil {
		return translateTransportErr(err)
	}

	s.mu.Lock()
	s.reqMethod = method
	s.peerVersion = version
	s.headers.Set(headers.PseudoMethod, method)
	if method == "CONNECT" {
		s.headers.Set(headers.PseudoAuthority, target)
	} else {
		s.headers.Set(headers.PseudoPath, target)
	}
	scheme := "http"
	if s.t.IsTLS() {
		scheme = "https"
	}
	s.headers.Set(headers.PseudoScheme, scheme)
	s.openFromIdle()
	s.mu.Unlock()
	return nil
}

func (s *Stream) clientReadStatusLine(ctx context.Context) error {
	if !s.pl.IsHead(s) {
		invariant("client GetHeaders called out of pipeline order")
	}

	version, status, reasonPhrase, err := s.t.ReadStatusLine(ctx)
	if err != nil {
		return translateTransportErr(err)
	}
	_ = reasonPhrase

	s.mu.Lock()
	s.peerVersion = version
	onPeerVersion := s.onPeerVersion
	s.headers.Set(headers.PseudoStatus, strconv.Itoa(status))
	s.mu.Unlock()
	if onPeerVersion != nil {
		onPeerVersion(version)
	}
	return nil
}

func (s *Stream) readFieldLines(ctx context.Context) error {
	s.mu.Lock()
	if s.headersDone {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	for {
		name, value, err := s.t.NextHeader(ctx)
		if err != nil {
			return translateTransportErr(err)
		}
		if name == "" {
			break
		}
		name = strings.ToLower(name)
		if name == "host" {
			name = headers.PseudoAuthority
		}
		s.mu.Lock()
		s.headers.Add(name, value)
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.headersDone = true
	s.signalHeaders()
	s.mu.Unlock()
	return nil
}

// detectNoBody applies the no-body inference of §4.2 and, if no body
// is expected, immediately advances the state machine. Must be called
// with s.mu held.
func (s *Stream) detectNoBody() {
	noBody := false
	if s.role == RoleClient {
		noBody = s.reqMethod == "HEAD"
	} else {
		method, _ := s.headers.Get(headers.PseudoMethod)
		if method == "GET" || method == "HEAD" {
			noBody = !s.headers.Has("content-length") &&
				!s.headers.Has("content-type") &&
				!s.headers.Has("transfer-encoding")
		}
	}
	if noBody {
		s.setState(sideRemote)
	}
}
