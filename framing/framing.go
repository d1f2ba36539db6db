// Package framing selects, from a header set and the peer's HTTP
// version, how an HTTP/1.x message body is delimited — chunked,
// declared length, or connection close — and builds the matching
// pull-based chunk reader for the receive side.
package framing

import (
	"context"
	"errors"
	"strconv"

	"github.com/gosuda/httpstream/headers"
	"github.com/gosuda/httpstream/transport"
)

// Type tags the three ways a body's end can be determined. Using a
// closed tagged union rather than string constants makes the
// dispatch in Stream.WriteChunk/body readers exhaustive by
// construction.
type Type int

const (
	// TypeUnset means no framing has been chosen yet.
	TypeUnset Type = iota
	TypeChunked
	TypeLength
	TypeClose
)

func (t Type) String() string {
	switch t {
	case TypeChunked:
		return "chunked"
	case TypeLength:
		return "length"
	case TypeClose:
		return "close"
	default:
		return "unset"
	}
}

var (
	// ErrUnknownTransferEncoding is an invariant violation: any
	// Transfer-Encoding other than a (possibly multi-token) list
	// ending in "chunked" is unsupported by this library (spec
	// non-goal: transfer-encodings other than chunked).
	ErrUnknownTransferEncoding = errors.New("framing: unsupported transfer-encoding")
	// ErrBadContentLength is an invariant violation: Content-Length
	// did not match ^\d+$ or exceeded the 12-digit sanity limit.
	ErrBadContentLength = errors.New("framing: malformed content-length")
	// ErrNoFramingHint is an invariant violation: a client write with
	// no Transfer-Encoding, no Content-Length, and close_when_done
	// false has no way to frame its body.
	ErrNoFramingHint = errors.New("framing: no outbound framing hint")
)

const maxContentLengthDigits = 12

// ParseContentLength validates and parses a Content-Length value per
// the specification's ^\d+$ and <=12-digit rule.
func ParseContentLength(value string) (int64, error) {
	if value == "" || len(value) > maxContentLengthDigits {
		return 0, ErrBadContentLength
	}
	for _, c := range value {
		if c < '0' || c > '9' {
			return 0, ErrBadContentLength
		}
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, ErrBadContentLength
	}
	return n, nil
}

// CloseWhenDone computes the spec's close_when_done from the
// Connection header and the peer's HTTP version: for an HTTP/1.0 peer
// the connection closes unless "keep-alive" is present; for HTTP/1.1
// it closes iff "close" is present.
func CloseWhenDone(h *headers.Headers, peerVersion transport.Version) bool {
	conn, _ := h.Get("connection")
	if peerVersion == transport.HTTP10 {
		return !headers.CommaListHas(conn, "keep-alive")
	}
	return headers.CommaListHas(conn, "close")
}

// OutboundDecision is the result of selecting how a locally-written
// body will be framed.
type OutboundDecision struct {
	Type          Type
	Length        int64 // valid when Type == TypeLength
	CloseWhenDone bool
}

// SelectOutbound implements the priority rules of write_headers
// body-framing choice: CONNECT always closes; otherwise
// Transfer-Encoding ending in chunked, then Content-Length, then
// close_when_done, with a server default of close (forcing
// close_when_done true) and a client-side invariant violation if none
// apply.
func SelectOutbound(h *headers.Headers, method string, peerVersion transport.Version, endStream, isServer bool) (OutboundDecision, error) {
	if method == "CONNECT" {
		return OutboundDecision{Type: TypeClose, CloseWhenDone: true}, nil
	}

	closeWhenDone := CloseWhenDone(h, peerVersion)

	if endStream {
		return OutboundDecision{Type: TypeUnset, CloseWhenDone: closeWhenDone}, nil
	}

	if te, ok := h.Get("transfer-encoding"); ok {
		last, _ := headers.LastCommaToken(te)
		if last != "chunked" {
			return OutboundDecision{}, ErrUnknownTransferEncoding
		}
		return OutboundDecision{Type: TypeChunked, CloseWhenDone: closeWhenDone}, nil
	}

	if cl, ok := h.Get("content-length"); ok {
		n, err := ParseContentLength(cl)
		if err != nil {
			return OutboundDecision{}, err
		}
		return OutboundDecision{Type: TypeLength, Length: n, CloseWhenDone: closeWhenDone}, nil
	}

	if closeWhenDone {
		return OutboundDecision{Type: TypeClose, CloseWhenDone: true}, nil
	}

	if isServer {
		return OutboundDecision{Type: TypeClose, CloseWhenDone: true}, nil
	}

	return OutboundDecision{}, ErrNoFramingHint
}

// Reader is the pull-based body iterator for the receive side. Next
// returns the next chunk of body bytes; it returns transport.ErrClosed
// once the body is fully consumed (the spec's EPIPE-at-exhaustion
// convention, reused here rather than io.EOF so callers share one
// "done" sentinel with the rest of this package).
type Reader interface {
	Next(ctx context.Context) ([]byte, error)
	// Trailers is non-nil only for a chunked reader, and only once
	// Next has returned transport.ErrClosed.
	Trailers() []headers.HeaderField
}

// SelectInbound builds a Reader for a received header set, choosing
// among chunked / length / close framing by the same priority as
// SelectOutbound's detection (Transfer-Encoding, then Content-Length,
// then close-delimited).
func SelectInbound(t transport.Transport, h *headers.Headers) (Reader, error) {
	if te, ok := h.Get("transfer-encoding"); ok {
		last, _ := headers.LastCommaToken(te)
		if last != "chunked" {
			return nil, ErrUnknownTransferEncoding
		}
		return &chunkedReader{t: t}, nil
	}
	if cl, ok := h.Get("content-length"); ok {
		n, err := ParseContentLength(cl)
		if err != nil {
			return nil, err
		}
		return &lengthReader{t: t, left: n}, nil
	}
	return &closeReader{t: t}, nil
}

type chunkedReader struct {
	t        transport.Transport
	done     bool
	trailers []headers.HeaderField
}

func (r *chunkedReader) Next(ctx context.Context) ([]byte, error) {
	if r.done {
		return nil, transport.ErrClosed
	}
	data, ok, err := r.t.ReadBodyChunk(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		// zero-length terminator: read trailer fields until blank line.
		for {
			name, value, err := r.t.NextHeader(ctx)
			if err != nil {
				return nil, err
			}
			if name == "" {
				break
			}
			r.trailers = append(r.trailers, headers.HeaderField{Name: name, Value: value})
		}
		r.done = true
		return nil, transport.ErrClosed
	}
	return data, nil
}

func (r *chunkedReader) Trailers() []headers.HeaderField { return r.trailers }

type lengthReader struct {
	t    transport.Transport
	left int64
}

func (r *lengthReader) Next(ctx context.Context) ([]byte, error) {
	if r.left <= 0 {
		return nil, transport.ErrClosed
	}
	want := r.left
	if want > 65536 {
		want = 65536
	}
	data, err := r.t.ReadBodyByLength(ctx, want)
	if err != nil {
		return nil, err
	}
	r.left -= int64(len(data))
	return data, nil
}

func (r *lengthReader) Trailers() []headers.HeaderField { return nil }

type closeReader struct {
	t      transport.Transport
	closed bool
}

func (r *closeReader) Next(ctx context.Context) ([]byte, error) {
	if r.closed {
		return nil, transport.ErrClosed
	}
	data, err := r.t.ReadBodyByLength(ctx, -65536)
	if err != nil {
		if errors.Is(err, transport.ErrClosed) {
			r.closed = true
		}
		return nil, err
	}
	if len(data) == 0 {
		r.closed = true
		return nil, transport.ErrClosed
	}
	return data, nil
}

func (r *closeReader) Trailers() []headers.HeaderField { return nil }
