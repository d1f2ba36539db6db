// Package transport defines the wire-level collaborators an HTTP/1.x
// stream consumes but does not implement itself: the request/status
// line codec, header field iteration, chunked/length body I/O, and
// half-close of the underlying socket.
//
// The stream state machine (package stream) never touches bytes
// directly; it composes these operations. Package transport ships one
// production implementation (Codec, over net.Conn) and, in
// transport/pipe_test_helper.go, an in-memory pair for deterministic
// tests.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned when the peer has closed its side of the
// connection (spec EPIPE).
var ErrClosed = errors.New("transport: connection closed")

// ErrTimeout is returned when a context deadline elapsed before the
// operation completed (spec ETIMEDOUT).
var ErrTimeout = errors.New("transport: i/o timeout")

// Version is the peer's declared HTTP version.
type Version int

const (
	HTTP10 Version = iota
	HTTP11
)

func (v Version) String() string {
	if v == HTTP10 {
		return "HTTP/1.0"
	}
	return "HTTP/1.1"
}

// HeaderField is a single (name, value) pair as read off the wire,
// prior to any casing or pseudo-header rewriting.
type HeaderField struct {
	Name  string
	Value string
}

// Transport is the set of line/header/body primitives a Stream needs.
// The operations named in the specification's external interfaces
// section, plus IsTLS for choosing ":scheme".
type Transport interface {
	// ReadRequestLine reads "METHOD target HTTP/x.y".
	ReadRequestLine(ctx context.Context) (method, target string, version Version, err error)
	// ReadStatusLine reads "HTTP/x.y status reason".
	ReadStatusLine(ctx context.Context) (version Version, status int, reason string, err error)
	// NextHeader returns the next header field, or ("", "", nil) at
	// the blank-line terminator.
	NextHeader(ctx context.Context) (name, value string, err error)

	// ReadBodyChunk reads one RFC 7230 chunk. ok is false at the
	// zero-length terminator chunk.
	ReadBodyChunk(ctx context.Context) (data []byte, ok bool, err error)
	// ReadBodyByLength reads up to maxBytes bytes of a length-framed
	// body. A negative maxBytes means "up to |maxBytes| bytes,
	// return as soon as any data is available".
	ReadBodyByLength(ctx context.Context, maxBytes int64) (data []byte, err error)

	WriteRequestLine(ctx context.Context, method, target string, version Version) error
	WriteStatusLine(ctx context.Context, version Version, status int, reason string) error
	WriteHeader(ctx context.Context, name, value string) error
	WriteHeadersDone(ctx context.Context) error

	WriteBodyChunk(ctx context.Context, data []byte) error
	WriteBodyLastChunk(ctx context.Context) error
	WriteBodyPlain(ctx context.Context, data []byte) error

	// ShutdownWrite half-closes the local write side of the socket.
	ShutdownWrite() error
	// EOFWrite reports whether the local write side is already
	// known to be closed (so callers can fail fast with ErrClosed
	// instead of attempting a doomed write).
	EOFWrite() bool

	// IsTLS reports whether the underlying socket is TLS-secured,
	// used to pick ":scheme" on the server side.
	IsTLS() bool
}
