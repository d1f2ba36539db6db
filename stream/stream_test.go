package stream_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/require"

	"github.com/gosuda/httpstream/connection"
	"github.com/gosuda/httpstream/headers"
	"github.com/gosuda/httpstream/stream"
	"github.com/gosuda/httpstream/transport"
)

func newPair(t *testing.T) (*connection.Connection, *connection.Connection) {
	t.Helper()
	a, b := transport.NewPipePair()
	client := connection.New(transport.NewCodec(a, false), stream.RoleClient)
	server := connection.New(transport.NewCodec(b, false), stream.RoleServer)
	return client, server
}

func readAllChunks(t *testing.T, ctx context.Context, s *stream.Stream) []byte {
	t.Helper()
	var out []byte
	for {
		chunk, err := s.GetNextChunk(ctx)
		if err != nil {
			require.Equal(t, stream.ErrClosed, err)
			return out
		}
		out = append(out, chunk...)
	}
}

func TestClientGetWithChunkedResponse(t *testing.T) {
	client, server := newPair(t)
	ctx := context.Background()

	cs := client.NewStream()
	req := headers.NewHeaders()
	req.Set(headers.PseudoMethod, "GET")
	req.Set(headers.PseudoPath, "/widgets")
	req.Set(headers.PseudoAuthority, "example.test")
	require.NoError(t, cs.WriteHeaders(ctx, req, true))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ss := server.NewStream()
		h, err := ss.GetHeaders(ctx)
		require.NoError(t, err)
		method, _ := h.Get(headers.PseudoMethod)
		require.Equal(t, "GET", method)
		require.Equal(t, stream.StateHalfClosedRemote, ss.State())

		resp := headers.NewHeaders()
		resp.Set(headers.PseudoStatus, "200")
		resp.Set("transfer-encoding", "chunked")
		require.NoError(t, ss.WriteHeaders(ctx, resp, false))
		require.NoError(t, ss.WriteChunk(ctx, []byte("hello "), false))
		require.NoError(t, ss.WriteChunk(ctx, []byte("world"), true))
		require.Equal(t, stream.StateClosed, ss.State())
	}()

	respHeaders, err := cs.GetHeaders(ctx)
	require.NoError(t, err)
	status, _ := respHeaders.Get(headers.PseudoStatus)
	require.Equal(t, "200", status)

	body := readAllChunks(t, ctx, cs)
	require.Equal(t, "hello world", string(body))
	require.Equal(t, stream.StateClosed, cs.State())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server goroutine never finished")
	}
}

func TestClientHeadHasNoResponseBody(t *testing.T) {
	client, server := newPair(t)
	ctx := context.Background()

	cs := client.NewStream()
	req := headers.NewHeaders()
	req.Set(headers.PseudoMethod, "HEAD")
	req.Set(headers.PseudoPath, "/widgets")
	req.Set(headers.PseudoAuthority, "example.test")
	require.NoError(t, cs.WriteHeaders(ctx, req, true))

	go func() {
		ss := server.NewStream()
		_, err := ss.GetHeaders(ctx)
		require.NoError(t, err)
		resp := headers.NewHeaders()
		resp.Set(headers.PseudoStatus, "200")
		resp.Set("content-length", "12345")
		require.NoError(t, ss.WriteHeaders(ctx, resp, true))
	}()

	_, err := cs.GetHeaders(ctx)
	require.NoError(t, err)
	require.Equal(t, stream.StateClosed, cs.State())

	_, err = cs.GetNextChunk(ctx)
	require.Equal(t, stream.ErrClosed, err)
}

func TestServerGetInfersNoBody(t *testing.T) {
	client, server := newPair(t)
	ctx := context.Background()

	cs := client.NewStream()
	req := headers.NewHeaders()
	req.Set(headers.PseudoMethod, "GET")
	req.Set(headers.PseudoPath, "/")
	req.Set(headers.PseudoAuthority, "example.test")

	writeDone := make(chan error, 1)
	go func() { writeDone <- cs.WriteHeaders(ctx, req, true) }()

	ss := server.NewStream()
	h, err := ss.GetHeaders(ctx)
	require.NoError(t, err)
	path, _ := h.Get(headers.PseudoPath)
	require.Equal(t, "/", path)
	require.Equal(t, stream.StateHalfClosedRemote, ss.State())

	require.NoError(t, <-writeDone)
}

func TestClientPostWithContentLength(t *testing.T) {
	client, server := newPair(t)
	ctx := context.Background()

	cs := client.NewStream()
	req := headers.NewHeaders()
	req.Set(headers.PseudoMethod, "POST")
	req.Set(headers.PseudoPath, "/widgets")
	req.Set(headers.PseudoAuthority, "example.test")
	req.Set("content-length", "5")
	require.NoError(t, cs.WriteHeaders(ctx, req, false))
	require.NoError(t, cs.WriteChunk(ctx, []byte("abcde"), true))

	ss := server.NewStream()
	h, err := ss.GetHeaders(ctx)
	require.NoError(t, err)
	cl, _ := h.Get("content-length")
	require.Equal(t, "5", cl)

	body := readAllChunks(t, ctx, ss)
	require.Equal(t, "abcde", string(body))
	require.Equal(t, stream.StateHalfClosedRemote, ss.State())
}

func TestPipelineOrderingAcrossTwoStreams(t *testing.T) {
	client, server := newPair(t)
	ctx := context.Background()

	var order []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2; i++ {
			ss := server.NewStream()
			h, err := ss.GetHeaders(ctx)
			require.NoError(t, err)
			path, _ := h.Get(headers.PseudoPath)
			order = append(order, path)

			resp := headers.NewHeaders()
			resp.Set(headers.PseudoStatus, "200")
			require.NoError(t, ss.WriteHeaders(ctx, resp, true))
		}
	}()

	a := client.NewStream()
	reqA := headers.NewHeaders()
	reqA.Set(headers.PseudoMethod, "GET")
	reqA.Set(headers.PseudoPath, "/a")
	reqA.Set(headers.PseudoAuthority, "example.test")
	require.NoError(t, a.WriteHeaders(ctx, reqA, true))

	b := client.NewStream()
	reqB := headers.NewHeaders()
	reqB.Set(headers.PseudoMethod, "GET")
	reqB.Set(headers.PseudoPath, "/b")
	reqB.Set(headers.PseudoAuthority, "example.test")
	require.NoError(t, b.WriteHeaders(ctx, reqB, true))

	_, err := a.GetHeaders(ctx)
	require.NoError(t, err)
	_, err = b.GetHeaders(ctx)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server goroutine never finished")
	}
	require.Equal(t, []string{"/a", "/b"}, order)
}

func TestServerCloseDelimitedFallbackBody(t *testing.T) {
	client, server := newPair(t)
	ctx := context.Background()

	cs := client.NewStream()
	req := headers.NewHeaders()
	req.Set(headers.PseudoMethod, "GET")
	req.Set(headers.PseudoPath, "/")
	req.Set(headers.PseudoAuthority, "example.test")
	require.NoError(t, cs.WriteHeaders(ctx, req, true))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ss := server.NewStream()
		_, err := ss.GetHeaders(ctx)
		require.NoError(t, err)

		resp := headers.NewHeaders()
		resp.Set(headers.PseudoStatus, "200")
		require.NoError(t, ss.WriteHeaders(ctx, resp, false))
		require.NoError(t, ss.WriteChunk(ctx, []byte("legacy body"), true))
		server.Close()
	}()

	respHeaders, err := cs.GetHeaders(ctx)
	require.NoError(t, err)
	_ = respHeaders

	var body []byte
	for {
		chunk, err := cs.GetNextChunk(ctx)
		if err != nil {
			require.True(t, err == stream.ErrClosed || err == io.EOF)
			break
		}
		body = append(body, chunk...)
	}
	require.Equal(t, "legacy body", string(body))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server goroutine never finished")
	}
}
