package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/require"

	"github.com/gosuda/httpstream/headers"
	"github.com/gosuda/httpstream/stream"
)

// TestShutdownClientIdleNeverPanics is a regression test: a client
// stream that has not written anything yet must still be shuttable
// down, which previously hit the client/idle invariant panic inside
// GetHeaders via Shutdown's drain path.
func TestShutdownClientIdleNeverPanics(t *testing.T) {
	client, _ := newPair(t)

	cs := client.NewStream()
	require.Equal(t, stream.StateIdle, cs.State())

	cs.Shutdown()
	require.Equal(t, stream.StateClosed, cs.State())
}

func TestShutdownDrainsUnreadResponseBody(t *testing.T) {
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
		_, err := ss.GetHeaders(ctx)
		require.NoError(t, err)
		resp := headers.NewHeaders()
		resp.Set(headers.PseudoStatus, "200")
		resp.Set("content-length", "5")
		require.NoError(t, ss.WriteHeaders(ctx, resp, false))
		require.NoError(t, ss.WriteChunk(ctx, []byte("abcde"), true))
	}()

	// Read the response headers but abandon the stream before
	// consuming the body; Shutdown must drain it rather than leave
	// the socket mid-body.
	_, err := cs.GetHeaders(ctx)
	require.NoError(t, err)

	cs.Shutdown()
	require.Equal(t, stream.StateClosed, cs.State())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server goroutine never finished")
	}
}

func TestShutdownSynthesizesTerminalLengthBody(t *testing.T) {
	client, server := newPair(t)
	ctx := context.Background()

	cs := client.NewStream()
	req := headers.NewHeaders()
	req.Set(headers.PseudoMethod, "GET")
	req.Set(headers.PseudoPath, "/widgets")
	req.Set(headers.PseudoAuthority, "example.test")
	require.NoError(t, cs.WriteHeaders(ctx, req, true))

	ss := server.NewStream()
	_, err := ss.GetHeaders(ctx)
	require.NoError(t, err)

	resp := headers.NewHeaders()
	resp.Set(headers.PseudoStatus, "200")
	resp.Set("content-length", "10")
	require.NoError(t, ss.WriteHeaders(ctx, resp, false))
	require.NoError(t, ss.WriteChunk(ctx, []byte("abcde"), false)) // only 5 of 10 declared bytes

	ss.Shutdown()
	require.Equal(t, stream.StateClosed, ss.State())

	body := readAllChunks(t, ctx, cs)
	require.Equal(t, 10, len(body))
	require.Equal(t, "abcde", string(body[:5]))
}
