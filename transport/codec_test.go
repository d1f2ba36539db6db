package transport_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/crlib/testutils/require"

	"github.com/gosuda/httpstream/transport"
)

func TestCodecRequestLineRoundTrip(t *testing.T) {
	a, b := transport.NewPipePair()
	defer a.Close()
	defer b.Close()

	client := transport.NewCodec(a, false)
	server := transport.NewCodec(b, false)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		// Header-section writes are buffered until WriteHeadersDone
		// flushes them, so end the section to put the line on the pipe.
		if err := client.WriteRequestLine(ctx, "GET", "/widgets", transport.HTTP11); err != nil {
			errCh <- err
			return
		}
		errCh <- client.WriteHeadersDone(ctx)
	}()

	method, target, version, err := server.ReadRequestLine(ctx)
	require.NoError(t, err)
	require.Equal(t, "GET", method)
	require.Equal(t, "/widgets", target)
	require.Equal(t, transport.HTTP11, version)
	require.NoError(t, <-errCh)
}

func TestCodecHeaderFieldsThenBlankLine(t *testing.T) {
	a, b := transport.NewPipePair()
	defer a.Close()
	defer b.Close()

	client := transport.NewCodec(a, false)
	server := transport.NewCodec(b, false)
	ctx := context.Background()

	go func() {
		client.WriteHeader(ctx, "Accept", "*/*")
		client.WriteHeader(ctx, "Host", "example.test")
		client.WriteHeadersDone(ctx)
	}()

	name, value, err := server.NextHeader(ctx)
	require.NoError(t, err)
	require.Equal(t, "Accept", name)
	require.Equal(t, "*/*", value)

	name, value, err = server.NextHeader(ctx)
	require.NoError(t, err)
	require.Equal(t, "Host", name)
	require.Equal(t, "example.test", value)

	name, _, err = server.NextHeader(ctx)
	require.NoError(t, err)
	require.Equal(t, "", name)
}

func TestCodecChunkedBodyRoundTrip(t *testing.T) {
	a, b := transport.NewPipePair()
	defer a.Close()
	defer b.Close()

	client := transport.NewCodec(a, false)
	server := transport.NewCodec(b, false)
	ctx := context.Background()

	go func() {
		client.WriteBodyChunk(ctx, []byte("hello"))
		client.WriteBodyLastChunk(ctx)
	}()

	data, ok, err := server.ReadBodyChunk(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", string(data))

	_, ok, err = server.ReadBodyChunk(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCodecShutdownWriteThenEOFWrite(t *testing.T) {
	a, b := transport.NewPipePair()
	defer a.Close()
	defer b.Close()

	client := transport.NewCodec(a, false)
	require.False(t, client.EOFWrite())
	require.NoError(t, client.ShutdownWrite())
	require.True(t, client.EOFWrite())
}
