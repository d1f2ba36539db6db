package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/require"
)

func TestAcquireReleaseSerializes(t *testing.T) {
	p := New()
	ctx := context.Background()

	require.NoError(t, p.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, p.Acquire(ctx))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire succeeded while lock held")
	case <-time.After(20 * time.Millisecond):
	}

	p.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never unblocked after Release")
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	p := New()
	require.NoError(t, p.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Acquire(ctx)
	require.Error(t, err)
}

func TestCloseWakesWaiters(t *testing.T) {
	p := New()
	require.NoError(t, p.Acquire(context.Background()))

	errCh := make(chan error, 1)
	go func() { errCh <- p.Acquire(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	p.Close()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake blocked Acquire")
	}
}

func TestFIFOOrder(t *testing.T) {
	p := New()
	a, b, c := "a", "b", "c"
	p.Push(a)
	p.Push(b)
	p.Push(c)

	require.True(t, p.IsHead(a))
	require.True(t, p.PopHead(a))
	require.True(t, p.IsHead(b))

	require.False(t, p.PopHead(c)) // not head, rejected
	require.True(t, p.IsHead(b))   // unchanged

	require.True(t, p.PopHead(b))
	require.True(t, p.IsHead(c))
	require.Equal(t, 1, p.Len())
}
