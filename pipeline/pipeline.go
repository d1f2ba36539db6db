// Package pipeline implements the per-connection FIFO coordinator
// that serializes request transmission and preserves response read
// order for HTTP/1.1 pipelining — one writer at a time, responses
// delivered in issue order.
package pipeline

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/gosuda/httpstream/metrics"
)

// ErrClosed is returned by Acquire once the pipeline has been torn
// down (connection gone).
var ErrClosed = errors.New("pipeline: closed")

// Entry is the opaque identity pushed onto the FIFO. Callers pass
// their own stream value (a pointer makes a fine identity) and get it
// back from Head/PopHead; the pipeline never dereferences it.
type Entry any

// Pipeline is the FIFO of active streams plus the request lock
// (req_locked/req_cond in the specification). The lock is a
// non-reentrant mutex built from a buffered channel rather than
// sync.Mutex so acquisition composes with context deadlines — a
// sync.Mutex has no timed or cancellable Lock.
type Pipeline struct {
	mu    sync.Mutex
	queue *list.List // of Entry, head = oldest

	lock chan struct{} // capacity 1; a token held means req_locked

	closed  bool
	closeCh chan struct{}
}

// New returns an empty, unlocked pipeline.
func New() *Pipeline {
	p := &Pipeline{
		queue:   list.New(),
		lock:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
	p.lock <- struct{}{} // token present = lock is free
	return p
}

// Acquire blocks until the request lock is free or ctx is done,
// whichever comes first. On success the caller holds the lock and
// must call Release exactly once.
func (p *Pipeline) Acquire(ctx context.Context) error {
	select {
	case <-p.lock:
		return nil
	default:
	}
	select {
	case <-p.lock:
		return nil
	case <-p.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the request lock for the next waiter.
func (p *Pipeline) Release() {
	select {
	case p.lock <- struct{}{}:
	default:
		// Release called without a matching Acquire is a caller bug;
		// panicking would be too strict for a best-effort shutdown
		// path, so this is silently idempotent instead.
	}
}

// Push enqueues entry at the tail — called once write_headers has
// acquired the request lock and committed to sending, so FIFO order
// matches request-issue order.
func (p *Pipeline) Push(entry Entry) {
	p.mu.Lock()
	p.queue.PushBack(entry)
	depth := p.queue.Len()
	p.mu.Unlock()
	metrics.PipelineDepth.Observe(float64(depth))
}

// Head returns the entry at the front of the FIFO, or nil if empty.
func (p *Pipeline) Head() Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() == 0 {
		return nil
	}
	return p.queue.Front().Value
}

// IsHead reports whether entry currently occupies the front of the
// FIFO — the head-of-pipeline check every order-sensitive socket I/O
// must pass before proceeding.
func (p *Pipeline) IsHead(entry Entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() == 0 {
		return false
	}
	return p.queue.Front().Value == entry
}

// PopHead removes entry from the front of the FIFO. It is a no-op
// (returns false) if entry is not currently the head, so a caller
// racing a concurrent dequeue never double-pops.
func (p *Pipeline) PopHead(entry Entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() == 0 {
		return false
	}
	front := p.queue.Front()
	if front.Value != entry {
		return false
	}
	p.queue.Remove(front)
	return true
}

// Len reports the number of active streams queued on this pipeline.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Close wakes every Acquire waiter with ErrClosed. Idempotent.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.closeCh)
}
