package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// ErrPipeClosed is returned by bufferedPipeConn once either end has
// closed.
var ErrPipeClosed = errors.New("transport: pipe closed")

// bufferedPipeConn is an in-memory net.Conn built from buffered
// channels rather than net.Pipe's synchronous rendezvous, so a writer
// is never blocked waiting for a reader to catch up (within the
// buffer). Adapted from a buffered pipe stream design for in-process
// session testing.
type bufferedPipeConn struct {
	readCh      <-chan []byte
	writeCh     chan<- []byte
	closeOnce   sync.Once
	closeCh     chan struct{}
	peerCloseCh <-chan struct{}

	mu            sync.Mutex
	closed        bool
	readBuf       []byte
	readDeadline  time.Time
	writeDeadline time.Time
}

// NewPipePair returns two connected net.Conn values; bytes written to
// one are readable from the other.
func NewPipePair() (a, b net.Conn) {
	ch1 := make(chan []byte, 64)
	ch2 := make(chan []byte, 64)
	close1 := make(chan struct{})
	close2 := make(chan struct{})

	left := &bufferedPipeConn{readCh: ch1, writeCh: ch2, closeCh: close1, peerCloseCh: close2}
	right := &bufferedPipeConn{readCh: ch2, writeCh: ch1, closeCh: close2, peerCloseCh: close1}
	return left, right
}

func (p *bufferedPipeConn) Read(b []byte) (int, error) {
	p.mu.Lock()
	deadline := p.readDeadline
	if len(p.readBuf) > 0 {
		n := copy(b, p.readBuf)
		p.readBuf = p.readBuf[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	var timeoutCh <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			return 0, ErrTimeout
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case <-p.closeCh:
		return 0, io.EOF
	default:
	}

	select {
	case data, ok := <-p.readCh:
		if !ok {
			return 0, io.EOF
		}
		n := copy(b, data)
		if n < len(data) {
			p.mu.Lock()
			p.readBuf = data[n:]
			p.mu.Unlock()
		}
		return n, nil
	case <-p.peerCloseCh:
		select {
		case data, ok := <-p.readCh:
			if ok {
				n := copy(b, data)
				if n < len(data) {
					p.mu.Lock()
					p.readBuf = data[n:]
					p.mu.Unlock()
				}
				return n, nil
			}
		default:
		}
		return 0, io.EOF
	case <-p.closeCh:
		return 0, io.EOF
	case <-timeoutCh:
		return 0, ErrTimeout
	}
}

func (p *bufferedPipeConn) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPipeClosed
	}
	deadline := p.writeDeadline
	p.mu.Unlock()

	data := make([]byte, len(b))
	copy(data, b)

	var timeoutCh <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			return 0, ErrTimeout
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timeoutCh = t.C
	}

	// Check for a closed end first: the send below may also be ready
	// (buffer space left), and select picks among ready cases at random.
	select {
	case <-p.closeCh:
		return 0, ErrPipeClosed
	case <-p.peerCloseCh:
		return 0, ErrPipeClosed
	default:
	}

	select {
	case <-p.closeCh:
		return 0, ErrPipeClosed
	case <-p.peerCloseCh:
		return 0, ErrPipeClosed
	case p.writeCh <- data:
		return len(b), nil
	case <-timeoutCh:
		return 0, ErrTimeout
	}
}

func (p *bufferedPipeConn) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.closeCh)
	})
	return nil
}

func (p *bufferedPipeConn) CloseWrite() error { return p.Close() }

func (p *bufferedPipeConn) LocalAddr() net.Addr  { return pipeAddr{} }
func (p *bufferedPipeConn) RemoteAddr() net.Addr { return pipeAddr{} }

func (p *bufferedPipeConn) SetDeadline(t time.Time) error {
	p.mu.Lock()
	p.readDeadline, p.writeDeadline = t, t
	p.mu.Unlock()
	return nil
}

func (p *bufferedPipeConn) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	p.readDeadline = t
	p.mu.Unlock()
	return nil
}

func (p *bufferedPipeConn) SetWriteDeadline(t time.Time) error {
	p.mu.Lock()
	p.writeDeadline = t
	p.mu.Unlock()
	return nil
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

var _ net.Conn = (*bufferedPipeConn)(nil)
