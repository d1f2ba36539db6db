package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/valyala/bytebufferpool"
)

// Codec is the production Transport: RFC 7230 request/status lines,
// header fields, and chunked/length bodies read and written over a
// net.Conn via buffered I/O. One Codec is shared by every Stream on a
// connection, matching the "socket is shared across all streams"
// resource model.
type Codec struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	writeMu sync.Mutex // guards eofWrite; taken only by ShutdownWrite and EOFWrite

	scratch sync.Pool // unused; chunk writes draw from bytebufferpool's package-level pool

	eofWrite bool
	isTLS    bool
}

// NewCodec wraps conn. isTLS is sampled once at construction (the
// stream only ever asks at header-collection time, before any
// renegotiation could matter for this library's purposes).
func NewCodec(conn net.Conn, isTLS bool) *Codec {
	return &Codec{
		conn:  conn,
		br:    bufio.NewReaderSize(conn, 4096),
		bw:    bufio.NewWriterSize(conn, 4096),
		isTLS: isTLS,
	}
}

func (c *Codec) withDeadline(ctx context.Context, fn func() error) error {
	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(dl)
		defer c.conn.SetDeadline(time.Time{})
	}
	err := fn()
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return ErrTimeout
	}
	if isClosedConnError(err) {
		return ErrClosed
	}
	return err
}

func isClosedConnError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "closed") || strings.Contains(msg, "EOF") || strings.Contains(msg, "reset by peer")
}

func (c *Codec) readLine(ctx context.Context) (line string, err error) {
	err = c.withDeadline(ctx, func() error {
		raw, e := c.br.ReadString('\n')
		if e != nil {
			return e
		}
		line = strings.TrimRight(raw, "\r\n")
		return nil
	})
	return line, err
}

func (c *Codec) ReadRequestLine(ctx context.Context) (method, target string, version Version, err error) {
	line, err := c.readLine(ctx)
	if err != nil {
		return "", "", 0, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("transport: malformed request line %q", line)
	}
	v, err := parseVersion(parts[2])
	if err != nil {
		return "", "", 0, err
	}
	return parts[0], parts[1], v, nil
}

func (c *Codec) ReadStatusLine(ctx context.Context) (version Version, status int, reason string, err error) {
	line, err := c.readLine(ctx)
	if err != nil {
		return 0, 0, "", err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, 0, "", fmt.Errorf("transport: malformed status line %q", line)
	}
	v, err := parseVersion(parts[0])
	if err != nil {
		return 0, 0, "", err
	}
	status, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, "", fmt.Errorf("transport: malformed status code %q", parts[1])
	}
	reason = ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	return v, status, reason, nil
}

func parseVersion(tok string) (Version, error) {
	switch tok {
	case "HTTP/1.0":
		return HTTP10, nil
	case "HTTP/1.1":
		return HTTP11, nil
	default:
		return 0, fmt.Errorf("transport: unsupported version %q", tok)
	}
}

func (c *Codec) NextHeader(ctx context.Context) (name, value string, err error) {
	line, err := c.readLine(ctx)
	if err != nil {
		return "", "", err
	}
	if line == "" {
		return "", "", nil
	}
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("transport: malformed header line %q", line)
	}
	name = line[:idx]
	value = strings.TrimSpace(line[idx+1:])
	return name, value, nil
}

func (c *Codec) ReadBodyChunk(ctx context.Context) (data []byte, ok bool, err error) {
	var sizeLine string
	err = c.withDeadline(ctx, func() error {
		sizeLine, err = c.readChunkSizeLine()
		return err
	})
	if err != nil {
		return nil, false, err
	}
	size, perr := strconv.ParseInt(strings.TrimSpace(strings.SplitN(sizeLine, ";", 2)[0]), 16, 64)
	if perr != nil {
		return nil, false, fmt.Errorf("transport: malformed chunk size %q", sizeLine)
	}
	if size == 0 {
		// the trailer fields (if any) and the blank line that ends
		// them are left for the caller to read via NextHeader.
		return nil, false, nil
	}
	buf := make([]byte, size)
	err = c.withDeadline(ctx, func() error {
		_, e := readFull(c.br, buf)
		if e != nil {
			return e
		}
		// consume trailing CRLF
		_, e = c.br.Discard(2)
		return e
	})
	if err != nil {
		return nil, false, err
	}
	return buf, true, nil
}

func (c *Codec) readChunkSizeLine() (string, error) {
	raw, err := c.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(raw, "\r\n"), nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *Codec) ReadBodyByLength(ctx context.Context, maxBytes int64) (data []byte, err error) {
	n := maxBytes
	wantAny := false
	if n < 0 {
		n = -n
		wantAny = true
	}
	buf := make([]byte, n)
	err = c.withDeadline(ctx, func() error {
		if wantAny {
			m, e := c.br.Read(buf)
			buf = buf[:m]
			return e
		}
		got, e := readFull(c.br, buf)
		buf = buf[:got]
		return e
	})
	if err != nil && len(buf) == 0 {
		return nil, err
	}
	return buf, nil
}

func (c *Codec) WriteRequestLine(ctx context.Context, method, target string, version Version) error {
	return c.withDeadline(ctx, func() error {
		_, err := fmt.Fprintf(c.bw, "%s %s %s\r\n", method, target, version)
		return err
	})
}

func (c *Codec) WriteStatusLine(ctx context.Context, version Version, status int, reason string) error {
	return c.withDeadline(ctx, func() error {
		_, err := fmt.Fprintf(c.bw, "%s %d %s\r\n", version, status, reason)
		return err
	})
}

func (c *Codec) WriteHeader(ctx context.Context, name, value string) error {
	return c.withDeadline(ctx, func() error {
		_, err := fmt.Fprintf(c.bw, "%s: %s\r\n", name, value)
		return err
	})
}

func (c *Codec) WriteHeadersDone(ctx context.Context) error {
	return c.withDeadline(ctx, func() error {
		if _, err := c.bw.WriteString("\r\n"); err != nil {
			return err
		}
		return c.bw.Flush()
	})
}

func (c *Codec) WriteBodyChunk(ctx context.Context, data []byte) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	fmt.Fprintf(buf, "%x\r\n", len(data))
	buf.Write(data)
	buf.WriteString("\r\n")
	return c.withDeadline(ctx, func() error {
		if _, err := c.bw.Write(buf.B); err != nil {
			return err
		}
		return c.bw.Flush()
	})
}

func (c *Codec) WriteBodyLastChunk(ctx context.Context) error {
	return c.withDeadline(ctx, func() error {
		if _, err := c.bw.WriteString("0\r\n"); err != nil {
			return err
		}
		return c.bw.Flush()
	})
}

func (c *Codec) WriteBodyPlain(ctx context.Context, data []byte) error {
	return c.withDeadline(ctx, func() error {
		if _, err := c.bw.Write(data); err != nil {
			return err
		}
		return c.bw.Flush()
	})
}

func (c *Codec) ShutdownWrite() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.eofWrite {
		return nil
	}
	c.eofWrite = true
	if tc, ok := c.conn.(interface{ CloseWrite() error }); ok {
		if err := tc.CloseWrite(); err != nil {
			log.Debug().Err(err).Msg("transport: half-close write side failed")
			return err
		}
		return nil
	}
	return c.conn.Close()
}

func (c *Codec) EOFWrite() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.eofWrite
}

func (c *Codec) IsTLS() bool {
	return c.isTLS
}

// Close closes the underlying connection outright (both directions).
func (c *Codec) Close() error {
	return c.conn.Close()
}

var _ Transport = (*Codec)(nil)
