// Command httpstream-proxy is a small HTTP/1.1 pipelining reverse
// proxy built directly on the stream state machine, plus a chi debug
// endpoint for inspecting live connections.
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/httpstream/connection"
	"github.com/gosuda/httpstream/stream"
	"github.com/gosuda/httpstream/transport"
)

var rootCmd = &cobra.Command{
	Use:   "httpstream-proxy",
	Short: "Pipelining HTTP/1.1 reverse proxy built on the httpstream state machine",
	RunE:  runProxy,
}

var (
	flagListen  string
	flagUpstream string
	flagDebug   string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagListen, "listen", ":8081", "address to accept client connections on")
	flags.StringVar(&flagUpstream, "upstream", "127.0.0.1:8080", "address to forward every request to")
	flags.StringVar(&flagDebug, "debug-listen", ":8082", "address for the chi debug/admin endpoint")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("httpstream-proxy: fatal")
	}
}

// registry tracks live proxied connections for the debug endpoint.
type registry struct {
	mu    sync.Mutex
	conns map[string]*connection.Connection
}

func newRegistry() *registry {
	return &registry{conns: make(map[string]*connection.Connection)}
}

func (r *registry) add(traceID string, c *connection.Connection) {
	r.mu.Lock()
	r.conns[traceID] = c
	r.mu.Unlock()
}

func (r *registry) remove(traceID string) {
	r.mu.Lock()
	delete(r.conns, traceID)
	r.mu.Unlock()
}

func (r *registry) snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.conns))
	for id, c := range r.conns {
		out[id] = c.PendingStreams()
	}
	return out
}

func runProxy(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", flagListen)
	if err != nil {
		return err
	}
	defer ln.Close()

	reg := newRegistry()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return acceptLoop(gctx, ln, reg) })
	g.Go(func() error { return serveDebug(gctx, reg) })

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		select {
		case <-sig:
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	log.Info().Str("listen", flagListen).Str("upstream", flagUpstream).Msg("httpstream-proxy: listening")
	return g.Wait()
}

func acceptLoop(ctx context.Context, ln net.Listener, reg *registry) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		traceID := uuid.NewString()
		go handleConnection(ctx, traceID, conn, reg)
	}
}

func handleConnection(ctx context.Context, traceID string, conn net.Conn, reg *registry) {
	defer conn.Close()

	upstream, err := net.Dial("tcp", flagUpstream)
	if err != nil {
		log.Error().Str("trace_id", traceID).Err(err).Msg("proxy: upstream dial failed")
		return
	}
	defer upstream.Close()

	clientSide := connection.New(transport.NewCodec(conn, false), stream.RoleServer)
	upstreamSide := connection.New(transport.NewCodec(upstream, false), stream.RoleClient)
	reg.add(traceID, clientSide)
	defer reg.remove(traceID)

	for {
		in := clientSide.NewStream()
		h, err := in.GetHeaders(ctx)
		if err != nil {
			return
		}

		// A request already known to carry no body (its stream is
		// half-closed-remote after the headers) is forwarded as
		// complete, since there is no body to frame.
		noBody := in.State() == stream.StateHalfClosedRemote
		out := upstreamSide.NewStream()
		if err := out.WriteHeaders(ctx, h, noBody); err != nil {
			log.Error().Str("trace_id", traceID).Err(err).Msg("proxy: upstream write_headers failed")
			return
		}
		if !noBody {
			if err := pumpBody(ctx, in, out); err != nil {
				return
			}
		}

		respHeaders, err := out.GetHeaders(ctx)
		if err != nil {
			log.Error().Str("trace_id", traceID).Err(err).Msg("proxy: upstream response headers failed")
			return
		}
		if err := in.WriteHeaders(ctx, respHeaders, false); err != nil {
			return
		}
		if err := pumpBody(ctx, out, in); err != nil {
			return
		}
	}
}

// pumpBody relays every body chunk of src onto dst, translating the
// source's normal end-of-body ErrClosed into dst's final endStream
// write.
func pumpBody(ctx context.Context, src, dst *stream.Stream) error {
	for {
		chunk, err := src.GetNextChunk(ctx)
		if err != nil {
			if err == stream.ErrClosed {
				return dst.WriteChunk(ctx, nil, true)
			}
			return err
		}
		if err := dst.WriteChunk(ctx, chunk, false); err != nil {
			return err
		}
	}
}

func serveDebug(ctx context.Context, reg *registry) error {
	r := chi.NewRouter()
	r.Get("/connections", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reg.snapshot())
	})
	srv := &http.Server{Addr: flagDebug, Handler: r}

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
