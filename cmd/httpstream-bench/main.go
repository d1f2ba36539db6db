// Command httpstream-bench drives a client/server pair of streams over
// an in-memory pipe (or a real TCP address) and reports request
// throughput, mirroring the connection/pipeline/stream wiring a real
// caller would do.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/httpstream/connection"
	"github.com/gosuda/httpstream/headers"
	"github.com/gosuda/httpstream/stream"
	"github.com/gosuda/httpstream/transport"
)

var rootCmd = &cobra.Command{
	Use:   "httpstream-bench",
	Short: "Benchmark the httpstream request/response state machine",
	RunE:  runBench,
}

var (
	flagAddr     string
	flagRequests int
	flagBody     int
	flagDuration time.Duration
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagAddr, "addr", "", "listen on this TCP address and connect to it instead of using an in-memory pipe")
	flags.IntVar(&flagRequests, "requests", 10000, "number of requests to issue, one after another")
	flags.IntVar(&flagBody, "body", 64, "response body size in bytes")
	flags.DurationVar(&flagDuration, "timeout", 30*time.Second, "overall deadline for the run")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("httpstream-bench: fatal")
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), flagDuration)
	defer cancel()

	var clientConn, serverConn net.Conn
	if flagAddr != "" {
		ln, err := net.Listen("tcp", flagAddr)
		if err != nil {
			return err
		}
		defer ln.Close()
		acceptCh := make(chan net.Conn, 1)
		go func() {
			c, err := ln.Accept()
			if err != nil {
				log.Error().Err(err).Msg("bench: accept failed")
				return
			}
			acceptCh <- c
		}()
		clientConn, err = net.Dial("tcp", ln.Addr().String())
		if err != nil {
			return err
		}
		serverConn = <-acceptCh
	} else {
		clientConn, serverConn = transport.NewPipePair()
	}

	clientConnObj := connection.New(transport.NewCodec(clientConn, false), stream.RoleClient)
	serverConnObj := connection.New(transport.NewCodec(serverConn, false), stream.RoleServer)

	body := make([]byte, flagBody)

	var served atomic.Int64
	go serveLoop(ctx, serverConnObj, body, &served)

	start := time.Now()
	for i := 0; i < flagRequests; i++ {
		if err := issueOne(ctx, clientConnObj, i); err != nil {
			log.Error().Err(err).Int("request", i).Msg("bench: request failed")
			break
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("served=%d elapsed=%s rps=%.1f\n", served.Load(), elapsed, float64(flagRequests)/elapsed.Seconds())
	return nil
}

func issueOne(ctx context.Context, conn *connection.Connection, n int) error {
	s := conn.NewStream()
	h := headers.NewHeaders()
	h.Set(headers.PseudoMethod, "GET")
	h.Set(headers.PseudoPath, fmt.Sprintf("/bench/%d", n))
	h.Set(headers.PseudoAuthority, "bench.local")
	if err := s.WriteHeaders(ctx, h, true); err != nil {
		return err
	}
	if _, err := s.GetHeaders(ctx); err != nil {
		return err
	}
	for {
		if _, err := s.GetNextChunk(ctx); err != nil {
			if err == stream.ErrClosed {
				return nil
			}
			return err
		}
	}
}

func serveLoop(ctx context.Context, conn *connection.Connection, body []byte, served *atomic.Int64) {
	for {
		s := conn.NewStream()
		if _, err := s.GetHeaders(ctx); err != nil {
			return
		}
		for {
			if _, err := s.GetNextChunk(ctx); err != nil {
				break
			}
		}
		resp := headers.NewHeaders()
		resp.Set(headers.PseudoStatus, "200")
		resp.Set("content-length", fmt.Sprintf("%d", len(body)))
		if err := s.WriteHeaders(ctx, resp, false); err != nil {
			return
		}
		if err := s.WriteChunk(ctx, body, true); err != nil {
			return
		}
		served.Add(1)
	}
}
