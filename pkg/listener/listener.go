// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package listener implements the per-route Listener of spec.md §4.7: it
// binds one address/port, gates each accepted connection through an
// admission semaphore, and spawns the appropriate Handler. This mirrors
// the accept loop shape of the teacher's pkg/server/tcp.Server, adapted
// to spec's non-blocking-try admission policy instead of an unbounded
// sync.WaitGroup.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/absmach/porty/pkg/config"
	"github.com/absmach/porty/pkg/conn"
	"github.com/absmach/porty/pkg/errcodes"
	"github.com/absmach/porty/pkg/events"
)

// acceptRetryPause is how long the accept loop waits after a transient
// accept error (EMFILE, ECONNABORTED, EAGAIN) before retrying, per spec
// §4.7.
const acceptRetryPause = 50 * time.Millisecond

// Listener accepts connections for one Route and admits them through a
// counting semaphore sized to max_connections.
type Listener struct {
	route        config.Route
	bufferSizeKB int
	logRequests  bool
	sink         events.Sink
	logger       *slog.Logger
	sem          chan struct{}
}

// New creates a Listener for route with the given relay buffer size and
// admission cap. logRequests is the config-level master switch (spec
// §3) gating request-level logging; logger defaults to slog.Default()
// and is used for transient accept errors the sink has no event shape
// for (spec §4.7: "Runtime accept errors ... are logged").
func New(route config.Route, bufferSizeKB, maxConnections int, sink events.Sink, logRequests bool, logger *slog.Logger) *Listener {
	if sink == nil {
		sink = events.NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		route:        route,
		bufferSizeKB: bufferSizeKB,
		logRequests:  logRequests,
		sink:         sink,
		logger:       logger,
		sem:          make(chan struct{}, maxConnections),
	}
}

// Serve binds listenAddr:route.ListenPort and accepts connections until
// ctx is cancelled. Every accept error is treated as transient: it is
// logged and the loop retries after a short pause; no accept error ends
// the loop. A bind failure is
// reported via the sink and returned as a bind_failed error, which the
// Supervisor treats as fatal (spec §7).
func (l *Listener) Serve(ctx context.Context, listenAddr string) error {
	addr := fmt.Sprintf("%s:%d", listenAddr, l.route.ListenPort)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		l.sink.ListenerBindFailed(events.ListenerBindFailed{
			RouteName: l.route.Name,
			BindAddr:  addr,
			Err:       err,
		})
		return errcodes.New(errcodes.BindFailed, l.route.Name, "", err)
	}
	defer ln.Close()

	l.sink.ListenerStarted(events.ListenerStarted{
		RouteName: l.route.Name,
		BindAddr:  addr,
		Mode:      string(l.route.Mode),
	})

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("accept error, retrying",
				slog.String("route", l.route.Name),
				slog.String("error", err.Error()))
			time.Sleep(acceptRetryPause)
			continue
		}

		l.sink.ConnectionAccepted(events.ConnectionAccepted{
			RouteName: l.route.Name,
			PeerAddr:  c.RemoteAddr().String(),
			At:        time.Now(),
		})

		select {
		case l.sem <- struct{}{}:
			go l.handle(ctx, c)
		default:
			l.reject(c)
		}
	}
}

// handle owns the admission permit for the lifetime of the connection
// and releases it on every exit path (spec §3 ownership rules).
func (l *Listener) handle(ctx context.Context, c net.Conn) {
	defer func() { <-l.sem }()

	if l.route.Mode == config.ModeHTTP {
		conn.HandleHTTP(ctx, c, l.route.Name, l.route, l.sink, l.bufferSizeKB, l.logRequests)
		return
	}
	conn.HandleTCP(ctx, c, l.route.Name, l.route, l.sink, l.bufferSizeKB)
}

// reject is the admission-saturated path (spec §5): HTTP mode gets a
// synthetic 503 before close, TCP mode closes immediately. Either way the
// connection gets its single connection_closed event.
func (l *Listener) reject(c net.Conn) {
	peer := c.RemoteAddr().String()
	l.sink.ConnectionRejectedSaturated(events.ConnectionRejectedSaturated{
		RouteName: l.route.Name,
		PeerAddr:  peer,
	})

	status := 0
	if l.route.Mode == config.ModeHTTP {
		conn.WriteError(c, 503, "503 Connection limit reached")
		status = 503
	}
	c.Close()
	l.sink.ConnectionClosed(events.ConnectionClosed{
		RouteName:  l.route.Name,
		PeerAddr:   peer,
		Outcome:    string(errcodes.AdmissionSaturated),
		StatusCode: status,
	})
}
