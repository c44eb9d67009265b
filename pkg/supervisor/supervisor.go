// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package supervisor fans a validated Config out into one Listener per
// enabled Route and runs them concurrently, mirroring the teacher's use
// of golang.org/x/sync/errgroup in cmd/main.go to run multiple protocol
// servers side by side under one cancellation scope.
package supervisor

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/absmach/porty/pkg/config"
	"github.com/absmach/porty/pkg/events"
	"github.com/absmach/porty/pkg/listener"
)

// Run validates cfg, builds a Listener for every enabled route, and
// blocks until ctx is cancelled or any Listener returns a fatal error
// (bind_failed). The first fatal error cancels the group's context,
// which in turn unblocks every other Listener's accept loop. logger
// defaults to slog.Default() and is threaded down to every Listener for
// the runtime accept errors spec §4.7 requires to be logged.
func Run(ctx context.Context, cfg config.Config, sink events.Sink, logger *slog.Logger) error {
	if sink == nil {
		sink = events.NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()

	routes := cfg.EnabledRoutes()

	g, gctx := errgroup.WithContext(ctx)
	for _, route := range routes {
		route := route
		l := listener.New(route, cfg.BufferSizeKB, cfg.MaxConnections, sink, cfg.LogRequests, logger)
		g.Go(func() error {
			return l.Serve(gctx, cfg.ListenAddr)
		})
	}

	return g.Wait()
}
