// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Command porty-production runs the proxy core alongside a metrics
// server and a health/readiness server, adapted from the teacher's
// cmd/production/main.go: same setupLogger/startMetricsServer/
// startHealthServer shape, pool/breaker/ratelimit wiring dropped since
// spec.md's Non-goals exclude connection pooling and rate limiting.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/absmach/porty/examples/simple"
	"github.com/absmach/porty/pkg/config"
	"github.com/absmach/porty/pkg/events"
	"github.com/absmach/porty/pkg/health"
	"github.com/absmach/porty/pkg/metrics"
	"github.com/absmach/porty/pkg/supervisor"
)

// prodEnv holds the observability-layer settings on top of the core
// config.Config fields, mirroring the teacher's production Config
// struct's "Observability" section.
type prodEnv struct {
	ListenAddr     string `env:"PORTY_LISTEN_ADDR" envDefault:"0.0.0.0"`
	ListenPort     uint16 `env:"PORTY_LISTEN_PORT" envDefault:"9000"`
	TargetAddr     string `env:"PORTY_TARGET_ADDR"`
	TargetPort     uint16 `env:"PORTY_TARGET_PORT"`
	MaxConnections int    `env:"PORTY_MAX_CONNECTIONS" envDefault:"100"`
	BufferSizeKB   int    `env:"PORTY_BUFFER_SIZE_KB" envDefault:"8"`
	LogRequests    bool   `env:"PORTY_LOG_REQUESTS" envDefault:"true"`

	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		// .env file is optional.
	}

	var ec prodEnv
	if err := env.Parse(&ec); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(ec.LogLevel, ec.LogFormat)
	logger.Info("starting porty in production mode",
		slog.Int("max_connections", ec.MaxConnections))

	m := metrics.New("porty")
	go startMetricsServer(ec.MetricsPort, logger)

	healthChecker := health.NewChecker(10 * time.Second)
	cfg := config.Config{
		ListenAddr:     ec.ListenAddr,
		ListenPort:     ec.ListenPort,
		TargetAddr:     ec.TargetAddr,
		TargetPort:     ec.TargetPort,
		MaxConnections: ec.MaxConnections,
		BufferSizeKB:   ec.BufferSizeKB,
		LogRequests:    ec.LogRequests,
	}.WithDefaults()

	for _, route := range cfg.EnabledRoutes() {
		route := route
		healthChecker.RegisterRoute(route.Name, func(ctx context.Context) error {
			if route.Mode == config.ModeTCP && (route.TargetAddr == "" || route.TargetPort == 0) {
				return fmt.Errorf("tcp route %q has no target configured", route.Name)
			}
			return nil
		})
	}

	go startHealthServer(ec.HealthPort, healthChecker, logger)

	logSink := simple.New(logger)
	metricsSink := metrics.NewSink(m)
	sink := multiSink{logSink, metricsSink}

	ctx, cancel := context.WithCancel(context.Background())
	go stopSignalHandler(ctx, cancel, logger)

	if err := supervisor.Run(ctx, cfg, sink, logger); err != nil {
		logger.Error("porty terminated with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("graceful shutdown completed")
}

// multiSink fans every event out to each member sink, letting logging
// and metrics both observe the same connection lifecycle without the
// connection handlers knowing about either.
type multiSink []events.Sink

func (m multiSink) ListenerStarted(e events.ListenerStarted) {
	for _, s := range m {
		s.ListenerStarted(e)
	}
}
func (m multiSink) ListenerBindFailed(e events.ListenerBindFailed) {
	for _, s := range m {
		s.ListenerBindFailed(e)
	}
}
func (m multiSink) ConnectionAccepted(e events.ConnectionAccepted) {
	for _, s := range m {
		s.ConnectionAccepted(e)
	}
}
func (m multiSink) ConnectionRejectedSaturated(e events.ConnectionRejectedSaturated) {
	for _, s := range m {
		s.ConnectionRejectedSaturated(e)
	}
}
func (m multiSink) HTTPRequest(e events.HTTPRequest) {
	for _, s := range m {
		s.HTTPRequest(e)
	}
}
func (m multiSink) HTTPHeaders(e events.HTTPHeaders) {
	for _, s := range m {
		s.HTTPHeaders(e)
	}
}
func (m multiSink) ConnectionClosed(e events.ConnectionClosed) {
	for _, s := range m {
		s.ConnectionClosed(e)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h)
}

func startMetricsServer(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("starting metrics server", slog.String("address", addr))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", slog.String("error", err.Error()))
	}
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", health.LivenessHandler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("starting health server", slog.String("address", addr))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("health server error", slog.String("error", err.Error()))
	}
}

func stopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	case <-ctx.Done():
	}
}
