// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Command porty runs the forwarding proxy core: it loads Config from
// the environment, builds a Supervisor, and runs until a shutdown
// signal or a fatal listener error, matching the shape of the
// teacher's cmd/main.go.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/absmach/porty/examples/simple"
	"github.com/absmach/porty/pkg/config"
	"github.com/absmach/porty/pkg/supervisor"
)

// envConfig mirrors config.Config/config.Route shape for
// environment-variable loading, since the core package itself never
// touches the environment (spec §1). Additional routes are indexed
// PORTY_ROUTE_1_*, PORTY_ROUTE_2_*, ... up to RouteCount.
type envConfig struct {
	ListenAddr     string `env:"PORTY_LISTEN_ADDR" envDefault:"0.0.0.0"`
	ListenPort     uint16 `env:"PORTY_LISTEN_PORT" envDefault:"9000"`
	TargetAddr     string `env:"PORTY_TARGET_ADDR"`
	TargetPort     uint16 `env:"PORTY_TARGET_PORT"`
	MaxConnections int    `env:"PORTY_MAX_CONNECTIONS" envDefault:"100"`
	BufferSizeKB   int    `env:"PORTY_BUFFER_SIZE_KB" envDefault:"8"`
	LogRequests    bool   `env:"PORTY_LOG_REQUESTS" envDefault:"true"`
	RouteCount     int    `env:"PORTY_ROUTE_COUNT" envDefault:"0"`
	LogLevel       string `env:"PORTY_LOG_LEVEL" envDefault:"info"`
}

type routeEnvConfig struct {
	Name           string `env:"NAME,required"`
	ListenPort     uint16 `env:"LISTEN_PORT,required"`
	TargetAddr     string `env:"TARGET_ADDR"`
	TargetPort     uint16 `env:"TARGET_PORT"`
	Enabled        bool   `env:"ENABLED" envDefault:"true"`
	Mode           string `env:"MODE" envDefault:"tcp"`
	Host           string `env:"HOST"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"basic"`
	TimeoutSeconds int    `env:"TIMEOUT_SECONDS" envDefault:"30"`
	MaxRetries     int    `env:"MAX_RETRIES" envDefault:"2"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sink := simple.New(logger)

	ctx, cancel := context.WithCancel(context.Background())
	go stopSignalHandler(ctx, cancel, logger)

	if err := supervisor.Run(ctx, cfg, sink, logger); err != nil {
		logger.Error(fmt.Sprintf("porty terminated with error: %s", err))
		os.Exit(1)
	}
	logger.Info("porty stopped")
}

func loadConfig() (config.Config, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return config.Config{}, err
	}

	cfg := config.Config{
		ListenAddr:     ec.ListenAddr,
		ListenPort:     ec.ListenPort,
		TargetAddr:     ec.TargetAddr,
		TargetPort:     ec.TargetPort,
		MaxConnections: ec.MaxConnections,
		BufferSizeKB:   ec.BufferSizeKB,
		LogRequests:    ec.LogRequests,
	}

	for i := 1; i <= ec.RouteCount; i++ {
		var rc routeEnvConfig
		if err := env.ParseWithOptions(&rc, env.Options{Prefix: fmt.Sprintf("PORTY_ROUTE_%d_", i)}); err != nil {
			return config.Config{}, fmt.Errorf("route %d: %w", i, err)
		}
		cfg.Routes = append(cfg.Routes, config.Route{
			Name:           rc.Name,
			ListenPort:     rc.ListenPort,
			TargetAddr:     rc.TargetAddr,
			TargetPort:     rc.TargetPort,
			Enabled:        rc.Enabled,
			Mode:           config.Mode(rc.Mode),
			Host:           rc.Host,
			LogLevel:       config.LogLevel(rc.LogLevel),
			TimeoutSeconds: rc.TimeoutSeconds,
			MaxRetries:     rc.MaxRetries,
		})
	}

	return cfg.WithDefaults(), nil
}

func setupLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler)
}

func stopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-c:
		logger.Info("received shutdown signal")
		cancel()
	case <-ctx.Done():
	}
}
