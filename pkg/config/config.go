// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config holds the immutable configuration value objects the
// proxy core is started with. Loading these values from a file,
// environment variables, or flags is a concern of the calling command
// (see cmd/porty), not of this package.
package config

import "fmt"

// Mode selects how a Route's Listener treats accepted connections.
type Mode string

const (
	ModeTCP  Mode = "tcp"
	ModeHTTP Mode = "http"
)

// LogLevel controls how much detail a route's connections emit as events.
type LogLevel string

const (
	LogNone    LogLevel = "none"
	LogBasic   LogLevel = "basic"
	LogVerbose LogLevel = "verbose"
)

// Route describes one listening endpoint and its forwarding policy.
type Route struct {
	// Name uniquely identifies the route in emitted events.
	Name string

	// ListenPort is the TCP port this route's Listener binds.
	ListenPort uint16

	// TargetAddr/TargetPort are the static forwarding target. Required
	// when Mode == ModeTCP; optional fallback target when Mode == ModeHTTP.
	TargetAddr string
	TargetPort uint16

	// Enabled gates whether the Supervisor starts a Listener for this route.
	Enabled bool

	Mode Mode

	// Host, if set, is matched case-insensitively (ignoring an optional
	// :port suffix) against the request's Host header in HTTP mode.
	Host string

	LogLevel LogLevel

	// TimeoutSeconds is the Dialer's per-attempt connect timeout.
	TimeoutSeconds int

	// MaxRetries is the number of additional dial attempts after the first.
	MaxRetries int
}

// Config is the global default plus the full set of routes. It is
// immutable after Validate succeeds; the Supervisor never mutates it.
type Config struct {
	ListenAddr     string
	ListenPort     uint16
	TargetAddr     string
	TargetPort     uint16
	MaxConnections int
	BufferSizeKB   int
	LogRequests    bool
	Routes         []Route
}

// WithDefaults returns a copy of c with zero-valued fields replaced by
// the spec's documented defaults (spec.md §3).
func (c Config) WithDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 100
	}
	if c.BufferSizeKB == 0 {
		c.BufferSizeKB = 8
	}
	routes := make([]Route, len(c.Routes))
	for i, r := range c.Routes {
		routes[i] = r.withDefaults()
	}
	c.Routes = routes
	return c
}

func (r Route) withDefaults() Route {
	if r.Mode == "" {
		r.Mode = ModeTCP
	}
	if r.LogLevel == "" {
		r.LogLevel = LogBasic
	}
	if r.TimeoutSeconds == 0 {
		r.TimeoutSeconds = 30
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 2
	}
	return r
}

// MainRoute synthesizes the implicit global route described in spec §4.7:
// "one for the global default (listen_addr:listen_port with static
// target_addr:target_port, mode=tcp, name 'main')".
func (c Config) MainRoute() Route {
	return Route{
		Name:           "main",
		ListenPort:     c.ListenPort,
		TargetAddr:     c.TargetAddr,
		TargetPort:     c.TargetPort,
		Enabled:        true,
		Mode:           ModeTCP,
		LogLevel:       LogBasic,
		TimeoutSeconds: 30,
		MaxRetries:     2,
	}
}

// EnabledRoutes returns the main route plus every enabled configured
// route, each with defaults applied.
func (c Config) EnabledRoutes() []Route {
	c = c.WithDefaults()
	routes := []Route{c.MainRoute()}
	for _, r := range c.Routes {
		if r.Enabled {
			routes = append(routes, r)
		}
	}
	return routes
}

// Validate enforces the invariants of spec.md §3: enabled routes must
// bind distinct ports, and tcp-mode routes must name a static target.
// A violation is config_invalid (spec §7) and must be rejected before
// any Listener starts.
func (c Config) Validate() error {
	routes := c.EnabledRoutes()

	seen := make(map[uint16]string, len(routes))
	for _, r := range routes {
		if owner, ok := seen[r.ListenPort]; ok {
			return fmt.Errorf("config_invalid: route %q and %q both listen on port %d", owner, r.Name, r.ListenPort)
		}
		seen[r.ListenPort] = r.Name

		switch r.Mode {
		case ModeTCP:
			if r.TargetAddr == "" || r.TargetPort == 0 {
				return fmt.Errorf("config_invalid: tcp route %q requires target_addr and target_port", r.Name)
			}
		case ModeHTTP:
			// target_addr/target_port are an optional static fallback; no
			// requirement here (spec §3, §9 open question).
		default:
			return fmt.Errorf("config_invalid: route %q has unknown mode %q", r.Name, r.Mode)
		}
	}

	return nil
}
