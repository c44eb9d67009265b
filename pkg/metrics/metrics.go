// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for the proxy
// core, adapted from the teacher's protocol-agnostic counter/gauge/
// histogram shapes to the connection/dial/relay observability surface
// spec.md's EXTERNAL INTERFACES section calls for.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus instrument the proxy core exposes.
type Metrics struct {
	ActiveConnections  *prometheus.GaugeVec
	ConnectionsTotal   *prometheus.CounterVec
	ConnectionDuration *prometheus.HistogramVec
	BytesTransferred   *prometheus.CounterVec

	DialAttemptsTotal *prometheus.CounterVec
	DialRetriesTotal  *prometheus.CounterVec

	AdmissionRejectedTotal *prometheus.CounterVec
	RelayErrorsTotal       *prometheus.CounterVec
}

// New registers and returns the full metric set under namespace
// ("porty" if empty).
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "porty"
	}

	return &Metrics{
		ActiveConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of connections currently holding an admission permit",
			},
			[]string{"route", "mode"},
		),
		ConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total connections accepted, labeled by terminal outcome",
			},
			[]string{"route", "mode", "outcome"},
		),
		ConnectionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connection_duration_seconds",
				Help:      "Connection lifetime from accept to close",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"route", "mode"},
		),
		BytesTransferred: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_transferred_total",
				Help:      "Bytes relayed, labeled by direction",
			},
			[]string{"route", "direction"},
		),
		DialAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dial_attempts_total",
				Help:      "Connections whose upstream dial sequence failed, labeled by result (dial_timeout or dial_refused); successful dials are not counted",
			},
			[]string{"route", "result"},
		),
		DialRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dial_retries_total",
				Help:      "Total dial retries (attempts beyond the first) issued by the Dialer",
			},
			[]string{"route"},
		),
		AdmissionRejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admission_rejected_total",
				Help:      "Connections rejected because a route's admission semaphore was saturated",
			},
			[]string{"route"},
		),
		RelayErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_errors_total",
				Help:      "Relay iterations that ended in an I/O error rather than a clean or half-closed finish",
			},
			[]string{"route", "direction"},
		),
	}
}
