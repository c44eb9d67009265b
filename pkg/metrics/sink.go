// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"time"

	"github.com/absmach/porty/pkg/events"
)

// Sink adapts a Metrics instance into an events.Sink so the Listener
// and connection Handlers can drive Prometheus instrumentation through
// the same callback surface used for structured logging.
type Sink struct {
	m *Metrics
}

// NewSink wraps m as an events.Sink.
func NewSink(m *Metrics) Sink {
	return Sink{m: m}
}

var _ events.Sink = Sink{}

func (s Sink) ListenerStarted(events.ListenerStarted) {}

func (s Sink) ListenerBindFailed(events.ListenerBindFailed) {}

func (s Sink) ConnectionAccepted(e events.ConnectionAccepted) {
	s.m.ActiveConnections.WithLabelValues(e.RouteName, "").Inc()
}

func (s Sink) ConnectionRejectedSaturated(e events.ConnectionRejectedSaturated) {
	s.m.AdmissionRejectedTotal.WithLabelValues(e.RouteName).Inc()
}

func (s Sink) HTTPRequest(events.HTTPRequest) {}

func (s Sink) HTTPHeaders(events.HTTPHeaders) {}

func (s Sink) ConnectionClosed(e events.ConnectionClosed) {
	s.m.ActiveConnections.WithLabelValues(e.RouteName, "").Dec()
	s.m.ConnectionsTotal.WithLabelValues(e.RouteName, "", e.Outcome).Inc()
	s.m.ConnectionDuration.WithLabelValues(e.RouteName, "").Observe(time.Duration(e.DurationMS * int64(time.Millisecond)).Seconds())
	if e.BytesUp > 0 {
		s.m.BytesTransferred.WithLabelValues(e.RouteName, "up").Add(float64(e.BytesUp))
	}
	if e.BytesDown > 0 {
		s.m.BytesTransferred.WithLabelValues(e.RouteName, "down").Add(float64(e.BytesDown))
	}
	switch e.Outcome {
	case "dial_timeout", "dial_refused":
		s.m.DialAttemptsTotal.WithLabelValues(e.RouteName, e.Outcome).Inc()
	case "io_error":
		s.m.RelayErrorsTotal.WithLabelValues(e.RouteName, "").Inc()
	}
}
