// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/absmach/porty/pkg/config"
	"github.com/absmach/porty/pkg/dialer"
	"github.com/absmach/porty/pkg/errcodes"
	"github.com/absmach/porty/pkg/events"
	"github.com/absmach/porty/pkg/relay"
)

// HandleTCP dials the route's static target and relays bytes verbatim
// (spec §4.6): no parsing, no rewriting.
func HandleTCP(ctx context.Context, client net.Conn, routeName string, route config.Route, sink events.Sink, bufferSizeKB int) {
	defer client.Close()
	start := time.Now()
	peer := client.RemoteAddr().String()
	sessionID := uuid.New().String()

	timeout := time.Duration(route.TimeoutSeconds) * time.Second
	upstream, err := dialer.Dial(ctx, route.TargetAddr, route.TargetPort, timeout, route.MaxRetries)
	if err != nil {
		kind := errcodes.DialRefused
		if errors.Is(err, dialer.ErrDialTimeout) {
			kind = errcodes.DialTimeout
		}
		emitClosed(sink, sessionID, routeName, peer, start, 0, 0, relay.Outcome(kind), 0)
		return
	}
	defer upstream.Close()

	res := relay.Run(ctx, client, upstream, bufferSizeKB)
	emitClosed(sink, sessionID, routeName, peer, start, res.BytesClientToUp, res.BytesUpToClient, res.Outcome, 0)
}
