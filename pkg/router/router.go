// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package router computes the routing decision for one HTTP request and
// serializes the rewritten request head to forward upstream, per
// spec.md §4.3. Routing is a pure function of (ParsedHead, Route): given
// identical inputs it always produces a byte-identical rewritten head.
package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/absmach/porty/pkg/config"
	"github.com/absmach/porty/pkg/httphead"
)

// SourceKind names which rule produced the routing decision.
type SourceKind string

const (
	Dynamic       SourceKind = "dynamic"
	HostMatch     SourceKind = "host_match"
	StaticDefault SourceKind = "static_default"
)

// Decision is the routing result consumed by the Dialer and then written
// verbatim as the first bytes of the upstream stream.
type Decision struct {
	TargetHost    string
	TargetPort    uint16
	RewrittenHead []byte
	SourceKind    SourceKind
}

// ErrMissingRoutingParams is returned when none of the three routing
// rules of spec §4.3 apply.
var ErrMissingRoutingParams = fmt.Errorf("missing_routing_params")

const portyHostParam = "porty_host"
const portyPortParam = "porty_port"

// Route computes the Decision for head on the given route, and
// serializes the rewritten head. It never touches the network; hop-by-hop
// headers beyond Host are forwarded unchanged, per spec §4.3 and §9's
// documented transparency trade-off.
func Route(head httphead.ParsedHead, route config.Route) (Decision, error) {
	path, query, _ := strings.Cut(head.RequestTarget, "?")

	var dec Decision
	var newTarget string

	if host, port, rest, ok := extractDynamic(query); ok {
		p, err := parsePort(port)
		if err != nil {
			return Decision{}, err
		}
		dec = Decision{TargetHost: host, TargetPort: p, SourceKind: Dynamic}
		if rest == "" {
			newTarget = path
		} else {
			newTarget = path + "?" + rest
		}
	} else if route.Host != "" && hostHeaderMatches(head, route.Host) {
		dec = Decision{TargetHost: route.TargetAddr, TargetPort: route.TargetPort, SourceKind: HostMatch}
		newTarget = head.RequestTarget
	} else if route.TargetAddr != "" && route.TargetPort != 0 {
		dec = Decision{TargetHost: route.TargetAddr, TargetPort: route.TargetPort, SourceKind: StaticDefault}
		newTarget = head.RequestTarget
	} else {
		return Decision{}, ErrMissingRoutingParams
	}

	dec.RewrittenHead = serialize(head, newTarget, dec.TargetHost, dec.TargetPort)
	return dec, nil
}

// extractDynamic parses query as &-separated key=value pairs and, if
// both porty_host and porty_port are present, returns the target plus
// the query with those two parameters removed (order and encoding of
// the rest preserved).
func extractDynamic(query string) (host, port, rest string, ok bool) {
	if query == "" {
		return "", "", "", false
	}

	pairs := strings.Split(query, "&")
	var kept []string
	var foundHost, foundPort bool

	for _, pair := range pairs {
		key, _, _ := strings.Cut(pair, "=")
		switch key {
		case portyHostParam:
			_, host, _ = strings.Cut(pair, "=")
			foundHost = true
		case portyPortParam:
			_, port, _ = strings.Cut(pair, "=")
			foundPort = true
		default:
			kept = append(kept, pair)
		}
	}

	if !foundHost || !foundPort {
		return "", "", "", false
	}

	return host, port, strings.Join(kept, "&"), true
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n < 1 || n > 65535 {
		return 0, fmt.Errorf("malformed_request: invalid porty_port %q", s)
	}
	return uint16(n), nil
}

// hostHeaderMatches compares the request's Host header against want,
// case-insensitively, ignoring an optional :port suffix.
func hostHeaderMatches(head httphead.ParsedHead, want string) bool {
	got, ok := head.Get("Host")
	if !ok {
		return false
	}
	gotHost, _, _ := strings.Cut(got, ":")
	return strings.EqualFold(gotHost, want)
}

// serialize renders "METHOD SP target SP version CRLF" followed by the
// header list (Host replaced, everything else preserved in order) and
// the terminating CRLF.
func serialize(head httphead.ParsedHead, target, targetHost string, targetPort uint16) []byte {
	var b strings.Builder

	b.WriteString(head.Method)
	b.WriteByte(' ')
	b.WriteString(target)
	b.WriteByte(' ')
	b.WriteString(head.Version)
	b.WriteString("\r\n")

	hostValue := targetHost
	if targetPort != 80 {
		hostValue = targetHost + ":" + strconv.FormatUint(uint64(targetPort), 10)
	}

	wroteHost := false
	for _, h := range head.Headers {
		if strings.EqualFold(h.Name, "Host") {
			b.WriteString("Host: ")
			b.WriteString(hostValue)
			b.WriteString("\r\n")
			wroteHost = true
			continue
		}
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	if !wroteHost {
		b.WriteString("Host: ")
		b.WriteString(hostValue)
		b.WriteString("\r\n")
	}

	b.WriteString("\r\n")
	return []byte(b.String())
}
