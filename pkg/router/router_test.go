// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"strings"
	"testing"

	"github.com/absmach/porty/pkg/config"
	"github.com/absmach/porty/pkg/httphead"
)

func mustParse(t *testing.T, raw string) httphead.ParsedHead {
	t.Helper()
	head, _, err := httphead.Parse(strings.NewReader(raw), 8192)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return head
}

func TestRouteDynamicHappyPath(t *testing.T) {
	raw := "GET /api/users?id=123&porty_host=127.0.0.1&porty_port=18080&flag=x HTTP/1.1\r\nHost: localhost:9090\r\n\r\n"
	head := mustParse(t, raw)

	route := config.Route{Name: "dyn", Mode: config.ModeHTTP}
	dec, err := Route(head, route)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.SourceKind != Dynamic {
		t.Errorf("expected dynamic, got %s", dec.SourceKind)
	}
	if dec.TargetHost != "127.0.0.1" || dec.TargetPort != 18080 {
		t.Errorf("unexpected target %s:%d", dec.TargetHost, dec.TargetPort)
	}

	lines := strings.Split(string(dec.RewrittenHead), "\r\n")
	if lines[0] != "GET /api/users?id=123&flag=x HTTP/1.1" {
		t.Errorf("unexpected request line: %q", lines[0])
	}
	if !strings.Contains(string(dec.RewrittenHead), "Host: 127.0.0.1:18080\r\n") {
		t.Errorf("expected rewritten Host header, got %q", dec.RewrittenHead)
	}
	if strings.Contains(string(dec.RewrittenHead), "porty_") {
		t.Errorf("porty_* params leaked into rewritten head: %q", dec.RewrittenHead)
	}
}

func TestRouteDynamicOnlyPortyParamsDropsQuestionMark(t *testing.T) {
	raw := "GET /x?porty_host=h&porty_port=81 HTTP/1.1\r\nHost: h\r\n\r\n"
	head := mustParse(t, raw)
	dec, err := Route(head, config.Route{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(string(dec.RewrittenHead), "\r\n")
	if strings.Contains(lines[0], "?") {
		t.Errorf("expected no '?' in request target, got %q", lines[0])
	}
}

func TestRouteHostMatch(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: api.example.com\r\n\r\n"
	head := mustParse(t, raw)
	route := config.Route{
		Name:       "api",
		Mode:       config.ModeHTTP,
		Host:       "api.example.com",
		TargetAddr: "127.0.0.1",
		TargetPort: 18081,
	}
	dec, err := Route(head, route)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.SourceKind != HostMatch {
		t.Errorf("expected host_match, got %s", dec.SourceKind)
	}
	if dec.TargetHost != "127.0.0.1" || dec.TargetPort != 18081 {
		t.Errorf("unexpected target %s:%d", dec.TargetHost, dec.TargetPort)
	}
}

func TestRouteHostMismatchNoFallbackIsMissingParams(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: other.com\r\n\r\n"
	head := mustParse(t, raw)
	route := config.Route{Name: "api", Mode: config.ModeHTTP, Host: "api.example.com"}
	_, err := Route(head, route)
	if err != ErrMissingRoutingParams {
		t.Fatalf("expected ErrMissingRoutingParams, got %v", err)
	}
}

func TestRouteStaticDefault(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: whatever\r\n\r\n"
	head := mustParse(t, raw)
	route := config.Route{Name: "def", Mode: config.ModeHTTP, TargetAddr: "10.0.0.1", TargetPort: 9000}
	dec, err := Route(head, route)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.SourceKind != StaticDefault {
		t.Errorf("expected static_default, got %s", dec.SourceKind)
	}
}

func TestRouteHostHeaderEqualsTargetWithPortSuffix(t *testing.T) {
	raw := "GET /p HTTP/1.1\r\nHost: old:1234\r\n\r\n"
	head := mustParse(t, raw)
	route := config.Route{TargetAddr: "new.example.com", TargetPort: 443}
	dec, err := Route(head, route)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(dec.RewrittenHead), "Host: new.example.com:443\r\n") {
		t.Errorf("expected forwarded Host with nonstandard port, got %q", dec.RewrittenHead)
	}
}

func TestRouteHostHeaderOmitsPort80(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: old\r\n\r\n"
	head := mustParse(t, raw)
	route := config.Route{TargetAddr: "new.example.com", TargetPort: 80}
	dec, err := Route(head, route)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(dec.RewrittenHead), "Host: new.example.com\r\n") {
		t.Errorf("expected forwarded Host without :80, got %q", dec.RewrittenHead)
	}
}

func TestRoutePortyPortBoundaryZeroAndOverflow(t *testing.T) {
	for _, port := range []string{"0", "65536"} {
		raw := "GET /?porty_host=h&porty_port=" + port + " HTTP/1.1\r\n\r\n"
		head := mustParse(t, raw)
		_, err := Route(head, config.Route{})
		if err == nil {
			t.Errorf("expected error for porty_port=%s", port)
		}
	}
}

func TestRouteNoTargetIsMissingParams(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n\r\n"
	head := mustParse(t, raw)
	_, err := Route(head, config.Route{})
	if err != ErrMissingRoutingParams {
		t.Fatalf("expected ErrMissingRoutingParams, got %v", err)
	}
}

func TestRouteIsPure(t *testing.T) {
	raw := "GET /a?porty_host=h&porty_port=81&z=1 HTTP/1.1\r\nHost: x\r\nA: b\r\n\r\n"
	head := mustParse(t, raw)
	route := config.Route{TargetAddr: "fallback", TargetPort: 1}

	d1, err1 := Route(head, route)
	d2, err2 := Route(head, route)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if string(d1.RewrittenHead) != string(d2.RewrittenHead) {
		t.Fatalf("routing is not pure: %q != %q", d1.RewrittenHead, d2.RewrittenHead)
	}
}

func TestRouteQueryParamOrderPreserved(t *testing.T) {
	raw := "GET /x?a=1&porty_host=h&b=2&porty_port=81&c=3 HTTP/1.1\r\n\r\n"
	head := mustParse(t, raw)
	dec, err := Route(head, config.Route{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(string(dec.RewrittenHead), "\r\n")
	if lines[0] != "GET /x?a=1&b=2&c=3 HTTP/1.1" {
		t.Errorf("unexpected request line: %q", lines[0])
	}
}
