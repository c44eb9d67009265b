// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"fmt"
	"io"
)

// WriteError writes a synthetic HTTP/1.1 error response exactly as
// spec.md §4.5/§6 requires: Content-Type, Content-Length, Connection:
// close, then the body. Exported so the Listener can use it for the
// admission-saturated 503 path (spec §5).
func WriteError(w io.Writer, status int, body string) error {
	statusText := map[int]string{
		400: "Bad Request",
		502: "Bad Gateway",
		503: "Service Unavailable",
		504: "Gateway Timeout",
	}[status]

	resp := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, statusText, len(body), body,
	)
	_, err := io.WriteString(w, resp)
	return err
}
