// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Call dials socketPath, sends req, and returns the decoded response.
// Mirrors the daemon-to-launcher dial pattern: a fresh connection per
// call, deadline taken from ctx when set and falling back to a fixed
// timeout otherwise.
func Call(ctx context.Context, socketPath string, req Request) (*Response, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(requestTimeout)
	}
	conn.SetDeadline(deadline)

	if err := writeFrame(conn, req); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	var resp Response
	if err := readFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &resp, nil
}
