// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

type echoHandler struct{}

func (echoHandler) Handle(ctx context.Context, req Request) Response {
	if req.Verb == "status" {
		return Response{OK: true, Containers: []ContainerStatus{{Name: req.Name, Mounted: true}}}
	}
	return Response{OK: false, Error: "unknown verb: " + req.Verb}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestServeAndCallRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "envd.sock")

	srv, err := Listen(socketPath, echoHandler{}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	resp, err := Call(context.Background(), socketPath, Request{Verb: "status", Name: "fedora-toolbox-40"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK || len(resp.Containers) != 1 || resp.Containers[0].Name != "fedora-toolbox-40" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCallUnknownVerb(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "envd.sock")

	srv, err := Listen(socketPath, echoHandler{}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	resp, err := Call(context.Background(), socketPath, Request{Verb: "bogus"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.OK {
		t.Fatal("expected OK=false for unknown verb")
	}
}

func TestCallDialFailureMissingSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "does-not-exist.sock")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := Call(ctx, socketPath, Request{Verb: "status"}); err == nil {
		t.Fatal("expected error dialing a nonexistent socket")
	}
}
