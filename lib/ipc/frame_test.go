// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Verb: "start", Name: "fedora-toolbox-40"}

	if err := writeFrame(&buf, req); err != nil {
		t.Fatal(err)
	}

	var got Request
	if err := readFrame(&buf, &got); err != nil {
		t.Fatal(err)
	}
	if got != req {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})

	var got Request
	if err := readFrame(&buf, &got); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}

func TestReadFrameRejectsTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 10})
	buf.WriteString("short")

	var got Request
	if err := readFrame(&buf, &got); err == nil {
		t.Fatal("expected error for truncated frame body")
	}
}
