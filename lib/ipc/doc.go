// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR-encoded message types and length-prefixed
// framing for envd's control socket, and provides a client for talking to
// it. cmd/envd (server) and cmd/envctl (client) both import this package
// so the wire format is defined once.
package ipc
