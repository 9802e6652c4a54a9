// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command envctl is a thin CLI client for envd's control socket.
//
// Usage:
//
//	envctl start NAME
//	envctl stop NAME
//	envctl status
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/owtaylor/fedora-toolbox/lib/ipc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join("/run/user", fmt.Sprint(os.Getuid()))
	}

	var ipcSocket string
	flag.StringVar(&ipcSocket, "ipc-socket", filepath.Join(runtimeDir, "toolbox", "envd.sock"), "path of envd's control socket")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		return fmt.Errorf("usage: %s [-ipc-socket PATH] start|stop NAME | status", os.Args[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch verb := args[0]; verb {
	case "start", "stop":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s %s NAME", os.Args[0], verb)
		}
		resp, err := ipc.Call(ctx, ipcSocket, ipc.Request{Verb: verb, Name: args[1]})
		if err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("%s", resp.Error)
		}
		return nil

	case "status":
		resp, err := ipc.Call(ctx, ipcSocket, ipc.Request{Verb: "status"})
		if err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("%s", resp.Error)
		}
		for _, c := range resp.Containers {
			state := "stopped"
			if c.PID != 0 {
				state = "running"
			}
			mounted := ""
			if c.Mounted {
				mounted = " mounted"
			}
			fmt.Printf("%s\t%s%s\n", c.Name, state, mounted)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q (want start, stop, or status)", verb)
	}
}
