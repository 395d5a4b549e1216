// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command conceptgraph refreshes and inspects the materialized concept graph.
//
// Usage:
//
//	conceptgraph --full --records concepts.yaml
//	conceptgraph --incremental --delta delta.json
//	conceptgraph --status --json
//	conceptgraph --cleanup 3
//	conceptgraph --full --watch --records concepts.yaml
//	conceptgraph path math.counting physics.energy
//	conceptgraph links math.derivatives --subject physics
//
// Actions run in the order full, incremental, cleanup, status. With no
// action flag, --status is implied. Without --records the built-in sample
// dataset is used.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
