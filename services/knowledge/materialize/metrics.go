// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package materialize

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("conceptgraph.materialize")
	meter  = otel.Meter("conceptgraph.materialize")
)

var (
	refreshLatency  metric.Float64Histogram
	refreshTotal    metric.Int64Counter
	snapshotBytes   metric.Int64Histogram
	snapshotsPruned metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		refreshLatency, err = meter.Float64Histogram(
			"conceptgraph_refresh_duration_seconds",
			metric.WithDescription("Duration of refresh operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		refreshTotal, err = meter.Int64Counter(
			"conceptgraph_refresh_total",
			metric.WithDescription("Total number of refresh operations by mode and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		snapshotBytes, err = meter.Int64Histogram(
			"conceptgraph_snapshot_bytes",
			metric.WithDescription("Size of written binary snapshots"),
			metric.WithUnit("By"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		snapshotsPruned, err = meter.Int64Counter(
			"conceptgraph_snapshots_pruned_total",
			metric.WithDescription("Snapshots deleted by retention cleanup"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordRefreshMetrics(ctx context.Context, mode Mode, duration time.Duration, blobSize int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.Bool("success", success),
	)
	refreshLatency.Record(ctx, duration.Seconds(), attrs)
	refreshTotal.Add(ctx, 1, attrs)
	if success {
		snapshotBytes.Record(ctx, int64(blobSize))
	}
}

func recordPruned(ctx context.Context, count int) {
	if err := initMetrics(); err != nil {
		return
	}
	snapshotsPruned.Add(ctx, int64(count))
}

func startRefreshSpan(ctx context.Context, mode Mode, location string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Manager.Refresh",
		trace.WithAttributes(
			attribute.String("refresh.mode", string(mode)),
			attribute.String("refresh.storage", location),
		),
	)
}
