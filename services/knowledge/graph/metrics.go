// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

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
	tracer = otel.Tracer("conceptgraph.graph")
	meter  = otel.Meter("conceptgraph.graph")
)

var (
	buildLatency metric.Float64Histogram
	buildTotal   metric.Int64Counter
	graphNodes   metric.Int64Histogram
	graphEdges   metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"conceptgraph_build_duration_seconds",
			metric.WithDescription("Duration of graph build operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"conceptgraph_build_total",
			metric.WithDescription("Total number of graph build operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		graphNodes, err = meter.Int64Histogram(
			"conceptgraph_build_nodes",
			metric.WithDescription("Number of nodes loaded per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		graphEdges, err = meter.Int64Histogram(
			"conceptgraph_build_edges",
			metric.WithDescription("Number of edges loaded per build"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordBuildMetrics(ctx context.Context, duration time.Duration, nodeCount, edgeCount int) {
	if err := initMetrics(); err != nil {
		return
	}
	buildLatency.Record(ctx, duration.Seconds())
	buildTotal.Add(ctx, 1)
	graphNodes.Record(ctx, int64(nodeCount))
	graphEdges.Record(ctx, int64(edgeCount))
}

func startBuildSpan(ctx context.Context, conceptCount, relationshipCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Store.Build",
		trace.WithAttributes(
			attribute.Int("graph.concept_records", conceptCount),
			attribute.Int("graph.relationship_records", relationshipCount),
		),
	)
}

func setBuildSpanResult(span trace.Span, nodeCount, edgeCount, rejected int) {
	span.SetAttributes(
		attribute.Int("graph.node_count", nodeCount),
		attribute.Int("graph.edge_count", edgeCount),
		attribute.Int("graph.rejected_records", rejected),
	)
}
