// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

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
	tracer = otel.Tracer("conceptgraph.query")
	meter  = otel.Meter("conceptgraph.query")
)

var (
	queryLatency metric.Float64Histogram
	queryResults metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		queryLatency, err = meter.Float64Histogram(
			"conceptgraph_query_duration_seconds",
			metric.WithDescription("Duration of graph query operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryResults, err = meter.Int64Histogram(
			"conceptgraph_query_results",
			metric.WithDescription("Number of results returned per query"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

// recordQueryMetrics records latency and result size for a query.
func recordQueryMetrics(ctx context.Context, queryType string, duration time.Duration, resultCount int) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("query_type", queryType))
	queryLatency.Record(ctx, duration.Seconds(), attrs)
	queryResults.Record(ctx, int64(resultCount), attrs)
}

// startQuerySpan creates a span for a long-running query.
func startQuerySpan(ctx context.Context, queryType, conceptID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine."+queryType,
		trace.WithAttributes(
			attribute.String("query.type", queryType),
			attribute.String("query.concept_id", conceptID),
		),
	)
}
