// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/conceptgraph/services/knowledge/ingest"
	"github.com/AleutianAI/conceptgraph/services/knowledge/telemetry"
)

var errWatchNeedsRecords = errors.New("--watch requires --records")

// watch runs a full refresh each time the records file settles after a
// change, at most once per cfg.Watch.MinInterval, until ctx is cancelled.
// With the prometheus exporter, /metrics is served meanwhile.
func (a *app) watch(ctx context.Context, records string) error {
	if records == "" {
		return errWatchNeedsRecords
	}

	limit := rate.Inf
	if a.cfg.Watch.MinInterval > 0 {
		limit = rate.Every(a.cfg.Watch.MinInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	refresh := func(ctx context.Context, path string) {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		logger := telemetry.LoggerWithTrace(ctx, a.logger)
		if err := a.fullRefresh(ctx, path); err != nil {
			logger.Error("watch refresh failed", "path", path, "error", err)
		}
	}

	w, err := ingest.NewWatcher(records, refresh,
		ingest.WithDebounce(a.cfg.Watch.Debounce),
		ingest.WithWatchLogger(a.logger),
	)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	if stop, err := a.serveMetrics(); err != nil {
		return err
	} else if stop != nil {
		defer stop()
	}

	<-ctx.Done()
	a.logger.Info("watch stopped")
	return nil
}

// serveMetrics starts the /metrics listener when a handler is available.
// The returned func shuts it down; it is nil if nothing was started.
func (a *app) serveMetrics() (func(), error) {
	handler := telemetry.MetricsHandler()
	if handler == nil || a.cfg.Telemetry.MetricExporter != "prometheus" || a.cfg.Telemetry.PrometheusPort == 0 {
		return nil, nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Telemetry.PrometheusPort))
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
