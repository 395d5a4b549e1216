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
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conceptgraph/pkg/logging"
	"github.com/AleutianAI/conceptgraph/services/knowledge/config"
	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
	"github.com/AleutianAI/conceptgraph/services/knowledge/materialize"
	"github.com/AleutianAI/conceptgraph/services/knowledge/telemetry"
)

// options holds every command-line flag.
type options struct {
	// Actions.
	full        bool
	incremental bool
	status      bool
	cleanup     int
	watch       bool

	// Inputs.
	records string
	delta   string

	// Overrides of the config file.
	configPath string
	storage    string
	backend    string
	logLevel   string

	jsonOut bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "conceptgraph",
		Short: "Refresh and inspect the materialized concept dependency graph",
		Long: `conceptgraph builds the concept dependency graph from records, stores it
as versioned binary snapshots, and applies incremental deltas.

Actions run in the order --full, --incremental, --cleanup, --status.
With no action flag, --status is implied.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd, opts, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	f := root.Flags()
	f.BoolVar(&opts.full, "full", false, "rebuild the graph from --records (or the sample dataset) and snapshot it")
	f.BoolVar(&opts.incremental, "incremental", false, "apply --delta to the latest snapshot and snapshot the result")
	f.BoolVar(&opts.status, "status", false, "print the graph and snapshot status")
	f.IntVar(&opts.cleanup, "cleanup", 0, "keep the newest `N` snapshots and delete the rest")
	f.BoolVar(&opts.watch, "watch", false, "re-run a full refresh whenever --records changes")
	f.StringVar(&opts.records, "records", "", "concept/relationship `FILE` (.json, .yaml)")
	f.StringVar(&opts.delta, "delta", "", "delta `FILE` for --incremental (.json, .yaml)")

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config `FILE`")
	pf.StringVar(&opts.storage, "storage", "", "snapshot directory (default from config)")
	pf.StringVar(&opts.backend, "backend", "", "snapshot backend: file or badger")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(newPathCmd(opts, stdout, stderr), newLinksCmd(opts, stdout, stderr))
	return root
}

// app is the wired runtime shared by every command.
type app struct {
	cfg     config.Config
	log     *logging.Logger
	logger  *slog.Logger
	backend materialize.Backend
	manager *materialize.Manager
	out     *printer

	shutdownTelemetry func(context.Context) error
}

// setup loads configuration and wires logging, telemetry, storage and the
// manager. The caller must Close the returned app.
func setup(cmd *cobra.Command, opts *options, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("storage") {
		cfg.Storage.Path = opts.storage
	}
	if flags.Changed("backend") {
		cfg.Storage.Backend = opts.backend
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	log := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Output:  stderr,
	})
	a := &app{
		cfg:    cfg,
		log:    log,
		logger: log.Slog(),
		out:    &printer{w: stdout, json: opts.jsonOut},
	}

	a.shutdownTelemetry, err = telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.backend, err = openBackend(cfg.Storage, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	store := graph.NewStore(graph.WithLogger(a.logger))
	a.manager = materialize.NewManager(store, a.backend, materialize.WithLogger(a.logger))
	return a, nil
}

func openBackend(cfg config.StorageConfig, logger *slog.Logger) (materialize.Backend, error) {
	if cfg.Backend == "badger" {
		b, err := materialize.OpenBadgerBackend(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	b, err := materialize.NewFileBackend(cfg.Path, logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Close releases storage, flushes telemetry and closes the log file.
func (a *app) Close() error {
	var errs []error
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.shutdownTelemetry != nil {
		errs = append(errs, a.shutdownTelemetry(context.Background()))
	}
	errs = append(errs, a.log.Close())
	return errors.Join(errs...)
}

// runRefresh executes the action flags in order.
func runRefresh(cmd *cobra.Command, opts *options, stdout, stderr io.Writer) (err error) {
	a, err := setup(cmd, opts, stdout, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	ctx := cmd.Context()
	cleanup := cmd.Flags().Changed("cleanup")
	status := opts.status
	if !opts.full && !opts.incremental && !cleanup && !opts.watch {
		status = true
	}

	if opts.full {
		if err := a.fullRefresh(ctx, opts.records); err != nil {
			return err
		}
	}
	if opts.incremental {
		if err := a.incrementalRefresh(ctx, opts.delta); err != nil {
			return err
		}
	}
	if cleanup {
		removed, err := a.manager.Cleanup(ctx, opts.cleanup)
		if err != nil {
			return err
		}
		if err := a.out.cleanup(opts.cleanup, removed); err != nil {
			return err
		}
	}
	if status {
		st, err := a.manager.Status(ctx)
		if err != nil {
			return err
		}
		if err := a.out.status(st); err != nil {
			return err
		}
	}
	if opts.watch {
		return a.watch(ctx, opts.records)
	}
	return nil
}

func (a *app) fullRefresh(ctx context.Context, records string) error {
	ds, err := loadRecords(records)
	if err != nil {
		return err
	}
	summary, err := a.manager.FullRefresh(ctx, ds.Concepts, ds.Relationships)
	if err != nil {
		return fmt.Errorf("full refresh: %w", err)
	}
	return a.out.summary(summary)
}

func (a *app) incrementalRefresh(ctx context.Context, deltaPath string) error {
	var delta materialize.Delta
	if deltaPath != "" {
		var err error
		if delta, err = loadDelta(deltaPath); err != nil {
			return err
		}
	} else {
		a.logger.Info("no --delta given, applying an empty delta")
	}
	summary, err := a.manager.IncrementalRefresh(ctx, delta)
	if err != nil {
		return fmt.Errorf("incremental refresh: %w", err)
	}
	return a.out.summary(summary)
}
