// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package materialize persists a graph.Store as versioned snapshots.
//
// A Manager owns one store and one Backend. A full refresh rebuilds the
// store from records; an incremental refresh loads the latest snapshot and
// applies a Delta. Either way the result is encoded (see Encode), written
// with a JSON sidecar, and the latest pointer is moved to it. Old
// snapshots are removed by Cleanup.
//
// Manager lifecycle:
//
//	Empty --full/incremental--> Built --write--> Snapshotted
//	Snapshotted --refresh--> Built --write--> Snapshotted
//	Empty --Load--> Snapshotted
//
// Persistence problems never abort an incremental refresh: a missing or
// unreadable latest snapshot means "start from an empty graph".
//
// An incremental refresh holds the storage lock from loading the base
// snapshot until the new one is written, so two processes refreshing the
// same directory cannot both build on one base and drop a delta.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
	"github.com/AleutianAI/conceptgraph/services/knowledge/query"
)

// State is the manager's lifecycle state.
type State int

const (
	StateEmpty State = iota
	StateBuilt
	StateSnapshotted
)

// String returns "empty", "built" or "snapshotted".
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilt:
		return "built"
	case StateSnapshotted:
		return "snapshotted"
	default:
		return "unknown"
	}
}

// RefreshSummary describes a completed refresh.
type RefreshSummary struct {
	Mode      Mode      `json:"mode"`
	Version   string    `json:"version"`
	RefreshID string    `json:"refresh_id"`
	Timestamp time.Time `json:"timestamp"`

	// BaseVersion is the snapshot an incremental refresh started from, or
	// empty if it started from an empty graph.
	BaseVersion string `json:"base_version,omitempty"`

	NodeCount     int `json:"node_count"`
	EdgeCount     int `json:"edge_count"`
	CycleCount    int `json:"cycle_count"`
	CyclesBefore  int `json:"cycles_before,omitempty"`
	SnapshotBytes int `json:"snapshot_bytes"`

	Build *graph.BuildReport `json:"build,omitempty"`
	Delta *DeltaReport       `json:"delta,omitempty"`

	// Warnings lists integrity and persistence problems that did not stop
	// the refresh.
	Warnings []string `json:"warnings,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Status describes the current graph and its latest snapshot.
type Status struct {
	State       string         `json:"state"`
	Empty       bool           `json:"empty"`
	Storage     string         `json:"storage"`
	Version     string         `json:"version,omitempty"`
	RefreshID   string         `json:"refresh_id,omitempty"`
	Mode        Mode           `json:"mode,omitempty"`
	LastRefresh *time.Time     `json:"last_refresh,omitempty"`
	NodeCount   int            `json:"node_count"`
	EdgeCount   int            `json:"edge_count"`
	CycleCount  int            `json:"cycle_count"`
	Subjects    map[string]int `json:"subjects,omitempty"`
	Snapshots   int            `json:"snapshots"`
}

// Manager orchestrates refreshes and snapshots for one store.
//
// Thread Safety:
//
//	Safe for concurrent use. Refresh, Load and Cleanup calls are
//	serialized; the store itself stays readable throughout.
type Manager struct {
	mu      sync.Mutex
	store   *graph.Store
	engine  *query.Engine
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	state   State
	current *Metadata
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a manager in state Empty.
func NewManager(store *graph.Store, backend Backend, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.engine = query.NewEngine(store, query.WithLogger(m.logger))
	return m
}

// Store returns the managed store.
func (m *Manager) Store() *graph.Store {
	return m.store
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the sidecar of the snapshot last written or loaded.
func (m *Manager) Current() (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Metadata{}, false
	}
	return *m.current, true
}

// FullRefresh rebuilds the store from records and writes a snapshot.
//
// Description:
//
//	Record problems are handled by graph.Store.Build and reported in
//	Summary.Build. The store keeps the rebuilt graph even if the write
//	fails, in which case the state stays Built.
//
// Outputs:
//
//	*RefreshSummary - Counts, version and timings.
//	error - Context cancellation, or a snapshot write failure (wraps
//	        ErrStorageLocked when another process holds the storage).
func (m *Manager) FullRefresh(ctx context.Context, concepts []graph.ConceptRecord, relationships []graph.RelationshipRecord) (*RefreshSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := startRefreshSpan(ctx, ModeFull, m.backend.Location())
	defer span.End()
	began := time.Now()

	report := m.store.Build(ctx, concepts, relationships)
	m.state = StateBuilt
	summary := &RefreshSummary{Mode: ModeFull, Build: &report}

	cycles, err := m.engine.DetectCycles(ctx)
	if err != nil {
		return m.fail(ctx, span, summary, began, fmt.Errorf("detect cycles: %w", err))
	}
	summary.CycleCount = len(cycles)

	if err := m.writeSnapshot(ctx, summary); err != nil {
		return m.fail(ctx, span, summary, began, err)
	}
	return m.finish(ctx, span, summary, began), nil
}

// IncrementalRefresh loads the latest snapshot, applies delta and writes a
// new snapshot.
//
// Description:
//
//	A missing latest pointer starts from an empty graph. An unreadable or
//	corrupt snapshot is logged, noted in the summary warnings, and also
//	starts from an empty graph. Cycle detection runs before and after the
//	delta; an increase is logged as an integrity warning and never blocks
//	the write.
//
// Outputs:
//
//	*RefreshSummary - Counts, version, delta report and warnings.
//	error - Context cancellation or a snapshot write failure.
func (m *Manager) IncrementalRefresh(ctx context.Context, delta Delta) (*RefreshSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := startRefreshSpan(ctx, ModeIncremental, m.backend.Location())
	defer span.End()
	began := time.Now()

	summary := &RefreshSummary{Mode: ModeIncremental}
	if h, ok := m.backend.(holder); ok {
		release, err := h.Hold()
		if err != nil {
			return m.fail(ctx, span, summary, began, err)
		}
		defer func() {
			if err := release(); err != nil {
				m.logger.Warn("release storage lock", "storage", m.backend.Location(), "error", err)
			}
		}()
	}

	base, err := m.loadLocked(ctx)
	switch {
	case err == nil:
		summary.BaseVersion = base.Version
	case ctx.Err() != nil:
		return m.fail(ctx, span, summary, began, err)
	case errors.Is(err, ErrNoSnapshot):
		m.logger.Info("no prior snapshot, applying delta to an empty graph",
			"storage", m.backend.Location())
		m.resetLocked()
	default:
		m.logger.Warn("latest snapshot unreadable, applying delta to an empty graph",
			"storage", m.backend.Location(), "error", err)
		summary.Warnings = append(summary.Warnings, "prior snapshot unreadable: "+err.Error())
		m.resetLocked()
	}

	before, err := m.engine.DetectCycles(ctx)
	if err != nil {
		return m.fail(ctx, span, summary, began, fmt.Errorf("detect cycles: %w", err))
	}
	summary.CyclesBefore = len(before)

	report := ApplyDelta(m.store, delta, m.logger)
	summary.Delta = &report
	m.state = StateBuilt

	after, err := m.engine.DetectCycles(ctx)
	if err != nil {
		return m.fail(ctx, span, summary, began, fmt.Errorf("detect cycles: %w", err))
	}
	summary.CycleCount = len(after)
	if introduced := newCycles(before, after); len(introduced) > 0 {
		msg := "delta introduced cycles: " + strings.Join(introduced, ", ")
		m.logger.Warn("integrity warning", "detail", msg,
			"cycles_before", len(before), "cycles_after", len(after), "new_cycles", len(introduced))
		summary.Warnings = append(summary.Warnings, msg)
	}

	if err := m.writeSnapshot(ctx, summary); err != nil {
		return m.fail(ctx, span, summary, began, err)
	}
	return m.finish(ctx, span, summary, began), nil
}

// Load replaces the store with the latest snapshot.
//
// Outputs:
//
//	Metadata - The loaded snapshot's sidecar.
//	error - ErrNoSnapshot if there is none; wraps ErrCorruptSnapshot if
//	        it cannot be decoded or restored. The store is unchanged on error.
func (m *Manager) Load(ctx context.Context) (Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, err := m.loadLocked(ctx)
	if err != nil {
		return Metadata{}, err
	}
	m.logger.Info("snapshot loaded",
		"version", meta.Version, "nodes", meta.NodeCount, "edges", meta.EdgeCount)
	return *meta, nil
}

// Status reports the graph and its latest snapshot.
//
// Description:
//
//	A manager in state Empty first tries to load the latest snapshot. No
//	snapshot, or an unreadable one, yields an empty status rather than an
//	error; the latter is logged.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateEmpty {
		if _, err := m.loadLocked(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !errors.Is(err, ErrNoSnapshot) {
				m.logger.Warn("latest snapshot unreadable, reporting empty status", "error", err)
			}
		}
	}

	st := &Status{
		State:   m.state.String(),
		Empty:   m.state == StateEmpty,
		Storage: m.backend.Location(),
	}
	if m.current != nil {
		ts := m.current.Timestamp
		st.Version = m.current.Version
		st.RefreshID = m.current.RefreshID
		st.Mode = m.current.Mode
		st.LastRefresh = &ts
	}
	if !st.Empty {
		stats := m.engine.Stats()
		st.NodeCount = stats.NodeCount
		st.EdgeCount = stats.EdgeCount
		st.Subjects = stats.Subjects
		cycles, err := m.engine.DetectCycles(ctx)
		if err != nil {
			return nil, fmt.Errorf("detect cycles: %w", err)
		}
		st.CycleCount = len(cycles)
	}

	snapshots, err := m.backend.List(ctx)
	if err != nil {
		m.logger.Warn("could not list snapshots", "error", err)
	}
	st.Snapshots = len(snapshots)
	return st, nil
}

// Cleanup keeps the newest keep snapshots and deletes the rest.
//
// Outputs:
//
//	[]string - Removed versions.
//	error - ErrInvalidKeep for keep < 0, or a backend failure.
func (m *Manager) Cleanup(ctx context.Context, keep int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed, err := m.backend.Cleanup(ctx, keep)
	if err != nil {
		return removed, fmt.Errorf("cleanup: %w", err)
	}
	recordPruned(ctx, len(removed))
	if keep == 0 && m.state == StateSnapshotted {
		m.state = StateBuilt
		m.current = nil
	}
	m.logger.Info("snapshot cleanup complete", "kept", keep, "removed", len(removed))
	return removed, nil
}

func (m *Manager) loadLocked(ctx context.Context) (*Metadata, error) {
	meta, err := m.backend.Latest(ctx)
	if err != nil {
		return nil, err
	}
	blob, err := m.backend.ReadBlob(ctx, meta)
	if err != nil {
		return nil, err
	}
	snap, err := Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", meta.Version, err)
	}
	if snap.Version != meta.Version {
		return nil, fmt.Errorf("%w: blob version %s does not match pointer %s",
			ErrCorruptSnapshot, snap.Version, meta.Version)
	}
	if err := m.store.Restore(snap.Graph); err != nil {
		return nil, fmt.Errorf("%w: restore %s: %w", ErrCorruptSnapshot, meta.Version, err)
	}
	m.state = StateSnapshotted
	m.current = &meta
	return &meta, nil
}

func (m *Manager) resetLocked() {
	m.store.Clear()
	m.state = StateEmpty
	m.current = nil
}

// writeSnapshot encodes the store and writes it under a new version.
func (m *Manager) writeSnapshot(ctx context.Context, summary *RefreshSummary) error {
	ts := m.now().UTC()
	version := newVersion(ts)
	dump := m.store.Dump()

	blob, err := Encode(Snapshot{Version: version, Timestamp: ts, Graph: dump})
	if err != nil {
		return err
	}
	meta := Metadata{
		Version:       version,
		Timestamp:     ts,
		NodeCount:     len(dump.Nodes),
		EdgeCount:     len(dump.Edges),
		BinaryFile:    binaryFileName(version),
		FormatVersion: FormatVersion,
		RefreshID:     uuid.NewString(),
		Mode:          summary.Mode,
	}
	if err := m.backend.Write(ctx, meta, blob); err != nil {
		return fmt.Errorf("write snapshot %s: %w", version, err)
	}

	m.state = StateSnapshotted
	m.current = &meta
	summary.Version = meta.Version
	summary.RefreshID = meta.RefreshID
	summary.Timestamp = ts
	summary.NodeCount = meta.NodeCount
	summary.EdgeCount = meta.EdgeCount
	summary.SnapshotBytes = len(blob)
	return nil
}

func (m *Manager) finish(ctx context.Context, span trace.Span, summary *RefreshSummary, began time.Time) *RefreshSummary {
	summary.Duration = time.Since(began)
	span.SetAttributes(
		attribute.String("refresh.version", summary.Version),
		attribute.Int("refresh.node_count", summary.NodeCount),
		attribute.Int("refresh.edge_count", summary.EdgeCount),
		attribute.Int("refresh.cycle_count", summary.CycleCount),
	)
	recordRefreshMetrics(ctx, summary.Mode, summary.Duration, summary.SnapshotBytes, true)
	m.logger.Info("refresh complete",
		"mode", summary.Mode,
		"version", summary.Version,
		"nodes", summary.NodeCount,
		"edges", summary.EdgeCount,
		"cycles", summary.CycleCount,
		"warnings", len(summary.Warnings),
		"duration", summary.Duration,
	)
	return summary
}

func (m *Manager) fail(ctx context.Context, span trace.Span, summary *RefreshSummary, began time.Time, err error) (*RefreshSummary, error) {
	summary.Duration = time.Since(began)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	recordRefreshMetrics(ctx, summary.Mode, summary.Duration, 0, false)
	m.logger.Error("refresh failed", "mode", summary.Mode, "state", m.state.String(), "error", err)
	return nil, err
}

// newCycles returns the keys of cycles in after that are not in before,
// in the order after lists them.
func newCycles(before, after []query.Cycle) []string {
	seen := make(map[string]bool, len(before))
	for _, c := range before {
		seen[cycleKey(c.Concepts)] = true
	}
	var out []string
	for _, c := range after {
		if key := cycleKey(c.Concepts); !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

// cycleKey rotates a cycle to start at its smallest id and renders it
// closed, e.g. "b->d->b".
func cycleKey(concepts []string) string {
	if len(concepts) == 0 {
		return ""
	}
	start := slices.Index(concepts, slices.Min(concepts))
	rotated := make([]string, 0, len(concepts)+1)
	rotated = append(rotated, concepts[start:]...)
	rotated = append(rotated, concepts[:start]...)
	rotated = append(rotated, rotated[0])
	return strings.Join(rotated, "->")
}
