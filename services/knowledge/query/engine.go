// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query answers traversal, path, cycle and ranking queries over a
// graph.Store.
//
// The Engine holds no graph state of its own. Every query runs inside
// Store.Read, so it sees a single consistent version of the graph and never
// observes a mutation in progress.
//
// Queries on an id that does not exist return an empty result or nil. The
// only exception is ConceptDepth, which returns -1. Long-running queries take
// a context and stop early when it is cancelled.
package query

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
)

// Engine runs read-only queries against a Store.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Engine struct {
	store  *graph.Store
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine over store.
func NewEngine(store *graph.Store, opts ...Option) *Engine {
	e := &Engine{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() *graph.Store {
	return e.store
}

// Prerequisites returns the ids of the concepts id depends on, sorted.
//
// Description:
//
//	Non-recursive mode returns direct predecessors; recursive mode returns
//	every ancestor. If types is non-empty, only edges of those types are
//	followed, in both modes. The concept itself is never in the result, even
//	if it lies on a cycle.
//
// Inputs:
//
//	id - Concept to start from.
//	recursive - Follow edges transitively.
//	types - Optional relationship type filter.
//
// Outputs:
//
//	[]string - Sorted ids, nil if id is absent or has none.
func (e *Engine) Prerequisites(id string, recursive bool, types ...graph.RelationshipType) []string {
	start := time.Now()
	var out []string
	e.store.Read(func(v graph.View) {
		out = walk(v, id, recursive, types, func(n string) []*graph.Edge { return v.Incoming(n) }, sourceOf)
	})
	recordQueryMetrics(context.Background(), "prerequisites", time.Since(start), len(out))
	return out
}

// Postrequisites returns the ids of the concepts that depend on id, sorted.
//
// It mirrors Prerequisites over outgoing edges.
func (e *Engine) Postrequisites(id string, recursive bool, types ...graph.RelationshipType) []string {
	start := time.Now()
	var out []string
	e.store.Read(func(v graph.View) {
		out = walk(v, id, recursive, types, func(n string) []*graph.Edge { return v.Outgoing(n) }, targetOf)
	})
	recordQueryMetrics(context.Background(), "postrequisites", time.Since(start), len(out))
	return out
}

func sourceOf(e *graph.Edge) string { return e.SourceID }
func targetOf(e *graph.Edge) string { return e.TargetID }

// walk is a BFS over edges(id) collecting other(edge). Caller holds the read lock.
func walk(
	v graph.View,
	id string,
	recursive bool,
	types []graph.RelationshipType,
	edges func(string) []*graph.Edge,
	other func(*graph.Edge) string,
) []string {
	if !v.HasNode(id) {
		return nil
	}

	seen := map[string]bool{id: true}
	var found []string
	queue := []string{id}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range edges(current) {
			if len(types) > 0 && !slices.Contains(types, edge.Type) {
				continue
			}
			next := other(edge)
			if seen[next] {
				continue
			}
			seen[next] = true
			found = append(found, next)
			if recursive {
				queue = append(queue, next)
			}
		}
	}

	slices.Sort(found)
	return found
}

// FindIsolatedConcepts returns concepts with no incoming or outgoing edges,
// in insertion order.
func (e *Engine) FindIsolatedConcepts() []string {
	var out []string
	e.store.Read(func(v graph.View) {
		v.EachNode(func(n *graph.Node) bool {
			if len(v.Incoming(n.ID)) == 0 && len(v.Outgoing(n.ID)) == 0 {
				out = append(out, n.ID)
			}
			return true
		})
	})
	return out
}

// FindFoundationalConcepts ranks concepts by the number of distinct concepts
// that directly depend on them.
//
// Description:
//
//	Scores are unique direct successor counts. Ties keep insertion order.
//	topN <= 0 returns every concept.
func (e *Engine) FindFoundationalConcepts(topN int) []RankedConcept {
	start := time.Now()
	var ranked []RankedConcept
	e.store.Read(func(v graph.View) {
		v.EachNode(func(n *graph.Node) bool {
			ranked = append(ranked, RankedConcept{
				ID:    n.ID,
				Name:  n.Name,
				Score: float64(len(uniqueTargets(v.Outgoing(n.ID)))),
			})
			return true
		})
	})
	ranked = topRanked(ranked, topN)
	recordQueryMetrics(context.Background(), "foundational", time.Since(start), len(ranked))
	return ranked
}

// ConceptDepth returns the length of the longest prerequisite chain ending
// at id.
//
// Description:
//
//	A concept with no prerequisites has depth 0; otherwise its depth is one
//	more than the deepest of its ancestors. Ancestors already on the current
//	chain are ignored so cycles terminate.
//
// Outputs:
//
//	int - Depth, or -1 if id does not exist.
func (e *Engine) ConceptDepth(id string) int {
	depth := -1
	e.store.Read(func(v graph.View) {
		if !v.HasNode(id) {
			return
		}
		memo := make(map[string]int)
		onChain := make(map[string]bool)
		depth = conceptDepth(v, id, memo, onChain)
	})
	return depth
}

func conceptDepth(v graph.View, id string, memo map[string]int, onChain map[string]bool) int {
	if d, ok := memo[id]; ok {
		return d
	}
	onChain[id] = true
	depth := 0
	for _, edge := range v.Incoming(id) {
		if onChain[edge.SourceID] {
			continue
		}
		if d := conceptDepth(v, edge.SourceID, memo, onChain) + 1; d > depth {
			depth = d
		}
	}
	onChain[id] = false
	memo[id] = depth
	return depth
}

// Stats returns counts and distributions over the whole graph.
func (e *Engine) Stats() Stats {
	stats := Stats{
		Subjects:          make(map[string]int),
		Difficulties:      make(map[string]int),
		RelationshipTypes: make(map[string]int),
	}
	e.store.Read(func(v graph.View) {
		stats.NodeCount = v.NodeCount()
		stats.EdgeCount = v.EdgeCount()
		v.EachNode(func(n *graph.Node) bool {
			stats.Subjects[n.SubjectID]++
			stats.Difficulties[n.Difficulty.String()]++
			out := v.Outgoing(n.ID)
			for _, edge := range out {
				stats.RelationshipTypes[string(edge.Type)]++
			}
			if len(out) == 0 && len(v.Incoming(n.ID)) == 0 {
				stats.IsolatedCount++
			}
			return true
		})
	})
	return stats
}

// uniqueTargets returns the distinct targets of edges in first-seen order.
func uniqueTargets(edges []*graph.Edge) []string {
	if len(edges) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(edges))
	out := make([]string, 0, len(edges))
	for _, edge := range edges {
		if !seen[edge.TargetID] {
			seen[edge.TargetID] = true
			out = append(out, edge.TargetID)
		}
	}
	return out
}

// topRanked sorts by score descending, keeping input order for ties, and
// truncates to topN when topN > 0.
func topRanked(ranked []RankedConcept, topN int) []RankedConcept {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
