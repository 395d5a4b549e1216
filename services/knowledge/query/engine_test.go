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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
)

// =============================================================================
// Test Fixtures
// =============================================================================

type testNode struct {
	id       string
	subject  string
	duration int
	level    graph.Difficulty
}

type testEdge struct {
	src, dst string
	typ      graph.RelationshipType
}

func buildEngine(t *testing.T, nodes []testNode, edges []testEdge) *Engine {
	t.Helper()
	s := graph.NewStore()
	for _, n := range nodes {
		require.NoError(t, s.AddNode(graph.Node{
			ID:              n.id,
			Name:            n.id,
			SubjectID:       n.subject,
			DurationMinutes: n.duration,
			Difficulty:      n.level,
		}))
	}
	for _, e := range edges {
		typ := e.typ
		if typ == "" {
			typ = graph.RelPrerequisite
		}
		ok, err := s.AddEdge(graph.Edge{SourceID: e.src, TargetID: e.dst, Type: typ, Strength: 1})
		require.NoError(t, err)
		require.True(t, ok, "edge %s -> %s", e.src, e.dst)
	}
	return NewEngine(s)
}

func chain(ids ...string) []testEdge {
	var edges []testEdge
	for i := 1; i < len(ids); i++ {
		edges = append(edges, testEdge{src: ids[i-1], dst: ids[i]})
	}
	return edges
}

func mathChain(t *testing.T) *Engine {
	return buildEngine(t, []testNode{
		{id: "fractions", subject: "math", duration: 30, level: graph.DifficultyBeginner},
		{id: "decimals", subject: "math", duration: 45, level: graph.DifficultyElementary},
		{id: "percentages", subject: "math", duration: 40, level: graph.DifficultyIntermediate},
	}, chain("fractions", "decimals", "percentages"))
}

// =============================================================================
// Traversal Tests
// =============================================================================

func TestEngine_FractionsScenario(t *testing.T) {
	e := mathChain(t)

	assert.Equal(t, []string{"decimals", "fractions"}, e.Prerequisites("percentages", true))
	assert.Equal(t, []string{"decimals"}, e.Prerequisites("percentages", false))
	assert.Equal(t, 2, e.ConceptDepth("percentages"))
	assert.Equal(t, 0, e.ConceptDepth("fractions"))
	assert.Equal(t, -1, e.ConceptDepth("missing"))

	assert.Equal(t, []string{"decimals", "percentages"}, e.Postrequisites("fractions", true))
}

func TestEngine_PrerequisitesTypeFilter(t *testing.T) {
	e := buildEngine(t, []testNode{{id: "a"}, {id: "b"}, {id: "c"}, {id: "d"}}, []testEdge{
		{src: "a", dst: "d", typ: graph.RelPrerequisite},
		{src: "b", dst: "d", typ: graph.RelAnalogousTo},
		{src: "b", dst: "d", typ: graph.RelBuildsOn},
		{src: "c", dst: "b", typ: graph.RelBuildsOn},
	})

	assert.Equal(t, []string{"a", "b"}, e.Prerequisites("d", false))
	assert.Equal(t, []string{"b"}, e.Prerequisites("d", false, graph.RelBuildsOn),
		"any edge of an allowed type qualifies")
	assert.Equal(t, []string{"a"}, e.Prerequisites("d", false, graph.RelPrerequisite))
	assert.Equal(t, []string{"b", "c"}, e.Prerequisites("d", true, graph.RelBuildsOn))
	assert.Nil(t, e.Prerequisites("d", false, graph.RelLeadsTo))
}

func TestEngine_MissingConcept(t *testing.T) {
	e := mathChain(t)
	assert.Nil(t, e.Prerequisites("ghost", true))
	assert.Nil(t, e.Postrequisites("ghost", false))
	assert.Nil(t, e.FindLearningPath("ghost", "percentages", 0))
	assert.Nil(t, e.FindOptimalPath("fractions", "ghost", WeightByDuration))

	paths, err := e.FindAllPaths(context.Background(), "ghost", "fractions", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

// Transitivity holds over a generated layered graph.
func TestEngine_Transitivity(t *testing.T) {
	var nodes []testNode
	var edges []testEdge
	for i := 0; i < 20; i++ {
		nodes = append(nodes, testNode{id: fmt.Sprintf("n%02d", i)})
		if i >= 2 {
			edges = append(edges, testEdge{src: fmt.Sprintf("n%02d", i-2), dst: fmt.Sprintf("n%02d", i)})
		}
		if i%3 == 0 && i > 0 {
			edges = append(edges, testEdge{src: fmt.Sprintf("n%02d", i-1), dst: fmt.Sprintf("n%02d", i)})
		}
	}
	e := buildEngine(t, nodes, edges)

	for _, a := range nodes {
		closure := e.Prerequisites(a.id, true)
		for _, b := range e.Prerequisites(a.id, false) {
			for _, c := range e.Prerequisites(b, false) {
				assert.Contains(t, closure, c, "%s -> %s -> %s", c, b, a.id)
			}
		}
	}
}

func TestEngine_CyclicDepthTerminates(t *testing.T) {
	e := buildEngine(t, []testNode{{id: "a"}, {id: "b"}, {id: "c"}},
		append(chain("a", "b", "c"), testEdge{src: "c", dst: "a"}))

	assert.GreaterOrEqual(t, e.ConceptDepth("c"), 1)
	assert.Equal(t, []string{"a", "b"}, e.Prerequisites("c", true), "self excluded from closure")
}

// =============================================================================
// Ranking Tests
// =============================================================================

func TestEngine_IsolatedAndFoundational(t *testing.T) {
	e := buildEngine(t,
		[]testNode{{id: "hub"}, {id: "x"}, {id: "y"}, {id: "z"}, {id: "lonely"}, {id: "loop"}},
		[]testEdge{
			{src: "hub", dst: "x"},
			{src: "hub", dst: "y"},
			{src: "hub", dst: "y", typ: graph.RelBuildsOn},
			{src: "hub", dst: "z"},
			{src: "x", dst: "z"},
			{src: "loop", dst: "loop"},
		})

	assert.Equal(t, []string{"lonely"}, e.FindIsolatedConcepts())

	top := e.FindFoundationalConcepts(3)
	require.Len(t, top, 3)
	assert.Equal(t, "hub", top[0].ID)
	assert.Equal(t, 3.0, top[0].Score, "parallel edges count one dependent")
	assert.Equal(t, "x", top[1].ID)
	assert.Equal(t, "loop", top[2].ID, "ties keep insertion order")

	assert.Len(t, e.FindFoundationalConcepts(0), 6)
}

func TestEngine_FindCentralConcepts(t *testing.T) {
	// a -> b -> c -> d, plus a -> c: b and c carry the through traffic.
	e := buildEngine(t, []testNode{{id: "a"}, {id: "b"}, {id: "c"}, {id: "d"}},
		append(chain("a", "b", "c", "d"), testEdge{src: "a", dst: "c"}))

	ranked, err := e.FindCentralConcepts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, ranked, 4)

	// Pairs through c: a->d, b->d. Normalized by 1/(3*2).
	assert.Equal(t, "c", ranked[0].ID)
	assert.InDelta(t, 2.0/6.0, ranked[0].Score, 1e-9)
	assert.Equal(t, "a", ranked[1].ID, "zero scores keep insertion order")
	assert.InDelta(t, 0, ranked[1].Score, 1e-9)

	top, err := e.FindCentralConcepts(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestEngine_FindCentralConceptsDeterministic(t *testing.T) {
	var nodes []testNode
	var edges []testEdge
	for i := 0; i < 40; i++ {
		nodes = append(nodes, testNode{id: fmt.Sprintf("c%02d", i)})
		edges = append(edges, testEdge{src: fmt.Sprintf("c%02d", i), dst: fmt.Sprintf("c%02d", (i*7+3)%40)})
		edges = append(edges, testEdge{src: fmt.Sprintf("c%02d", i), dst: fmt.Sprintf("c%02d", (i+1)%40)})
	}
	e := buildEngine(t, nodes, dedupe(edges))

	first, err := e.FindCentralConcepts(context.Background(), 10)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.FindCentralConcepts(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEngine_FindCentralConceptsCancelled(t *testing.T) {
	e := mathChain(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.FindCentralConcepts(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Stats(t *testing.T) {
	e := buildEngine(t,
		[]testNode{
			{id: "a", subject: "math", level: graph.DifficultyBeginner},
			{id: "b", subject: "math"},
			{id: "c", subject: "physics"},
		},
		[]testEdge{{src: "a", dst: "b"}, {src: "a", dst: "b", typ: graph.RelLeadsTo}})

	stats := e.Stats()
	assert.Equal(t, 3, stats.NodeCount)
	assert.Equal(t, 2, stats.EdgeCount)
	assert.Equal(t, map[string]int{"math": 2, "physics": 1}, stats.Subjects)
	assert.Equal(t, map[string]int{"beginner": 1, "unknown": 2}, stats.Difficulties)
	assert.Equal(t, map[string]int{"prerequisite": 1, "leads_to": 1}, stats.RelationshipTypes)
	assert.Equal(t, 1, stats.IsolatedCount)
}

func dedupe(edges []testEdge) []testEdge {
	seen := make(map[testEdge]bool)
	var out []testEdge
	for _, e := range edges {
		if e.src == e.dst || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
