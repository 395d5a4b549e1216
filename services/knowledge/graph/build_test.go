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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestStore_Build(t *testing.T) {
	s := NewStore()
	mustAddNode(t, s, "stale", "history", DifficultyBeginner)

	concepts := []ConceptRecord{
		{ID: "fractions", SubjectID: "math", DifficultyLevel: "beginner", EstimatedDuration: 30},
		{ID: "decimals", Name: "Decimals", SubjectID: "math", DifficultyLevel: "Elementary", EstimatedDuration: 45},
		{ID: "percentages", SubjectID: "math", DifficultyLevel: "bogus", Tags: []string{"ratio"}},
		{ID: "fractions", SubjectID: "physics"},
		{ID: ""},
		{ID: "negative", EstimatedDuration: -5},
	}
	relationships := []RelationshipRecord{
		{Source: "fractions", Target: "decimals", Type: "prerequisite"},
		{Source: "decimals", Target: "percentages", Type: "no-such-type", Strength: ptr(0.7)},
		{Source: "decimals", Target: "ghost"},
		{Source: "fractions", Target: "percentages", Type: "builds_on", Strength: ptr(1.5)},
		{Source: "", Target: "decimals"},
	}

	report := s.Build(context.Background(), concepts, relationships)

	assert.Equal(t, BuildReport{
		NodesLoaded:   3,
		NodesSkipped:  3,
		EdgesLoaded:   2,
		EdgesDropped:  3,
		TypeFallbacks: 2,
	}, report)

	assert.False(t, s.HasNode("stale"), "build clears previous state")

	n, ok := s.GetNode("fractions")
	require.True(t, ok)
	assert.Equal(t, "fractions", n.Name, "name defaults to id")
	assert.Equal(t, "math", n.SubjectID, "first record wins")
	assert.Equal(t, 30, n.DurationMinutes)

	p, _ := s.GetNode("percentages")
	assert.Equal(t, DifficultyUnknown, p.Difficulty)

	edges := s.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, Edge{SourceID: "fractions", TargetID: "decimals", Type: RelPrerequisite, Strength: 1}, edges[0])
	assert.Equal(t, RelPrerequisite, edges[1].Type, "unknown type falls back")
	assert.InDelta(t, 0.7, edges[1].Strength, 1e-9)

	assertConsistent(t, s)
}

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		in   string
		want Difficulty
		ok   bool
	}{
		{"beginner", DifficultyBeginner, true},
		{" EXPERT ", DifficultyExpert, true},
		{"Intermediate", DifficultyIntermediate, true},
		{"unknown", DifficultyUnknown, false},
		{"", DifficultyUnknown, false},
	}
	for _, tt := range tests {
		got, ok := ParseDifficulty(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}

	assert.Equal(t, 1, DifficultyBeginner.Weight())
	assert.Equal(t, 5, DifficultyExpert.Weight())
	assert.Equal(t, 3, DifficultyUnknown.Weight())
}

// =============================================================================
// Dump / Restore Tests
// =============================================================================

func TestStore_DumpRestore(t *testing.T) {
	src := NewStore()
	src.Build(context.Background(), []ConceptRecord{
		{ID: "a", SubjectID: "math", DifficultyLevel: "beginner", Keywords: []string{"k"}},
		{ID: "b", SubjectID: "physics", DifficultyLevel: "advanced", Metadata: map[string]string{"grade": "9"}},
		{ID: "c", SubjectID: "math"},
	}, []RelationshipRecord{
		{Source: "a", Target: "b", Type: "leads_to", Strength: ptr(0.25)},
		{Source: "a", Target: "b", Type: "related_to"},
		{Source: "c", Target: "c", Type: "related_to"},
	})

	dump := src.Dump()
	dst := NewStore()
	require.NoError(t, dst.Restore(dump))

	if diff := cmp.Diff(dump, dst.Dump()); diff != "" {
		t.Errorf("restored graph differs (-want +got):\n%s", diff)
	}
	assertConsistent(t, dst)
}

func TestStore_RestoreEmpty(t *testing.T) {
	s := NewStore()
	mustAddNode(t, s, "a", "math", DifficultyBeginner)

	require.NoError(t, s.Restore(Dump{}))
	assert.Equal(t, 0, s.NodeCount())
	assert.Equal(t, Dump{}, s.Dump())
}

func TestStore_RestoreRejects(t *testing.T) {
	good := Dump{
		Nodes:           []Node{{ID: "a", SubjectID: "math"}},
		SubjectIndex:    map[string][]string{"math": {"a"}},
		DifficultyIndex: map[Difficulty][]string{DifficultyUnknown: {"a"}},
	}

	tests := []struct {
		name   string
		mutate func(d *Dump)
		want   error
	}{
		{"dangling edge", func(d *Dump) {
			d.Edges = []Edge{{SourceID: "a", TargetID: "zzz", Type: RelPrerequisite}}
		}, ErrNodeNotFound},
		{"subject index mismatch", func(d *Dump) {
			d.SubjectIndex = map[string][]string{"physics": {"a"}}
		}, ErrIndexMismatch},
		{"difficulty index mismatch", func(d *Dump) {
			d.DifficultyIndex = nil
		}, ErrIndexMismatch},
		{"duplicate node", func(d *Dump) {
			d.Nodes = append(d.Nodes, Node{ID: "a", SubjectID: "math"})
		}, ErrDuplicateNode},
		{"bad strength", func(d *Dump) {
			d.Nodes = append(d.Nodes, Node{ID: "b", SubjectID: "math"})
			d.SubjectIndex = map[string][]string{"math": {"a", "b"}}
			d.DifficultyIndex = map[Difficulty][]string{DifficultyUnknown: {"a", "b"}}
			d.Edges = []Edge{{SourceID: "a", TargetID: "b", Type: RelPrerequisite, Strength: 2}}
		}, ErrInvalidEdge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			mustAddNode(t, s, "keep", "history", DifficultyBeginner)

			d := good
			d.Nodes = append([]Node(nil), good.Nodes...)
			tt.mutate(&d)

			require.ErrorIs(t, s.Restore(d), tt.want)
			assert.True(t, s.HasNode("keep"), "failed restore leaves the store untouched")
		})
	}

	s := NewStore()
	require.NoError(t, s.Restore(good))
	assert.True(t, s.HasNode("a"))
}
