// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
	"github.com/AleutianAI/conceptgraph/services/knowledge/materialize"
	"github.com/AleutianAI/conceptgraph/services/knowledge/query"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0640))
	return path
}

// =============================================================================
// Dataset Tests
// =============================================================================

func TestLoadDataset_JSONAndYAMLAgree(t *testing.T) {
	jsonPath := writeFile(t, "records.json", `{
  "concepts": [
    {"id": "a", "name": "Limits", "subject_id": "math", "difficulty_level": "advanced", "estimated_duration": 30, "tags": ["calculus"]},
    {"id": "b", "name": "Derivatives", "subject_id": "math"}
  ],
  "relationships": [
    {"source": "a", "target": "b", "type": "builds_on", "strength": 0.75, "metadata": {"why": "definition"}}
  ]
}`)
	yamlPath := writeFile(t, "records.yml", `
concepts:
  - id: a
    name: Limits
    subject_id: math
    difficulty_level: advanced
    estimated_duration: 30
    tags: [calculus]
  - id: b
    name: Derivatives
    subject_id: math
relationships:
  - source: a
    target: b
    type: builds_on
    strength: 0.75
    metadata: {why: definition}
`)

	fromJSON, err := LoadDataset(jsonPath)
	require.NoError(t, err)
	fromYAML, err := LoadDataset(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)

	require.Len(t, fromJSON.Relationships, 1)
	require.NotNil(t, fromJSON.Relationships[0].Strength)
	assert.InDelta(t, 0.75, *fromJSON.Relationships[0].Strength, 1e-9)
	assert.Equal(t, 30, fromJSON.Concepts[0].EstimatedDuration)
}

func TestLoadDataset_Errors(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		_, err := LoadDataset(writeFile(t, "records.csv", "id\n"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDataset(filepath.Join(t.TempDir(), "none.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("unknown key", func(t *testing.T) {
		_, err := LoadDataset(writeFile(t, "delta.json", `{"add_nodes": []}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "add_nodes")
	})
	t.Run("bad yaml", func(t *testing.T) {
		_, err := LoadDataset(writeFile(t, "records.yaml", "concepts: [\n"))
		assert.Error(t, err)
	})
	t.Run("empty yaml", func(t *testing.T) {
		ds, err := LoadDataset(writeFile(t, "records.yaml", ""))
		require.NoError(t, err)
		assert.Empty(t, ds.Concepts)
	})
}

func TestLoadDelta(t *testing.T) {
	path := writeFile(t, "delta.yaml", `
add_nodes:
  - {id: x, subject_id: physics}
update_nodes:
  - {id: a, name: Renamed}
delete_nodes: [b]
add_edges:
  - {source: a, target: x}
delete_edges:
  - {source: a, target: b, type: prerequisite}
  - {source: c, target: d}
`)
	d, err := LoadDelta(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, d.DeleteNodes)
	assert.Equal(t, "physics", d.AddNodes[0].SubjectID)
	assert.Equal(t, "Renamed", d.UpdateNodes[0].Name)
	assert.Equal(t, []materialize.EdgeRef{
		{Source: "a", Target: "b", Type: "prerequisite"},
		{Source: "c", Target: "d"},
	}, d.DeleteEdges)
	assert.False(t, d.Empty())
}

// =============================================================================
// Sample Dataset Tests
// =============================================================================

func TestSampleDataset_BuildsClean(t *testing.T) {
	ds, err := SampleDataset()
	require.NoError(t, err)

	store := graph.NewStore()
	report := store.Build(context.Background(), ds.Concepts, ds.Relationships)
	assert.Equal(t, 27, report.NodesLoaded)
	assert.Equal(t, 38, report.EdgesLoaded)
	assert.Zero(t, report.NodesSkipped)
	assert.Zero(t, report.EdgesDropped)
	require.NoError(t, store.Validate())

	engine := query.NewEngine(store)
	cycles, err := engine.DetectCycles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cycles)
	assert.Empty(t, engine.FindIsolatedConcepts())
	assert.ElementsMatch(t,
		[]string{"math", "physics", "chemistry", "computer_science", "economics"},
		store.Subjects())
}

func TestSampleDataset_ReturnsCopies(t *testing.T) {
	first, err := SampleDataset()
	require.NoError(t, err)
	first.Concepts[0].ID = "mutated"

	second, err := SampleDataset()
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(second.Concepts[0].ID, "mutated"))
}
