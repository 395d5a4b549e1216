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
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

func mustAddNode(t *testing.T, s *Store, id, subject string, d Difficulty) {
	t.Helper()
	require.NoError(t, s.AddNode(Node{ID: id, Name: id, SubjectID: subject, Difficulty: d}))
}

func mustAddEdge(t *testing.T, s *Store, src, dst string, typ RelationshipType) {
	t.Helper()
	ok, err := s.AddEdge(Edge{SourceID: src, TargetID: dst, Type: typ, Strength: 1})
	require.NoError(t, err)
	require.True(t, ok, "edge %s -> %s", src, dst)
}

func assertConsistent(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.Validate())

	for subject, ids := range s.SubjectIndex() {
		for _, id := range ids {
			n, ok := s.GetNode(id)
			require.True(t, ok, "subject index lists missing node %s", id)
			assert.Equal(t, subject, n.SubjectID)
		}
	}
	for d, ids := range s.DifficultyIndex() {
		for _, id := range ids {
			n, ok := s.GetNode(id)
			require.True(t, ok, "difficulty index lists missing node %s", id)
			assert.Equal(t, d, n.Difficulty)
		}
	}
	for _, e := range s.Edges() {
		assert.True(t, s.HasNode(e.SourceID), "dangling source %s", e.SourceID)
		assert.True(t, s.HasNode(e.TargetID), "dangling target %s", e.TargetID)
	}
}

// =============================================================================
// Node Tests
// =============================================================================

func TestStore_AddNode(t *testing.T) {
	s := NewStore()
	mustAddNode(t, s, "fractions", "math", DifficultyBeginner)

	t.Run("duplicate id rejected", func(t *testing.T) {
		err := s.AddNode(Node{ID: "fractions", SubjectID: "physics"})
		require.ErrorIs(t, err, ErrDuplicateNode)

		n, ok := s.GetNode("fractions")
		require.True(t, ok)
		assert.Equal(t, "math", n.SubjectID, "failed add must not change state")
	})

	t.Run("empty id rejected", func(t *testing.T) {
		require.ErrorIs(t, s.AddNode(Node{}), ErrInvalidNode)
	})

	t.Run("negative duration rejected", func(t *testing.T) {
		require.ErrorIs(t, s.AddNode(Node{ID: "x", DurationMinutes: -1}), ErrInvalidNode)
		assert.False(t, s.HasNode("x"))
	})

	assert.Equal(t, []string{"fractions"}, s.NodesBySubject("math"))
	assert.Equal(t, []string{"fractions"}, s.NodesByDifficulty(DifficultyBeginner))
	assert.Equal(t, 1, s.NodeCount())
}

func TestStore_NodeIsCopied(t *testing.T) {
	s := NewStore()
	tags := []string{"a", "b"}
	require.NoError(t, s.AddNode(Node{ID: "n", Tags: tags}))

	tags[0] = "mutated"
	n, _ := s.GetNode("n")
	assert.Equal(t, []string{"a", "b"}, n.Tags)

	n.Tags[1] = "mutated"
	again, _ := s.GetNode("n")
	assert.Equal(t, []string{"a", "b"}, again.Tags)
}

func TestStore_RemoveNode(t *testing.T) {
	s := NewStore()
	mustAddNode(t, s, "a", "math", DifficultyBeginner)
	mustAddNode(t, s, "b", "math", DifficultyElementary)
	mustAddNode(t, s, "c", "physics", DifficultyElementary)
	mustAddEdge(t, s, "a", "b", RelPrerequisite)
	mustAddEdge(t, s, "b", "c", RelPrerequisite)
	mustAddEdge(t, s, "c", "b", RelRelatedTo)
	mustAddEdge(t, s, "b", "b", RelRelatedTo)

	assert.True(t, s.RemoveNode("b"))
	assert.False(t, s.RemoveNode("b"))
	assert.False(t, s.RemoveNode("missing"))

	assert.Equal(t, 2, s.NodeCount())
	assert.Equal(t, 0, s.EdgeCount())
	assert.Equal(t, []string{"a"}, s.NodesByDifficulty(DifficultyBeginner))
	assert.Equal(t, []string{"c"}, s.NodesByDifficulty(DifficultyElementary))
	assertConsistent(t, s)
}

func TestStore_UpdateNode(t *testing.T) {
	s := NewStore()
	mustAddNode(t, s, "a", "math", DifficultyBeginner)
	mustAddNode(t, s, "b", "math", DifficultyBeginner)
	mustAddEdge(t, s, "a", "b", RelPrerequisite)

	require.NoError(t, s.UpdateNode(Node{ID: "a", Name: "A", SubjectID: "physics", Difficulty: DifficultyExpert}))

	n, ok := s.GetNode("a")
	require.True(t, ok)
	assert.Equal(t, "A", n.Name)
	assert.Equal(t, []string{"b"}, s.NodesBySubject("math"))
	assert.Equal(t, []string{"a"}, s.NodesBySubject("physics"))
	assert.Equal(t, []string{"a"}, s.NodesByDifficulty(DifficultyExpert))
	assert.Equal(t, 1, s.EdgeCount(), "incident edges survive an update")
	assert.Equal(t, "a", s.Nodes()[0].ID, "update keeps insertion position")

	require.NoError(t, s.UpdateNode(Node{ID: "new"}))
	assert.True(t, s.HasNode("new"))
	assertConsistent(t, s)
}

// =============================================================================
// Edge Tests
// =============================================================================

func TestStore_AddEdge(t *testing.T) {
	s := NewStore()
	mustAddNode(t, s, "a", "math", DifficultyBeginner)
	mustAddNode(t, s, "b", "math", DifficultyBeginner)

	t.Run("missing endpoint fails silently", func(t *testing.T) {
		ok, err := s.AddEdge(Edge{SourceID: "a", TargetID: "ghost", Type: RelPrerequisite, Strength: 1})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, s.EdgeCount())
	})

	t.Run("strength out of range rejected", func(t *testing.T) {
		for _, strength := range []float64{-0.1, 1.01, math.NaN()} {
			_, err := s.AddEdge(Edge{SourceID: "a", TargetID: "b", Type: RelPrerequisite, Strength: strength})
			require.ErrorIs(t, err, ErrInvalidEdge, "strength %v", strength)
		}
		assert.Equal(t, 0, s.EdgeCount())
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := s.AddEdge(Edge{SourceID: "a", TargetID: "b", Type: "teaches", Strength: 1})
		require.ErrorIs(t, err, ErrInvalidEdge)
	})

	t.Run("parallel edges of different types", func(t *testing.T) {
		mustAddEdge(t, s, "a", "b", RelPrerequisite)
		mustAddEdge(t, s, "a", "b", RelBuildsOn)
		assert.Equal(t, 2, s.EdgeCount())
	})

	t.Run("same type updates in place", func(t *testing.T) {
		ok, err := s.AddEdge(Edge{SourceID: "a", TargetID: "b", Type: RelPrerequisite, Strength: 0.4})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, s.EdgeCount())
		assert.InDelta(t, 0.4, s.Edges()[0].Strength, 1e-9)
	})

	assertConsistent(t, s)
}

func TestStore_RemoveEdge(t *testing.T) {
	s := NewStore()
	mustAddNode(t, s, "a", "math", DifficultyBeginner)
	mustAddNode(t, s, "b", "math", DifficultyBeginner)
	mustAddEdge(t, s, "a", "b", RelBuildsOn)
	mustAddEdge(t, s, "a", "b", RelPrerequisite)

	assert.False(t, s.RemoveEdge("a", "b", RelLeadsTo))
	assert.True(t, s.RemoveEdge("a", "b", RelPrerequisite))

	edges := s.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, RelBuildsOn, edges[0].Type)

	assert.True(t, s.RemoveEdge("a", "b", ""), "empty type removes first match")
	assert.False(t, s.RemoveEdge("a", "b", ""))
	assert.Equal(t, 0, s.EdgeCount())
	assertConsistent(t, s)
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestStore_GenerationAndClear(t *testing.T) {
	s := NewStore()
	g0 := s.Generation()
	mustAddNode(t, s, "a", "math", DifficultyBeginner)
	g1 := s.Generation()
	assert.Greater(t, g1, g0)

	s.Clear()
	assert.Greater(t, s.Generation(), g1)
	assert.Equal(t, 0, s.NodeCount())
	assert.Empty(t, s.Subjects())
	assertConsistent(t, s)
}

func TestStore_ReadView(t *testing.T) {
	s := NewStore()
	mustAddNode(t, s, "a", "math", DifficultyBeginner)
	mustAddNode(t, s, "b", "physics", DifficultyBeginner)
	mustAddEdge(t, s, "a", "b", RelLeadsTo)

	s.Read(func(v View) {
		assert.Equal(t, []string{"a", "b"}, v.NodeIDs())
		assert.Len(t, v.Outgoing("a"), 1)
		assert.Len(t, v.Incoming("b"), 1)
		assert.Equal(t, []string{"b"}, v.SubjectNodes("physics"))
		assert.Equal(t, 1, v.EdgeCount())
	})
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				_ = s.AddNode(Node{ID: id, SubjectID: fmt.Sprintf("s%d", i%3)})
				if i > 0 {
					_, _ = s.AddEdge(Edge{SourceID: fmt.Sprintf("w%d-%d", w, i-1), TargetID: id, Type: RelPrerequisite, Strength: 1})
				}
				_ = s.NodesBySubject("s1")
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 200, s.NodeCount())
	assert.Equal(t, 196, s.EdgeCount())
	assertConsistent(t, s)
}

// Random add/remove sequences never break index symmetry.
func TestStore_IndexSymmetryUnderChurn(t *testing.T) {
	s := NewStore()
	subjects := []string{"math", "physics", "chemistry"}
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("n%d", i)
		require.NoError(t, s.AddNode(Node{ID: id, SubjectID: subjects[i%3], Difficulty: Difficulty(i%5 + 1)}))
		if i > 2 {
			_, err := s.AddEdge(Edge{SourceID: fmt.Sprintf("n%d", i-3), TargetID: id, Type: RelBuildsOn, Strength: 0.5})
			require.NoError(t, err)
		}
		if i%7 == 0 {
			s.RemoveNode(fmt.Sprintf("n%d", i/2))
		}
		if i%11 == 0 {
			require.NoError(t, s.UpdateNode(Node{ID: fmt.Sprintf("n%d", i-1), SubjectID: "biology"}))
		}
		assertConsistent(t, s)
	}
}
