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
	"slices"
)

// Dump is a detached copy of the full graph state.
//
// Empty collections are nil so that two dumps of equal graphs compare equal.
type Dump struct {
	// Nodes in insertion order.
	Nodes []Node

	// Edges grouped by source node order, then edge insertion order.
	Edges []Edge

	// SubjectIndex maps subject to sorted node ids.
	SubjectIndex map[string][]string

	// DifficultyIndex maps difficulty to sorted node ids.
	DifficultyIndex map[Difficulty][]string
}

// Dump returns a deep copy of the graph.
func (s *Store) Dump() Dump {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.dump()
}

func (st *state) dump() Dump {
	var d Dump
	for pair := st.nodes.Oldest(); pair != nil; pair = pair.Next() {
		d.Nodes = append(d.Nodes, pair.Value.Clone())
	}
	if st.edgeCount > 0 {
		d.Edges = st.edgesLocked()
	}
	if len(st.bySubject) > 0 {
		d.SubjectIndex = make(map[string][]string, len(st.bySubject))
		for subject, ids := range st.bySubject {
			d.SubjectIndex[subject] = sortedKeys(ids)
		}
	}
	if len(st.byDifficulty) > 0 {
		d.DifficultyIndex = make(map[Difficulty][]string, len(st.byDifficulty))
		for diff, ids := range st.byDifficulty {
			d.DifficultyIndex[diff] = sortedKeys(ids)
		}
	}
	return d
}

// Restore replaces the graph with the contents of d.
//
// Description:
//
//	The new graph is assembled off to the side and swapped in under the
//	write lock. Indices are rebuilt from the node table and then compared to
//	the index tables carried by d; any disagreement rejects the dump. On
//	error the store is left unchanged.
//
// Outputs:
//
//	error - Wraps ErrInvalidNode, ErrDuplicateNode, ErrInvalidEdge,
//	        ErrNodeNotFound or ErrIndexMismatch.
func (s *Store) Restore(d Dump) error {
	st := newState()

	for _, n := range d.Nodes {
		if err := checkNode(n); err != nil {
			return err
		}
		if st.hasNodeLocked(n.ID) {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		st.insertNode(n)
	}
	for _, e := range d.Edges {
		if err := checkEdge(e); err != nil {
			return err
		}
		if !st.hasNodeLocked(e.SourceID) {
			return fmt.Errorf("%w: edge source %s", ErrNodeNotFound, e.SourceID)
		}
		if !st.hasNodeLocked(e.TargetID) {
			return fmt.Errorf("%w: edge target %s", ErrNodeNotFound, e.TargetID)
		}
		st.insertEdge(e)
	}

	rebuilt := st.dump()
	if !indexEqual(rebuilt.SubjectIndex, d.SubjectIndex) {
		return fmt.Errorf("%w: subject index", ErrIndexMismatch)
	}
	if !indexEqual(rebuilt.DifficultyIndex, d.DifficultyIndex) {
		return fmt.Errorf("%w: difficulty index", ErrIndexMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.generation = s.generation + 1
	s.state = st
	return nil
}

// indexEqual compares two index tables, ignoring id order.
func indexEqual[K comparable](a, b map[K][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, ids := range a {
		other, ok := b[k]
		if !ok || len(ids) != len(other) {
			return false
		}
		sorted := slices.Clone(other)
		slices.Sort(sorted)
		if !slices.Equal(ids, sorted) {
			return false
		}
	}
	return true
}
