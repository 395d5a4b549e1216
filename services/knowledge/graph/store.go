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
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Store is the in-memory knowledge-dependency graph.
//
// Thread Safety:
//
//	Safe for concurrent use. All state is guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex
	state

	logger   *slog.Logger
	validate *validator.Validate
}

// state is the swappable portion of a Store.
type state struct {
	// nodes keeps insertion order; every deterministic tie-break uses it.
	nodes *orderedmap.OrderedMap[string, *Node]

	outgoing  map[string][]*Edge
	incoming  map[string][]*Edge
	edgeCount int

	bySubject    map[string]map[string]struct{}
	byDifficulty map[Difficulty]map[string]struct{}

	generation uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for dropped records and build summaries.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		state:    newState(),
		logger:   slog.Default(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newState() state {
	return state{
		nodes:        orderedmap.New[string, *Node](),
		outgoing:     make(map[string][]*Edge),
		incoming:     make(map[string][]*Edge),
		bySubject:    make(map[string]map[string]struct{}),
		byDifficulty: make(map[Difficulty]map[string]struct{}),
	}
}

// AddNode inserts a copy of node.
//
// Description:
//
//	Rejects nodes with an empty id or a negative duration, and ids that
//	already exist. On success the subject and difficulty indices are
//	updated. On failure nothing changes.
//
// Outputs:
//
//	error - Wraps ErrInvalidNode or ErrDuplicateNode.
func (s *Store) AddNode(node Node) error {
	if err := checkNode(node); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes.Get(node.ID); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
	}
	s.insertNode(node)
	s.generation++
	return nil
}

// UpdateNode replaces the attributes of an existing node.
//
// Description:
//
//	The node keeps its insertion position and its incident edges; only the
//	record and its index entries change. A node that does not exist yet is
//	added.
func (s *Store) UpdateNode(node Node) error {
	if err := checkNode(node); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.nodes.Get(node.ID); exists {
		s.unindex(old)
	}
	s.insertNode(node)
	s.generation++
	return nil
}

// RemoveNode deletes a node, its index entries and every edge touching it.
//
// Returns whether the node existed.
func (s *Store) RemoveNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes.Get(id)
	if !exists {
		return false
	}

	removed := 0
	for _, e := range s.outgoing[id] {
		if e.TargetID != id {
			s.incoming[e.TargetID] = dropEdge(s.incoming[e.TargetID], e)
		}
		removed++
	}
	for _, e := range s.incoming[id] {
		if e.SourceID == id {
			continue // self-loop, counted above
		}
		s.outgoing[e.SourceID] = dropEdge(s.outgoing[e.SourceID], e)
		removed++
	}
	delete(s.outgoing, id)
	delete(s.incoming, id)
	s.edgeCount -= removed

	s.unindex(node)
	s.nodes.Delete(id)
	s.generation++
	return true
}

// AddEdge inserts an edge, or updates it in place if an edge with the same
// (source, target, type) already exists.
//
// Description:
//
//	Returns (false, nil) if either endpoint is absent. Strength must be in
//	[0, 1] and the type must be known.
//
// Outputs:
//
//	bool - True if the edge was stored or updated.
//	error - Wraps ErrInvalidEdge.
func (s *Store) AddEdge(edge Edge) (bool, error) {
	if err := checkEdge(edge); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasNodeLocked(edge.SourceID) || !s.hasNodeLocked(edge.TargetID) {
		return false, nil
	}
	s.insertEdge(edge)
	s.generation++
	return true, nil
}

// RemoveEdge deletes the first edge from src to dst of type typ.
//
// An empty typ matches any type. Returns whether an edge was removed.
func (s *Store) RemoveEdge(src, dst string, typ RelationshipType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outgoing[src] {
		if e.TargetID != dst || (typ != "" && e.Type != typ) {
			continue
		}
		s.outgoing[src] = dropEdge(s.outgoing[src], e)
		s.incoming[dst] = dropEdge(s.incoming[dst], e)
		s.edgeCount--
		s.generation++
		return true
	}
	return false
}

// Clear removes all nodes, edges and index entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.generation
	s.state = newState()
	s.generation = gen + 1
}

// GetNode returns a copy of the node with the given id.
func (s *Store) GetNode(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes.Get(id)
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// HasNode reports whether a node with the given id exists.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasNodeLocked(id)
}

// Nodes returns copies of all nodes in insertion order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Node, 0, s.nodes.Len())
	for pair := s.nodes.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.Clone())
	}
	return out
}

// Edges returns copies of all edges, grouped by source in node insertion
// order and then in edge insertion order.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesLocked()
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes.Len()
}

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgeCount
}

// Generation returns a counter that changes on every mutation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// SubjectIndex returns subject to sorted node ids.
func (s *Store) SubjectIndex() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string, len(s.bySubject))
	for subject, ids := range s.bySubject {
		out[subject] = sortedKeys(ids)
	}
	return out
}

// DifficultyIndex returns difficulty to sorted node ids.
func (s *Store) DifficultyIndex() map[Difficulty][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Difficulty][]string, len(s.byDifficulty))
	for d, ids := range s.byDifficulty {
		out[d] = sortedKeys(ids)
	}
	return out
}

// NodesBySubject returns the sorted ids of nodes in a subject.
func (s *Store) NodesBySubject(subject string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.bySubject[subject])
}

// NodesByDifficulty returns the sorted ids of nodes at a difficulty level.
func (s *Store) NodesByDifficulty(d Difficulty) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.byDifficulty[d])
}

// Subjects returns every subject that has at least one node, sorted.
func (s *Store) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.bySubject))
	for subject := range s.bySubject {
		out = append(out, subject)
	}
	slices.Sort(out)
	return out
}

// Read runs fn with the read lock held.
//
// The View passed to fn is only valid for the duration of the call.
func (s *Store) Read(fn func(View)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(View{st: &s.state})
}

// Validate checks that both indices match the node table and that no edge
// references a missing node.
func (s *Store) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.check()
}

func (st *state) check() error {
	for subject, ids := range st.bySubject {
		for id := range ids {
			n, ok := st.nodes.Get(id)
			if !ok || n.SubjectID != subject {
				return fmt.Errorf("%w: subject %q lists %s", ErrIndexMismatch, subject, id)
			}
		}
	}
	for d, ids := range st.byDifficulty {
		for id := range ids {
			n, ok := st.nodes.Get(id)
			if !ok || n.Difficulty != d {
				return fmt.Errorf("%w: difficulty %s lists %s", ErrIndexMismatch, d, id)
			}
		}
	}
	for pair := st.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		if _, ok := st.bySubject[n.SubjectID][n.ID]; !ok {
			return fmt.Errorf("%w: %s missing from subject index", ErrIndexMismatch, n.ID)
		}
		if _, ok := st.byDifficulty[n.Difficulty][n.ID]; !ok {
			return fmt.Errorf("%w: %s missing from difficulty index", ErrIndexMismatch, n.ID)
		}
	}

	count := 0
	for src, edges := range st.outgoing {
		for _, e := range edges {
			if _, ok := st.nodes.Get(src); !ok {
				return fmt.Errorf("%w: %s -> %s", ErrDanglingEdge, e.SourceID, e.TargetID)
			}
			if _, ok := st.nodes.Get(e.TargetID); !ok {
				return fmt.Errorf("%w: %s -> %s", ErrDanglingEdge, e.SourceID, e.TargetID)
			}
			count++
		}
	}
	if count != st.edgeCount {
		return fmt.Errorf("%w: edge count %d, found %d", ErrIndexMismatch, st.edgeCount, count)
	}
	return nil
}

func (st *state) hasNodeLocked(id string) bool {
	_, ok := st.nodes.Get(id)
	return ok
}

// insertNode stores a copy of node and indexes it. Caller holds the lock.
func (st *state) insertNode(node Node) {
	c := node.Clone()
	st.nodes.Set(c.ID, &c)

	if st.bySubject[c.SubjectID] == nil {
		st.bySubject[c.SubjectID] = make(map[string]struct{})
	}
	st.bySubject[c.SubjectID][c.ID] = struct{}{}

	if st.byDifficulty[c.Difficulty] == nil {
		st.byDifficulty[c.Difficulty] = make(map[string]struct{})
	}
	st.byDifficulty[c.Difficulty][c.ID] = struct{}{}
}

func (st *state) unindex(n *Node) {
	if ids := st.bySubject[n.SubjectID]; ids != nil {
		delete(ids, n.ID)
		if len(ids) == 0 {
			delete(st.bySubject, n.SubjectID)
		}
	}
	if ids := st.byDifficulty[n.Difficulty]; ids != nil {
		delete(ids, n.ID)
		if len(ids) == 0 {
			delete(st.byDifficulty, n.Difficulty)
		}
	}
}

// insertEdge adds or updates an edge. Endpoints must exist.
func (st *state) insertEdge(edge Edge) {
	for _, e := range st.outgoing[edge.SourceID] {
		if e.TargetID == edge.TargetID && e.Type == edge.Type {
			e.Strength = edge.Strength
			e.Metadata = cloneMap(edge.Metadata)
			return
		}
	}
	c := edge.Clone()
	st.outgoing[c.SourceID] = append(st.outgoing[c.SourceID], &c)
	st.incoming[c.TargetID] = append(st.incoming[c.TargetID], &c)
	st.edgeCount++
}

func (st *state) edgesLocked() []Edge {
	out := make([]Edge, 0, st.edgeCount)
	for pair := st.nodes.Oldest(); pair != nil; pair = pair.Next() {
		for _, e := range st.outgoing[pair.Key] {
			out = append(out, e.Clone())
		}
	}
	return out
}

func checkNode(node Node) error {
	if node.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if node.DurationMinutes < 0 {
		return fmt.Errorf("%w: %s has negative duration %d", ErrInvalidNode, node.ID, node.DurationMinutes)
	}
	return nil
}

func checkEdge(edge Edge) error {
	if math.IsNaN(edge.Strength) || edge.Strength < 0 || edge.Strength > 1 {
		return fmt.Errorf("%w: strength %v outside [0,1] for %s -> %s",
			ErrInvalidEdge, edge.Strength, edge.SourceID, edge.TargetID)
	}
	if !edge.Type.Valid() {
		return fmt.Errorf("%w: unknown relationship type %q", ErrInvalidEdge, edge.Type)
	}
	return nil
}

// dropEdge removes e (by pointer) preserving order.
func dropEdge(edges []*Edge, e *Edge) []*Edge {
	i := slices.Index(edges, e)
	if i < 0 {
		return edges
	}
	edges = slices.Delete(edges, i, i+1)
	if len(edges) == 0 {
		return nil
	}
	return edges
}

func sortedKeys[K ~string](m map[K]struct{}) []K {
	if len(m) == 0 {
		return nil
	}
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
