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

// View is read-only access to a Store while its read lock is held.
//
// Obtain one through Store.Read. Returned pointers and slices alias store
// state: do not mutate them and do not keep them after the callback returns.
type View struct {
	st *state
}

// Node returns the node with the given id.
func (v View) Node(id string) (*Node, bool) {
	return v.st.nodes.Get(id)
}

// HasNode reports whether id exists.
func (v View) HasNode(id string) bool {
	return v.st.hasNodeLocked(id)
}

// Outgoing returns the edges leaving id in insertion order.
func (v View) Outgoing(id string) []*Edge {
	return v.st.outgoing[id]
}

// Incoming returns the edges entering id in insertion order.
func (v View) Incoming(id string) []*Edge {
	return v.st.incoming[id]
}

// NodeIDs returns every node id in insertion order.
func (v View) NodeIDs() []string {
	ids := make([]string, 0, v.st.nodes.Len())
	for pair := v.st.nodes.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

// EachNode calls fn for each node in insertion order until fn returns false.
func (v View) EachNode(fn func(*Node) bool) {
	for pair := v.st.nodes.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Value) {
			return
		}
	}
}

// NodeCount returns the number of nodes.
func (v View) NodeCount() int {
	return v.st.nodes.Len()
}

// EdgeCount returns the number of edges.
func (v View) EdgeCount() int {
	return v.st.edgeCount
}

// SubjectNodes returns the sorted ids of nodes in subject.
func (v View) SubjectNodes(subject string) []string {
	return sortedKeys(v.st.bySubject[subject])
}

// Generation returns the store generation the view was taken at.
func (v View) Generation() uint64 {
	return v.st.generation
}
