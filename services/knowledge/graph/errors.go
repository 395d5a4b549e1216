// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the knowledge-dependency graph store.
//
// The store holds learning concepts (nodes) and typed, weighted
// relationships between them (edges), plus two derived indices: subject to
// node ids and difficulty to node ids. The indices are maintained on every
// mutation and never diverge from the primary data.
//
// # Ownership Model
//
// The store keeps private deep copies of every node it is given. Accessors
// on Store return copies; accessors on View return pointers into the store
// that MUST NOT be mutated and MUST NOT be retained past the Read callback.
//
// # Thread Safety
//
// Store is safe for concurrent use. A single RWMutex serializes all writers
// and admits many readers. Long-running readers (the query engine) run inside
// Store.Read so they observe one consistent version of the graph.
//
// # Lifecycle
//
//  1. Create with NewStore()
//  2. Load with Build(), Restore(), or AddNode()/AddEdge() calls
//  3. Query through query.Engine or the Store accessors
//  4. Dump() for persistence
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrDuplicateNode is returned when adding a node whose id already exists.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrInvalidNode is returned for nodes with an empty id or negative duration.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidEdge is returned for edges with a strength outside [0,1]
	// or an unknown relationship type.
	ErrInvalidEdge = errors.New("invalid edge")

	// ErrNodeNotFound is returned when a restored edge references a missing node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrIndexMismatch is returned when a derived index disagrees with the
	// node table.
	ErrIndexMismatch = errors.New("index does not match node table")

	// ErrDanglingEdge is returned by Validate when an edge endpoint is missing.
	ErrDanglingEdge = errors.New("dangling edge")
)
