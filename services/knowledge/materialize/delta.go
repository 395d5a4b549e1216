// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package materialize

import (
	"log/slog"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
)

// Delta is a batch of edits applied by an incremental refresh.
type Delta struct {
	AddNodes    []graph.ConceptRecord      `json:"add_nodes,omitempty" yaml:"add_nodes,omitempty"`
	UpdateNodes []graph.ConceptRecord      `json:"update_nodes,omitempty" yaml:"update_nodes,omitempty"`
	DeleteNodes []string                   `json:"delete_nodes,omitempty" yaml:"delete_nodes,omitempty"`
	AddEdges    []graph.RelationshipRecord `json:"add_edges,omitempty" yaml:"add_edges,omitempty"`
	DeleteEdges []EdgeRef                  `json:"delete_edges,omitempty" yaml:"delete_edges,omitempty"`
}

// EdgeRef names an edge to delete. An empty Type matches the first edge
// from Source to Target of any type.
type EdgeRef struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Type   string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Empty reports whether the delta has no edits.
func (d Delta) Empty() bool {
	return len(d.AddNodes) == 0 && len(d.UpdateNodes) == 0 && len(d.DeleteNodes) == 0 &&
		len(d.AddEdges) == 0 && len(d.DeleteEdges) == 0
}

// DeltaReport counts what an applied delta changed.
type DeltaReport struct {
	NodesAdded   int `json:"nodes_added"`
	NodesUpdated int `json:"nodes_updated"`
	NodesDeleted int `json:"nodes_deleted"`
	EdgesAdded   int `json:"edges_added"`
	EdgesDeleted int `json:"edges_deleted"`
	Skipped      int `json:"skipped"`
}

// ApplyDelta applies d to store in the order node additions, node updates,
// node deletions, edge additions, edge deletions.
//
// Description:
//
//	Edits that cannot be applied are skipped and logged, never fatal:
//	invalid or duplicate added nodes, invalid updated nodes, deletions of
//	absent nodes or edges, and edges with a missing endpoint or an invalid
//	strength. Relationship types follow the same fallback as graph.Build.
//	An update of an absent node adds it.
//
// Outputs:
//
//	DeltaReport - Counts of applied and skipped edits.
func ApplyDelta(store *graph.Store, d Delta, logger *slog.Logger) DeltaReport {
	if logger == nil {
		logger = slog.Default()
	}
	var report DeltaReport
	skip := func(msg string, args ...any) {
		report.Skipped++
		logger.Warn(msg, args...)
	}

	for _, rec := range d.AddNodes {
		if err := store.AddNode(rec.ToNode()); err != nil {
			skip("delta: node not added", "id", rec.ID, "error", err)
			continue
		}
		report.NodesAdded++
	}

	for _, rec := range d.UpdateNodes {
		if err := store.UpdateNode(rec.ToNode()); err != nil {
			skip("delta: node not updated", "id", rec.ID, "error", err)
			continue
		}
		report.NodesUpdated++
	}

	for _, id := range d.DeleteNodes {
		if !store.RemoveNode(id) {
			skip("delta: node to delete not found", "id", id)
			continue
		}
		report.NodesDeleted++
	}

	for _, rec := range d.AddEdges {
		edge, fellBack := rec.ToEdge()
		if fellBack && rec.Type != "" {
			logger.Debug("delta: unknown relationship type, using prerequisite",
				"source", rec.Source, "target", rec.Target, "type", rec.Type)
		}
		ok, err := store.AddEdge(edge)
		if err != nil {
			skip("delta: edge rejected", "source", rec.Source, "target", rec.Target, "error", err)
			continue
		}
		if !ok {
			skip("delta: edge endpoint not found", "source", rec.Source, "target", rec.Target)
			continue
		}
		report.EdgesAdded++
	}

	for _, ref := range d.DeleteEdges {
		var typ graph.RelationshipType
		if ref.Type != "" {
			parsed, ok := graph.ParseRelationshipType(ref.Type)
			if !ok {
				skip("delta: unknown relationship type in edge deletion",
					"source", ref.Source, "target", ref.Target, "type", ref.Type)
				continue
			}
			typ = parsed
		}
		if !store.RemoveEdge(ref.Source, ref.Target, typ) {
			skip("delta: edge to delete not found", "source", ref.Source, "target", ref.Target, "type", ref.Type)
			continue
		}
		report.EdgesDeleted++
	}

	return report
}
