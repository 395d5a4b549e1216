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

import "github.com/AleutianAI/conceptgraph/services/knowledge/graph"

// DefaultPathCutoff is the hop limit used by FindAllPaths when none is given.
const DefaultPathCutoff = 20

// LearningPath is an unweighted shortest path between two concepts.
type LearningPath struct {
	// Concepts from start to target inclusive.
	Concepts []string `json:"concepts"`

	// TotalDurationMinutes sums the duration of every concept on the path.
	TotalDurationMinutes int `json:"total_duration_minutes"`

	// Difficulties holds the difficulty of each concept, in path order.
	Difficulties []graph.Difficulty `json:"difficulties"`

	// SubjectGroups maps subject to the path's concepts in that subject,
	// in path order.
	SubjectGroups map[string][]string `json:"subject_groups"`
}

// Hops returns the number of edges on the path.
func (p *LearningPath) Hops() int {
	return len(p.Concepts) - 1
}

// PathSummary is one simple path found by FindAllPaths.
type PathSummary struct {
	Concepts             []string `json:"concepts"`
	Hops                 int      `json:"hops"`
	TotalDurationMinutes int      `json:"total_duration_minutes"`
}

// WeightBy selects the edge cost used by FindOptimalPath.
type WeightBy string

const (
	// WeightByDuration costs an edge by its source concept's duration.
	WeightByDuration WeightBy = "duration"

	// WeightByDifficulty costs an edge by its source concept's difficulty
	// weight (beginner 1 through expert 5, unknown 3).
	WeightByDifficulty WeightBy = "difficulty"
)

// WeightedPath is the result of FindOptimalPath.
type WeightedPath struct {
	Concepts             []string `json:"concepts"`
	WeightBy             WeightBy `json:"weight_by"`
	TotalWeight          int      `json:"total_weight"`
	TotalDurationMinutes int      `json:"total_duration_minutes"`
}

// Severity grades a detected cycle.
type Severity string

const (
	// SeverityCritical marks cycles shorter than four concepts.
	SeverityCritical Severity = "critical"

	// SeverityWarning marks longer cycles.
	SeverityWarning Severity = "warning"
)

// Cycle is an elementary cycle in the graph.
type Cycle struct {
	// Concepts in cycle order; the last concept links back to the first.
	Concepts             []string `json:"concepts"`
	Length               int      `json:"length"`
	TotalDurationMinutes int      `json:"total_duration_minutes"`
	Severity             Severity `json:"severity"`
}

// RankedConcept is a concept with a ranking score.
type RankedConcept struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Stats summarizes the shape of the graph.
type Stats struct {
	NodeCount         int            `json:"node_count"`
	EdgeCount         int            `json:"edge_count"`
	Subjects          map[string]int `json:"subjects"`
	Difficulties      map[string]int `json:"difficulties"`
	RelationshipTypes map[string]int `json:"relationship_types"`
	IsolatedCount     int            `json:"isolated_count"`
}
