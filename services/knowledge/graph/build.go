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
	"time"
)

// ConceptRecord is a concept as produced by the ingestion pipeline.
type ConceptRecord struct {
	ID                  string            `json:"id" yaml:"id" validate:"required"`
	Name                string            `json:"name,omitempty" yaml:"name,omitempty"`
	SubjectID           string            `json:"subject_id,omitempty" yaml:"subject_id,omitempty"`
	DifficultyLevel     string            `json:"difficulty_level,omitempty" yaml:"difficulty_level,omitempty"`
	Type                string            `json:"type,omitempty" yaml:"type,omitempty"`
	EstimatedDuration   int               `json:"estimated_duration,omitempty" yaml:"estimated_duration,omitempty" validate:"gte=0"`
	Tags                []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Description         string            `json:"description,omitempty" yaml:"description,omitempty"`
	LearningObjectives  []string          `json:"learning_objectives,omitempty" yaml:"learning_objectives,omitempty"`
	Keywords            []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	CurriculumStandards []string          `json:"curriculum_standards,omitempty" yaml:"curriculum_standards,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ToNode converts the record to a Node.
//
// A missing name defaults to the id; an unrecognized difficulty becomes
// DifficultyUnknown.
func (r ConceptRecord) ToNode() Node {
	name := r.Name
	if name == "" {
		name = r.ID
	}
	difficulty, _ := ParseDifficulty(r.DifficultyLevel)
	return Node{
		ID:              r.ID,
		Name:            name,
		SubjectID:       r.SubjectID,
		Difficulty:      difficulty,
		ConceptType:     r.Type,
		DurationMinutes: r.EstimatedDuration,
		Tags:            cloneStrings(r.Tags),
		Metadata: NodeMetadata{
			Description:         r.Description,
			LearningObjectives:  cloneStrings(r.LearningObjectives),
			Keywords:            cloneStrings(r.Keywords),
			CurriculumStandards: cloneStrings(r.CurriculumStandards),
			Extra:               cloneMap(r.Metadata),
		},
	}
}

// RelationshipRecord is a relationship as produced by the ingestion pipeline.
type RelationshipRecord struct {
	Source   string            `json:"source" yaml:"source" validate:"required"`
	Target   string            `json:"target" yaml:"target" validate:"required"`
	Type     string            `json:"type,omitempty" yaml:"type,omitempty"`
	Strength *float64          `json:"strength,omitempty" yaml:"strength,omitempty" validate:"omitempty,gte=0,lte=1"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ToEdge converts the record to an Edge.
//
// A type that does not parse falls back to RelPrerequisite and a missing
// strength defaults to 1.0. The second result reports the type fallback.
func (r RelationshipRecord) ToEdge() (Edge, bool) {
	typ, ok := ParseRelationshipType(r.Type)
	if !ok {
		typ = RelPrerequisite
	}
	strength := 1.0
	if r.Strength != nil {
		strength = *r.Strength
	}
	return Edge{
		SourceID: r.Source,
		TargetID: r.Target,
		Type:     typ,
		Strength: strength,
		Metadata: cloneMap(r.Metadata),
	}, !ok
}

// BuildReport summarizes a Build call.
type BuildReport struct {
	NodesLoaded   int `json:"nodes_loaded"`
	NodesSkipped  int `json:"nodes_skipped"`
	EdgesLoaded   int `json:"edges_loaded"`
	EdgesDropped  int `json:"edges_dropped"`
	TypeFallbacks int `json:"type_fallbacks"`
}

// Build clears the store and bulk loads the given records.
//
// Description:
//
//	Records are loaded into a fresh graph that replaces the current one
//	under the write lock, so concurrent readers see either the old graph or
//	the complete new one. Nothing in the input is fatal:
//
//	  - invalid concept records and duplicate ids are skipped
//	  - unrecognized relationship types fall back to prerequisite
//	  - out-of-range strengths and unknown endpoints drop the relationship
//
//	Every skipped or dropped record is logged at Warn.
//
// Inputs:
//
//	ctx - Context for tracing.
//	concepts - Concept records in insertion order.
//	relationships - Relationship records in insertion order.
//
// Outputs:
//
//	BuildReport - Counts of loaded and skipped records.
func (s *Store) Build(ctx context.Context, concepts []ConceptRecord, relationships []RelationshipRecord) BuildReport {
	ctx, span := startBuildSpan(ctx, len(concepts), len(relationships))
	defer span.End()
	start := time.Now()

	var report BuildReport
	st := newState()

	for i, rec := range concepts {
		if err := s.validate.Struct(rec); err != nil {
			s.logger.Warn("skipping invalid concept", "index", i, "id", rec.ID, "error", err)
			report.NodesSkipped++
			continue
		}
		if st.hasNodeLocked(rec.ID) {
			s.logger.Warn("skipping duplicate concept", "id", rec.ID)
			report.NodesSkipped++
			continue
		}
		st.insertNode(rec.ToNode())
		report.NodesLoaded++
	}

	for i, rec := range relationships {
		if err := s.validate.Struct(rec); err != nil {
			s.logger.Warn("dropping invalid relationship",
				"index", i, "source", rec.Source, "target", rec.Target, "error", err)
			report.EdgesDropped++
			continue
		}
		edge, fellBack := rec.ToEdge()
		if fellBack {
			s.logger.Debug("unknown relationship type, using prerequisite",
				"source", rec.Source, "target", rec.Target, "type", rec.Type)
			report.TypeFallbacks++
		}
		if !st.hasNodeLocked(edge.SourceID) || !st.hasNodeLocked(edge.TargetID) {
			s.logger.Warn("dropping relationship with missing endpoint",
				"source", edge.SourceID, "target", edge.TargetID)
			report.EdgesDropped++
			continue
		}
		st.insertEdge(edge)
		report.EdgesLoaded++
	}

	s.mu.Lock()
	st.generation = s.generation + 1
	s.state = st
	nodes, edges := st.nodes.Len(), st.edgeCount
	s.mu.Unlock()

	setBuildSpanResult(span, nodes, edges, report.NodesSkipped+report.EdgesDropped)
	recordBuildMetrics(ctx, time.Since(start), nodes, edges)

	s.logger.Info("graph built",
		"nodes", nodes,
		"edges", edges,
		"nodes_skipped", report.NodesSkipped,
		"edges_dropped", report.EdgesDropped,
		"type_fallbacks", report.TypeFallbacks,
	)
	return report
}
