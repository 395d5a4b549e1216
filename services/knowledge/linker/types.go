// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package linker

import "github.com/AleutianAI/conceptgraph/services/knowledge/graph"

// TransferType classifies how knowledge carries across subjects.
type TransferType string

const (
	// TransferDirect means the same idea appears in both subjects.
	TransferDirect TransferType = "direct"

	// TransferApplication means one concept applies the other.
	TransferApplication TransferType = "application"

	// TransferFoundational means the source concept underpins the target.
	TransferFoundational TransferType = "foundational"

	// TransferAnalogous means the concepts share structure.
	TransferAnalogous TransferType = "analogous"

	// TransferRelated is the weakest similarity-based link.
	TransferRelated TransferType = "related"
)

// Method records which scoring path produced a result.
type Method string

const (
	MethodBridge     Method = "bridge"
	MethodSimilarity Method = "similarity"
)

// TransferableConcept is one cross-subject transfer candidate.
type TransferableConcept struct {
	SourceID      string       `json:"source_id"`
	TargetID      string       `json:"target_id"`
	TargetName    string       `json:"target_name"`
	TargetSubject string       `json:"target_subject"`
	Type          TransferType `json:"type"`

	// Strength is in (0, 1].
	Strength    float64 `json:"strength"`
	Method      Method  `json:"method"`
	Keyword     string  `json:"keyword,omitempty"`
	Explanation string  `json:"explanation,omitempty"`
}

// SharedPrerequisite is a concept that several subjects build on.
type SharedPrerequisite struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	SubjectID      string           `json:"subject_id"`
	Difficulty     graph.Difficulty `json:"difficulty"`
	UsedBy         []string         `json:"used_by"`
	SubjectCount   int              `json:"subject_count"`
	DependentCount int              `json:"dependent_count"`
	BridgingScore  float64          `json:"bridging_score"`
}

// PathStep is one concept on an interdisciplinary path.
type PathStep struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	SubjectID       string           `json:"subject_id"`
	Difficulty      graph.Difficulty `json:"difficulty"`
	DurationMinutes int              `json:"duration_minutes"`
}

// TransitionPoint marks a change of subject between consecutive steps.
type TransitionPoint struct {
	// Order is the index in Steps of the first concept in the new subject.
	Order       int    `json:"order"`
	FromConcept string `json:"from_concept"`
	ToConcept   string `json:"to_concept"`
	FromSubject string `json:"from_subject"`
	ToSubject   string `json:"to_subject"`
	Synergy     string `json:"synergy"`
}

// InterdisciplinaryPath is a learning path annotated with subject changes.
type InterdisciplinaryPath struct {
	Steps                []PathStep        `json:"steps"`
	Subjects             []string          `json:"subjects"`
	Transitions          []TransitionPoint `json:"transitions"`
	TotalDurationMinutes int               `json:"total_duration_minutes"`

	// Truncated is set when the full path was longer than requested.
	Truncated  bool `json:"truncated"`
	FullLength int  `json:"full_length"`
}

// CommonDescendants compares the descendant sets of two concepts.
type CommonDescendants struct {
	Common []string `json:"common"`
	OnlyA  []string `json:"only_a"`
	OnlyB  []string `json:"only_b"`

	// ConvergencePoint is one member of Common, empty if Common is empty.
	ConvergencePoint string `json:"convergence_point,omitempty"`
}

// ConvergencePoint is the earliest concept every input leads to.
type ConvergencePoint struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	PrerequisiteCount int      `json:"prerequisite_count"`
	Candidates        []string `json:"candidates"`
}
