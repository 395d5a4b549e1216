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
	"maps"
	"slices"
	"strings"
)

// Difficulty is the ordered difficulty level of a concept.
//
// The zero value is DifficultyUnknown, used when a record carries no level
// or one that does not parse.
type Difficulty int

const (
	// DifficultyUnknown indicates a missing or unrecognized level.
	DifficultyUnknown Difficulty = iota

	// DifficultyBeginner is the easiest level.
	DifficultyBeginner

	// DifficultyElementary follows beginner.
	DifficultyElementary

	// DifficultyIntermediate follows elementary.
	DifficultyIntermediate

	// DifficultyAdvanced follows intermediate.
	DifficultyAdvanced

	// DifficultyExpert is the hardest level.
	DifficultyExpert
)

var difficultyNames = map[Difficulty]string{
	DifficultyUnknown:      "unknown",
	DifficultyBeginner:     "beginner",
	DifficultyElementary:   "elementary",
	DifficultyIntermediate: "intermediate",
	DifficultyAdvanced:     "advanced",
	DifficultyExpert:       "expert",
}

// String returns the lower-case level name.
func (d Difficulty) String() string {
	if name, ok := difficultyNames[d]; ok {
		return name
	}
	return "unknown"
}

// Weight maps the level onto 1..5 for weighted path search.
//
// Unknown levels weigh 3, the midpoint.
func (d Difficulty) Weight() int {
	if d >= DifficultyBeginner && d <= DifficultyExpert {
		return int(d)
	}
	return 3
}

// ParseDifficulty converts a level name to a Difficulty, ignoring case.
//
// Returns DifficultyUnknown and false if the name is not recognized.
func ParseDifficulty(s string) (Difficulty, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, name := range difficultyNames {
		if d != DifficultyUnknown && name == s {
			return d, true
		}
	}
	return DifficultyUnknown, false
}

// RelationshipType is the type of a directed edge between two concepts.
type RelationshipType string

// The closed set of relationship types.
const (
	RelPrerequisite  RelationshipType = "prerequisite"
	RelAnalogousTo   RelationshipType = "analogous_to"
	RelApplicationOf RelationshipType = "application_of"
	RelComponentOf   RelationshipType = "component_of"
	RelRelatedTo     RelationshipType = "related_to"
	RelExtends       RelationshipType = "extends"
	RelBuildsOn      RelationshipType = "builds_on"
	RelLeadsTo       RelationshipType = "leads_to"
)

// RelationshipTypes lists every valid relationship type in declaration order.
var RelationshipTypes = []RelationshipType{
	RelPrerequisite,
	RelAnalogousTo,
	RelApplicationOf,
	RelComponentOf,
	RelRelatedTo,
	RelExtends,
	RelBuildsOn,
	RelLeadsTo,
}

// Valid reports whether t is one of the known relationship types.
func (t RelationshipType) Valid() bool {
	return slices.Contains(RelationshipTypes, t)
}

// ParseRelationshipType converts a type name to a RelationshipType, ignoring case.
func ParseRelationshipType(s string) (RelationshipType, bool) {
	t := RelationshipType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t, true
	}
	return "", false
}

// NodeMetadata holds the descriptive attributes of a concept.
type NodeMetadata struct {
	Description         string
	LearningObjectives  []string
	Keywords            []string
	CurriculumStandards []string

	// Extra carries free-form attributes not covered above.
	Extra map[string]string
}

// Node is a learning concept.
//
// ID is the primary key and never changes once the node is stored.
type Node struct {
	ID              string
	Name            string
	SubjectID       string
	Difficulty      Difficulty
	ConceptType     string
	DurationMinutes int

	// Tags keeps its order; duplicates are allowed.
	Tags []string

	Metadata NodeMetadata
}

// Clone returns a deep copy with empty slices and maps normalized to nil.
func (n Node) Clone() Node {
	c := n
	c.Tags = cloneStrings(n.Tags)
	c.Metadata.LearningObjectives = cloneStrings(n.Metadata.LearningObjectives)
	c.Metadata.Keywords = cloneStrings(n.Metadata.Keywords)
	c.Metadata.CurriculumStandards = cloneStrings(n.Metadata.CurriculumStandards)
	c.Metadata.Extra = cloneMap(n.Metadata.Extra)
	return c
}

// Edge is a typed, directed relationship between two concepts.
//
// The tuple (SourceID, TargetID, Type) identifies an edge; parallel edges
// of different types between the same pair are allowed.
type Edge struct {
	SourceID string
	TargetID string
	Type     RelationshipType

	// Strength is in [0, 1].
	Strength float64

	Metadata map[string]string
}

// Clone returns a deep copy with an empty metadata map normalized to nil.
func (e Edge) Clone() Edge {
	c := e
	c.Metadata = cloneMap(e.Metadata)
	return c
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}

func cloneMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}
