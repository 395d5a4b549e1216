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

import (
	"slices"
	"sort"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
)

// Bridging score weights.
const (
	perSubjectScore   = 0.3
	perDependentScore = 0.05
	dependentScoreMax = 0.5
)

var difficultyBonus = map[graph.Difficulty]float64{
	graph.DifficultyBeginner:     0.2,
	graph.DifficultyElementary:   0.15,
	graph.DifficultyIntermediate: 0.1,
}

// FindSharedPrerequisites finds concepts that several subjects depend on.
//
// Description:
//
//	A subject's concept set is the union of the transitive prerequisites of
//	every concept in that subject. A concept qualifies if it appears in at
//	least minUsage of the given subjects' sets. Its bridging score is
//
//	  0.3 * subjects + min(0.5, 0.05 * direct dependents) + difficulty bonus
//
//	capped at 1, with a bonus of 0.2 for beginner, 0.15 for elementary and
//	0.1 for intermediate concepts.
//
// Inputs:
//
//	subjectIDs - Subjects to compare; duplicates are ignored.
//	minUsage - Minimum number of subjects; values below 1 mean 2.
//
// Outputs:
//
//	[]SharedPrerequisite - By score descending, then id.
func (l *Linker) FindSharedPrerequisites(subjectIDs []string, minUsage int) []SharedPrerequisite {
	if minUsage < 1 {
		minUsage = 2
	}

	subjects := slices.Clone(subjectIDs)
	slices.Sort(subjects)
	subjects = slices.Compact(subjects)

	usedBy := make(map[string][]string)
	for _, subject := range subjects {
		set := make(map[string]bool)
		for _, id := range l.store.NodesBySubject(subject) {
			for _, p := range l.engine.Prerequisites(id, true) {
				set[p] = true
			}
		}
		for id := range set {
			usedBy[id] = append(usedBy[id], subject)
		}
	}

	var out []SharedPrerequisite
	for id, users := range usedBy {
		if len(users) < minUsage {
			continue
		}
		node, ok := l.store.GetNode(id)
		if !ok {
			continue
		}
		dependents := len(l.engine.Postrequisites(id, false))

		score := perSubjectScore*float64(len(users)) +
			min(dependentScoreMax, perDependentScore*float64(dependents)) +
			difficultyBonus[node.Difficulty]

		out = append(out, SharedPrerequisite{
			ID:             id,
			Name:           node.Name,
			SubjectID:      node.SubjectID,
			Difficulty:     node.Difficulty,
			UsedBy:         users,
			SubjectCount:   len(users),
			DependentCount: dependents,
			BridgingScore:  min(1.0, score),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].BridgingScore != out[j].BridgingScore {
			return out[i].BridgingScore > out[j].BridgingScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}
