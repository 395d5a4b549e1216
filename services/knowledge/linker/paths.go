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

import "slices"

// GenerateInterdisciplinaryPath returns the shortest start to end path with
// every change of subject annotated.
//
// Description:
//
//	If the path has more than maxConcepts concepts it is cut to the first
//	maxConcepts, Truncated is set and a warning is logged. maxConcepts <= 0
//	disables the limit.
//
// Outputs:
//
//	*InterdisciplinaryPath - Nil if either id is absent or no path exists.
func (l *Linker) GenerateInterdisciplinaryPath(start, end string, maxConcepts int) *InterdisciplinaryPath {
	path := l.engine.FindLearningPath(start, end, 0)
	if path == nil {
		return nil
	}

	ids := path.Concepts
	result := &InterdisciplinaryPath{FullLength: len(ids)}
	if maxConcepts > 0 && len(ids) > maxConcepts {
		l.logger.Warn("interdisciplinary path truncated",
			"start", start, "end", end, "length", len(ids), "max_concepts", maxConcepts)
		ids = ids[:maxConcepts]
		result.Truncated = true
	}

	for i, id := range ids {
		node, ok := l.store.GetNode(id)
		if !ok {
			// Removed after the path was computed.
			return nil
		}
		result.Steps = append(result.Steps, PathStep{
			ID:              node.ID,
			Name:            node.Name,
			SubjectID:       node.SubjectID,
			Difficulty:      node.Difficulty,
			DurationMinutes: node.DurationMinutes,
		})
		result.TotalDurationMinutes += node.DurationMinutes
		if !slices.Contains(result.Subjects, node.SubjectID) {
			result.Subjects = append(result.Subjects, node.SubjectID)
		}

		if i == 0 {
			continue
		}
		prev := result.Steps[i-1]
		if prev.SubjectID != node.SubjectID {
			result.Transitions = append(result.Transitions, TransitionPoint{
				Order:       i,
				FromConcept: prev.ID,
				ToConcept:   node.ID,
				FromSubject: prev.SubjectID,
				ToSubject:   node.SubjectID,
				Synergy:     l.synergy(prev.SubjectID, node.SubjectID),
			})
		}
	}
	return result
}

// FindCommonDescendants compares the transitive descendants of a and b.
//
// The convergence point is the first common descendant in id order.
// Returns nil if either concept is absent.
func (l *Linker) FindCommonDescendants(a, b string) *CommonDescendants {
	if !l.store.HasNode(a) || !l.store.HasNode(b) {
		return nil
	}
	da := l.engine.Postrequisites(a, true)
	db := l.engine.Postrequisites(b, true)

	inB := make(map[string]bool, len(db))
	for _, id := range db {
		inB[id] = true
	}
	inA := make(map[string]bool, len(da))
	for _, id := range da {
		inA[id] = true
	}

	result := &CommonDescendants{}
	for _, id := range da {
		if inB[id] {
			result.Common = append(result.Common, id)
		} else {
			result.OnlyA = append(result.OnlyA, id)
		}
	}
	for _, id := range db {
		if !inA[id] {
			result.OnlyB = append(result.OnlyB, id)
		}
	}
	if len(result.Common) > 0 {
		result.ConvergencePoint = result.Common[0]
	}
	return result
}

// FindConvergencePoint returns the earliest concept that every input leads to.
//
// Description:
//
//	Intersects the transitive descendants of all inputs. Among the common
//	descendants, the one with the fewest transitive prerequisites is the
//	earliest; ties go to the smaller id.
//
// Outputs:
//
//	*ConvergencePoint - Nil if ids is empty, any id is absent, or the
//	                    descendant sets do not intersect.
func (l *Linker) FindConvergencePoint(ids []string) *ConvergencePoint {
	if len(ids) == 0 {
		return nil
	}

	var common map[string]bool
	for _, id := range ids {
		if !l.store.HasNode(id) {
			return nil
		}
		next := make(map[string]bool)
		for _, d := range l.engine.Postrequisites(id, true) {
			if common == nil || common[d] {
				next[d] = true
			}
		}
		common = next
		if len(common) == 0 {
			return nil
		}
	}

	candidates := make([]string, 0, len(common))
	for id := range common {
		candidates = append(candidates, id)
	}
	slices.Sort(candidates)

	best, bestCount := "", -1
	for _, id := range candidates {
		count := len(l.engine.Prerequisites(id, true))
		if bestCount < 0 || count < bestCount {
			best, bestCount = id, count
		}
	}

	node, ok := l.store.GetNode(best)
	if !ok {
		return nil
	}
	return &ConvergencePoint{
		ID:                best,
		Name:              node.Name,
		PrerequisiteCount: bestCount,
		Candidates:        candidates,
	}
}
