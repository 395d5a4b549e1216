// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package linker finds connections between concepts in different subjects.
//
// It scores how well a concept transfers to other subjects, finds
// prerequisites that several subjects share, and annotates learning paths
// with the points where they cross from one subject into another.
//
// The Linker reads through graph.Store and query.Engine and holds no graph
// state. Its only state is an LRU cache of transferability results, which
// is dropped whenever the store's generation changes.
package linker

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
	"github.com/AleutianAI/conceptgraph/services/knowledge/query"
)

// Linker answers cross-subject queries.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Linker struct {
	store     *graph.Store
	engine    *query.Engine
	bridges   map[SubjectPair]Bridge
	synergies map[SubjectPair]string
	cache     *resultCache
	logger    *slog.Logger
}

// Option configures a Linker.
type Option func(*Linker)

// WithCacheSize sets the transferability cache capacity.
func WithCacheSize(size int) Option {
	return func(l *Linker) {
		l.cache = newResultCache(size)
	}
}

// WithBridges replaces the bridge table.
func WithBridges(bridges map[SubjectPair]Bridge) Option {
	return func(l *Linker) {
		l.bridges = bridges
	}
}

// WithSynergies replaces the subject transition table.
func WithSynergies(synergies map[SubjectPair]string) Option {
	return func(l *Linker) {
		l.synergies = synergies
	}
}

// WithLogger sets the linker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Linker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Linker over engine and its store.
func New(engine *query.Engine, opts ...Option) *Linker {
	l := &Linker{
		store:     engine.Store(),
		engine:    engine,
		bridges:   DefaultBridges,
		synergies: DefaultSynergies,
		cache:     newResultCache(DefaultCacheSize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FindTransferableConcepts scores concepts in other subjects against
// conceptID.
//
// Description:
//
//	Candidates come from targetSubject, or from every subject other than
//	the concept's own when targetSubject is empty. Each candidate is scored
//	by the bridge-keyword heuristic when the subject pair has a bridge and
//	a keyword appears in either name, otherwise by name/tag/keyword
//	similarity. Candidates scoring zero are never returned.
//
// Inputs:
//
//	conceptID - Source concept.
//	targetSubject - Subject to search, or "" for all others.
//	minStrength - Results weaker than this are excluded.
//
// Outputs:
//
//	[]TransferableConcept - By strength descending; ties by subject, then
//	                        insertion order. Nil if conceptID is absent.
func (l *Linker) FindTransferableConcepts(conceptID, targetSubject string, minStrength float64) []TransferableConcept {
	key := cacheKey{conceptID: conceptID, subject: targetSubject}
	if key.subject == "" {
		key.subject = allSubjects
	}

	gen := l.store.Generation()
	scored, ok := l.cache.get(key, gen)
	if !ok {
		scored, gen = l.scoreTransfers(conceptID, targetSubject)
		l.cache.set(key, gen, scored)
	}

	var out []TransferableConcept
	for _, t := range scored {
		if t.Strength >= minStrength {
			out = append(out, t)
		}
	}
	return out
}

// scoreTransfers computes the unfiltered, sorted transfer list and the
// generation it was computed at.
func (l *Linker) scoreTransfers(conceptID, targetSubject string) ([]TransferableConcept, uint64) {
	var (
		results []TransferableConcept
		gen     uint64
	)
	l.store.Read(func(v graph.View) {
		gen = v.Generation()
		source, ok := v.Node(conceptID)
		if !ok {
			return
		}

		bySubject := make(map[string][]*graph.Node)
		v.EachNode(func(n *graph.Node) bool {
			bySubject[n.SubjectID] = append(bySubject[n.SubjectID], n)
			return true
		})

		var subjects []string
		if targetSubject != "" {
			subjects = []string{targetSubject}
		} else {
			for subject := range bySubject {
				if subject != source.SubjectID {
					subjects = append(subjects, subject)
				}
			}
			slices.Sort(subjects)
		}

		for _, subject := range subjects {
			pair := NewSubjectPair(source.SubjectID, subject)
			bridge, hasBridge := l.bridges[pair]

			for _, candidate := range bySubject[subject] {
				if candidate.ID == source.ID {
					continue
				}
				t, matched := TransferableConcept{}, false
				if hasBridge && source.SubjectID != subject {
					t, matched = bridgeMatch(bridge, pair, source, candidate)
				}
				if !matched {
					score := similarity(source, candidate)
					typ, strength := classify(score)
					if strength <= 0 {
						continue
					}
					t = TransferableConcept{
						Type:        typ,
						Strength:    strength,
						Method:      MethodSimilarity,
						Explanation: fmt.Sprintf("similarity %.2f", score),
					}
				}
				t.SourceID = source.ID
				t.TargetID = candidate.ID
				t.TargetName = candidate.Name
				t.TargetSubject = subject
				results = append(results, t)
			}
		}
	})

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Strength > results[j].Strength
	})
	return results, gen
}

// ClearCache drops every cached transferability result.
func (l *Linker) ClearCache() {
	l.cache.purge()
	l.logger.Debug("transferability cache cleared")
}

// RefreshCache recomputes cached results for the given concepts.
//
// Description:
//
//	With no ids the whole cache is cleared. Otherwise every entry for the
//	given ids is dropped and the all-subjects result is recomputed for each
//	id that still exists.
//
// Outputs:
//
//	int - Number of concepts recomputed.
func (l *Linker) RefreshCache(ids ...string) int {
	if len(ids) == 0 {
		l.ClearCache()
		return 0
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	dropped := l.cache.dropConcepts(set)

	refreshed := 0
	for _, id := range ids {
		if !l.store.HasNode(id) {
			continue
		}
		scored, gen := l.scoreTransfers(id, "")
		l.cache.set(cacheKey{conceptID: id, subject: allSubjects}, gen, scored)
		refreshed++
	}
	l.logger.Debug("transferability cache refreshed", "dropped", dropped, "refreshed", refreshed)
	return refreshed
}

// CacheStats returns transferability cache usage.
func (l *Linker) CacheStats() CacheStats {
	return l.cache.stats()
}
