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
	"strings"
	"unicode"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
)

// Scoring constants.
const (
	bridgeStrength = 0.9

	exactNameScore   = 0.4
	substringScore   = 0.3
	wordOverlapMax   = 0.2
	perSharedTag     = 0.15
	tagOverlapMax    = 0.3
	perSharedKeyword = 0.15
	keywordMax       = 0.3
)

// similarityBand maps a similarity floor to a transfer type and strength cap.
type similarityBand struct {
	floor float64
	typ   TransferType
	cap   float64
}

var similarityBands = []similarityBand{
	{0.8, TransferDirect, 0.95},
	{0.6, TransferAnalogous, 0.85},
	{0.4, TransferApplication, 0.75},
	{0.2, TransferRelated, 0.6},
}

var (
	applicationTokens  = []string{"application", "applied"}
	foundationalTokens = []string{"basic", "fundamental", "introduction"}
)

// tokens splits a name into lower-case words.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hasToken(words []string, candidates ...string) bool {
	for _, w := range words {
		for _, c := range candidates {
			if w == c {
				return true
			}
		}
	}
	return false
}

// bridgeMatch applies the bridge-keyword heuristic.
//
// Returns false if no bridge keyword appears in either name.
func bridgeMatch(bridge Bridge, pair SubjectPair, source, candidate *graph.Node) (TransferableConcept, bool) {
	sourceName := strings.ToLower(source.Name)
	candidateName := strings.ToLower(candidate.Name)

	for _, kw := range bridge.Keywords {
		inSource := strings.Contains(sourceName, kw)
		inCandidate := strings.Contains(candidateName, kw)
		if !inSource && !inCandidate {
			continue
		}

		sourceWords := tokens(source.Name)
		candidateWords := tokens(candidate.Name)

		var typ TransferType
		switch {
		case inSource && inCandidate:
			typ = TransferDirect
		case hasToken(sourceWords, applicationTokens...) || hasToken(candidateWords, applicationTokens...):
			typ = TransferApplication
		case hasToken(sourceWords, foundationalTokens...):
			typ = TransferFoundational
		default:
			typ = TransferAnalogous
		}

		return TransferableConcept{
			Type:        typ,
			Strength:    bridgeStrength,
			Method:      MethodBridge,
			Keyword:     kw,
			Explanation: bridge.explain(kw, pair),
		}, true
	}
	return TransferableConcept{}, false
}

// similarity scores two concepts by name, tags and keywords, in [0, 1].
func similarity(a, b *graph.Node) float64 {
	score := nameScore(a.Name, b.Name)
	score += min(tagOverlapMax, perSharedTag*float64(sharedCount(a.Tags, b.Tags)))
	score += min(keywordMax, perSharedKeyword*float64(sharedCount(a.Metadata.Keywords, b.Metadata.Keywords)))
	return min(1.0, score)
}

func nameScore(a, b string) float64 {
	la, lb := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if la == "" || lb == "" {
		return 0
	}
	if la == lb {
		return exactNameScore
	}
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return substringScore
	}

	wa, wb := tokens(la), tokens(lb)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	common := sharedCount(wa, wb)
	return wordOverlapMax * float64(common) / float64(max(len(wa), len(wb)))
}

// sharedCount counts distinct case-insensitive values present in both lists.
func sharedCount(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[strings.ToLower(s)] = true
	}
	count := 0
	for _, s := range b {
		key := strings.ToLower(s)
		if set[key] {
			count++
			delete(set, key)
		}
	}
	return count
}

// classify turns a similarity score into a transfer type and strength.
//
// Scores below the lowest band return strength 0.
func classify(score float64) (TransferType, float64) {
	for _, band := range similarityBands {
		if score >= band.floor {
			return band.typ, min(score, band.cap)
		}
	}
	return "", 0
}
