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

import "fmt"

// SubjectPair is an unordered pair of subject ids.
type SubjectPair struct {
	A, B string
}

// NewSubjectPair returns the canonical (sorted) pair for a and b.
func NewSubjectPair(a, b string) SubjectPair {
	if b < a {
		a, b = b, a
	}
	return SubjectPair{A: a, B: b}
}

// Bridge lists the concepts two subjects share.
type Bridge struct {
	// Keywords are lower-case tokens matched against concept names.
	Keywords []string

	// Explanations describe the transfer for specific keywords.
	Explanations map[string]string
}

// explain returns the transfer explanation for keyword.
func (b Bridge) explain(keyword string, pair SubjectPair) string {
	if text, ok := b.Explanations[keyword]; ok {
		return text
	}
	return fmt.Sprintf("%q is shared between %s and %s", keyword, pair.A, pair.B)
}

// DefaultBridges is the built-in cross-subject bridge table.
var DefaultBridges = map[SubjectPair]Bridge{
	NewSubjectPair("math", "physics"): {
		Keywords: []string{"derivative", "integral", "vector", "function", "rate", "trigonometry"},
		Explanations: map[string]string{
			"derivative": "Derivatives describe velocity and acceleration as rates of change of position.",
			"integral":   "Integrals accumulate quantities such as work, displacement and charge.",
			"vector":     "Vectors represent forces, velocities and fields with magnitude and direction.",
		},
	},
	NewSubjectPair("math", "chemistry"): {
		Keywords: []string{"ratio", "proportion", "logarithm", "equation", "exponential"},
		Explanations: map[string]string{
			"ratio":     "Mole ratios and stoichiometry are applied ratios.",
			"logarithm": "pH is a logarithmic scale of hydrogen ion concentration.",
		},
	},
	NewSubjectPair("math", "computer_science"): {
		Keywords: []string{"logic", "function", "recursion", "graph", "matrix", "set"},
		Explanations: map[string]string{
			"logic":     "Boolean logic is the basis of conditions and circuits.",
			"recursion": "Recursive definitions become recursive functions.",
			"graph":     "Graph theory underlies networks, dependency resolution and search.",
		},
	},
	NewSubjectPair("math", "economics"): {
		Keywords: []string{"optimization", "probability", "statistics", "function", "percentage"},
		Explanations: map[string]string{
			"optimization": "Marginal analysis is optimization with derivatives.",
			"percentage":   "Interest, inflation and growth rates are percentages.",
		},
	},
	NewSubjectPair("physics", "chemistry"): {
		Keywords: []string{"energy", "atom", "thermodynamics", "electron", "force"},
		Explanations: map[string]string{
			"energy":         "Conservation of energy governs both motion and reactions.",
			"thermodynamics": "Heat and entropy decide whether reactions proceed.",
		},
	},
	NewSubjectPair("chemistry", "biology"): {
		Keywords: []string{"molecule", "reaction", "enzyme", "energy", "bond"},
		Explanations: map[string]string{
			"enzyme":   "Enzymes are biological catalysts that lower activation energy.",
			"reaction": "Metabolism is a network of chemical reactions.",
		},
	},
	NewSubjectPair("biology", "computer_science"): {
		Keywords: []string{"network", "sequence", "pattern", "evolution"},
		Explanations: map[string]string{
			"sequence": "Genetic sequences are strings processed with alignment algorithms.",
		},
	},
}

// DefaultSynergies describes why a transition between two subjects helps.
var DefaultSynergies = map[SubjectPair]string{
	NewSubjectPair("math", "physics"):             "Mathematical tools give physical laws their precise, predictive form.",
	NewSubjectPair("math", "chemistry"):           "Quantitative reasoning turns chemical observations into measurable relationships.",
	NewSubjectPair("math", "computer_science"):    "Formal reasoning in mathematics maps directly onto algorithms and proofs of correctness.",
	NewSubjectPair("math", "economics"):           "Mathematical models make economic trade-offs explicit and comparable.",
	NewSubjectPair("physics", "chemistry"):        "Physical principles explain the structure and energy of chemical systems.",
	NewSubjectPair("chemistry", "biology"):        "Chemical processes are the mechanism behind living systems.",
	NewSubjectPair("biology", "computer_science"): "Computation lets biological data be modelled, searched and simulated.",
}

// synergy returns the synergy text for a subject transition.
func (l *Linker) synergy(from, to string) string {
	if text, ok := l.synergies[NewSubjectPair(from, to)]; ok {
		return text
	}
	return fmt.Sprintf("Concepts from %s provide context for %s.", from, to)
}
