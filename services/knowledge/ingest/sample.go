// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
)

//go:embed sample.yaml
var sampleYAML []byte

var (
	sampleOnce sync.Once
	sample     Dataset
	sampleErr  error
)

// SampleDataset returns the built-in dataset: 27 concepts across math,
// physics, chemistry, computer science and economics, acyclic, with
// cross-subject prerequisites. Each call returns a fresh copy of the slices.
func SampleDataset() (Dataset, error) {
	sampleOnce.Do(func() {
		if err := yaml.Unmarshal(sampleYAML, &sample); err != nil {
			sampleErr = fmt.Errorf("parse built-in dataset: %w", err)
		}
	})
	if sampleErr != nil {
		return Dataset{}, sampleErr
	}
	return Dataset{
		Concepts:      append([]graph.ConceptRecord(nil), sample.Concepts...),
		Relationships: append([]graph.RelationshipRecord(nil), sample.Relationships...),
	}, nil
}
