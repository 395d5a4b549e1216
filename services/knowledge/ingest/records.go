// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest reads concept records and deltas from disk and watches a
// records file for changes.
//
// Files are JSON (.json) or YAML (.yaml, .yml). Record-level validation is
// left to graph.Store.Build and materialize.ApplyDelta, which skip bad
// records instead of failing the load.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
	"github.com/AleutianAI/conceptgraph/services/knowledge/materialize"
)

// MaxFileSize is the largest records or delta file accepted (64MB).
const MaxFileSize = 64 << 20

var (
	// ErrUnsupportedFormat indicates a file extension other than .json,
	// .yaml or .yml.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrFileTooLarge indicates the file exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")
)

// Dataset is the content of a records file.
type Dataset struct {
	Concepts      []graph.ConceptRecord      `json:"concepts" yaml:"concepts"`
	Relationships []graph.RelationshipRecord `json:"relationships" yaml:"relationships"`
}

// LoadDataset reads a records file.
//
// Outputs:
//
//	Dataset - Records in file order.
//	error - I/O failure, ErrUnsupportedFormat, ErrFileTooLarge or a parse error.
func LoadDataset(path string) (Dataset, error) {
	var ds Dataset
	if err := decodeFile(path, &ds); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// LoadDelta reads a delta file with the keys add_nodes, update_nodes,
// delete_nodes, add_edges and delete_edges.
func LoadDelta(path string) (materialize.Delta, error) {
	var d materialize.Delta
	if err := decodeFile(path, &d); err != nil {
		return materialize.Delta{}, err
	}
	return d, nil
}

// decodeFile picks the decoder by extension. Unknown keys are rejected so
// that a delta file passed as --records fails loudly.
func decodeFile(path string, out any) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > MaxFileSize {
		return fmt.Errorf("%w: %s", ErrFileTooLarge, path)
	}

	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}
