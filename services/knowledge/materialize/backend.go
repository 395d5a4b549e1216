// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package materialize

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode records how a snapshot was produced.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// versionLayout is the UTC timestamp part of a snapshot version.
const versionLayout = "20060102T150405.000000000Z"

// Metadata is the JSON sidecar written next to every binary snapshot. The
// latest pointer holds a copy of the newest sidecar.
type Metadata struct {
	Version       string    `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	NodeCount     int       `json:"node_count"`
	EdgeCount     int       `json:"edge_count"`
	BinaryFile    string    `json:"binary_file"`
	FormatVersion uint16    `json:"format_version"`
	RefreshID     string    `json:"refresh_id"`
	Mode          Mode      `json:"mode"`
}

// Backend stores snapshots and the latest pointer.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use within one process.
//	Cross-process exclusion is implementation specific.
type Backend interface {
	// Write stores blob, its sidecar and the latest pointer. A reader never
	// observes a pointer to a snapshot that is not fully written.
	Write(ctx context.Context, meta Metadata, blob []byte) error

	// Latest returns the latest pointer, or ErrNoSnapshot.
	Latest(ctx context.Context) (Metadata, error)

	// ReadBlob returns the binary snapshot named by meta.
	ReadBlob(ctx context.Context, meta Metadata) ([]byte, error)

	// List returns the stored sidecars, newest first.
	List(ctx context.Context) ([]Metadata, error)

	// Cleanup deletes all but the newest keep snapshots and returns the
	// removed versions. keep == 0 also drops the latest pointer.
	Cleanup(ctx context.Context, keep int) ([]string, error)

	// Location describes where snapshots live.
	Location() string

	Close() error
}

// holder is implemented by backends whose storage lock can span several
// calls. Manager holds it from load to write of an incremental refresh.
type holder interface {
	Hold() (func() error, error)
}

// newVersion returns a sortable snapshot version for t, e.g.
// "20261015T093012.000000042Z-1f0c2a9b".
func newVersion(t time.Time) string {
	return t.UTC().Format(versionLayout) + "-" + uuid.NewString()[:8]
}

// binaryFileName is the blob name recorded in the sidecar.
func binaryFileName(version string) string {
	return "snapshot_" + version + ".bin"
}

func marshalMetadata(meta Metadata) ([]byte, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sidecar: %w", err)
	}
	return append(data, '\n'), nil
}

func unmarshalMetadata(data []byte) (Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("%w: sidecar: %v", ErrCorruptSnapshot, err)
	}
	if meta.Version == "" || meta.BinaryFile == "" {
		return Metadata{}, fmt.Errorf("%w: sidecar missing version or binary_file", ErrCorruptSnapshot)
	}
	return meta, nil
}
