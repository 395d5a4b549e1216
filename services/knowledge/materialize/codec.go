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
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
)

// Binary snapshot layout (all integers big-endian):
//
//	offset  size  field
//	0       4     magic "KGSN"
//	4       2     format version
//	6       2     flags (none defined, must be zero)
//	8       4     body length N
//	12      N     msgpack body
//	12+N    4     CRC-32 (IEEE) of the body
const (
	// FormatVersion is the binary format written by Encode.
	FormatVersion uint16 = 1

	headerSize  = 12
	trailerSize = 4
)

var magic = [4]byte{'K', 'G', 'S', 'N'}

// Snapshot is the decoded content of a binary snapshot.
type Snapshot struct {
	Version   string
	Timestamp time.Time
	Graph     graph.Dump
}

type wireSnapshot struct {
	Version         string              `msgpack:"version"`
	TimestampNanos  int64               `msgpack:"timestamp"`
	Nodes           []wireNode          `msgpack:"nodes,omitempty"`
	Edges           []wireEdge          `msgpack:"edges,omitempty"`
	SubjectIndex    []wireSubjectRow    `msgpack:"subject_index,omitempty"`
	DifficultyIndex []wireDifficultyRow `msgpack:"difficulty_index,omitempty"`
}

type wireNode struct {
	ID                  string            `msgpack:"id"`
	Name                string            `msgpack:"name,omitempty"`
	SubjectID           string            `msgpack:"subject,omitempty"`
	Difficulty          int8              `msgpack:"difficulty,omitempty"`
	ConceptType         string            `msgpack:"type,omitempty"`
	DurationMinutes     int64             `msgpack:"duration,omitempty"`
	Tags                []string          `msgpack:"tags,omitempty"`
	Description         string            `msgpack:"description,omitempty"`
	LearningObjectives  []string          `msgpack:"objectives,omitempty"`
	Keywords            []string          `msgpack:"keywords,omitempty"`
	CurriculumStandards []string          `msgpack:"standards,omitempty"`
	Extra               map[string]string `msgpack:"extra,omitempty"`
}

type wireEdge struct {
	Source   string            `msgpack:"src"`
	Target   string            `msgpack:"dst"`
	Type     string            `msgpack:"type"`
	Strength float64           `msgpack:"strength"`
	Metadata map[string]string `msgpack:"metadata,omitempty"`
}

type wireSubjectRow struct {
	Subject string   `msgpack:"subject"`
	IDs     []string `msgpack:"ids"`
}

type wireDifficultyRow struct {
	Difficulty int8     `msgpack:"difficulty"`
	IDs        []string `msgpack:"ids"`
}

// Encode serializes a snapshot.
//
// Description:
//
//	Index tables are written as rows sorted by key and map keys are sorted,
//	so equal graphs always encode to identical bytes.
//
// Outputs:
//
//	[]byte - The framed snapshot.
//	error - Non-nil if msgpack encoding fails.
func Encode(s Snapshot) ([]byte, error) {
	w := wireSnapshot{
		Version:        s.Version,
		TimestampNanos: s.Timestamp.UnixNano(),
	}
	for _, n := range s.Graph.Nodes {
		w.Nodes = append(w.Nodes, wireNode{
			ID:                  n.ID,
			Name:                n.Name,
			SubjectID:           n.SubjectID,
			Difficulty:          int8(n.Difficulty),
			ConceptType:         n.ConceptType,
			DurationMinutes:     int64(n.DurationMinutes),
			Tags:                n.Tags,
			Description:         n.Metadata.Description,
			LearningObjectives:  n.Metadata.LearningObjectives,
			Keywords:            n.Metadata.Keywords,
			CurriculumStandards: n.Metadata.CurriculumStandards,
			Extra:               n.Metadata.Extra,
		})
	}
	for _, e := range s.Graph.Edges {
		w.Edges = append(w.Edges, wireEdge{
			Source:   e.SourceID,
			Target:   e.TargetID,
			Type:     string(e.Type),
			Strength: e.Strength,
			Metadata: e.Metadata,
		})
	}
	for subject, ids := range s.Graph.SubjectIndex {
		w.SubjectIndex = append(w.SubjectIndex, wireSubjectRow{Subject: subject, IDs: ids})
	}
	slices.SortFunc(w.SubjectIndex, func(a, b wireSubjectRow) int {
		return cmp.Compare(a.Subject, b.Subject)
	})
	for d, ids := range s.Graph.DifficultyIndex {
		w.DifficultyIndex = append(w.DifficultyIndex, wireDifficultyRow{Difficulty: int8(d), IDs: ids})
	}
	slices.SortFunc(w.DifficultyIndex, func(a, b wireDifficultyRow) int {
		return cmp.Compare(a.Difficulty, b.Difficulty)
	})

	var body bytes.Buffer
	enc := msgpack.NewEncoder(&body)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&w); err != nil {
		return nil, fmt.Errorf("encode snapshot body: %w", err)
	}

	out := make([]byte, 0, headerSize+body.Len()+trailerSize)
	out = append(out, magic[:]...)
	out = binary.BigEndian.AppendUint16(out, FormatVersion)
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(body.Len()))
	out = append(out, body.Bytes()...)
	out = binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(body.Bytes()))
	return out, nil
}

// Decode parses a framed snapshot.
//
// Description:
//
//	Rejects blobs with the wrong magic, a newer format version, unknown
//	flags, a length that does not match the frame, or a bad checksum.
//	Index tables are returned as stored; graph.Store.Restore checks them
//	against the node table.
//
// Outputs:
//
//	Snapshot - The decoded snapshot with a UTC timestamp.
//	error - Wraps ErrCorruptSnapshot.
func Decode(data []byte) (Snapshot, error) {
	if len(data) < headerSize+trailerSize {
		return Snapshot{}, fmt.Errorf("%w: %d bytes is shorter than the frame", ErrCorruptSnapshot, len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return Snapshot{}, fmt.Errorf("%w: bad magic %q", ErrCorruptSnapshot, data[:4])
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version == 0 || version > FormatVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported format version %d", ErrCorruptSnapshot, version)
	}
	if flags := binary.BigEndian.Uint16(data[6:8]); flags != 0 {
		return Snapshot{}, fmt.Errorf("%w: unknown flags %#04x", ErrCorruptSnapshot, flags)
	}
	bodyLen := binary.BigEndian.Uint32(data[8:12])
	if uint64(len(data)) != uint64(headerSize)+uint64(bodyLen)+trailerSize {
		return Snapshot{}, fmt.Errorf("%w: body length %d does not match %d-byte frame", ErrCorruptSnapshot, bodyLen, len(data))
	}
	body := data[headerSize : headerSize+int(bodyLen)]
	if sum := binary.BigEndian.Uint32(data[headerSize+int(bodyLen):]); sum != crc32.ChecksumIEEE(body) {
		return Snapshot{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	var w wireSnapshot
	if err := msgpack.Unmarshal(body, &w); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode body: %v", ErrCorruptSnapshot, err)
	}

	s := Snapshot{
		Version:   w.Version,
		Timestamp: time.Unix(0, w.TimestampNanos).UTC(),
	}
	for _, n := range w.Nodes {
		node := graph.Node{
			ID:              n.ID,
			Name:            n.Name,
			SubjectID:       n.SubjectID,
			Difficulty:      graph.Difficulty(n.Difficulty),
			ConceptType:     n.ConceptType,
			DurationMinutes: int(n.DurationMinutes),
			Tags:            n.Tags,
			Metadata: graph.NodeMetadata{
				Description:         n.Description,
				LearningObjectives:  n.LearningObjectives,
				Keywords:            n.Keywords,
				CurriculumStandards: n.CurriculumStandards,
				Extra:               n.Extra,
			},
		}
		s.Graph.Nodes = append(s.Graph.Nodes, node.Clone())
	}
	for _, e := range w.Edges {
		edge := graph.Edge{
			SourceID: e.Source,
			TargetID: e.Target,
			Type:     graph.RelationshipType(e.Type),
			Strength: e.Strength,
			Metadata: e.Metadata,
		}
		s.Graph.Edges = append(s.Graph.Edges, edge.Clone())
	}
	if len(w.SubjectIndex) > 0 {
		s.Graph.SubjectIndex = make(map[string][]string, len(w.SubjectIndex))
		for _, row := range w.SubjectIndex {
			s.Graph.SubjectIndex[row.Subject] = row.IDs
		}
	}
	if len(w.DifficultyIndex) > 0 {
		s.Graph.DifficultyIndex = make(map[graph.Difficulty][]string, len(w.DifficultyIndex))
		for _, row := range w.DifficultyIndex {
			s.Graph.DifficultyIndex[graph.Difficulty(row.Difficulty)] = row.IDs
		}
	}
	return s, nil
}
