// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/AleutianAI/conceptgraph/services/knowledge/ingest"
	"github.com/AleutianAI/conceptgraph/services/knowledge/materialize"
)

// printer writes command results as text or JSON.
type printer struct {
	w    io.Writer
	json bool
}

func (p *printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) summary(s *materialize.RefreshSummary) error {
	if p.json {
		return p.writeJSON(s)
	}
	fmt.Fprintf(p.w, "%s refresh complete: version %s\n", s.Mode, s.Version)
	fmt.Fprintf(p.w, "  nodes %d, edges %d, cycles %d, snapshot %d bytes, took %s\n",
		s.NodeCount, s.EdgeCount, s.CycleCount, s.SnapshotBytes, s.Duration.Round(time.Millisecond))
	if s.Build != nil && (s.Build.NodesSkipped > 0 || s.Build.EdgesDropped > 0) {
		fmt.Fprintf(p.w, "  skipped %d concepts, dropped %d relationships\n",
			s.Build.NodesSkipped, s.Build.EdgesDropped)
	}
	if d := s.Delta; d != nil {
		fmt.Fprintf(p.w, "  delta: +%d ~%d -%d nodes, +%d -%d edges, %d skipped\n",
			d.NodesAdded, d.NodesUpdated, d.NodesDeleted, d.EdgesAdded, d.EdgesDeleted, d.Skipped)
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(p.w, "  warning: %s\n", w)
	}
	return nil
}

func (p *printer) status(st *materialize.Status) error {
	if p.json {
		return p.writeJSON(st)
	}
	fmt.Fprintf(p.w, "State:        %s\n", st.State)
	fmt.Fprintf(p.w, "Storage:      %s\n", st.Storage)
	if st.Empty {
		fmt.Fprintln(p.w, "Graph:        empty (no snapshot)")
		return nil
	}
	if st.Version != "" {
		fmt.Fprintf(p.w, "Version:      %s (%s)\n", st.Version, st.Mode)
	}
	if st.LastRefresh != nil {
		fmt.Fprintf(p.w, "Last refresh: %s\n", st.LastRefresh.Format(time.RFC3339))
	}
	fmt.Fprintf(p.w, "Nodes:        %d\n", st.NodeCount)
	fmt.Fprintf(p.w, "Edges:        %d\n", st.EdgeCount)
	fmt.Fprintf(p.w, "Cycles:       %d\n", st.CycleCount)
	fmt.Fprintf(p.w, "Snapshots:    %d\n", st.Snapshots)

	subjects := make([]string, 0, len(st.Subjects))
	for s := range st.Subjects {
		subjects = append(subjects, s)
	}
	slices.Sort(subjects)
	for i, s := range subjects {
		subjects[i] = fmt.Sprintf("%s=%d", s, st.Subjects[s])
	}
	fmt.Fprintf(p.w, "Subjects:     %s\n", strings.Join(subjects, " "))
	return nil
}

func (p *printer) cleanup(keep int, removed []string) error {
	if p.json {
		return p.writeJSON(struct {
			Kept    int      `json:"kept"`
			Removed []string `json:"removed"`
		}{keep, removed})
	}
	fmt.Fprintf(p.w, "cleanup: kept newest %d, removed %d snapshot(s)\n", keep, len(removed))
	for _, v := range removed {
		fmt.Fprintf(p.w, "  removed %s\n", v)
	}
	return nil
}

// loadRecords reads a records file, or returns the sample dataset for "".
func loadRecords(path string) (ingest.Dataset, error) {
	if path == "" {
		return ingest.SampleDataset()
	}
	return ingest.LoadDataset(path)
}

func loadDelta(path string) (materialize.Delta, error) {
	return ingest.LoadDelta(path)
}
