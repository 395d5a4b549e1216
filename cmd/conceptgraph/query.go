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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conceptgraph/services/knowledge/linker"
	"github.com/AleutianAI/conceptgraph/services/knowledge/materialize"
	"github.com/AleutianAI/conceptgraph/services/knowledge/query"
)

// pathReport is the output of the path command.
type pathReport struct {
	Start             string                        `json:"start"`
	Target            string                        `json:"target"`
	Shortest          *query.LearningPath           `json:"shortest,omitempty"`
	Optimal           *query.WeightedPath           `json:"optimal,omitempty"`
	Alternatives      []query.PathSummary           `json:"alternatives"`
	Interdisciplinary *linker.InterdisciplinaryPath `json:"interdisciplinary,omitempty"`
}

func newPathCmd(opts *options, stdout, stderr io.Writer) *cobra.Command {
	var weightBy string
	cmd := &cobra.Command{
		Use:   "path START TARGET",
		Short: "Show learning paths between two concepts in the latest snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			wb := query.WeightBy(weightBy)
			if wb != query.WeightByDuration && wb != query.WeightByDifficulty {
				return fmt.Errorf("--weight-by must be %s or %s", query.WeightByDuration, query.WeightByDifficulty)
			}
			a, err := setup(cmd, opts, stdout, stderr)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); err == nil && cerr != nil {
					err = cerr
				}
			}()
			if err := a.load(cmd); err != nil {
				return err
			}

			start, target := args[0], args[1]
			engine := query.NewEngine(a.manager.Store(), query.WithLogger(a.logger))
			lnk := linker.New(engine, linker.WithCacheSize(a.cfg.Linker.CacheSize), linker.WithLogger(a.logger))

			report := pathReport{
				Start:             start,
				Target:            target,
				Shortest:          engine.FindLearningPath(start, target, a.cfg.Query.MaxConcepts),
				Optimal:           engine.FindOptimalPath(start, target, wb),
				Interdisciplinary: lnk.GenerateInterdisciplinaryPath(start, target, a.cfg.Query.MaxConcepts),
			}
			report.Alternatives, err = engine.FindAllPaths(cmd.Context(), start, target, a.cfg.Query.MaxPaths, a.cfg.Query.PathCutoff)
			if err != nil {
				return err
			}
			return a.out.path(report)
		},
	}
	cmd.Flags().StringVar(&weightBy, "weight-by", string(query.WeightByDuration), "optimal path cost: duration or difficulty")
	return cmd
}

func newLinksCmd(opts *options, stdout, stderr io.Writer) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "links CONCEPT",
		Short: "List concepts in other subjects that the concept transfers to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := setup(cmd, opts, stdout, stderr)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); err == nil && cerr != nil {
					err = cerr
				}
			}()
			if err := a.load(cmd); err != nil {
				return err
			}

			engine := query.NewEngine(a.manager.Store(), query.WithLogger(a.logger))
			lnk := linker.New(engine, linker.WithCacheSize(a.cfg.Linker.CacheSize), linker.WithLogger(a.logger))
			links := lnk.FindTransferableConcepts(args[0], subject, a.cfg.Linker.MinStrength)
			if links == nil && !a.manager.Store().HasNode(args[0]) {
				return fmt.Errorf("concept %q not found", args[0])
			}
			return a.out.links(args[0], links)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "only this target subject")
	return cmd
}

// load reads the latest snapshot into the manager's store.
func (a *app) load(cmd *cobra.Command) error {
	if _, err := a.manager.Load(cmd.Context()); err != nil {
		if errors.Is(err, materialize.ErrNoSnapshot) {
			return fmt.Errorf("no snapshot in %s; run --full first: %w", a.backend.Location(), err)
		}
		return err
	}
	return nil
}

func (p *printer) path(r pathReport) error {
	if p.json {
		return p.writeJSON(r)
	}
	if r.Shortest == nil {
		fmt.Fprintf(p.w, "no learning path from %s to %s\n", r.Start, r.Target)
		return nil
	}
	fmt.Fprintf(p.w, "shortest: %s (%d min)\n", strings.Join(r.Shortest.Concepts, " -> "), r.Shortest.TotalDurationMinutes)
	if r.Optimal != nil {
		fmt.Fprintf(p.w, "optimal by %s: %s (weight %d)\n", r.Optimal.WeightBy, strings.Join(r.Optimal.Concepts, " -> "), r.Optimal.TotalWeight)
	}
	for i, alt := range r.Alternatives {
		fmt.Fprintf(p.w, "path %d: %s (%d hops)\n", i+1, strings.Join(alt.Concepts, " -> "), alt.Hops)
	}
	if ip := r.Interdisciplinary; ip != nil {
		for _, t := range ip.Transitions {
			fmt.Fprintf(p.w, "transition %s -> %s (%s to %s): %s\n", t.FromConcept, t.ToConcept, t.FromSubject, t.ToSubject, t.Synergy)
		}
	}
	return nil
}

func (p *printer) links(id string, links []linker.TransferableConcept) error {
	if p.json {
		return p.writeJSON(struct {
			Concept string                       `json:"concept"`
			Links   []linker.TransferableConcept `json:"links"`
		}{id, links})
	}
	if len(links) == 0 {
		fmt.Fprintf(p.w, "no transferable concepts for %s\n", id)
		return nil
	}
	for _, l := range links {
		fmt.Fprintf(p.w, "%-28s %-18s %.2f %s\n", l.TargetID, l.TargetSubject, l.Strength, l.Method)
	}
	return nil
}
