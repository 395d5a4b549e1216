// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
)

// centralityBlocks is the fixed number of source partitions. Partial scores
// are summed in block order, so results do not depend on scheduling.
const centralityBlocks = 8

// FindCentralConcepts ranks concepts by betweenness centrality.
//
// Description:
//
//	Brandes' algorithm on the unweighted graph with parallel edges
//	collapsed. For n > 2 concepts scores are normalized by 1/((n-1)(n-2)).
//	Source concepts are split into fixed blocks processed concurrently.
//	Ties keep insertion order; topN <= 0 returns every concept.
//
// Outputs:
//
//	[]RankedConcept - Concepts by descending score.
//	error - ctx.Err() if cancelled.
func (e *Engine) FindCentralConcepts(ctx context.Context, topN int) ([]RankedConcept, error) {
	ctx, span := startQuerySpan(ctx, "FindCentralConcepts", "")
	defer span.End()
	began := time.Now()

	var (
		ranked []RankedConcept
		err    error
	)
	e.store.Read(func(v graph.View) {
		adj := newAdjacency(v)
		var scores []float64
		scores, err = betweenness(ctx, adj)
		if err != nil {
			return
		}
		ranked = make([]RankedConcept, len(adj.ids))
		for i, id := range adj.ids {
			n, _ := v.Node(id)
			ranked[i] = RankedConcept{ID: id, Name: n.Name, Score: scores[i]}
		}
	})
	if err != nil {
		return nil, err
	}

	ranked = topRanked(ranked, topN)
	recordQueryMetrics(ctx, "centrality", time.Since(began), len(ranked))
	return ranked, nil
}

// betweenness computes normalized betweenness for every index in adj.
func betweenness(ctx context.Context, adj *adjacency) ([]float64, error) {
	n := len(adj.ids)
	scores := make([]float64, n)
	if n == 0 {
		return scores, nil
	}

	partials := make([][]float64, centralityBlocks)
	g, gctx := errgroup.WithContext(ctx)
	blockSize := (n + centralityBlocks - 1) / centralityBlocks

	for b := 0; b < centralityBlocks; b++ {
		lo := b * blockSize
		hi := min(lo+blockSize, n)
		if lo >= hi {
			continue
		}
		b := b
		g.Go(func() error {
			partial := make([]float64, n)
			for s := lo; s < hi; s++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				accumulate(adj, s, partial)
			}
			partials[b] = partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, partial := range partials {
		for i, p := range partial {
			scores[i] += p
		}
	}

	if n > 2 {
		scale := 1.0 / float64((n-1)*(n-2))
		for i := range scores {
			scores[i] *= scale
		}
	}
	return scores, nil
}

// accumulate adds the dependencies of source s to partial (Brandes).
func accumulate(adj *adjacency, s int, partial []float64) {
	n := len(adj.ids)
	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	preds := make([][]int, n)
	for i := range dist {
		dist[i] = -1
	}
	sigma[s] = 1
	dist[s] = 0

	order := make([]int, 0, n)
	queue := []int{s}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, w := range adj.succ[v] {
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				preds[w] = append(preds[w], v)
			}
		}
	}

	for i := len(order) - 1; i >= 0; i-- {
		w := order[i]
		for _, v := range preds[w] {
			delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
		}
		if w != s {
			partial[w] += delta[w]
		}
	}
}
