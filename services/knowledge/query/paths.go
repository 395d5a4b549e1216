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
	"container/heap"
	"context"
	"slices"
	"time"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
)

// contextCheckInterval is how many loop iterations run between ctx checks.
const contextCheckInterval = 1024

// FindLearningPath returns the shortest start to target path by edge count.
//
// Description:
//
//	Breadth-first search over outgoing edges of any type, visiting
//	neighbors in edge insertion order. A path from a concept to itself is
//	that single concept.
//
// Inputs:
//
//	start - First concept.
//	target - Last concept.
//	maxConcepts - Maximum number of concepts on the path; <= 0 disables
//	              the limit.
//
// Outputs:
//
//	*LearningPath - The path, or nil if either id is absent, no path exists,
//	                or the path is longer than maxConcepts.
func (e *Engine) FindLearningPath(start, target string, maxConcepts int) *LearningPath {
	began := time.Now()
	var result *LearningPath
	e.store.Read(func(v graph.View) {
		ids := shortestPath(v, start, target)
		if ids == nil || (maxConcepts > 0 && len(ids) > maxConcepts) {
			return
		}
		result = describePath(v, ids)
	})
	count := 0
	if result != nil {
		count = len(result.Concepts)
	}
	recordQueryMetrics(context.Background(), "learning_path", time.Since(began), count)
	return result
}

// shortestPath is a BFS with parent tracking. Caller holds the read lock.
func shortestPath(v graph.View, start, target string) []string {
	if !v.HasNode(start) || !v.HasNode(target) {
		return nil
	}
	if start == target {
		return []string{start}
	}

	parent := map[string]string{start: ""}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range v.Outgoing(current) {
			next := edge.TargetID
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			if next == target {
				path := []string{target}
				for p := current; p != ""; p = parent[p] {
					path = append(path, p)
				}
				slices.Reverse(path)
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func describePath(v graph.View, ids []string) *LearningPath {
	p := &LearningPath{
		Concepts:      ids,
		Difficulties:  make([]graph.Difficulty, 0, len(ids)),
		SubjectGroups: make(map[string][]string),
	}
	for _, id := range ids {
		n, _ := v.Node(id)
		p.TotalDurationMinutes += n.DurationMinutes
		p.Difficulties = append(p.Difficulties, n.Difficulty)
		p.SubjectGroups[n.SubjectID] = append(p.SubjectGroups[n.SubjectID], id)
	}
	return p
}

// FindAllPaths enumerates simple paths from start to target.
//
// Description:
//
//	Iterative depth-first search over distinct successors in insertion
//	order. Paths longer than cutoff hops are not explored. Enumeration stops
//	after maxPaths results, or when ctx is cancelled, in which case the paths
//	found so far are returned with the context error.
//
// Inputs:
//
//	ctx - Cancellation.
//	start, target - Endpoints; a concept has no simple path to itself.
//	maxPaths - Result limit; <= 0 is unlimited.
//	cutoff - Hop limit; <= 0 uses DefaultPathCutoff.
//
// Outputs:
//
//	[]PathSummary - Paths in discovery order.
//	error - ctx.Err() if cancelled.
func (e *Engine) FindAllPaths(ctx context.Context, start, target string, maxPaths, cutoff int) ([]PathSummary, error) {
	ctx, span := startQuerySpan(ctx, "FindAllPaths", start)
	defer span.End()
	began := time.Now()

	if cutoff <= 0 {
		cutoff = DefaultPathCutoff
	}

	var (
		paths []PathSummary
		err   error
	)
	e.store.Read(func(v graph.View) {
		if !v.HasNode(start) || !v.HasNode(target) || start == target {
			return
		}
		paths, err = allSimplePaths(ctx, v, start, target, maxPaths, cutoff)
	})

	recordQueryMetrics(ctx, "all_paths", time.Since(began), len(paths))
	return paths, err
}

func allSimplePaths(ctx context.Context, v graph.View, start, target string, maxPaths, cutoff int) ([]PathSummary, error) {
	var paths []PathSummary

	onPath := map[string]bool{start: true}
	path := []string{start}
	// stack[i] holds the successors of path[i] still to try.
	stack := [][]string{uniqueTargets(v.Outgoing(start))}

	for iterations := 0; len(stack) > 0; iterations++ {
		if iterations%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return paths, err
			}
		}

		top := len(stack) - 1
		if len(stack[top]) == 0 {
			stack = stack[:top]
			delete(onPath, path[top])
			path = path[:top]
			continue
		}

		child := stack[top][0]
		stack[top] = stack[top][1:]

		if onPath[child] {
			continue
		}
		if child == target {
			found := append(slices.Clone(path), child)
			paths = append(paths, summarize(v, found))
			if maxPaths > 0 && len(paths) >= maxPaths {
				return paths, nil
			}
			continue
		}
		if len(path) < cutoff {
			onPath[child] = true
			path = append(path, child)
			stack = append(stack, uniqueTargets(v.Outgoing(child)))
		}
	}
	return paths, nil
}

func summarize(v graph.View, ids []string) PathSummary {
	s := PathSummary{Concepts: ids, Hops: len(ids) - 1}
	for _, id := range ids {
		n, _ := v.Node(id)
		s.TotalDurationMinutes += n.DurationMinutes
	}
	return s
}

// FindOptimalPath returns the cheapest start to target path.
//
// Description:
//
//	Dijkstra's algorithm where the cost of an edge is a property of its
//	source concept: duration in minutes, or the difficulty weight. Among
//	equal-cost candidates, the one reached first wins, which makes results
//	stable for a fixed insertion order.
//
// Outputs:
//
//	*WeightedPath - The path, or nil if either id is absent or no path exists.
func (e *Engine) FindOptimalPath(start, target string, weightBy WeightBy) *WeightedPath {
	began := time.Now()
	var result *WeightedPath
	e.store.Read(func(v graph.View) {
		result = dijkstra(v, start, target, weightBy)
	})
	count := 0
	if result != nil {
		count = len(result.Concepts)
	}
	recordQueryMetrics(context.Background(), "optimal_path", time.Since(began), count)
	return result
}

func edgeCost(n *graph.Node, weightBy WeightBy) int {
	if weightBy == WeightByDifficulty {
		return n.Difficulty.Weight()
	}
	return n.DurationMinutes
}

func dijkstra(v graph.View, start, target string, weightBy WeightBy) *WeightedPath {
	if !v.HasNode(start) || !v.HasNode(target) {
		return nil
	}

	dist := map[string]int{start: 0}
	parent := map[string]string{}
	done := map[string]bool{}

	pq := &distQueue{}
	seq := 0
	heap.Push(pq, distItem{id: start, dist: 0, seq: seq})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(distItem)
		if done[item.id] {
			continue
		}
		done[item.id] = true
		if item.id == target {
			break
		}

		n, _ := v.Node(item.id)
		cost := edgeCost(n, weightBy)
		for _, edge := range v.Outgoing(item.id) {
			next := edge.TargetID
			if done[next] {
				continue
			}
			alt := item.dist + cost
			if d, ok := dist[next]; ok && alt >= d {
				continue
			}
			dist[next] = alt
			parent[next] = item.id
			seq++
			heap.Push(pq, distItem{id: next, dist: alt, seq: seq})
		}
	}

	if !done[target] {
		return nil
	}

	path := []string{target}
	for p := target; p != start; {
		p = parent[p]
		path = append(path, p)
	}
	slices.Reverse(path)

	result := &WeightedPath{Concepts: path, WeightBy: weightBy, TotalWeight: dist[target]}
	for _, id := range path {
		n, _ := v.Node(id)
		result.TotalDurationMinutes += n.DurationMinutes
	}
	return result
}

type distItem struct {
	id   string
	dist int
	seq  int
}

// distQueue is a min-heap ordered by distance, then push order.
type distQueue []distItem

func (q distQueue) Len() int { return len(q) }

func (q distQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].seq < q[j].seq
}

func (q distQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *distQueue) Push(x any) { *q = append(*q, x.(distItem)) }

func (q *distQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}
