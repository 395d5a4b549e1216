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
	"cmp"
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/conceptgraph/services/knowledge/graph"
)

// criticalCycleLength is the length below which a cycle is critical.
const criticalCycleLength = 4

// adjacency is an integer-indexed copy of the graph's simple digraph:
// parallel edges collapse and successors keep first-seen order.
type adjacency struct {
	ids   []string
	index map[string]int
	succ  [][]int
}

func newAdjacency(v graph.View) *adjacency {
	a := &adjacency{ids: v.NodeIDs()}
	a.index = make(map[string]int, len(a.ids))
	for i, id := range a.ids {
		a.index[id] = i
	}
	a.succ = make([][]int, len(a.ids))
	for i, id := range a.ids {
		for _, t := range uniqueTargets(v.Outgoing(id)) {
			a.succ[i] = append(a.succ[i], a.index[t])
		}
	}
	return a
}

// DetectCycles enumerates every elementary cycle.
//
// Description:
//
//	Uses Johnson's algorithm on the graph with parallel edges collapsed.
//	Self-loops are reported first as cycles of length 1. Remaining cycles
//	are found per strongly connected component, rooted at the component's
//	earliest-inserted concept, and listed starting from that root.
//
// Outputs:
//
//	[]Cycle - Cycles in discovery order.
//	error - ctx.Err() if cancelled; the cycles found so far are returned.
//
// Limitations:
//
//	The number of elementary cycles can be exponential in graph size.
func (e *Engine) DetectCycles(ctx context.Context) ([]Cycle, error) {
	ctx, span := startQuerySpan(ctx, "DetectCycles", "")
	defer span.End()
	began := time.Now()

	var (
		cycles []Cycle
		err    error
	)
	e.store.Read(func(v graph.View) {
		adj := newAdjacency(v)
		var raw [][]int
		raw, err = johnson(ctx, adj)
		cycles = make([]Cycle, 0, len(raw))
		for _, c := range raw {
			cycles = append(cycles, makeCycle(v, adj, c))
		}
	})

	span.SetAttributes(attribute.Int("query.cycle_count", len(cycles)))
	recordQueryMetrics(ctx, "cycles", time.Since(began), len(cycles))
	if len(cycles) == 0 {
		cycles = nil
	}
	return cycles, err
}

func makeCycle(v graph.View, adj *adjacency, members []int) Cycle {
	c := Cycle{Concepts: make([]string, len(members)), Length: len(members)}
	for i, m := range members {
		id := adj.ids[m]
		c.Concepts[i] = id
		n, _ := v.Node(id)
		c.TotalDurationMinutes += n.DurationMinutes
	}
	c.Severity = SeverityWarning
	if c.Length < criticalCycleLength {
		c.Severity = SeverityCritical
	}
	return c
}

// johnson returns elementary cycles as index lists.
func johnson(ctx context.Context, adj *adjacency) ([][]int, error) {
	var cycles [][]int
	n := len(adj.ids)

	// Self-loops, then a successor table without them.
	succ := make([][]int, n)
	for i, targets := range adj.succ {
		for _, t := range targets {
			if t == i {
				cycles = append(cycles, []int{i})
				continue
			}
			succ[i] = append(succ[i], t)
		}
	}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	queue := nontrivialSCCs(succ, all)

	iterations := 0
	for len(queue) > 0 {
		comp := queue[0]
		queue = queue[1:]

		// Components are in ascending index order, so comp[0] is the root.
		root := comp[0]
		inComp := make(map[int]bool, len(comp))
		for _, c := range comp {
			inComp[c] = true
		}

		found, err := circuits(ctx, succ, root, inComp, &iterations)
		cycles = append(cycles, found...)
		if err != nil {
			return cycles, err
		}

		queue = append(queue, nontrivialSCCs(succ, comp[1:])...)
	}
	return cycles, nil
}

type circuitFrame struct {
	node   int
	next   int
	closed bool
}

// circuits finds every elementary cycle through root inside the component.
func circuits(ctx context.Context, succ [][]int, root int, inComp map[int]bool, iterations *int) ([][]int, error) {
	var found [][]int

	blocked := map[int]bool{root: true}
	blockedBy := make(map[int]map[int]bool)
	path := []int{root}
	stack := []circuitFrame{{node: root}}

	unblock := func(u int) {
		pending := []int{u}
		for len(pending) > 0 {
			w := pending[len(pending)-1]
			pending = pending[:len(pending)-1]
			if !blocked[w] {
				continue
			}
			delete(blocked, w)
			for x := range blockedBy[w] {
				pending = append(pending, x)
			}
			delete(blockedBy, w)
		}
	}

	for len(stack) > 0 {
		*iterations++
		if *iterations%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return found, err
			}
		}

		top := &stack[len(stack)-1]
		nbrs := succ[top.node]

		advanced := false
		for top.next < len(nbrs) {
			w := nbrs[top.next]
			top.next++
			if !inComp[w] {
				continue
			}
			if w == root {
				found = append(found, append([]int(nil), path...))
				top.closed = true
			} else if !blocked[w] {
				path = append(path, w)
				blocked[w] = true
				stack = append(stack, circuitFrame{node: w})
				advanced = true
				break
			}
		}
		if advanced {
			continue
		}

		// Neighbors exhausted: return from this frame.
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		path = path[:len(path)-1]

		if frame.closed {
			unblock(frame.node)
			if len(stack) > 0 {
				stack[len(stack)-1].closed = true
			}
		} else {
			for _, w := range succ[frame.node] {
				if !inComp[w] {
					continue
				}
				if blockedBy[w] == nil {
					blockedBy[w] = make(map[int]bool)
				}
				blockedBy[w][frame.node] = true
			}
		}
	}
	return found, nil
}

type sccFrame struct {
	node int
	next int
}

// nontrivialSCCs returns the strongly connected components of the subgraph
// induced by nodes that have more than one member. Each component is sorted
// ascending, and components are ordered by their smallest member.
func nontrivialSCCs(succ [][]int, nodes []int) [][]int {
	member := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		member[n] = true
	}

	index := make(map[int]int, len(nodes))
	low := make(map[int]int, len(nodes))
	onStack := make(map[int]bool, len(nodes))
	var sccStack []int
	var comps [][]int
	counter := 0

	for _, start := range nodes {
		if _, visited := index[start]; visited {
			continue
		}

		index[start], low[start] = counter, counter
		counter++
		sccStack = append(sccStack, start)
		onStack[start] = true
		call := []sccFrame{{node: start}}

		for len(call) > 0 {
			top := &call[len(call)-1]
			v := top.node

			descended := false
			for top.next < len(succ[v]) {
				w := succ[v][top.next]
				top.next++
				if !member[w] {
					continue
				}
				if _, visited := index[w]; !visited {
					index[w], low[w] = counter, counter
					counter++
					sccStack = append(sccStack, w)
					onStack[w] = true
					call = append(call, sccFrame{node: w})
					descended = true
					break
				}
				if onStack[w] && index[w] < low[v] {
					low[v] = index[w]
				}
			}
			if descended {
				continue
			}

			call = call[:len(call)-1]
			if len(call) > 0 {
				parent := call[len(call)-1].node
				if low[v] < low[parent] {
					low[parent] = low[v]
				}
			}

			if low[v] == index[v] {
				var comp []int
				for {
					w := sccStack[len(sccStack)-1]
					sccStack = sccStack[:len(sccStack)-1]
					onStack[w] = false
					comp = append(comp, w)
					if w == v {
						break
					}
				}
				if len(comp) > 1 {
					slices.Sort(comp)
					comps = append(comps, comp)
				}
			}
		}
	}

	slices.SortFunc(comps, func(a, b []int) int { return cmp.Compare(a[0], b[0]) })
	return comps
}
