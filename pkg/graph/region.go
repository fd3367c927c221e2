package graph

import (
	"sort"

	"github.com/dukex/agentgraph/pkg/models"
)

// LoopRegion returns the nodes a loop-back edge from source to target re-runs: target,
// source and every node on a non-loop-back path between them, sorted. It is empty when
// source is not reachable from target.
func LoopRegion(g *models.Graph, source, target string) []string {
	_, successors := adjacency(g)

	predecessors := make(map[string][]string, len(successors))
	for from, tos := range successors {
		for _, to := range tos {
			predecessors[to] = append(predecessors[to], from)
		}
	}

	forward := reach(target, successors)
	if !forward[source] {
		return nil
	}

	backward := reach(source, predecessors)

	var region []string

	for id := range forward {
		if backward[id] {
			region = append(region, id)
		}
	}

	sort.Strings(region)

	return region
}

func reach(start string, next map[string][]string) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, n := range next[current] {
			if !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}

	return seen
}
