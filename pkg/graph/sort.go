// Package graph orders workflow graphs and tracks dependency state during a run.
package graph

import (
	"sort"

	"github.com/dukex/agentgraph/pkg/models"
)

// adjacency builds the in-degree and successor maps over non-loop-back edges.
func adjacency(g *models.Graph) (map[string]int, map[string][]string) {
	inDegree := make(map[string]int, len(g.Nodes))
	successors := make(map[string][]string, len(g.Nodes))

	for id := range g.Nodes {
		inDegree[id] = 0
	}

	seen := make(map[[2]string]bool, len(g.Edges))

	for _, edge := range g.Edges {
		if edge == nil || edge.IsLoopBack() {
			continue
		}

		if _, ok := inDegree[edge.Source]; !ok {
			continue
		}

		if _, ok := inDegree[edge.Target]; !ok {
			continue
		}

		key := [2]string{edge.Source, edge.Target}
		if seen[key] {
			continue
		}

		seen[key] = true
		inDegree[edge.Target]++
		successors[edge.Source] = append(successors[edge.Source], edge.Target)
	}

	for id := range successors {
		sort.Strings(successors[id])
	}

	return inDegree, successors
}

// Sort returns the node ids in a dependency-respecting order using Kahn's algorithm.
// Ties are broken lexically so the order is stable between runs.
func Sort(g *models.Graph) ([]string, error) {
	levels, err := Levels(g)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(g.Nodes))
	for _, level := range levels {
		order = append(order, level...)
	}

	return order, nil
}

// Levels peels the zero in-degree frontier repeatedly, returning level 0 first.
// All nodes of a level are independent of each other.
func Levels(g *models.Graph) ([][]string, error) {
	inDegree, successors := adjacency(g)

	var frontier []string

	for id, degree := range inDegree {
		if degree == 0 {
			frontier = append(frontier, id)
		}
	}

	var (
		levels  [][]string
		ordered int
	)

	for len(frontier) > 0 {
		sort.Strings(frontier)
		levels = append(levels, frontier)
		ordered += len(frontier)

		var next []string

		for _, id := range frontier {
			for _, succ := range successors[id] {
				inDegree[succ]--
				if inDegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}

		frontier = next
	}

	if ordered != len(g.Nodes) {
		var unresolved []string

		for id, degree := range inDegree {
			if degree > 0 {
				unresolved = append(unresolved, id)
			}
		}

		sort.Strings(unresolved)

		return nil, &CyclicDependencyError{Unresolved: unresolved}
	}

	return levels, nil
}

// HasCycle reports whether the non-loop-back edges contain a cycle. It walks the graph
// depth first and does not share code with Sort.
func HasCycle(g *models.Graph) bool {
	_, successors := adjacency(g)

	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(g.Nodes))

	var visit func(id string) bool

	visit = func(id string) bool {
		state[id] = visiting

		for _, succ := range successors[id] {
			switch state[succ] {
			case visiting:
				return true
			case unvisited:
				if visit(succ) {
					return true
				}
			}
		}

		state[id] = done

		return false
	}

	for _, id := range g.NodeIDs() {
		if state[id] == unvisited && visit(id) {
			return true
		}
	}

	return false
}
