package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/agentgraph/pkg/protocol"
)

type step struct {
	nodeID  string
	outcome protocol.Outcome
	err     error
}

func (r *Run) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}

	return r.Logger
}

// runnable reports whether the tracker lets id run now.
func (r *Run) runnable(id string) bool {
	return r.Tracker.IsEnabled(id) && !r.Tracker.IsCompleted(id) && r.Tracker.Pending(id) == 0
}

// finish ends a pass that drained without failure or pause. Every enabled node must be
// completed by then; otherwise the pass failed on the first node left waiting.
func (r *Run) finish(ctx context.Context) *Result {
	outstanding := r.Tracker.Outstanding()
	if len(outstanding) == 0 {
		return &Result{Status: StatusCompleted}
	}

	r.logger().ErrorContext(ctx, "Run drained with nodes still waiting", "nodes", outstanding)

	return &Result{
		Status: StatusFailed,
		NodeID: outstanding[0],
		Err:    fmt.Errorf("%w: %s", ErrStalled, strings.Join(outstanding, ", ")),
	}
}

// execute runs one node through its lifecycle and records a failure on the aggregate.
func (r *Run) execute(ctx context.Context, id string) step {
	spec := r.Graph.Node(id)
	node := r.Nodes[id]

	r.Aggregate.NodeStarted(id)

	outcome, err := r.Lifecycle.Run(ctx, spec, node, r.Context)
	if err != nil {
		r.Aggregate.NodeFailed(id, err)
	}

	return step{nodeID: id, outcome: outcome, err: err}
}

// complete records a successful outcome on the aggregate and the tracker, resolving the
// routing decision first so unselected branches never become ready. It returns the nodes
// that became ready, sorted.
func (r *Run) complete(ctx context.Context, id string, outcome protocol.Outcome) []string {
	r.Aggregate.NodeSucceeded(id)

	var ready []string

	if outcome.Kind == protocol.OutcomeRoute {
		ready = append(ready, r.resolveRoute(ctx, id, outcome)...)
	}

	ready = append(ready, r.Tracker.MarkCompleted(id)...)

	return uniqueSorted(ready)
}

// resolveRoute disables every candidate the router did not select and skips what is left
// without an enabled parent.
func (r *Run) resolveRoute(ctx context.Context, routerID string, outcome protocol.Outcome) []string {
	candidates := r.Graph.Candidates(routerID)

	selected := outcome.Decision
	if outcome.IsStop() {
		selected = ""
	} else if !contains(candidates, selected) {
		r.logger().WarnContext(ctx, "Router selected an unknown branch, stopping", "node_id", routerID, "decision", selected)
		selected = ""
	}

	var ready []string

	for _, candidate := range candidates {
		if candidate == selected {
			continue
		}

		_, survivors := r.Tracker.DisableNode(candidate)
		ready = append(ready, survivors...)
	}

	skipped := r.Aggregate.ApplyRouteDecision(routerID, selected)
	for _, id := range skipped {
		r.Lifecycle.EmitSkipped(ctx, r.Graph.Node(id), r.Context)
	}

	r.logger().InfoContext(ctx, "Route resolved", "node_id", routerID, "decision", outcome.Decision, "skipped", skipped)

	return ready
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}

	return false
}

func uniqueSorted(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	sort.Strings(out)

	return out
}
