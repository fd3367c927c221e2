package scheduler

import (
	"context"
	"sync"

	"github.com/dukex/agentgraph/pkg/conditions"
	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/graph"
	"github.com/dukex/agentgraph/pkg/models"
)

// loopState tracks the iteration budget of every loop-back edge of a run.
type loopState struct {
	run *Run

	mu         sync.Mutex
	iterations map[*models.Edge]int
	perNode    map[string]int
}

func newLoopState(run *Run) *loopState {
	return &loopState{
		run:        run,
		iterations: map[*models.Edge]int{},
		perNode:    map[string]int{},
	}
}

// fire evaluates the loop-back edges leaving source in declaration order. When one fires
// within its budget the loop region is rewound on the tracker and the target is returned
// ready to run, along with every re-opened node.
func (l *loopState) fire(ctx context.Context, source string) (string, []string, bool) {
	for _, edge := range l.run.Graph.Outgoing(source, models.EdgeKindLoopBack) {
		l.mu.Lock()
		used := l.iterations[edge]
		l.mu.Unlock()

		if used >= edge.Iterations() {
			l.run.logger().InfoContext(ctx, "Loop-back budget exhausted", "source", source, "target", edge.Target, "iterations", used)

			continue
		}

		matched, err := conditions.Evaluate(edge.Condition, l.run.Context.TemplateData())
		if err != nil {
			l.run.logger().WarnContext(ctx, "Failed to evaluate loop-back condition", "source", source, "target", edge.Target, "error", err)

			continue
		}

		if !matched {
			continue
		}

		region := graph.LoopRegion(l.run.Graph, source, edge.Target)
		if len(region) == 0 {
			continue
		}

		reopened := l.run.Tracker.Rewind(region)

		l.mu.Lock()
		l.iterations[edge] = used + 1
		l.perNode[edge.Target]++

		snapshot := make(map[string]int, len(l.perNode))
		for id, n := range l.perNode {
			snapshot[id] = n
		}
		l.mu.Unlock()

		l.run.Context.SetSystem(execution.SystemKeyIteration, snapshot)

		return edge.Target, reopened, true
	}

	return "", nil, false
}
