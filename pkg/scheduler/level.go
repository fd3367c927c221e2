package scheduler

import (
	"context"
	"log/slog"

	"github.com/dukex/agentgraph/pkg/graph"
	"github.com/dukex/agentgraph/pkg/protocol"
	"golang.org/x/sync/errgroup"
)

// LevelScheduler runs the graph one topological level at a time. Nodes of a level run
// concurrently and the level is joined before routing decisions are applied. Loop-back
// edges are never followed.
type LevelScheduler struct {
	concurrency int
	logger      *slog.Logger
}

func NewLevelScheduler(concurrency int, logger *slog.Logger) *LevelScheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &LevelScheduler{concurrency: normalizeConcurrency(concurrency), logger: logger}
}

func (s *LevelScheduler) Strategy() Strategy {
	return StrategyLevel
}

func (s *LevelScheduler) Run(ctx context.Context, run *Run) *Result {
	levels, err := graph.Levels(run.Graph)
	if err != nil {
		return &Result{Status: StatusFailed, Err: err}
	}

	for index, level := range levels {
		if err := ctx.Err(); err != nil {
			return &Result{Status: StatusInterrupted, Err: err}
		}

		batch := make([]string, 0, len(level))
		for _, id := range level {
			if run.runnable(id) {
				batch = append(batch, id)
			}
		}

		if len(batch) == 0 {
			continue
		}

		s.logger.DebugContext(ctx, "Running level", "level", index, "nodes", batch)

		steps := make([]step, len(batch))

		var group errgroup.Group

		group.SetLimit(s.concurrency)

		for i, id := range batch {
			group.Go(func() error {
				steps[i] = run.execute(ctx, id)

				return nil
			})
		}

		_ = group.Wait()

		if err := ctx.Err(); err != nil {
			return &Result{Status: StatusInterrupted, Err: err}
		}

		if result := s.join(ctx, run, steps); result != nil {
			return result
		}
	}

	if err := ctx.Err(); err != nil {
		return &Result{Status: StatusInterrupted, Err: err}
	}

	return run.finish(ctx)
}

// join applies the outcomes of a level in node order. Successes are always recorded; a
// failure wins over a pause and only the first pause of a level is kept.
func (s *LevelScheduler) join(ctx context.Context, run *Run, steps []step) *Result {
	var failed, paused *step

	for i := range steps {
		st := &steps[i]

		switch {
		case st.err != nil:
			if failed == nil {
				failed = st
			}
		case st.outcome.Kind == protocol.OutcomePause:
			if paused == nil {
				paused = st

				continue
			}

			// Only one pause can be reported; the other node runs again after resume.
			run.Aggregate.ResetNodes(st.nodeID)
		default:
			run.complete(ctx, st.nodeID, st.outcome)
		}
	}

	if failed != nil {
		if paused != nil {
			run.Aggregate.ResetNodes(paused.nodeID)
		}

		return &Result{Status: StatusFailed, NodeID: failed.nodeID, Err: failed.err}
	}

	if paused != nil {
		return &Result{Status: StatusPaused, NodeID: paused.nodeID, Pause: paused.outcome}
	}

	return nil
}
