// Package static provides a NodeExecutor that renders its answer from node config. It
// needs no model and is used offline and in tests.
package static

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/dukex/agentgraph/pkg/template"
)

// ErrSimulatedFailure is returned for nodes configured with fail: true.
var ErrSimulatedFailure = errors.New("simulated failure")

// Executor renders config.output, or config.prompt when no output is set, against the
// run data. chunk_size streams the answer in pieces of that many runes; fail and
// retryable simulate errors; done ends a react loop.
type Executor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{logger: logger}
}

func (e *Executor) Execute(ctx context.Context, req protocol.ExecutorRequest, stream protocol.StreamPublisher) (*protocol.ExecutorOutput, error) {
	if fail, _ := req.Config["fail"].(bool); fail {
		message, _ := req.Config["fail_message"].(string)
		if message == "" {
			message = "configured to fail"
		}

		if retryable, _ := req.Config["retryable"].(bool); retryable {
			return nil, nodes.NewRetryableError(req.NodeID, message, ErrSimulatedFailure)
		}

		return nil, nodes.NewExecutionError(req.NodeID, message, ErrSimulatedFailure)
	}

	source, ok := req.Config["output"].(string)
	if !ok {
		source = req.Prompt
	}

	data := req.TemplateData
	if data == nil {
		data = requestData(req)
	}

	content, err := template.RenderString(source, data)
	if err != nil {
		return nil, nodes.NewExecutionError(req.NodeID, "failed to render output", err)
	}

	if size := chunkSize(req.Config["chunk_size"]); size > 0 {
		for _, chunk := range split(content, size) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if err := stream.Chunk(ctx, chunk); err != nil {
				e.logger.WarnContext(ctx, "Failed to stream chunk", "node_id", req.NodeID, "error", err)
			}
		}
	}

	done, _ := req.Config["done"].(bool)

	return &protocol.ExecutorOutput{Content: content, Done: done}, nil
}

func requestData(req protocol.ExecutorRequest) map[string]any {
	results := make(map[string]any, len(req.Results))
	for id, result := range req.Results {
		results[id] = map[string]any{"content": result.Content, "text": result.Text(), "data": result.Data}
	}

	return map[string]any{
		"input":     map[string]any{"raw": req.Input.Raw, "normalized": req.Input.Normalized},
		"results":   results,
		"variables": req.Variables,
		"node":      req.NodeID,
	}
}

func chunkSize(raw any) int {
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func split(content string, size int) []string {
	runes := []rune(content)
	chunks := make([]string, 0, len(runes)/size+1)

	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}
