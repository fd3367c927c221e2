// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/agentgraph/pkg/executors/httpexec"
	"github.com/dukex/agentgraph/pkg/executors/openaiexec"
	"github.com/dukex/agentgraph/pkg/executors/static"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/dukex/agentgraph/pkg/registry"
)

func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	return reg
}

// ExecutorOptions selects the NodeExecutor behind the nodes.
type ExecutorOptions struct {
	GatewayURL     string
	GatewayTimeout time.Duration
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
}

// NewExecutor returns the model gateway executor when a gateway URL is configured, the
// OpenAI executor when an API key is, and the offline static executor otherwise.
func NewExecutor(opts ExecutorOptions, logger *slog.Logger) (protocol.NodeExecutor, error) {
	switch {
	case opts.GatewayURL != "":
		return httpexec.New(httpexec.Config{URL: opts.GatewayURL, Timeout: opts.GatewayTimeout}, logger)
	case opts.OpenAIAPIKey != "":
		return openaiexec.New(openaiexec.Config{
			APIKey:     opts.OpenAIAPIKey,
			BaseURL:    opts.OpenAIBaseURL,
			Model:      opts.OpenAIModel,
			MaxRetries: -1,
			HTTPClient: &http.Client{Timeout: opts.GatewayTimeout},
		}, logger), nil
	default:
		return static.New(logger), nil
	}
}
