// Package httpexec provides a NodeExecutor that delegates node work to a model gateway
// over HTTP. The gateway answers with newline-delimited JSON chunks.
package httpexec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/agentgraph/pkg/protocol"
)

const DefaultTimeout = 120 * time.Second

// Chunk is one line of a gateway response.
type Chunk struct {
	Content string         `json:"content"`
	Data    map[string]any `json:"data,omitempty"`
	Done    bool           `json:"done,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// HTTPError is returned for non-2xx gateway responses.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the gateway may succeed on a later attempt.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// GatewayError is a failure reported inside the response stream.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	return "gateway error: " + e.Message
}

type Config struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

type Executor struct {
	url     string
	headers map[string]string
	client  *http.Client
	logger  *slog.Logger
}

func New(config Config, logger *slog.Logger) (*Executor, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("gateway url is required")
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		url:     config.URL,
		headers: config.Headers,
		client:  &http.Client{Timeout: config.Timeout},
		logger:  logger,
	}, nil
}

func (e *Executor) Execute(ctx context.Context, req protocol.ExecutorRequest, stream protocol.StreamPublisher) (*protocol.ExecutorOutput, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	for key, value := range e.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &HTTPError{StatusCode: http.StatusServiceUnavailable, Message: err.Error()}
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			e.logger.DebugContext(ctx, "Failed to close gateway response", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(message))}
	}

	return e.read(ctx, req.NodeID, resp.Body, stream)
}

// read consumes the chunk stream. Contents are concatenated, data maps are merged and
// the last done flag wins.
func (e *Executor) read(ctx context.Context, nodeID string, body io.Reader, stream protocol.StreamPublisher) (*protocol.ExecutorOutput, error) {
	output := &protocol.ExecutorOutput{}

	var content strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk Chunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode gateway chunk: %w", err)
		}

		if chunk.Error != "" {
			return nil, &GatewayError{Message: chunk.Error}
		}

		if chunk.Content != "" {
			content.WriteString(chunk.Content)

			if err := stream.Chunk(ctx, chunk.Content); err != nil {
				e.logger.WarnContext(ctx, "Failed to stream chunk", "node_id", nodeID, "error", err)
			}
		}

		for k, v := range chunk.Data {
			if output.Data == nil {
				output.Data = map[string]any{}
			}

			output.Data[k] = v
		}

		output.Done = chunk.Done
	}

	if err := scanner.Err(); err != nil {
		return nil, &HTTPError{StatusCode: http.StatusBadGateway, Message: err.Error()}
	}

	output.Content = content.String()

	return output, nil
}
