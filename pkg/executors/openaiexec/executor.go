// Package openaiexec provides a NodeExecutor backed by the OpenAI Chat Completions API.
// Deltas of the streamed completion are forwarded to the node stream as they arrive.
package openaiexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var DefaultModel = openai.ChatModelGPT4o

// finalMarker is the line prefix a reasoning round uses to signal its answer.
const finalMarker = "FINAL:"

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	// MaxRetries bounds client-side retries; negative keeps the client default.
	// Retryable failures are reported to the engine either way.
	MaxRetries int
	HTTPClient *http.Client
}

// APIError is a failed completion request.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed on a later attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

type Executor struct {
	client    openai.Client
	model     openai.ChatModel
	maxTokens int
	logger    *slog.Logger
}

func New(config Config, logger *slog.Logger) *Executor {
	var opts []option.RequestOption

	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}

	if config.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	model := DefaultModel
	if config.Model != "" {
		model = openai.ChatModel(config.Model)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: config.MaxTokens,
		logger:    logger,
	}
}

func (e *Executor) Execute(ctx context.Context, req protocol.ExecutorRequest, stream protocol.StreamPublisher) (*protocol.ExecutorOutput, error) {
	params := openai.ChatCompletionNewParams{
		Model:    e.model,
		Messages: messages(req),
	}

	if model, ok := req.Config["model"].(string); ok && model != "" {
		params.Model = openai.ChatModel(model)
	}

	if e.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(e.maxTokens))
	}

	completion := e.client.Chat.Completions.NewStreaming(ctx, params)

	defer func() {
		if err := completion.Close(); err != nil {
			e.logger.DebugContext(ctx, "Failed to close completion stream", "error", err)
		}
	}()

	var (
		content strings.Builder
		finish  string
	)

	for completion.Next() {
		chunk := completion.Current()
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)

			if err := stream.Chunk(ctx, choice.Delta.Content); err != nil {
				e.logger.WarnContext(ctx, "Failed to stream chunk", "node_id", req.NodeID, "error", err)
			}
		}

		if choice.FinishReason != "" {
			finish = string(choice.FinishReason)
		}
	}

	if err := completion.Err(); err != nil {
		return nil, asAPIError(err)
	}

	text := content.String()

	output := &protocol.ExecutorOutput{Content: text}
	if finish != "" {
		output.Data = map[string]any{"finish_reason": finish}
	}

	if req.NodeType == models.NodeTypeReact {
		output.Done = hasFinalLine(text)
	}

	return output, nil
}

// messages renders the conversation history followed by the node prompt.
func messages(req protocol.ExecutorRequest) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)

	if system, ok := req.Config["system_prompt"].(string); ok && system != "" {
		result = append(result, openai.SystemMessage(system))
	}

	for _, message := range req.History {
		switch message.Role {
		case models.RoleAssistant:
			result = append(result, openai.AssistantMessage(message.Content))
		case models.RoleSystem:
			result = append(result, openai.SystemMessage(message.Content))
		default:
			result = append(result, openai.UserMessage(message.Content))
		}
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = req.Input.Normalized
	}

	return append(result, openai.UserMessage(prompt))
}

func hasFinalLine(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), finalMarker) {
			return true
		}
	}

	return false
}

func asAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return &APIError{StatusCode: http.StatusBadGateway, Message: err.Error()}
}
