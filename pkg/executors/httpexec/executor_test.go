package httpexec

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingStream struct {
	protocol.DiscardStream

	chunks []string
}

func (s *collectingStream) Chunk(_ context.Context, content string) error {
	s.chunks = append(s.chunks, content)

	return nil
}

func TestExecutor_StreamsChunks(t *testing.T) {
	var received protocol.ExecutorRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"content": "Hel"}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"content": "lo", "data": {"tokens": 2}}`)
		fmt.Fprintln(w, `{"done": true}`)
	}))
	defer server.Close()

	executor, err := New(Config{URL: server.URL, Headers: map[string]string{"Authorization": "secret"}}, nil)
	require.NoError(t, err)

	stream := &collectingStream{}
	req := protocol.ExecutorRequest{
		NodeID:   "answer",
		NodeType: models.NodeTypeAct,
		Prompt:   "say hello",
		Input:    models.UserInput{Raw: "hi", Normalized: "hi"},
	}

	output, err := executor.Execute(context.Background(), req, stream)
	require.NoError(t, err)

	assert.Equal(t, "Hello", output.Content)
	assert.True(t, output.Done)
	assert.InDelta(t, 2.0, output.Data["tokens"], 0)
	assert.Equal(t, []string{"Hel", "lo"}, stream.chunks)

	assert.Equal(t, "answer", received.NodeID)
	assert.Equal(t, models.NodeTypeAct, received.NodeType)
	assert.Equal(t, "say hello", received.Prompt)
}

func TestExecutor_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{name: "bad request", status: http.StatusBadRequest, retryable: false},
		{name: "rate limited", status: http.StatusTooManyRequests, retryable: true},
		{name: "server error", status: http.StatusBadGateway, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			executor, err := New(Config{URL: server.URL}, nil)
			require.NoError(t, err)

			_, err = executor.Execute(context.Background(), protocol.ExecutorRequest{NodeID: "n"}, protocol.DiscardStream{})
			require.Error(t, err)

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, "nope", httpErr.Message)

			assert.Equal(t, tt.retryable, nodes.AsExecutionError("n", err).Retryable)
		})
	}
}

func TestExecutor_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"content": "partial"}`)
		fmt.Fprintln(w, `{"error": "model overloaded"}`)
	}))
	defer server.Close()

	executor, err := New(Config{URL: server.URL}, nil)
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), protocol.ExecutorRequest{NodeID: "n"}, protocol.DiscardStream{})

	var gatewayErr *GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	assert.Equal(t, "model overloaded", gatewayErr.Message)
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
