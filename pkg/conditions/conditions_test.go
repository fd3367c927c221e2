package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleConditionalInterpreter_Evaluate(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected bool
		wantErr  bool
	}{
		{name: "nil defaults to true", input: nil, expected: true},
		{name: "bool true", input: true, expected: true},
		{name: "bool false", input: false, expected: false},
		{name: "empty string", input: "", expected: true},
		{name: "string false", input: " false ", expected: false},
		{name: "string one", input: "1", expected: true},
		{name: "zero int", input: 0, expected: false},
		{name: "float", input: 2.5, expected: true},
		{name: "invalid string", input: "maybe", wantErr: true},
		{name: "unsupported type", input: []string{"x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SimpleConditionalInterpreter{}.Evaluate(tt.input)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluate_RendersTemplate(t *testing.T) {
	data := map[string]any{
		"results": map[string]any{
			"review": map[string]any{"content": "retry"},
		},
		"iteration": 1,
	}

	ok, err := Evaluate(`{{ eq .results.review.content "retry" }}`, data)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate(`{{ lt .iteration 1 }}`, data)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Evaluate("", data)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_InvalidResult(t *testing.T) {
	_, err := Evaluate(`{{ .results.review.content }}`, map[string]any{
		"results": map[string]any{"review": map[string]any{"content": "perhaps"}},
	})
	require.Error(t, err)
}
