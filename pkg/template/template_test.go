package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_TypedOutput(t *testing.T) {
	data := map[string]any{
		"name":     "John",
		"attempts": 3,
		"approved": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	result, err = Render("{{ .approved }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// numbers always map to float
	result, err = Render("{{ .attempts }}", data)
	require.NoError(t, err)
	assert.Equal(t, 3.0, result)
}

func TestRender_NodeResults(t *testing.T) {
	data := map[string]any{
		"results": map[string]any{
			"classify": map[string]any{
				"content": "billing",
			},
		},
	}

	result, err := Render(`{{ if eq .results.classify.content "billing" }}true{{ else }}false{{ end }}`, data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = Render(`{"route": "{{ .results.classify.content }}"}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "billing", resultMap["route"])
}

func TestRenderString_PlainTextUntouched(t *testing.T) {
	result, err := RenderString("Summarize the ticket", nil)
	require.NoError(t, err)
	assert.Equal(t, "Summarize the ticket", result)
}

func TestRenderString_MissingKeyIsEmpty(t *testing.T) {
	result, err := RenderString("Input: {{ .input.raw }}!", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Input: !", result)
}

func TestRender_ErrorHandling(t *testing.T) {
	data := map[string]any{"test": "value"}

	_, err := Render("{{ nonexistent.field }}", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function \"nonexistent\" not defined")

	_, err = Render(`{ "broken": {{ .test }} }`, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse json")
}

func TestRender_Helpers(t *testing.T) {
	data := map[string]any{"word": "  Mixed  "}

	result, err := RenderString("{{ trim .word | upper }}", data)
	require.NoError(t, err)
	assert.Equal(t, "MIXED", result)

	result, err = RenderString(`{{ json .word }}`, data)
	require.NoError(t, err)
	assert.Equal(t, `"  Mixed  "`, result)
}
