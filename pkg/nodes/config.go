package nodes

import (
	"fmt"
	"strconv"

	"github.com/dukex/agentgraph/pkg/models"
)

// ConfigString reads a string config value.
func ConfigString(spec *models.NodeSpec, key, def string) string {
	if value, ok := spec.Config[key].(string); ok {
		return value
	}

	return def
}

// ConfigBool reads a boolean config value. String forms such as "true" are accepted.
func ConfigBool(spec *models.NodeSpec, key string, def bool) bool {
	switch value := spec.Config[key].(type) {
	case bool:
		return value
	case string:
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}

	return def
}

// ConfigInt reads an integer config value. JSON and YAML decoders disagree on numeric
// types, so every numeric kind is accepted.
func ConfigInt(spec *models.NodeSpec, key string, def int) int {
	switch value := spec.Config[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}

	return def
}

// ConfigStringMap reads a map of strings, such as route rules.
func ConfigStringMap(spec *models.NodeSpec, key string) (map[string]string, error) {
	raw, ok := spec.Config[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch value := raw.(type) {
	case map[string]string:
		return value, nil
	case map[string]any:
		out := make(map[string]string, len(value))
		for k, v := range value {
			s, isString := v.(string)
			if !isString {
				return nil, fmt.Errorf("config %s.%s must be a string", key, k)
			}

			out[k] = s
		}

		return out, nil
	default:
		return nil, fmt.Errorf("config %s must be an object", key)
	}
}
