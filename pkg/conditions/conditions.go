// Package conditions evaluates edge and routing conditions against run data.
package conditions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/agentgraph/pkg/template"
)

// Conditional interprets an already rendered expression as a boolean.
type Conditional interface {
	Evaluate(exp any) (bool, error)
}

// SimpleConditionalInterpreter accepts booleans, numbers and their string forms.
type SimpleConditionalInterpreter struct{}

func (s SimpleConditionalInterpreter) Evaluate(exp any) (bool, error) {
	if exp == nil {
		return true, nil
	}

	switch v := exp.(type) {
	case bool:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return true, nil
		}

		result, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to boolean: %w", v, err)
		}

		return result, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", exp)
	}
}

// Evaluate renders the condition template against data and interprets the result.
// An empty condition is always true.
func Evaluate(condition string, data any) (bool, error) {
	if strings.TrimSpace(condition) == "" {
		return true, nil
	}

	rendered, err := template.Render(condition, data)
	if err != nil {
		return false, fmt.Errorf("failed to render condition: %w", err)
	}

	return SimpleConditionalInterpreter{}.Evaluate(rendered)
}
