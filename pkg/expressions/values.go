package expressions

import (
	"encoding/json"
	"fmt"
)

// Top level names available to every expression.
const (
	ScopeTrigger   = "trigger"
	ScopeNodes     = "nodes"
	ScopeVars      = "vars"
	ScopeInput     = "input"
	ScopeIteration = "iteration"
	ScopeExecution = "execution"
)

var scopeKeys = []string{ScopeTrigger, ScopeNodes, ScopeVars, ScopeInput, ScopeIteration, ScopeExecution}

// normalizeJSON converts arbitrary Go values into the plain JSON shapes
// (map[string]any, []any, float64, string, bool, nil) some engines require.
func normalizeJSON(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("expression data is not JSON serializable: %w", err)
	}

	normalized := map[string]any{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("failed to normalize expression data: %w", err)
	}

	return normalized, nil
}
