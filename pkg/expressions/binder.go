package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var templateRegex = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Binder resolves {{ expression }} templates inside node parameters.
type Binder struct {
	evaluator *Evaluator
	language  string
}

func NewBinder(evaluator *Evaluator, language string) *Binder {
	return &Binder{
		evaluator: evaluator,
		language:  language,
	}
}

// BindValue walks maps and slices and resolves every templated string. A string
// that is exactly one template keeps the expression's value as is; mixed content
// is rendered into a string.
func (b *Binder) BindValue(ctx context.Context, value any, data map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return b.bindString(ctx, v, data)
	case map[string]any:
		return b.bindMap(ctx, v, data)
	case []any:
		return b.bindSlice(ctx, v, data)
	}

	return value, nil
}

func (b *Binder) BindMap(ctx context.Context, values map[string]any, data map[string]any) (map[string]any, error) {
	return b.bindMap(ctx, values, data)
}

func (b *Binder) bindString(ctx context.Context, str string, data map[string]any) (any, error) {
	matches := templateRegex.FindAllStringSubmatchIndex(str, -1)
	if len(matches) == 0 {
		return str, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(str) {
		expression := strings.TrimSpace(str[matches[0][2]:matches[0][3]])
		return b.evaluate(ctx, expression, data)
	}

	var rendered strings.Builder
	last := 0

	for _, match := range matches {
		rendered.WriteString(str[last:match[0]])

		expression := strings.TrimSpace(str[match[2]:match[3]])

		value, err := b.evaluate(ctx, expression, data)
		if err != nil {
			return nil, err
		}

		rendered.WriteString(valueToString(value))
		last = match[1]
	}

	rendered.WriteString(str[last:])

	return rendered.String(), nil
}

func (b *Binder) bindMap(ctx context.Context, m map[string]any, data map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(m))

	for key, value := range m {
		bound, err := b.BindValue(ctx, value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to bind key '%s': %w", key, err)
		}

		result[key] = bound
	}

	return result, nil
}

func (b *Binder) bindSlice(ctx context.Context, s []any, data map[string]any) ([]any, error) {
	result := make([]any, len(s))

	for i, value := range s {
		bound, err := b.BindValue(ctx, value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to bind index %d: %w", i, err)
		}

		result[i] = bound
	}

	return result, nil
}

func (b *Binder) evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, fmt.Errorf("empty template expression")
	}

	value, err := b.evaluator.Evaluate(ctx, b.language, expression, data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression '%s': %w", expression, err)
	}

	return value, nil
}

func valueToString(value any) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}

	return string(jsonBytes)
}
