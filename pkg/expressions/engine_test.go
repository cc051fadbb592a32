package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData() map[string]any {
	return map[string]any{
		"trigger": map[string]any{
			"name":   "order",
			"amount": 150,
			"items":  []any{"a", "b"},
		},
		"vars": map[string]any{"region": "eu"},
	}
}

func TestEvaluator_Languages(t *testing.T) {
	evaluator, err := NewDefaultEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name       string
		language   string
		expression string
		want       any
	}{
		{name: "expr is the default", language: "", expression: `trigger.name + "-" + vars.region`, want: "order-eu"},
		{name: "expr comparison", language: LanguageExpr, expression: "trigger.amount > 100", want: true},
		{name: "expr undefined variable", language: LanguageExpr, expression: "missing == nil", want: true},
		{name: "cel string", language: LanguageCEL, expression: `trigger.name + "!"`, want: "order!"},
		{name: "cel comparison", language: LanguageCEL, expression: "trigger.amount > 100.0", want: true},
		{name: "cel missing scope", language: LanguageCEL, expression: "size(iteration) == 0", want: true},
		{name: "jq single value", language: LanguageJQ, expression: ".trigger.name", want: "order"},
		{name: "jq multiple values", language: LanguageJQ, expression: ".trigger.items[]", want: []any{"a", "b"}},
		{name: "jq no values", language: LanguageJQ, expression: "empty", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.Evaluate(context.Background(), tt.language, tt.expression, testData())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_IterationScope(t *testing.T) {
	evaluator, err := NewDefaultEvaluator()
	require.NoError(t, err)

	data := testData()
	data[ScopeIteration] = map[string]any{"node_id": "each", "item": "b", "index": 1}

	tests := []struct {
		language   string
		expression string
	}{
		{language: LanguageExpr, expression: `iteration.index == 1 && iteration.item == "b"`},
		{language: LanguageCEL, expression: `iteration.index == 1.0 && iteration.item == "b"`},
		{language: LanguageJQ, expression: `.iteration.index == 1 and .iteration.item == "b"`},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			ok, err := evaluator.EvaluateBool(context.Background(), tt.language, tt.expression, data)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	evaluator, err := NewDefaultEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name       string
		language   string
		expression string
	}{
		{name: "unknown language", language: "lua", expression: "1"},
		{name: "expr syntax", language: LanguageExpr, expression: "trigger.("},
		{name: "cel syntax", language: LanguageCEL, expression: "trigger.("},
		{name: "jq syntax", language: LanguageJQ, expression: ".["},
		{name: "empty", language: LanguageExpr, expression: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evaluator.Evaluate(context.Background(), tt.language, tt.expression, testData())
			assert.Error(t, err)
		})
	}
}

func TestEvaluator_EvaluateBoolRequiresBool(t *testing.T) {
	evaluator, err := NewDefaultEvaluator()
	require.NoError(t, err)

	ok, err := evaluator.EvaluateBool(context.Background(), "", `vars.region == "eu"`, testData())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = evaluator.EvaluateBool(context.Background(), "", "trigger.name", testData())
	assert.ErrorContains(t, err, "expected bool")
}

func TestBinder_BindMap(t *testing.T) {
	evaluator, err := NewDefaultEvaluator()
	require.NoError(t, err)

	binder := NewBinder(evaluator, "")

	bound, err := binder.BindMap(context.Background(), map[string]any{
		"amount":  "{{ trigger.amount }}",
		"subject": "New {{ trigger.name }} in {{ vars.region }}",
		"items":   "{{trigger.items}}",
		"nested":  map[string]any{"list": []any{"{{ vars.region }}", 7}},
		"summary": "items: {{ trigger.items }}",
		"plain":   "no templates here",
	}, testData())
	require.NoError(t, err)

	assert.Equal(t, 150, bound["amount"])
	assert.Equal(t, "New order in eu", bound["subject"])
	assert.Equal(t, []any{"a", "b"}, bound["items"])
	assert.Equal(t, map[string]any{"list": []any{"eu", 7}}, bound["nested"])
	assert.Equal(t, `items: ["a","b"]`, bound["summary"])
	assert.Equal(t, "no templates here", bound["plain"])
}

func TestBinder_ReportsFailingKey(t *testing.T) {
	evaluator, err := NewDefaultEvaluator()
	require.NoError(t, err)

	_, err = NewBinder(evaluator, "").BindMap(context.Background(), map[string]any{
		"broken": "{{ trigger.( }}",
	}, testData())

	assert.ErrorContains(t, err, "broken")
}
