package expressions

import (
	"context"
	"fmt"
)

const (
	LanguageExpr = "expr"
	LanguageCEL  = "cel"
	LanguageJQ   = "jq"
)

// Engine evaluates a single expression against a data map.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Evaluator picks an engine by language name, falling back to the default
// language when none is given.
type Evaluator struct {
	engines         map[string]Engine
	defaultLanguage string
}

func NewEvaluator(defaultLanguage string, engines ...Engine) *Evaluator {
	e := &Evaluator{
		engines:         make(map[string]Engine, len(engines)),
		defaultLanguage: defaultLanguage,
	}

	for _, engine := range engines {
		e.engines[engine.Name()] = engine
	}

	return e
}

// NewDefaultEvaluator registers the expr, CEL and jq engines with expr as default.
func NewDefaultEvaluator() (*Evaluator, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}

	return NewEvaluator(LanguageExpr, NewExprEngine(), celEngine, NewJQEngine()), nil
}

func (e *Evaluator) Engine(language string) (Engine, error) {
	if language == "" {
		language = e.defaultLanguage
	}

	engine, ok := e.engines[language]
	if !ok {
		return nil, fmt.Errorf("unsupported expression language %q", language)
	}

	return engine, nil
}

func (e *Evaluator) Evaluate(ctx context.Context, language string, expression string, data map[string]any) (any, error) {
	engine, err := e.Engine(language)
	if err != nil {
		return nil, err
	}

	return engine.Evaluate(ctx, expression, data)
}

// EvaluateBool evaluates expression and requires a boolean result.
func (e *Evaluator) EvaluateBool(ctx context.Context, language string, expression string, data map[string]any) (bool, error) {
	value, err := e.Evaluate(ctx, language, expression, data)
	if err != nil {
		return false, err
	}

	result, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, expected bool", expression, value)
	}

	return result, nil
}
