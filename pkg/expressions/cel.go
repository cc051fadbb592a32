package expressions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELEngine evaluates Common Expression Language expressions. Every scope name is
// declared as a dynamic variable; missing scopes evaluate as empty maps.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

func NewCELEngine() (*CELEngine, error) {
	options := make([]cel.EnvOption, 0, len(scopeKeys))
	for _, key := range scopeKeys {
		options = append(options, cel.Variable(key, cel.DynType))
	}

	env, err := cel.NewEnv(options...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

func (e *CELEngine) Name() string {
	return LanguageCEL
}

func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, errors.New("empty CEL expression")
	}

	program, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	normalized, err := normalizeJSON(data)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(scopeKeys))
	for _, key := range scopeKeys {
		if value, ok := normalized[key]; ok && value != nil {
			activation[key] = value
		} else {
			activation[key] = map[string]any{}
		}
	}

	out, _, err := program.ContextEval(ctx, activation)
	if err != nil {
		return nil, fmt.Errorf("CEL evaluation failed for %q: %w", expression, err)
	}

	return out.Value(), nil
}

func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()

	if ok {
		return program, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.cache[expression]; ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error in %q: %w", expression, issues.Err())
	}

	program, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("CEL program error for %q: %w", expression, err)
	}

	e.cache[expression] = program

	return program, nil
}

var _ Engine = (*CELEngine)(nil)
