package expressions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

var ErrScriptTimeout = errors.New("script execution timed out")

// JavaScriptRunner runs user code in a fresh goja VM per call. The scope names
// are exposed as globals and the script body may return a value.
type JavaScriptRunner struct {
	timeout time.Duration
}

type ScriptResult struct {
	Value any
	Vars  map[string]any
}

func NewJavaScriptRunner(timeout time.Duration) *JavaScriptRunner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &JavaScriptRunner{timeout: timeout}
}

func (r *JavaScriptRunner) Run(ctx context.Context, source string, data map[string]any) (ScriptResult, error) {
	scope, err := normalizeJSON(data)
	if err != nil {
		return ScriptResult{}, err
	}

	vars, ok := scope[ScopeVars].(map[string]any)
	if !ok {
		vars = map[string]any{}
		scope[ScopeVars] = vars
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	for _, key := range scopeKeys {
		if err := vm.Set(key, scope[key]); err != nil {
			return ScriptResult{}, fmt.Errorf("failed to expose %s to script: %w", key, err)
		}
	}

	timer := time.AfterFunc(r.timeout, func() {
		vm.Interrupt(ErrScriptTimeout)
	})
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	value, err := vm.RunString("(function() {\n" + source + "\n})()")
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return ScriptResult{}, cause
			}
		}

		return ScriptResult{}, fmt.Errorf("script failed: %w", err)
	}

	if exported, ok := vm.Get(ScopeVars).Export().(map[string]any); ok {
		vars = exported
	}

	var result any
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		result = value.Export()
	}

	return ScriptResult{
		Value: result,
		Vars:  vars,
	}, nil
}
