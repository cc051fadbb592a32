package expressions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJavaScriptRunner_Run(t *testing.T) {
	runner := NewJavaScriptRunner(time.Second)

	tests := []struct {
		name      string
		source    string
		wantValue any
		wantVars  map[string]any
	}{
		{
			name:      "returns a value",
			source:    "return trigger.name.toUpperCase();",
			wantValue: "ORDER",
			wantVars:  map[string]any{"region": "eu"},
		},
		{
			name:      "writes variables",
			source:    "vars.count = trigger.items.length; return null;",
			wantValue: nil,
			wantVars:  map[string]any{"region": "eu", "count": int64(2)},
		},
		{
			name:      "no return",
			source:    "var x = 1;",
			wantValue: nil,
			wantVars:  map[string]any{"region": "eu"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := runner.Run(context.Background(), tt.source, testData())
			require.NoError(t, err)

			assert.Equal(t, tt.wantValue, result.Value)
			assert.Equal(t, tt.wantVars, result.Vars)
		})
	}
}

func TestJavaScriptRunner_Errors(t *testing.T) {
	t.Run("thrown error", func(t *testing.T) {
		_, err := NewJavaScriptRunner(time.Second).Run(context.Background(), `throw new Error("nope");`, testData())
		assert.ErrorContains(t, err, "nope")
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := NewJavaScriptRunner(50*time.Millisecond).Run(context.Background(), "while (true) {}", testData())
		assert.ErrorIs(t, err, ErrScriptTimeout)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := NewJavaScriptRunner(time.Minute).Run(ctx, "while (true) {}", testData())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
