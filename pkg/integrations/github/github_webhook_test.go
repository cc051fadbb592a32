package githubintegration

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

func sign(body string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))

	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestGithubWebhookFilter_Match(t *testing.T) {
	const (
		issueOpened = `{"action":"opened","issue":{"number":1}}`
		prMerged    = `{"action":"closed","pull_request":{"number":2,"merged":true}}`
		prClosed    = `{"action":"closed","pull_request":{"number":3,"merged":false}}`
		push        = `{"ref":"refs/heads/main"}`
	)

	tests := []struct {
		name          string
		event         string
		body          string
		signature     string
		config        domain.WebhookTriggerConfig
		wantMatched   bool
		wantEventType string
		wantErr       error
	}{
		{
			name:          "mapped issue event",
			event:         "issues",
			body:          issueOpened,
			config:        domain.WebhookTriggerConfig{Event: "issue_opened"},
			wantMatched:   true,
			wantEventType: "issues.opened",
		},
		{
			name:          "bare event name",
			event:         "push",
			body:          push,
			config:        domain.WebhookTriggerConfig{Event: "push"},
			wantMatched:   true,
			wantEventType: "push",
		},
		{
			name:          "merged pull request",
			event:         "pull_request",
			body:          prMerged,
			config:        domain.WebhookTriggerConfig{Event: "pull_request_merged"},
			wantMatched:   true,
			wantEventType: "pull_request.closed",
		},
		{
			name:          "closed without merge",
			event:         "pull_request",
			body:          prClosed,
			config:        domain.WebhookTriggerConfig{Event: "pull_request_merged"},
			wantMatched:   false,
			wantEventType: "pull_request.closed",
		},
		{
			name:          "valid signature",
			event:         "issues",
			body:          issueOpened,
			signature:     sign(issueOpened, "ghsecret"),
			config:        domain.WebhookTriggerConfig{SigningSecret: "ghsecret"},
			wantMatched:   true,
			wantEventType: "issues.opened",
		},
		{
			name:      "bad signature",
			event:     "issues",
			body:      issueOpened,
			signature: sign(issueOpened, "other"),
			config:    domain.WebhookTriggerConfig{SigningSecret: "ghsecret"},
			wantErr:   domain.ErrWebhookSignature,
		},
		{
			name:    "missing signature",
			event:   "issues",
			body:    issueOpened,
			config:  domain.WebhookTriggerConfig{SigningSecret: "ghsecret"},
			wantErr: domain.ErrWebhookSignature,
		},
	}

	filter := NewGithubWebhookFilter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{"x-github-event": tt.event}
			if tt.signature != "" {
				headers["x-hub-signature-256"] = tt.signature
			}

			match, err := filter.Match(context.Background(), domain.WebhookRequest{Headers: headers, Body: []byte(tt.body)}, tt.config)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantMatched, match.Matched)
			assert.Equal(t, tt.wantEventType, match.EventType)
		})
	}
}

func TestGithubWebhookFilter_MissingEventHeader(t *testing.T) {
	_, err := NewGithubWebhookFilter().Match(context.Background(), domain.WebhookRequest{
		Headers: map[string]string{},
		Body:    []byte(`{}`),
	}, domain.WebhookTriggerConfig{})

	assert.Error(t, err)
}
