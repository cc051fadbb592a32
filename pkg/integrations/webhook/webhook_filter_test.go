package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

func signedToken(t *testing.T, secret string, method jwt.SigningMethod) string {
	t.Helper()

	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": "sender",
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	return signed
}

func TestGenericWebhookFilter_Match(t *testing.T) {
	body := []byte(`{"type":"order.created","id":7}`)

	tests := []struct {
		name          string
		req           domain.WebhookRequest
		config        domain.WebhookTriggerConfig
		wantMatched   bool
		wantEventType string
		wantErr       error
	}{
		{
			name:          "no filter matches anything",
			req:           domain.WebhookRequest{Body: body},
			wantMatched:   true,
			wantEventType: "order.created",
		},
		{
			name:          "header wins over body",
			req:           domain.WebhookRequest{Headers: map[string]string{EventTypeHeader: "order.paid"}, Body: body},
			config:        domain.WebhookTriggerConfig{Event: "order.paid"},
			wantMatched:   true,
			wantEventType: "order.paid",
		},
		{
			name:          "event field in body",
			req:           domain.WebhookRequest{Body: []byte(`{"event":"ping"}`)},
			config:        domain.WebhookTriggerConfig{Event: "ping"},
			wantMatched:   true,
			wantEventType: "ping",
		},
		{
			name:          "other event is filtered",
			req:           domain.WebhookRequest{Body: body},
			config:        domain.WebhookTriggerConfig{Event: "order.paid"},
			wantMatched:   false,
			wantEventType: "order.created",
		},
		{
			name:        "valid hmac",
			req:         domain.WebhookRequest{Headers: map[string]string{SignatureHeader: Sign(body, "s3cret")}, Body: body},
			config:      domain.WebhookTriggerConfig{SigningSecret: "s3cret"},
			wantMatched:   true,
			wantEventType: "order.created",
		},
		{
			name:    "hmac with wrong secret",
			req:     domain.WebhookRequest{Headers: map[string]string{SignatureHeader: Sign(body, "other")}, Body: body},
			config:  domain.WebhookTriggerConfig{SigningSecret: "s3cret"},
			wantErr: domain.ErrWebhookSignature,
		},
		{
			name:    "hmac not hex",
			req:     domain.WebhookRequest{Headers: map[string]string{SignatureHeader: "sha256=zz"}, Body: body},
			config:  domain.WebhookTriggerConfig{SigningSecret: "s3cret"},
			wantErr: domain.ErrWebhookSignature,
		},
		{
			name:    "hmac missing",
			req:     domain.WebhookRequest{Body: body},
			config:  domain.WebhookTriggerConfig{SigningSecret: "s3cret"},
			wantErr: domain.ErrWebhookSignature,
		},
		{
			name:    "jwt without bearer",
			req:     domain.WebhookRequest{Body: body},
			config:  domain.WebhookTriggerConfig{SigningSecret: "s3cret", Verification: VerificationJWT},
			wantErr: domain.ErrWebhookSignature,
		},
		{
			name:    "jwt garbage",
			req:     domain.WebhookRequest{Headers: map[string]string{"authorization": "Bearer abc.def.ghi"}, Body: body},
			config:  domain.WebhookTriggerConfig{SigningSecret: "s3cret", Verification: VerificationJWT},
			wantErr: domain.ErrWebhookSignature,
		},
	}

	filter := NewGenericWebhookFilter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := filter.Match(context.Background(), tt.req, tt.config)

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

func TestGenericWebhookFilter_JWT(t *testing.T) {
	filter := NewGenericWebhookFilter()
	config := domain.WebhookTriggerConfig{SigningSecret: "s3cret", Verification: VerificationJWT}
	body := []byte(`{"type":"ping"}`)

	t.Run("valid token", func(t *testing.T) {
		req := domain.WebhookRequest{
			Headers: map[string]string{"authorization": "Bearer " + signedToken(t, "s3cret", jwt.SigningMethodHS256)},
			Body:    body,
		}

		match, err := filter.Match(context.Background(), req, config)
		require.NoError(t, err)
		assert.True(t, match.Matched)
		assert.Equal(t, "ping", match.EventType)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		req := domain.WebhookRequest{
			Headers: map[string]string{"authorization": "Bearer " + signedToken(t, "other", jwt.SigningMethodHS512)},
			Body:    body,
		}

		_, err := filter.Match(context.Background(), req, config)
		assert.ErrorIs(t, err, domain.ErrWebhookSignature)
	})

	t.Run("unknown verification", func(t *testing.T) {
		_, err := filter.Match(context.Background(), domain.WebhookRequest{Body: body}, domain.WebhookTriggerConfig{
			SigningSecret: "s3cret",
			Verification:  "mtls",
		})

		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}
