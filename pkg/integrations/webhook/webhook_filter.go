// Package webhook filters deliveries from senders without a dedicated
// integration.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const (
	EventTypeHeader = "x-event-type"
	SignatureHeader = "x-signature-256"

	VerificationHMAC = "hmac"
	VerificationJWT  = "jwt"
)

type GenericWebhookFilter struct{}

func NewGenericWebhookFilter() domain.WebhookEventFilter {
	return &GenericWebhookFilter{}
}

// Match reads the event type from the X-Event-Type header, falling back to a
// "type" or "event" field of a JSON body. With a signing secret the request
// must carry either X-Signature-256: sha256=<hex hmac of the body> or, for jwt
// verification, an HMAC signed bearer token.
func (f *GenericWebhookFilter) Match(ctx context.Context, req domain.WebhookRequest, config domain.WebhookTriggerConfig) (domain.WebhookMatch, error) {
	if config.SigningSecret != "" {
		if err := verify(req, config); err != nil {
			return domain.WebhookMatch{}, err
		}
	}

	eventType := eventTypeOf(req)

	if config.Event == "" {
		return domain.WebhookMatch{Matched: true, EventType: eventType}, nil
	}

	return domain.WebhookMatch{
		Matched:   eventType == config.Event,
		EventType: eventType,
	}, nil
}

func eventTypeOf(req domain.WebhookRequest) string {
	if eventType := req.Headers[EventTypeHeader]; eventType != "" {
		return eventType
	}

	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return ""
	}

	for _, key := range []string{"type", "event"} {
		if value, ok := body[key].(string); ok && value != "" {
			return value
		}
	}

	return ""
}

func verify(req domain.WebhookRequest, config domain.WebhookTriggerConfig) error {
	switch config.Verification {
	case "", VerificationHMAC:
		return verifySignature(req.Headers[SignatureHeader], req.Body, config.SigningSecret)
	case VerificationJWT:
		return verifyBearerToken(req.Headers["authorization"], config.SigningSecret)
	}

	return domain.NewConfigurationError("unknown webhook verification %q", config.Verification)
}

func verifyBearerToken(header string, secret string) error {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return fmt.Errorf("%w: missing bearer token", domain.ErrWebhookSignature)
	}

	_, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWebhookSignature, err)
	}

	return nil
}

func verifySignature(header string, body []byte, secret string) error {
	signature, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return fmt.Errorf("%w: missing sha256 signature", domain.ErrWebhookSignature)
	}

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", domain.ErrWebhookSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	if !hmac.Equal(mac.Sum(nil), expected) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrWebhookSignature)
	}

	return nil
}

// Sign returns the X-Signature-256 value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
