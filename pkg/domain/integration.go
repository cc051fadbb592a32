package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrActionNotFound      = errors.New("action not found")
	ErrWebhookSignature    = errors.New("webhook signature verification failed")
)

type IntegrationType string
type IntegrationActionType string

const (
	IntegrationType_HTTP     IntegrationType = "http"
	IntegrationType_Slack    IntegrationType = "slack"
	IntegrationType_Discord  IntegrationType = "discord"
	IntegrationType_Github   IntegrationType = "github"
	IntegrationType_Gitlab   IntegrationType = "gitlab"
	IntegrationType_Stripe   IntegrationType = "stripe"
	IntegrationType_Resend   IntegrationType = "resend"
	IntegrationType_Telegram IntegrationType = "telegram"
	IntegrationType_Gmail    IntegrationType = "gmail"
	IntegrationType_Drive    IntegrationType = "google_drive"
	IntegrationType_Webhook  IntegrationType = "webhook"
)

// IntegrationDeps is handed to every adapter constructor.
type IntegrationDeps struct {
	HTTPTimeout time.Duration
}

type CreateIntegrationParams struct {
	UserID     string
	Credential Credential
}

type IntegrationInput struct {
	NodeID   string
	ActionID IntegrationActionType
	Params   map[string]any
	Input    any
}

// BindParams maps the node params onto a typed struct using its json tags.
func (i IntegrationInput) BindParams(target any) error {
	paramsJSON, err := json.Marshal(i.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	if err := json.Unmarshal(paramsJSON, target); err != nil {
		return fmt.Errorf("invalid params for %s: %w", i.ActionID, err)
	}

	return nil
}

type IntegrationOutput struct {
	Data any
}

type IntegrationCreator interface {
	CreateIntegration(ctx context.Context, p CreateIntegrationParams) (IntegrationExecutor, error)
}

type IntegrationExecutor interface {
	Execute(ctx context.Context, params IntegrationInput) (IntegrationOutput, error)
}

type IntegrationPoller interface {
	Poll(ctx context.Context, params PollParams) (PollResult, error)
}

// WebhookRequest is the transport independent view of an inbound webhook.
// Header keys are lower case.
type WebhookRequest struct {
	Method  string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
}

type WebhookMatch struct {
	Matched   bool
	EventType string
}

type WebhookEventFilter interface {
	Match(ctx context.Context, req WebhookRequest, config WebhookTriggerConfig) (WebhookMatch, error)
}

// EventTypeMapping maps logical trigger ids to the concrete event types a vendor
// sends. Logical ids missing from the mapping are compared verbatim.
type EventTypeMapping map[string][]string

func (m EventTypeMapping) Matches(logical string, concrete string) bool {
	candidates, ok := m[logical]
	if !ok {
		return logical == concrete
	}

	for _, candidate := range candidates {
		if candidate == concrete {
			return true
		}
	}

	return false
}
