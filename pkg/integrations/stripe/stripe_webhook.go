package stripeintegration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

var EventTypes = domain.EventTypeMapping{
	"payment_completed":      {"checkout.session.completed", "payment_intent.succeeded"},
	"payment_failed":         {"payment_intent.payment_failed"},
	"invoice_paid":           {"invoice.paid"},
	"customer_created":       {"customer.created"},
	"subscription_created":   {"customer.subscription.created"},
	"subscription_cancelled": {"customer.subscription.deleted"},
}

type StripeWebhookFilter struct{}

func NewStripeWebhookFilter() domain.WebhookEventFilter {
	return &StripeWebhookFilter{}
}

// Match verifies the Stripe-Signature header when a signing secret is configured
// and compares the event's type field with the configured logical event.
func (f *StripeWebhookFilter) Match(ctx context.Context, req domain.WebhookRequest, config domain.WebhookTriggerConfig) (domain.WebhookMatch, error) {
	var event stripe.Event

	if config.SigningSecret != "" {
		verified, err := webhook.ConstructEventWithOptions(req.Body, req.Headers["stripe-signature"], config.SigningSecret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return domain.WebhookMatch{}, fmt.Errorf("%w: %v", domain.ErrWebhookSignature, err)
		}

		event = verified
	} else if err := json.Unmarshal(req.Body, &event); err != nil {
		return domain.WebhookMatch{}, fmt.Errorf("invalid stripe event body: %w", err)
	}

	concrete := string(event.Type)

	if config.Event == "" {
		return domain.WebhookMatch{Matched: concrete != "", EventType: concrete}, nil
	}

	return domain.WebhookMatch{
		Matched:   EventTypes.Matches(config.Event, concrete),
		EventType: concrete,
	}, nil
}
