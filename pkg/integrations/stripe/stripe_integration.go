package stripeintegration

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const (
	StripeActionType_CreateCustomer domain.IntegrationActionType = "create_customer"
	StripeActionType_GetCustomer    domain.IntegrationActionType = "get_customer"
)

type StripeCredential struct {
	SecretKey string `json:"secret_key"`
}

type StripeIntegrationCreator struct {
	backend stripe.Backend
}

type StripeIntegrationCreatorDeps struct {
	// Backend overrides the Stripe API backend; nil uses the default.
	Backend stripe.Backend
}

func NewStripeIntegrationCreator(deps StripeIntegrationCreatorDeps) domain.IntegrationCreator {
	return &StripeIntegrationCreator{
		backend: deps.Backend,
	}
}

func (c *StripeIntegrationCreator) CreateIntegration(ctx context.Context, p domain.CreateIntegrationParams) (domain.IntegrationExecutor, error) {
	credential, err := domain.DecodeCredentialPayload[StripeCredential](p.Credential)
	if err != nil {
		return nil, err
	}

	if credential.SecretKey == "" {
		return nil, domain.NewConfigurationError("stripe credential %s has no secret key", p.Credential.ID)
	}

	backend := c.backend
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}

	integration := &StripeIntegration{
		customers: &customer.Client{B: backend, Key: credential.SecretKey},
	}

	integration.actionManager = domain.NewIntegrationActionManager(domain.IntegrationType_Stripe).
		Add(StripeActionType_CreateCustomer, integration.CreateCustomer).
		Add(StripeActionType_GetCustomer, integration.GetCustomer)

	return integration, nil
}

// StripeIntegration keeps the key on a per integration client instead of the
// package level stripe.Key, so concurrent executions with different accounts do
// not interfere.
type StripeIntegration struct {
	customers     *customer.Client
	actionManager *domain.IntegrationActionManager
}

func (i *StripeIntegration) Execute(ctx context.Context, params domain.IntegrationInput) (domain.IntegrationOutput, error) {
	return i.actionManager.Run(ctx, params)
}

type CreateCustomerParams struct {
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Phone       string            `json:"phone"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

func (i *StripeIntegration) CreateCustomer(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	p := CreateCustomerParams{}
	if err := input.BindParams(&p); err != nil {
		return domain.IntegrationOutput{}, err
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx

	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.Phone != "" {
		params.Phone = stripe.String(p.Phone)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for key, value := range p.Metadata {
		params.AddMetadata(key, value)
	}

	cust, err := i.customers.New(params)
	if err != nil {
		return domain.IntegrationOutput{}, newAdapterError(input.ActionID, err)
	}

	return domain.IntegrationOutput{Data: customerToMap(cust)}, nil
}

type GetCustomerParams struct {
	CustomerID string `json:"customer_id"`
}

func (i *StripeIntegration) GetCustomer(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	p := GetCustomerParams{}
	if err := input.BindParams(&p); err != nil {
		return domain.IntegrationOutput{}, err
	}

	if p.CustomerID == "" {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("customer_id is required")
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := i.customers.Get(p.CustomerID, params)
	if err != nil {
		return domain.IntegrationOutput{}, newAdapterError(input.ActionID, err)
	}

	return domain.IntegrationOutput{Data: customerToMap(cust)}, nil
}

func newAdapterError(actionID domain.IntegrationActionType, err error) error {
	statusCode := 0

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		statusCode = stripeErr.HTTPStatusCode
	}

	return domain.NewAdapterError(domain.IntegrationType_Stripe, string(actionID), statusCode, err)
}

func customerToMap(cust *stripe.Customer) map[string]any {
	return map[string]any{
		"id":          cust.ID,
		"email":       cust.Email,
		"name":        cust.Name,
		"phone":       cust.Phone,
		"description": cust.Description,
		"metadata":    cust.Metadata,
		"created":     cust.Created,
		"livemode":    cust.Livemode,
	}
}
