package resend

import (
	"context"
	"fmt"
	"net/url"

	"github.com/resend/resend-go/v2"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const (
	ResendActionType_SendEmail domain.IntegrationActionType = "send_email"
)

type ResendIntegrationCreator struct {
	baseURL string
}

type ResendIntegrationCreatorDeps struct {
	BaseURL string
}

func NewResendIntegrationCreator(deps ResendIntegrationCreatorDeps) domain.IntegrationCreator {
	return &ResendIntegrationCreator{
		baseURL: deps.BaseURL,
	}
}

func (c *ResendIntegrationCreator) CreateIntegration(ctx context.Context, p domain.CreateIntegrationParams) (domain.IntegrationExecutor, error) {
	credential, err := domain.DecodeCredentialPayload[domain.APIKeyCredential](p.Credential)
	if err != nil {
		return nil, err
	}

	if credential.APIKey == "" {
		return nil, domain.NewConfigurationError("resend credential %s has no api key", p.Credential.ID)
	}

	client := resend.NewClient(credential.APIKey)

	if c.baseURL != "" {
		baseURL, err := url.Parse(c.baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url: %w", err)
		}

		client.BaseURL = baseURL
	}

	integration := &ResendIntegration{
		client: client,
	}

	integration.actionManager = domain.NewIntegrationActionManager(domain.IntegrationType_Resend).
		Add(ResendActionType_SendEmail, integration.SendEmail)

	return integration, nil
}

type ResendIntegration struct {
	client        *resend.Client
	actionManager *domain.IntegrationActionManager
}

func (i *ResendIntegration) Execute(ctx context.Context, params domain.IntegrationInput) (domain.IntegrationOutput, error) {
	return i.actionManager.Run(ctx, params)
}

type SendEmailParams struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Cc      []string `json:"cc"`
	Bcc     []string `json:"bcc"`
	ReplyTo string   `json:"reply_to"`
	Subject string   `json:"subject"`
	Html    string   `json:"html"`
	Text    string   `json:"text"`
}

func (i *ResendIntegration) SendEmail(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	p := SendEmailParams{}
	if err := input.BindParams(&p); err != nil {
		return domain.IntegrationOutput{}, err
	}

	if p.From == "" || len(p.To) == 0 || p.Subject == "" {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("from, to and subject are required")
	}

	request := &resend.SendEmailRequest{
		From:    p.From,
		To:      p.To,
		Subject: p.Subject,
		Html:    p.Html,
		Text:    p.Text,
		ReplyTo: p.ReplyTo,
	}

	if len(p.Cc) > 0 {
		request.Cc = p.Cc
	}
	if len(p.Bcc) > 0 {
		request.Bcc = p.Bcc
	}

	response, err := i.client.Emails.SendWithContext(ctx, request)
	if err != nil {
		return domain.IntegrationOutput{}, domain.NewAdapterError(domain.IntegrationType_Resend, string(input.ActionID), 0, err)
	}

	return domain.IntegrationOutput{Data: map[string]any{
		"id":      response.Id,
		"from":    p.From,
		"to":      p.To,
		"subject": p.Subject,
	}}, nil
}
