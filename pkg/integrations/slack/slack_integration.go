package slack

import (
	"context"
	"errors"
	"net/http"

	"github.com/slack-go/slack"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const (
	SlackActionType_SendMessage domain.IntegrationActionType = "send_message"
)

type SlackIntegrationCreator struct {
	apiURL string
}

type SlackIntegrationCreatorDeps struct {
	// APIURL overrides https://slack.com/api/, mostly for tests.
	APIURL string
}

func NewSlackIntegrationCreator(deps SlackIntegrationCreatorDeps) domain.IntegrationCreator {
	return &SlackIntegrationCreator{
		apiURL: deps.APIURL,
	}
}

func (c *SlackIntegrationCreator) CreateIntegration(ctx context.Context, p domain.CreateIntegrationParams) (domain.IntegrationExecutor, error) {
	token, _ := p.Credential.Payload["access_token"].(string)
	if token == "" {
		token, _ = p.Credential.Payload["token"].(string)
	}

	if token == "" {
		return nil, domain.NewConfigurationError("slack credential %s has no token", p.Credential.ID)
	}

	options := []slack.Option{}
	if c.apiURL != "" {
		options = append(options, slack.OptionAPIURL(c.apiURL))
	}

	integration := &SlackIntegration{
		slackClient: slack.New(token, options...),
	}

	integration.actionManager = domain.NewIntegrationActionManager(domain.IntegrationType_Slack).
		Add(SlackActionType_SendMessage, integration.SendMessage)

	return integration, nil
}

type SlackIntegration struct {
	slackClient   *slack.Client
	actionManager *domain.IntegrationActionManager
}

func (i *SlackIntegration) Execute(ctx context.Context, params domain.IntegrationInput) (domain.IntegrationOutput, error) {
	return i.actionManager.Run(ctx, params)
}

type SendMessageParams struct {
	ChannelID string `json:"channel_id"`
	Message   string `json:"message"`
	ThreadTS  string `json:"thread_ts"`
}

func (i *SlackIntegration) SendMessage(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	p := SendMessageParams{}
	if err := input.BindParams(&p); err != nil {
		return domain.IntegrationOutput{}, err
	}

	if p.ChannelID == "" || p.Message == "" {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("channel_id and message are required")
	}

	options := []slack.MsgOption{slack.MsgOptionText(p.Message, false)}
	if p.ThreadTS != "" {
		options = append(options, slack.MsgOptionTS(p.ThreadTS))
	}

	channel, timestamp, err := i.slackClient.PostMessageContext(ctx, p.ChannelID, options...)
	if err != nil {
		return domain.IntegrationOutput{}, newAdapterError(input.ActionID, err)
	}

	return domain.IntegrationOutput{Data: map[string]any{
		"channel":   channel,
		"timestamp": timestamp,
		"message":   p.Message,
	}}, nil
}

func newAdapterError(actionID domain.IntegrationActionType, err error) error {
	statusCode := 0

	var statusErr slack.StatusCodeError
	var rateLimitErr *slack.RateLimitedError

	switch {
	case errors.As(err, &statusErr):
		statusCode = statusErr.Code
	case errors.As(err, &rateLimitErr):
		statusCode = http.StatusTooManyRequests
	}

	return domain.NewAdapterError(domain.IntegrationType_Slack, string(actionID), statusCode, err)
}
