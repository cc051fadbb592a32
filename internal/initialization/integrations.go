package initialization

import (
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/integrations/discord"
	githubintegration "github.com/techwithparamesh/agent-app-sub006/pkg/integrations/github"
	gitlabintegration "github.com/techwithparamesh/agent-app-sub006/pkg/integrations/gitlab"
	"github.com/techwithparamesh/agent-app-sub006/pkg/integrations/google/gmail"
	googledrive "github.com/techwithparamesh/agent-app-sub006/pkg/integrations/google/google_drive"
	"github.com/techwithparamesh/agent-app-sub006/pkg/integrations/http"
	resendintegration "github.com/techwithparamesh/agent-app-sub006/pkg/integrations/resend"
	slackintegration "github.com/techwithparamesh/agent-app-sub006/pkg/integrations/slack"
	stripeintegration "github.com/techwithparamesh/agent-app-sub006/pkg/integrations/stripe"
	"github.com/techwithparamesh/agent-app-sub006/pkg/integrations/telegram"
	"github.com/techwithparamesh/agent-app-sub006/pkg/integrations/webhook"
)

type integrationRegisterParams struct {
	IntegrationType  domain.IntegrationType
	NewCreator       func(deps domain.IntegrationDeps) domain.IntegrationCreator
	NewPoller        func(deps domain.IntegrationDeps) domain.IntegrationPoller
	NewWebhookFilter func(deps domain.IntegrationDeps) domain.WebhookEventFilter
}

var integrationRegisterParamsList = []integrationRegisterParams{
	{
		IntegrationType: domain.IntegrationType_HTTP,
		NewCreator: func(deps domain.IntegrationDeps) domain.IntegrationCreator {
			return http.NewHTTPIntegrationCreator(http.HTTPIntegrationCreatorDeps{Timeout: deps.HTTPTimeout})
		},
	},
	{
		IntegrationType: domain.IntegrationType_Slack,
		NewCreator: func(deps domain.IntegrationDeps) domain.IntegrationCreator {
			return slackintegration.NewSlackIntegrationCreator(slackintegration.SlackIntegrationCreatorDeps{})
		},
	},
	{
		IntegrationType: domain.IntegrationType_Discord,
		NewCreator: func(deps domain.IntegrationDeps) domain.IntegrationCreator {
			return discord.NewDiscordIntegrationCreator()
		},
	},
	{
		IntegrationType: domain.IntegrationType_Resend,
		NewCreator: func(deps domain.IntegrationDeps) domain.IntegrationCreator {
			return resendintegration.NewResendIntegrationCreator(resendintegration.ResendIntegrationCreatorDeps{})
		},
	},
	{
		IntegrationType: domain.IntegrationType_Github,
		NewCreator: func(deps domain.IntegrationDeps) domain.IntegrationCreator {
			return githubintegration.NewGithubIntegrationCreator(githubintegration.GithubIntegrationCreatorDeps{})
		},
		NewPoller: func(deps domain.IntegrationDeps) domain.IntegrationPoller {
			return githubintegration.NewGithubPollingHandler(githubintegration.GithubIntegrationCreatorDeps{})
		},
		NewWebhookFilter: func(deps domain.IntegrationDeps) domain.WebhookEventFilter {
			return githubintegration.NewGithubWebhookFilter()
		},
	},
	{
		IntegrationType: domain.IntegrationType_Gitlab,
		NewWebhookFilter: func(deps domain.IntegrationDeps) domain.WebhookEventFilter {
			return gitlabintegration.NewGitlabWebhookFilter()
		},
	},
	{
		IntegrationType: domain.IntegrationType_Telegram,
		NewCreator: func(deps domain.IntegrationDeps) domain.IntegrationCreator {
			return telegram.NewTelegramIntegrationCreator(telegram.TelegramIntegrationCreatorDeps{})
		},
		NewWebhookFilter: func(deps domain.IntegrationDeps) domain.WebhookEventFilter {
			return telegram.NewTelegramWebhookFilter()
		},
	},
	{
		IntegrationType: domain.IntegrationType_Stripe,
		NewCreator: func(deps domain.IntegrationDeps) domain.IntegrationCreator {
			return stripeintegration.NewStripeIntegrationCreator(stripeintegration.StripeIntegrationCreatorDeps{})
		},
		NewWebhookFilter: func(deps domain.IntegrationDeps) domain.WebhookEventFilter {
			return stripeintegration.NewStripeWebhookFilter()
		},
	},
	{
		IntegrationType: domain.IntegrationType_Drive,
		NewCreator: func(deps domain.IntegrationDeps) domain.IntegrationCreator {
			return googledrive.NewGoogleDriveIntegrationCreator(googledrive.GoogleDrivePollingHandlerDeps{})
		},
		NewPoller: func(deps domain.IntegrationDeps) domain.IntegrationPoller {
			return googledrive.NewGoogleDrivePollingHandler(googledrive.GoogleDrivePollingHandlerDeps{})
		},
	},
	{
		IntegrationType: domain.IntegrationType_Gmail,
		NewPoller: func(deps domain.IntegrationDeps) domain.IntegrationPoller {
			return gmail.NewGmailPollingHandler(gmail.GmailPollingHandlerDeps{})
		},
	},
	{
		IntegrationType: domain.IntegrationType_Webhook,
		NewWebhookFilter: func(deps domain.IntegrationDeps) domain.WebhookEventFilter {
			return webhook.NewGenericWebhookFilter()
		},
	},
}

// RegisterIntegrations adds every built in integration to the selector.
func RegisterIntegrations(selector domain.IntegrationSelector, deps domain.IntegrationDeps) {
	for _, params := range integrationRegisterParamsList {
		if params.NewCreator != nil {
			selector.RegisterCreator(params.IntegrationType, params.NewCreator(deps))
		}

		if params.NewPoller != nil {
			selector.RegisterPoller(params.IntegrationType, params.NewPoller(deps))
		}

		if params.NewWebhookFilter != nil {
			selector.RegisterWebhookFilter(params.IntegrationType, params.NewWebhookFilter(deps))
		}
	}
}
