package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const (
	DiscordActionType_SendMessage domain.IntegrationActionType = "send_message"
)

type DiscordIntegrationCreator struct{}

func NewDiscordIntegrationCreator() domain.IntegrationCreator {
	return &DiscordIntegrationCreator{}
}

func (c *DiscordIntegrationCreator) CreateIntegration(ctx context.Context, p domain.CreateIntegrationParams) (domain.IntegrationExecutor, error) {
	credential, err := domain.DecodeCredentialPayload[domain.TokenCredential](p.Credential)
	if err != nil {
		return nil, err
	}

	if credential.Token == "" {
		return nil, domain.NewConfigurationError("discord credential %s has no bot token", p.Credential.ID)
	}

	session, err := discordgo.New("Bot " + credential.Token)
	if err != nil {
		return nil, err
	}

	integration := &DiscordIntegration{
		discordSession: session,
	}

	integration.actionManager = domain.NewIntegrationActionManager(domain.IntegrationType_Discord).
		Add(DiscordActionType_SendMessage, integration.SendMessage)

	return integration, nil
}

type DiscordIntegration struct {
	discordSession *discordgo.Session
	actionManager  *domain.IntegrationActionManager
}

func (i *DiscordIntegration) Execute(ctx context.Context, params domain.IntegrationInput) (domain.IntegrationOutput, error) {
	return i.actionManager.Run(ctx, params)
}

type SendMessageParams struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

func (i *DiscordIntegration) SendMessage(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	p := SendMessageParams{}
	if err := input.BindParams(&p); err != nil {
		return domain.IntegrationOutput{}, err
	}

	if p.ChannelID == "" || p.Content == "" {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("channel_id and content are required")
	}

	message, err := i.discordSession.ChannelMessageSend(p.ChannelID, p.Content, discordgo.WithContext(ctx))
	if err != nil {
		statusCode := 0

		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			statusCode = restErr.Response.StatusCode
		}

		return domain.IntegrationOutput{}, domain.NewAdapterError(domain.IntegrationType_Discord, string(input.ActionID), statusCode, err)
	}

	return domain.IntegrationOutput{Data: map[string]any{
		"id":         message.ID,
		"channel_id": message.ChannelID,
		"content":    message.Content,
		"timestamp":  message.Timestamp,
	}}, nil
}
