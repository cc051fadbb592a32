package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const (
	TelegramActionType_SendMessage domain.IntegrationActionType = "send_message"
)

type TelegramCredential struct {
	BotToken string `json:"bot_token"`
}

type TelegramIntegrationCreator struct {
	apiEndpoint string
	httpClient  *http.Client
}

type TelegramIntegrationCreatorDeps struct {
	// APIEndpoint is a format string taking the token and method, like
	// tgbotapi.APIEndpoint.
	APIEndpoint string
	HTTPClient  *http.Client
}

func NewTelegramIntegrationCreator(deps TelegramIntegrationCreatorDeps) domain.IntegrationCreator {
	creator := &TelegramIntegrationCreator{
		apiEndpoint: deps.APIEndpoint,
		httpClient:  deps.HTTPClient,
	}

	if creator.apiEndpoint == "" {
		creator.apiEndpoint = tgbotapi.APIEndpoint
	}

	if creator.httpClient == nil {
		creator.httpClient = &http.Client{}
	}

	return creator
}

func (c *TelegramIntegrationCreator) CreateIntegration(ctx context.Context, p domain.CreateIntegrationParams) (domain.IntegrationExecutor, error) {
	credential, err := domain.DecodeCredentialPayload[TelegramCredential](p.Credential)
	if err != nil {
		return nil, err
	}

	if credential.BotToken == "" {
		return nil, domain.NewConfigurationError("telegram credential %s has no bot token", p.Credential.ID)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(credential.BotToken, c.apiEndpoint, c.httpClient)
	if err != nil {
		return nil, newAdapterError("", err)
	}

	integration := &TelegramIntegration{
		bot: bot,
	}

	integration.actionManager = domain.NewIntegrationActionManager(domain.IntegrationType_Telegram).
		Add(TelegramActionType_SendMessage, integration.SendMessage)

	return integration, nil
}

type TelegramIntegration struct {
	bot           *tgbotapi.BotAPI
	actionManager *domain.IntegrationActionManager
}

func (i *TelegramIntegration) Execute(ctx context.Context, params domain.IntegrationInput) (domain.IntegrationOutput, error) {
	return i.actionManager.Run(ctx, params)
}

type SendMessageParams struct {
	ChatID    int64  `json:"chat_id"`
	Message   string `json:"message"`
	ParseMode string `json:"parse_mode"`
}

func (i *TelegramIntegration) SendMessage(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	p := SendMessageParams{}
	if err := input.BindParams(&p); err != nil {
		return domain.IntegrationOutput{}, err
	}

	if p.ChatID == 0 || p.Message == "" {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("chat_id and message are required")
	}

	msg := tgbotapi.NewMessage(p.ChatID, p.Message)
	msg.ParseMode = p.ParseMode

	sent, err := i.bot.Send(msg)
	if err != nil {
		return domain.IntegrationOutput{}, newAdapterError(input.ActionID, err)
	}

	return domain.IntegrationOutput{Data: map[string]any{
		"message_id": sent.MessageID,
		"chat_id":    p.ChatID,
		"date":       sent.Date,
		"text":       sent.Text,
	}}, nil
}

func newAdapterError(actionID domain.IntegrationActionType, err error) error {
	statusCode := 0

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		statusCode = apiErr.Code
	}

	return domain.NewAdapterError(domain.IntegrationType_Telegram, string(actionID), statusCode, err)
}

type TelegramWebhookFilter struct{}

func NewTelegramWebhookFilter() domain.WebhookEventFilter {
	return &TelegramWebhookFilter{}
}

// Match checks X-Telegram-Bot-Api-Secret-Token against the signing secret and
// classifies the update by which of its payload fields is set.
func (f *TelegramWebhookFilter) Match(ctx context.Context, req domain.WebhookRequest, config domain.WebhookTriggerConfig) (domain.WebhookMatch, error) {
	if config.SigningSecret != "" {
		token := req.Headers["x-telegram-bot-api-secret-token"]
		if subtle.ConstantTimeCompare([]byte(token), []byte(config.SigningSecret)) != 1 {
			return domain.WebhookMatch{}, fmt.Errorf("%w: secret token mismatch", domain.ErrWebhookSignature)
		}
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(req.Body, &update); err != nil {
		return domain.WebhookMatch{}, fmt.Errorf("invalid telegram update: %w", err)
	}

	concrete := updateType(update)

	if config.Event == "" {
		return domain.WebhookMatch{Matched: concrete != "", EventType: concrete}, nil
	}

	return domain.WebhookMatch{
		Matched:   config.Event == concrete,
		EventType: concrete,
	}, nil
}

func updateType(update tgbotapi.Update) string {
	switch {
	case update.Message != nil:
		return "message"
	case update.EditedMessage != nil:
		return "edited_message"
	case update.ChannelPost != nil:
		return "channel_post"
	case update.CallbackQuery != nil:
		return "callback_query"
	case update.InlineQuery != nil:
		return "inline_query"
	}

	return ""
}
