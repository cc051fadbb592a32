package gmail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/integrations/google"
)

const (
	EventType_MessageReceived = "message_received"

	pollPageSize = 50
)

type PollSettings struct {
	// Query is a Gmail search expression such as "from:billing@example.com".
	Query    string   `json:"query"`
	LabelIDs []string `json:"label_ids"`
}

type GmailPollingHandler struct {
	endpoint string
}

type GmailPollingHandlerDeps struct {
	Endpoint string
}

func NewGmailPollingHandler(deps GmailPollingHandlerDeps) domain.IntegrationPoller {
	return &GmailPollingHandler{
		endpoint: deps.Endpoint,
	}
}

func (h *GmailPollingHandler) Poll(ctx context.Context, p domain.PollParams) (domain.PollResult, error) {
	if p.Config.EventType != "" && p.Config.EventType != EventType_MessageReceived {
		return domain.PollResult{}, domain.NewConfigurationError("unsupported gmail event type %q", p.Config.EventType)
	}

	settings, err := domain.DecodePollSettings[PollSettings](p.Config)
	if err != nil {
		return domain.PollResult{}, err
	}

	options, err := google.ClientOptions(ctx, p.Credential, h.endpoint)
	if err != nil {
		return domain.PollResult{}, err
	}

	service, err := gmail.NewService(ctx, options...)
	if err != nil {
		return domain.PollResult{}, fmt.Errorf("failed to create gmail service: %w", err)
	}

	call := service.Users.Messages.List("me").
		Q(buildQuery(settings, p.State.LastSeenAt)).
		MaxResults(pollPageSize).
		Context(ctx)

	if len(settings.LabelIDs) > 0 {
		call = call.LabelIds(settings.LabelIDs...)
	}

	listed, err := call.Do()
	if err != nil {
		return domain.PollResult{}, google.NewAdapterError(domain.IntegrationType_Gmail, EventType_MessageReceived, err)
	}

	// The first poll only records what is already in the mailbox.
	if p.State.LastSeenAt.IsZero() {
		baseline := make([]domain.PollEvent, 0, len(listed.Messages))
		for _, message := range listed.Messages {
			baseline = append(baseline, domain.PollEvent{ID: message.Id, OccurredAt: p.Now})
		}

		_, nextState := domain.CollectNewEvents(p.State, baseline, p.Now, p.MaxEvents)

		return domain.PollResult{NextState: nextState}, nil
	}

	candidates := []domain.PollEvent{}

	for _, listedMessage := range listed.Messages {
		if p.State.HasSeen(listedMessage.Id) {
			continue
		}

		message, err := service.Users.Messages.Get("me", listedMessage.Id).
			Format("metadata").
			MetadataHeaders("From", "To", "Subject", "Date").
			Context(ctx).
			Do()
		if err != nil {
			return domain.PollResult{}, google.NewAdapterError(domain.IntegrationType_Gmail, EventType_MessageReceived, err)
		}

		candidates = append(candidates, toPollEvent(message))
	}

	events, nextState := domain.CollectNewEvents(p.State, candidates, p.Now, p.MaxEvents)

	return domain.PollResult{
		Events:    events,
		NextState: nextState,
	}, nil
}

func buildQuery(settings PollSettings, since time.Time) string {
	clauses := []string{}

	if settings.Query != "" {
		clauses = append(clauses, settings.Query)
	}

	if !since.IsZero() {
		clauses = append(clauses, fmt.Sprintf("after:%d", since.Unix()))
	}

	return strings.Join(clauses, " ")
}

func toPollEvent(message *gmail.Message) domain.PollEvent {
	headers := map[string]string{}

	if message.Payload != nil {
		for _, header := range message.Payload.Headers {
			headers[strings.ToLower(header.Name)] = header.Value
		}
	}

	labelIDs := message.LabelIds
	if labelIDs == nil {
		labelIDs = []string{}
	}

	return domain.PollEvent{
		ID:         message.Id,
		OccurredAt: time.UnixMilli(message.InternalDate).UTC(),
		Data: map[string]any{
			"message": map[string]any{
				"id":       message.Id,
				"threadId": message.ThreadId,
				"snippet":  message.Snippet,
				"labelIds": labelIDs,
				"from":     headers["from"],
				"to":       headers["to"],
				"subject":  headers["subject"],
				"date":     headers["date"],
			},
		},
	}
}
