package gitlabintegration

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/xanzy/go-gitlab"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

// EventTypes maps logical trigger ids to "<object_kind>.<action>" values.
var EventTypes = domain.EventTypeMapping{
	"push":                 {"push"},
	"tag_push":             {"tag_push"},
	"issue_opened":         {"issue.open"},
	"issue_closed":         {"issue.close"},
	"merge_request_opened": {"merge_request.open"},
	"merge_request_merged": {"merge_request.merge"},
	"pipeline_failed":      {"pipeline.failed"},
	"pipeline_succeeded":   {"pipeline.success"},
}

type GitlabWebhookFilter struct{}

func NewGitlabWebhookFilter() domain.WebhookEventFilter {
	return &GitlabWebhookFilter{}
}

// Match compares X-Gitlab-Token with the signing secret when one is set and
// derives the event type from the parsed hook payload.
func (f *GitlabWebhookFilter) Match(ctx context.Context, req domain.WebhookRequest, config domain.WebhookTriggerConfig) (domain.WebhookMatch, error) {
	if config.SigningSecret != "" {
		token := req.Headers["x-gitlab-token"]
		if subtle.ConstantTimeCompare([]byte(token), []byte(config.SigningSecret)) != 1 {
			return domain.WebhookMatch{}, fmt.Errorf("%w: x-gitlab-token mismatch", domain.ErrWebhookSignature)
		}
	}

	header := req.Headers["x-gitlab-event"]
	if header == "" {
		return domain.WebhookMatch{}, fmt.Errorf("missing X-Gitlab-Event header")
	}

	event, err := gitlab.ParseWebhook(gitlab.EventType(header), req.Body)
	if err != nil {
		return domain.WebhookMatch{}, fmt.Errorf("invalid gitlab hook payload: %w", err)
	}

	concrete := eventType(event)
	if concrete == "" {
		return domain.WebhookMatch{Matched: false}, nil
	}

	if config.Event == "" {
		return domain.WebhookMatch{Matched: true, EventType: concrete}, nil
	}

	return domain.WebhookMatch{
		Matched:   EventTypes.Matches(config.Event, concrete),
		EventType: concrete,
	}, nil
}

func eventType(event any) string {
	switch e := event.(type) {
	case *gitlab.PushEvent:
		return "push"
	case *gitlab.TagEvent:
		return "tag_push"
	case *gitlab.IssueEvent:
		return "issue." + e.ObjectAttributes.Action
	case *gitlab.MergeEvent:
		return "merge_request." + e.ObjectAttributes.Action
	case *gitlab.PipelineEvent:
		return "pipeline." + e.ObjectAttributes.Status
	case *gitlab.CommitCommentEvent, *gitlab.IssueCommentEvent, *gitlab.MergeCommentEvent, *gitlab.SnippetCommentEvent:
		return "note"
	}

	return ""
}
