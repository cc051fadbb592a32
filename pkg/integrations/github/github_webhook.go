package githubintegration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v57/github"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

// EventTypes maps logical trigger ids to "<X-GitHub-Event>.<action>" values.
var EventTypes = domain.EventTypeMapping{
	"issue_opened":        {"issues.opened"},
	"issue_closed":        {"issues.closed"},
	"issue_comment":       {"issue_comment.created"},
	"pull_request_opened": {"pull_request.opened"},
	"pull_request_merged": {"pull_request.closed"},
	"release_published":   {"release.published"},
	"star_created":        {"star.created"},
}

type GithubWebhookFilter struct{}

func NewGithubWebhookFilter() domain.WebhookEventFilter {
	return &GithubWebhookFilter{}
}

// Match verifies X-Hub-Signature-256 when a signing secret is configured, then
// compares the delivery's event against the configured one. A configured event
// also matches on the bare X-GitHub-Event value, so "push" needs no mapping.
func (f *GithubWebhookFilter) Match(ctx context.Context, req domain.WebhookRequest, config domain.WebhookTriggerConfig) (domain.WebhookMatch, error) {
	if config.SigningSecret != "" {
		signature := req.Headers["x-hub-signature-256"]
		if signature == "" {
			signature = req.Headers["x-hub-signature"]
		}

		if err := github.ValidateSignature(signature, req.Body, []byte(config.SigningSecret)); err != nil {
			return domain.WebhookMatch{}, fmt.Errorf("%w: %v", domain.ErrWebhookSignature, err)
		}
	}

	event := req.Headers["x-github-event"]
	if event == "" {
		return domain.WebhookMatch{}, fmt.Errorf("missing X-GitHub-Event header")
	}

	concrete := event

	var payload struct {
		Action string `json:"action"`
	}

	if err := json.Unmarshal(req.Body, &payload); err == nil && payload.Action != "" {
		concrete = event + "." + payload.Action
	}

	if config.Event == "" {
		return domain.WebhookMatch{Matched: true, EventType: concrete}, nil
	}

	matched := EventTypes.Matches(config.Event, concrete) || config.Event == event

	if matched && config.Event == "pull_request_merged" {
		matched = isMergedPullRequest(req.Body)
	}

	return domain.WebhookMatch{
		Matched:   matched,
		EventType: concrete,
	}, nil
}

func isMergedPullRequest(body []byte) bool {
	var payload struct {
		PullRequest struct {
			Merged bool `json:"merged"`
		} `json:"pull_request"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}

	return payload.PullRequest.Merged
}
