package githubintegration

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const (
	EventType_IssueCreated = "issue_created"

	pollPageSize = 50
)

type PollSettings struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// GithubPollingHandler reports issues opened in a repository. Pull requests,
// which the issues API also returns, are left out.
type GithubPollingHandler struct {
	baseURL    string
	httpClient *http.Client
}

func NewGithubPollingHandler(deps GithubIntegrationCreatorDeps) domain.IntegrationPoller {
	return &GithubPollingHandler{
		baseURL:    deps.BaseURL,
		httpClient: deps.HTTPClient,
	}
}

func (h *GithubPollingHandler) Poll(ctx context.Context, p domain.PollParams) (domain.PollResult, error) {
	if p.Config.EventType != "" && p.Config.EventType != EventType_IssueCreated {
		return domain.PollResult{}, domain.NewConfigurationError("unsupported github event type %q", p.Config.EventType)
	}

	settings, err := domain.DecodePollSettings[PollSettings](p.Config)
	if err != nil {
		return domain.PollResult{}, err
	}

	owner, repo, err := parseOwnerRepo(settings.Owner, settings.Repo)
	if err != nil {
		return domain.PollResult{}, err
	}

	client, err := newGithubClient(p.Credential, h.baseURL, h.httpClient)
	if err != nil {
		return domain.PollResult{}, err
	}

	issues, err := listIssuesSince(ctx, client, owner, repo, p.State.LastSeenAt)
	if err != nil {
		return domain.PollResult{}, err
	}

	candidates := make([]domain.PollEvent, 0, len(issues))

	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}

		candidates = append(candidates, domain.PollEvent{
			ID:         strconv.FormatInt(issue.GetID(), 10),
			OccurredAt: issue.GetCreatedAt().Time,
			Data: map[string]any{
				"issue":      issueToMap(issue),
				"repository": owner + "/" + repo,
			},
		})
	}

	events, nextState := domain.CollectNewEvents(p.State, candidates, p.Now, p.MaxEvents)

	return domain.PollResult{
		Events:    events,
		NextState: nextState,
	}, nil
}

// listIssuesSince pages through issues newest first until it reaches one created
// before the watermark, so a burst larger than a page is never cut short. Without
// a watermark only the first page is read.
func listIssuesSince(ctx context.Context, client *github.Client, owner string, repo string, watermark time.Time) ([]*github.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:     "all",
		Sort:      "created",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: pollPageSize,
		},
	}

	if !watermark.IsZero() {
		// an issue created after the watermark was also updated after it
		opts.Since = watermark
	}

	issues := []*github.Issue{}

	for {
		page, resp, err := client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, newAdapterError(EventType_IssueCreated, resp, err)
		}

		issues = append(issues, page...)

		if watermark.IsZero() || len(page) == 0 || resp.NextPage == 0 {
			return issues, nil
		}

		if page[len(page)-1].GetCreatedAt().Time.Before(watermark) {
			return issues, nil
		}

		opts.Page = resp.NextPage
	}
}
