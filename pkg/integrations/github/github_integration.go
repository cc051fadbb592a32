package githubintegration

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const (
	GithubActionType_CreateIssue        domain.IntegrationActionType = "create_issue"
	GithubActionType_GetIssue           domain.IntegrationActionType = "get_issue"
	GithubActionType_CreateIssueComment domain.IntegrationActionType = "create_issue_comment"
)

type GithubIntegrationCreator struct {
	baseURL    string
	httpClient *http.Client
}

type GithubIntegrationCreatorDeps struct {
	// BaseURL points the client at a GitHub Enterprise or test server.
	BaseURL    string
	HTTPClient *http.Client
}

func NewGithubIntegrationCreator(deps GithubIntegrationCreatorDeps) domain.IntegrationCreator {
	return &GithubIntegrationCreator{
		baseURL:    deps.BaseURL,
		httpClient: deps.HTTPClient,
	}
}

func (c *GithubIntegrationCreator) CreateIntegration(ctx context.Context, p domain.CreateIntegrationParams) (domain.IntegrationExecutor, error) {
	client, err := newGithubClient(p.Credential, c.baseURL, c.httpClient)
	if err != nil {
		return nil, err
	}

	integration := &GithubIntegration{
		githubClient: client,
	}

	integration.actionManager = domain.NewIntegrationActionManager(domain.IntegrationType_Github).
		Add(GithubActionType_CreateIssue, integration.CreateIssue).
		Add(GithubActionType_GetIssue, integration.GetIssue).
		Add(GithubActionType_CreateIssueComment, integration.CreateIssueComment)

	return integration, nil
}

type GithubIntegration struct {
	githubClient  *github.Client
	actionManager *domain.IntegrationActionManager
}

func (i *GithubIntegration) Execute(ctx context.Context, params domain.IntegrationInput) (domain.IntegrationOutput, error) {
	return i.actionManager.Run(ctx, params)
}

type CreateIssueParams struct {
	Owner     string   `json:"owner"`
	Repo      string   `json:"repo"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Assignees []string `json:"assignees"`
	Labels    []string `json:"labels"`
}

func (i *GithubIntegration) CreateIssue(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	params := CreateIssueParams{}
	if err := input.BindParams(&params); err != nil {
		return domain.IntegrationOutput{}, err
	}

	owner, repo, err := parseOwnerRepo(params.Owner, params.Repo)
	if err != nil {
		return domain.IntegrationOutput{}, err
	}

	if params.Title == "" {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("title is required")
	}

	request := &github.IssueRequest{
		Title: github.String(params.Title),
	}

	if params.Body != "" {
		request.Body = github.String(params.Body)
	}

	if len(params.Assignees) > 0 {
		request.Assignees = &params.Assignees
	}

	if len(params.Labels) > 0 {
		request.Labels = &params.Labels
	}

	issue, resp, err := i.githubClient.Issues.Create(ctx, owner, repo, request)
	if err != nil {
		return domain.IntegrationOutput{}, newAdapterError(input.ActionID, resp, err)
	}

	return domain.IntegrationOutput{Data: issueToMap(issue)}, nil
}

type GetIssueParams struct {
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	IssueNumber int    `json:"issue_number"`
}

func (i *GithubIntegration) GetIssue(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	params := GetIssueParams{}
	if err := input.BindParams(&params); err != nil {
		return domain.IntegrationOutput{}, err
	}

	owner, repo, err := parseOwnerRepo(params.Owner, params.Repo)
	if err != nil {
		return domain.IntegrationOutput{}, err
	}

	if params.IssueNumber == 0 {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("issue_number is required")
	}

	issue, resp, err := i.githubClient.Issues.Get(ctx, owner, repo, params.IssueNumber)
	if err != nil {
		return domain.IntegrationOutput{}, newAdapterError(input.ActionID, resp, err)
	}

	return domain.IntegrationOutput{Data: issueToMap(issue)}, nil
}

type CreateIssueCommentParams struct {
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	IssueNumber int    `json:"issue_number"`
	Body        string `json:"body"`
}

func (i *GithubIntegration) CreateIssueComment(ctx context.Context, input domain.IntegrationInput) (domain.IntegrationOutput, error) {
	params := CreateIssueCommentParams{}
	if err := input.BindParams(&params); err != nil {
		return domain.IntegrationOutput{}, err
	}

	owner, repo, err := parseOwnerRepo(params.Owner, params.Repo)
	if err != nil {
		return domain.IntegrationOutput{}, err
	}

	if params.IssueNumber == 0 || params.Body == "" {
		return domain.IntegrationOutput{}, domain.NewConfigurationError("issue_number and body are required")
	}

	comment, resp, err := i.githubClient.Issues.CreateComment(ctx, owner, repo, params.IssueNumber, &github.IssueComment{
		Body: github.String(params.Body),
	})
	if err != nil {
		return domain.IntegrationOutput{}, newAdapterError(input.ActionID, resp, err)
	}

	return domain.IntegrationOutput{Data: map[string]any{
		"id":         comment.GetID(),
		"body":       comment.GetBody(),
		"html_url":   comment.GetHTMLURL(),
		"created_at": comment.GetCreatedAt().Time,
	}}, nil
}

func newGithubClient(credential domain.Credential, baseURL string, httpClient *http.Client) (*github.Client, error) {
	token := tokenFromCredential(credential)
	if token == "" {
		return nil, domain.NewConfigurationError("github credential %s has no token", credential.ID)
	}

	client := github.NewClient(httpClient).WithAuthToken(token)

	if baseURL == "" {
		return client, nil
	}

	client, err := client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid github base url: %w", err)
	}

	return client, nil
}

// tokenFromCredential accepts both OAuth account and personal token payloads.
func tokenFromCredential(credential domain.Credential) string {
	if token, ok := credential.Payload["access_token"].(string); ok && token != "" {
		return token
	}

	token, _ := credential.Payload["token"].(string)

	return token
}

// parseOwnerRepo accepts either separate owner and repo values or "owner/repo".
func parseOwnerRepo(owner string, repo string) (string, string, error) {
	if repo == "" && strings.Contains(owner, "/") {
		owner, repo, _ = strings.Cut(owner, "/")
	}

	if owner == "" || repo == "" {
		return "", "", domain.NewConfigurationError("owner and repo are required")
	}

	return owner, repo, nil
}

func newAdapterError(actionID domain.IntegrationActionType, resp *github.Response, err error) error {
	statusCode := 0
	if resp != nil && resp.Response != nil {
		statusCode = resp.StatusCode
	}

	return domain.NewAdapterError(domain.IntegrationType_Github, string(actionID), statusCode, err)
}

func issueToMap(issue *github.Issue) map[string]any {
	labels := []string{}
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}

	return map[string]any{
		"id":         issue.GetID(),
		"number":     issue.GetNumber(),
		"title":      issue.GetTitle(),
		"body":       issue.GetBody(),
		"state":      issue.GetState(),
		"html_url":   issue.GetHTMLURL(),
		"user":       issue.GetUser().GetLogin(),
		"labels":     labels,
		"created_at": issue.GetCreatedAt().Time,
	}
}
