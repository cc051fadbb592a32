package githubintegration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

type fakeIssue struct {
	ID        int64     `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// issuesServer answers the list issues endpoint newest first, honouring since,
// per_page and page, and links the next page the way GitHub does.
type issuesServer struct {
	mtx      sync.Mutex
	issues   []fakeIssue
	requests int
}

func (s *issuesServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if r.URL.Path != "/api/v3/repos/acme/shop/issues" {
		http.NotFound(w, r)
		return
	}

	s.requests++

	query := r.URL.Query()

	matching := []fakeIssue{}
	since, _ := time.Parse(time.RFC3339, query.Get("since"))
	for i := len(s.issues) - 1; i >= 0; i-- {
		if s.issues[i].UpdatedAt.Before(since) {
			continue
		}
		matching = append(matching, s.issues[i])
	}

	perPage, _ := strconv.Atoi(query.Get("per_page"))
	page, _ := strconv.Atoi(query.Get("page"))
	if page == 0 {
		page = 1
	}

	start := min((page-1)*perPage, len(matching))
	end := min(start+perPage, len(matching))

	if end < len(matching) {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<http://%s%s>; rel="next"`, r.Host, next.RequestURI()))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(matching[start:end])
}

func newIssuesHandler(t *testing.T, server *issuesServer) domain.IntegrationPoller {
	t.Helper()

	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	return NewGithubPollingHandler(GithubIntegrationCreatorDeps{BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
}

func issuePollParams(state domain.PollState, now time.Time) domain.PollParams {
	return domain.PollParams{
		WorkflowID: "wf-issues",
		UserID:     "user-1",
		Config: domain.PollTriggerConfig{
			ResourceType: domain.IntegrationType_Github,
			EventType:    EventType_IssueCreated,
			Settings:     map[string]any{"owner": "acme/shop"},
		},
		Credential: domain.Credential{ID: "cred-gh", UserID: "user-1", Payload: map[string]any{"token": "ghp_test"}},
		State:      state,
		Now:        now,
		MaxEvents:  5,
	}
}

func TestGithubPollingHandler_BurstLargerThanPage(t *testing.T) {
	watermark := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	server := &issuesServer{}
	for i := 0; i < 10; i++ {
		created := watermark.Add(-time.Duration(10-i) * time.Hour)
		server.issues = append(server.issues, fakeIssue{ID: int64(i + 1), Number: i + 1, Title: "old", State: "open", CreatedAt: created, UpdatedAt: created})
	}
	for i := 0; i < 120; i++ {
		created := watermark.Add(time.Duration(i+1) * time.Second)
		server.issues = append(server.issues, fakeIssue{ID: int64(1000 + i), Number: 100 + i, Title: "new", State: "open", CreatedAt: created, UpdatedAt: created})
	}

	handler := newIssuesHandler(t, server)
	now := watermark.Add(time.Hour)
	state := domain.PollState{LastSeenAt: watermark}

	emitted := []string{}
	for poll := 0; poll < 30; poll++ {
		result, err := handler.Poll(context.Background(), issuePollParams(state, now))
		require.NoError(t, err)

		for _, event := range result.Events {
			emitted = append(emitted, event.ID)
		}

		state = result.NextState
	}

	require.Len(t, emitted, 120)
	assert.Equal(t, "1000", emitted[0])
	assert.Equal(t, "1119", emitted[119])
}

func TestGithubPollingHandler_BaselineReadsOnePage(t *testing.T) {
	server := &issuesServer{}
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		server.issues = append(server.issues, fakeIssue{ID: int64(i + 1), Number: i + 1, State: "open", CreatedAt: created, UpdatedAt: created})
	}

	handler := newIssuesHandler(t, server)
	now := created.Add(time.Hour)

	result, err := handler.Poll(context.Background(), issuePollParams(domain.PollState{}, now))
	require.NoError(t, err)

	assert.Empty(t, result.Events)
	assert.Equal(t, now, result.NextState.LastSeenAt)
	assert.Equal(t, 1, server.requests)
}
