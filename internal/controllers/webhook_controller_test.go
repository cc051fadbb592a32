package controllers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techwithparamesh/agent-app-sub006/internal/controllers"
	"github.com/techwithparamesh/agent-app-sub006/internal/server"
	"github.com/techwithparamesh/agent-app-sub006/internal/store/memory"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain/executor"
	"github.com/techwithparamesh/agent-app-sub006/pkg/expressions"
	githubintegration "github.com/techwithparamesh/agent-app-sub006/pkg/integrations/github"
	"github.com/techwithparamesh/agent-app-sub006/pkg/integrations/webhook"
)

const secret = "s3cr3t"

type testEnv struct {
	store *memory.Store
	do    func(req *http.Request) (int, map[string]any)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	evaluator, err := expressions.NewDefaultEvaluator()
	require.NoError(t, err)

	store := memory.New()

	selector := domain.NewIntegrationSelector()
	selector.RegisterWebhookFilter(domain.IntegrationType_Webhook, webhook.NewGenericWebhookFilter())
	selector.RegisterWebhookFilter(domain.IntegrationType_Github, githubintegration.NewGithubWebhookFilter())

	service := executor.NewWorkflowExecutorService(executor.WorkflowExecutorServiceDependencies{
		IntegrationSelector:   selector,
		Evaluator:             evaluator,
		JavaScriptRunner:      expressions.NewJavaScriptRunner(time.Second),
		OrderedEventPublisher: domain.NoopEventPublisher{},
		WorkflowStore:         store,
		ExecutionStore:        store,
	})

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		WebhookController: controllers.NewWebhookController(controllers.WebhookControllerDependencies{
			WorkflowStore:       store,
			ExecutorService:     service,
			IntegrationSelector: selector,
		}),
		DisableRequestLog: true,
	})

	return &testEnv{
		store: store,
		do: func(req *http.Request) (int, map[string]any) {
			t.Helper()

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			body := map[string]any{}
			require.NoError(t, json.Unmarshal(raw, &body), string(raw))

			return resp.StatusCode, body
		},
	}
}

func (e *testEnv) save(t *testing.T, webhookID string, active bool, webhookConfig *domain.WebhookTriggerConfig, nodes ...domain.Node) {
	t.Helper()

	all := append([]domain.Node{{
		ID:     "trigger",
		Type:   domain.NodeTypeTrigger,
		Config: domain.TriggerNodeConfig{Kind: domain.TriggerKindWebhook, Webhook: webhookConfig},
	}}, nodes...)

	connections := []domain.Connection{}
	for i := 1; i < len(all); i++ {
		connections = append(connections, domain.Connection{FromNodeID: all[i-1].ID, ToNodeID: all[i].ID})
	}

	require.NoError(t, e.store.SaveWorkflow(context.Background(), domain.Workflow{
		ID:          "wf-" + webhookID,
		UserID:      "user-1",
		IsActive:    active,
		WebhookID:   webhookID,
		Nodes:       all,
		Connections: connections,
	}))
}

func (e *testEnv) executionCount(t *testing.T, webhookID string) int {
	t.Helper()

	executions, err := e.store.ListExecutions(context.Background(), "wf-"+webhookID, 0)
	require.NoError(t, err)

	return len(executions)
}

func setVariable(name, expression string) domain.Node {
	return domain.Node{
		ID:     "set_" + name,
		Type:   domain.NodeTypeSetVariable,
		Config: domain.SetVariableNodeConfig{Variables: []domain.VariableAssignment{{Name: name, Expression: expression}}},
	}
}

func post(path string, body string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req
}

func vars(t *testing.T, body map[string]any) map[string]any {
	t.Helper()

	output, ok := body["output"].(map[string]any)
	require.True(t, ok, "response has no output: %v", body)

	return output["vars"].(map[string]any)
}

func TestHandleWebhook_UnknownWebhook(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(post("/webhooks/workflow/missing", `{}`, nil))

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "webhook not found", body["error"])
}

func TestHandleWebhook_InactiveWorkflowIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.save(t, "hook", false, nil, setVariable("x", "1"))

	status, body := env.do(post("/webhooks/workflow/hook", `{}`, nil))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "skipped", body["status"])
	assert.Zero(t, env.executionCount(t, "hook"))
}

func TestHandleWebhook_RunsWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.save(t, "hook", true, nil,
		setVariable("amount", "trigger.body.amount"),
		setVariable("source", "trigger.query.source"),
	)

	status, body := env.do(post("/webhooks/workflow/hook?source=shop", `{"amount": 5}`, nil))

	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["executionId"])
	assert.EqualValues(t, 5, vars(t, body)["amount"])
	assert.Equal(t, "shop", vars(t, body)["source"])

	execution, err := env.store.GetExecution(context.Background(), body["executionId"].(string))
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerKindWebhook, execution.TriggerKind)
	assert.Equal(t, domain.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, http.MethodPost, execution.TriggerData["method"])
	assert.Equal(t, "hook", execution.TriggerData["webhookId"])
}

func TestHandleWebhook_ParsesXMLBody(t *testing.T) {
	env := newTestEnv(t)
	env.save(t, "xml", true, nil, setVariable("orderID", "trigger.body.order.id"))

	req := post("/webhooks/workflow/xml", `<order><id>7</id></order>`, map[string]string{"Content-Type": "application/xml"})
	status, body := env.do(req)

	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "7", vars(t, body)["orderID"])
}

func TestHandleWebhook_Filters(t *testing.T) {
	payload := `{"type": "order.created", "id": 1}`

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "sender"}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name       string
		config     domain.WebhookTriggerConfig
		headers    map[string]string
		wantStatus int
		wantBody   string
		wantRuns   int
	}{
		{
			name:       "event matches body type",
			config:     domain.WebhookTriggerConfig{Event: "order.created"},
			wantStatus: http.StatusOK,
			wantBody:   "success",
			wantRuns:   1,
		},
		{
			name:       "header event mismatch is skipped",
			config:     domain.WebhookTriggerConfig{Event: "order.created"},
			headers:    map[string]string{"X-Event-Type": "order.deleted"},
			wantStatus: http.StatusOK,
			wantBody:   "skipped",
		},
		{
			name:       "valid signature",
			config:     domain.WebhookTriggerConfig{SigningSecret: secret},
			headers:    map[string]string{"X-Signature-256": webhook.Sign([]byte(payload), secret)},
			wantStatus: http.StatusOK,
			wantBody:   "success",
			wantRuns:   1,
		},
		{
			name:       "bad signature",
			config:     domain.WebhookTriggerConfig{SigningSecret: secret},
			headers:    map[string]string{"X-Signature-256": webhook.Sign([]byte(payload), "other")},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing signature",
			config:     domain.WebhookTriggerConfig{SigningSecret: secret},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid bearer token",
			config:     domain.WebhookTriggerConfig{SigningSecret: secret, Verification: webhook.VerificationJWT},
			headers:    map[string]string{"Authorization": "Bearer " + token},
			wantStatus: http.StatusOK,
			wantBody:   "success",
			wantRuns:   1,
		},
		{
			name:       "github delivery without event header is skipped",
			config:     domain.WebhookTriggerConfig{Provider: domain.IntegrationType_Github, Event: "issue_opened"},
			wantStatus: http.StatusOK,
			wantBody:   "skipped",
		},
		{
			name:       "github delivery for another event is skipped",
			config:     domain.WebhookTriggerConfig{Provider: domain.IntegrationType_Github, Event: "issue_opened"},
			headers:    map[string]string{"X-GitHub-Event": "push"},
			wantStatus: http.StatusOK,
			wantBody:   "skipped",
		},
		{
			name:       "unknown provider",
			config:     domain.WebhookTriggerConfig{Provider: "nope"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			config := tt.config
			env.save(t, "hook", true, &config, setVariable("id", "trigger.body.id"))

			status, body := env.do(post("/webhooks/workflow/hook", payload, tt.headers))

			assert.Equal(t, tt.wantStatus, status, body)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, body["status"])
			}

			assert.Equal(t, tt.wantRuns, env.executionCount(t, "hook"))
		})
	}
}

func TestHandleWebhook_UnreadableBodyIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.save(t, "gh", true, &domain.WebhookTriggerConfig{Provider: domain.IntegrationType_Github, Event: "issue_opened"}, setVariable("x", "1"))

	status, body := env.do(post("/webhooks/workflow/gh", `{"action":"opened"}`, map[string]string{"X-GitHub-Event": "issues"}))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "success", body["status"])

	status, body = env.do(post("/webhooks/workflow/gh", `not json`, nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "skipped", body["status"])

	assert.Equal(t, 1, env.executionCount(t, "gh"))
}

func TestHandleWebhook_NonWebhookTriggerIsSkipped(t *testing.T) {
	tests := []struct {
		name    string
		trigger domain.TriggerNodeConfig
	}{
		{
			name:    "poll",
			trigger: domain.TriggerNodeConfig{Kind: domain.TriggerKindPoll, Poll: &domain.PollTriggerConfig{ResourceType: domain.IntegrationType_Drive}},
		},
		{
			name:    "schedule",
			trigger: domain.TriggerNodeConfig{Kind: domain.TriggerKindSchedule, Schedule: &domain.ScheduleTriggerConfig{Cron: "*/5 * * * *"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			require.NoError(t, env.store.SaveWorkflow(context.Background(), domain.Workflow{
				ID:        "wf-stale",
				UserID:    "user-1",
				IsActive:  true,
				WebhookID: "stale",
				Nodes: []domain.Node{
					{ID: "trigger", Type: domain.NodeTypeTrigger, Config: tt.trigger},
					setVariable("x", "1"),
				},
				Connections: []domain.Connection{{FromNodeID: "trigger", ToNodeID: "set_x"}},
			}))

			status, body := env.do(post("/webhooks/workflow/stale", `{}`, nil))

			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "skipped", body["status"])
			assert.Equal(t, "workflow is not webhook triggered", body["reason"])
			assert.Zero(t, env.executionCount(t, "stale"))
		})
	}
}

func TestHandleWebhook_FailedExecution(t *testing.T) {
	env := newTestEnv(t)
	env.save(t, "hook", true, nil, domain.Node{
		ID:     "explode",
		Type:   domain.NodeTypeCode,
		Config: domain.CodeNodeConfig{Source: `throw new Error("boom");`},
	})

	status, body := env.do(post("/webhooks/workflow/hook", `{}`, nil))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "boom")
	assert.NotEmpty(t, body["executionId"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, server.ServiceName, body["service"])
}
