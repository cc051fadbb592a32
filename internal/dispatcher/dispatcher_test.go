package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techwithparamesh/agent-app-sub006/internal/store/memory"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain/executor"
	"github.com/techwithparamesh/agent-app-sub006/pkg/expressions"
)

const fakeResource domain.IntegrationType = "fake_drive"

type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.now = now
}

// fakePoller serves a mutable list of items through CollectNewEvents, the way
// the vendor pollers do.
type fakePoller struct {
	mutex sync.Mutex
	items []domain.PollEvent
	err   error
	calls int
}

func (p *fakePoller) Add(item domain.PollEvent) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.items = append(p.items, item)
}

func (p *fakePoller) Poll(ctx context.Context, params domain.PollParams) (domain.PollResult, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.calls++

	if p.err != nil {
		return domain.PollResult{}, p.err
	}

	events, next := domain.CollectNewEvents(params.State, p.items, params.Now, params.MaxEvents)

	return domain.PollResult{Events: events, NextState: next}, nil
}

type allowAllResolver struct{}

func (allowAllResolver) Resolve(ctx context.Context, credentialID string, userID string) (domain.Credential, error) {
	return domain.Credential{ID: credentialID, UserID: userID}, nil
}

type testEnv struct {
	store      *memory.Store
	poller     *fakePoller
	clock      *fakeClock
	dispatcher *Dispatcher
}

func newTestEnv(t *testing.T, start time.Time) *testEnv {
	t.Helper()

	evaluator, err := expressions.NewDefaultEvaluator()
	require.NoError(t, err)

	store := memory.New()
	poller := &fakePoller{}
	clock := &fakeClock{now: start}

	selector := domain.NewIntegrationSelector()
	selector.RegisterPoller(fakeResource, poller)

	service := executor.NewWorkflowExecutorService(executor.WorkflowExecutorServiceDependencies{
		IntegrationSelector:   selector,
		CredentialResolver:    allowAllResolver{},
		Evaluator:             evaluator,
		JavaScriptRunner:      expressions.NewJavaScriptRunner(time.Second),
		OrderedEventPublisher: domain.NoopEventPublisher{},
		WorkflowStore:         store,
		ExecutionStore:        store,
	})

	dispatcher := New(Dependencies{
		WorkflowStore:       store,
		ExecutorService:     service,
		IntegrationSelector: selector,
		CredentialResolver:  allowAllResolver{},
		TickInterval:        10 * time.Millisecond,
		Now:                 clock.Now,
	})

	return &testEnv{
		store:      store,
		poller:     poller,
		clock:      clock,
		dispatcher: dispatcher,
	}
}

func (e *testEnv) save(t *testing.T, id string, trigger domain.TriggerNodeConfig) {
	t.Helper()

	require.NoError(t, e.store.SaveWorkflow(context.Background(), domain.Workflow{
		ID:       id,
		UserID:   "user-1",
		IsActive: true,
		Nodes: []domain.Node{
			{ID: "trigger", Type: domain.NodeTypeTrigger, Config: trigger},
			{ID: "record", Type: domain.NodeTypeSetVariable, Config: domain.SetVariableNodeConfig{
				Variables: []domain.VariableAssignment{{Name: "kind", Expression: "execution.workflow_id"}},
			}},
		},
		Connections: []domain.Connection{{FromNodeID: "trigger", ToNodeID: "record"}},
	}))
}

func (e *testEnv) tickAt(t *testing.T, now time.Time) TickSummary {
	t.Helper()

	e.clock.Set(now)

	summary, err := e.dispatcher.Tick(context.Background())
	require.NoError(t, err)

	return summary
}

func (e *testEnv) executions(t *testing.T, workflowID string) []domain.Execution {
	t.Helper()

	executions, err := e.store.ListExecutions(context.Background(), workflowID, 0)
	require.NoError(t, err)

	return executions
}

func TestTick_ScheduleEveryFiveMinutes(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		step  time.Duration
	}{
		{name: "one minute ticks", start: time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC), step: time.Minute},
		{name: "thirty second ticks", start: time.Date(2024, 3, 1, 12, 0, 10, 0, time.UTC), step: 30 * time.Second},
		{name: "ticks off the minute", start: time.Date(2024, 3, 1, 12, 0, 47, 0, time.UTC), step: 23 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.start)
			env.save(t, "every-5", domain.TriggerNodeConfig{Schedule: &domain.ScheduleTriggerConfig{Cron: "*/5 * * * *"}})

			fired := 0
			for now := tt.start; !now.After(tt.start.Add(16 * time.Minute)); now = now.Add(tt.step) {
				fired += env.tickAt(t, now).Executions
			}

			assert.Equal(t, 3, fired)

			executions := env.executions(t, "every-5")
			require.Len(t, executions, 3)

			scheduledFor := []time.Time{}
			for _, execution := range executions {
				assert.Equal(t, domain.TriggerKindSchedule, execution.TriggerKind)
				assert.Equal(t, domain.ExecutionStatusSuccess, execution.Status)
				scheduledFor = append(scheduledFor, execution.TriggerData["scheduledFor"].(time.Time))
			}

			assert.ElementsMatch(t, []time.Time{
				time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC),
				time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC),
				time.Date(2024, 3, 1, 12, 15, 0, 0, time.UTC),
			}, scheduledFor)

			workflow, err := env.store.GetWorkflow(context.Background(), "every-5")
			require.NoError(t, err)
			assert.Equal(t, int64(3), workflow.ExecutionCount)
			require.NotNil(t, workflow.TriggerState.Schedule)
			assert.Equal(t, time.Date(2024, 3, 1, 12, 15, 0, 0, time.UTC), workflow.TriggerState.Schedule.LastScheduledFor)
		})
	}
}

func TestTick_ScheduleAnchorsBeforeFirstInstant(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 1, 10, 0, time.UTC)
	env := newTestEnv(t, start)
	env.save(t, "every-5", domain.TriggerNodeConfig{Schedule: &domain.ScheduleTriggerConfig{Cron: "*/5 * * * *"}})

	assert.Equal(t, 0, env.tickAt(t, start).Executions)

	workflow, err := env.store.GetWorkflow(context.Background(), "every-5")
	require.NoError(t, err)
	require.NotNil(t, workflow.TriggerState.Schedule)
	assert.Equal(t, start, workflow.TriggerState.Schedule.LastRunAt)
	assert.True(t, workflow.TriggerState.Schedule.LastScheduledFor.IsZero())

	assert.Equal(t, 1, env.tickAt(t, start.Add(4*time.Minute)).Executions)
}

func TestTick_ScheduleFiresOncePerInstant(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 4, 58, 0, time.UTC)
	env := newTestEnv(t, start)
	env.save(t, "every-5", domain.TriggerNodeConfig{Schedule: &domain.ScheduleTriggerConfig{Cron: "*/5 * * * *"}})

	fired := 0
	for second := 0; second < 3600; second++ {
		fired += env.tickAt(t, start.Add(time.Duration(second)*time.Second)).Executions
	}

	// 12:05 through 13:00
	assert.Equal(t, 12, fired)
	assert.Len(t, env.executions(t, "every-5"), 12)
}

func TestTick_PollEndToEnd(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	env.save(t, "drive", domain.TriggerNodeConfig{Poll: &domain.PollTriggerConfig{
		ResourceType:    fakeResource,
		EventType:       "file_created",
		IntervalMinutes: 5,
		CredentialID:    "cred-1",
	}})

	env.poller.Add(domain.PollEvent{ID: "existing", OccurredAt: start.Add(-time.Hour)})

	assert.Equal(t, 0, env.tickAt(t, start).Executions, "first poll only records a baseline")

	env.poller.Add(domain.PollEvent{
		ID:         "report.pdf",
		OccurredAt: start.Add(time.Minute),
		Data:       map[string]any{"file": map[string]any{"name": "report.pdf"}},
	})

	assert.Equal(t, 0, env.tickAt(t, start.Add(2*time.Minute)).Executions, "interval has not elapsed")
	assert.Equal(t, 1, env.tickAt(t, start.Add(5*time.Minute)).Executions)
	assert.Equal(t, 0, env.tickAt(t, start.Add(10*time.Minute)).Executions, "event is not fired twice")

	assert.Equal(t, 3, env.poller.calls)

	executions := env.executions(t, "drive")
	require.Len(t, executions, 1)
	assert.Equal(t, domain.TriggerKindPoll, executions[0].TriggerKind)
	assert.Equal(t, "report.pdf", executions[0].TriggerData["eventId"])
	assert.Equal(t, "file_created", executions[0].TriggerData["eventType"])

	workflow, err := env.store.GetWorkflow(context.Background(), "drive")
	require.NoError(t, err)
	require.NotNil(t, workflow.TriggerState.Poll)
	assert.Equal(t, start.Add(10*time.Minute), workflow.TriggerState.Poll.LastRunAt)
	assert.Equal(t, start.Add(time.Minute), workflow.TriggerState.Poll.LastSeenAt)
	assert.True(t, workflow.TriggerState.Poll.HasSeen("report.pdf"))
}

func TestTick_PollFailureKeepsWatermark(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	env.save(t, "drive", domain.TriggerNodeConfig{Poll: &domain.PollTriggerConfig{
		ResourceType:    fakeResource,
		IntervalMinutes: 5,
		CredentialID:    "cred-1",
	}})

	env.tickAt(t, start)

	env.poller.err = domain.NewAdapterError(fakeResource, "", 503, errors.New("unavailable"))
	env.poller.Add(domain.PollEvent{ID: "new", OccurredAt: start.Add(time.Minute)})

	summary := env.tickAt(t, start.Add(5*time.Minute))
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 0, summary.Executions)

	workflow, err := env.store.GetWorkflow(context.Background(), "drive")
	require.NoError(t, err)
	assert.Equal(t, start.Add(5*time.Minute), workflow.TriggerState.Poll.LastRunAt)
	assert.Equal(t, start, workflow.TriggerState.Poll.LastSeenAt)

	env.tickAt(t, start.Add(6*time.Minute))
	assert.Equal(t, 2, env.poller.calls, "failed poll still throttles")

	env.poller.err = nil
	assert.Equal(t, 1, env.tickAt(t, start.Add(10*time.Minute)).Executions)
}

func TestTick_BrokenWorkflowDoesNotStopOthers(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)

	env.save(t, "bad-cron", domain.TriggerNodeConfig{Schedule: &domain.ScheduleTriggerConfig{Cron: "not a cron"}})
	env.save(t, "good", domain.TriggerNodeConfig{Schedule: &domain.ScheduleTriggerConfig{Cron: "* * * * *"}})
	env.save(t, "webhook", domain.TriggerNodeConfig{Kind: domain.TriggerKindWebhook})

	summary := env.tickAt(t, start)

	assert.Equal(t, 3, summary.Workflows)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 1, summary.Executions)
	assert.Len(t, env.executions(t, "good"), 1)
	assert.Empty(t, env.executions(t, "webhook"))
}

func TestDispatcher_StartStop(t *testing.T) {
	env := newTestEnv(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, env.dispatcher.Start(context.Background()))
	assert.True(t, env.dispatcher.IsRunning())
	assert.ErrorIs(t, env.dispatcher.Start(context.Background()), ErrDispatcherRunning)

	require.NoError(t, env.dispatcher.Stop())
	assert.False(t, env.dispatcher.IsRunning())

	require.NoError(t, env.dispatcher.Stop())

	require.NoError(t, env.dispatcher.Start(context.Background()))
	assert.True(t, env.dispatcher.IsRunning())
	require.NoError(t, env.dispatcher.Stop())
}
