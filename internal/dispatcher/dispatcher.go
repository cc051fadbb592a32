// Package dispatcher runs the recurring tick that fires poll and schedule
// triggers of active workflows.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain/executor"
	cronintegration "github.com/techwithparamesh/agent-app-sub006/pkg/integrations/cron"
)

const (
	DefaultTickInterval      = 30 * time.Second
	DefaultConcurrency       = 8
	DefaultEvaluationTimeout = 2 * time.Minute
	DefaultMaxEventsPerTick  = 5
)

var ErrDispatcherRunning = errors.New("dispatcher already started")

type Dispatcher struct {
	workflowStore       domain.WorkflowStore
	executorService     executor.WorkflowExecutorService
	integrationSelector domain.IntegrationSelector
	credentialResolver  domain.CredentialResolver
	scheduleEvaluator   *cronintegration.ScheduleEvaluator

	tickInterval      time.Duration
	concurrency       int
	evaluationTimeout time.Duration
	maxEventsPerTick  int
	now               func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

type Dependencies struct {
	WorkflowStore       domain.WorkflowStore
	ExecutorService     executor.WorkflowExecutorService
	IntegrationSelector domain.IntegrationSelector
	CredentialResolver  domain.CredentialResolver

	TickInterval      time.Duration
	Concurrency       int
	EvaluationTimeout time.Duration
	MaxEventsPerTick  int

	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

func New(deps Dependencies) *Dispatcher {
	d := &Dispatcher{
		workflowStore:       deps.WorkflowStore,
		executorService:     deps.ExecutorService,
		integrationSelector: deps.IntegrationSelector,
		credentialResolver:  deps.CredentialResolver,
		scheduleEvaluator:   cronintegration.NewScheduleEvaluator(),
		tickInterval:        deps.TickInterval,
		concurrency:         deps.Concurrency,
		evaluationTimeout:   deps.EvaluationTimeout,
		maxEventsPerTick:    deps.MaxEventsPerTick,
		now:                 deps.Now,
		inflight:            map[string]struct{}{},
	}

	if d.tickInterval <= 0 {
		d.tickInterval = DefaultTickInterval
	}

	if d.concurrency <= 0 {
		d.concurrency = DefaultConcurrency
	}

	if d.evaluationTimeout <= 0 {
		d.evaluationTimeout = DefaultEvaluationTimeout
	}

	if d.maxEventsPerTick <= 0 {
		d.maxEventsPerTick = DefaultMaxEventsPerTick
	}

	if d.now == nil {
		d.now = func() time.Time { return time.Now().UTC() }
	}

	return d
}

// Start launches the tick loop. The first tick runs immediately.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done != nil {
		return ErrDispatcherRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.loop(loopCtx, d.done)

	log.Info().Dur("tickInterval", d.tickInterval).Int("concurrency", d.concurrency).Msg("dispatcher: started")

	return nil
}

// Stop cancels in-flight evaluations and waits for the loop to exit. Stopping a
// dispatcher that is not running is a no-op.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel == nil {
		return nil
	}

	d.cancel()
	<-d.done

	d.cancel = nil
	d.done = nil

	log.Info().Msg("dispatcher: stopped")

	return nil
}

func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.done != nil
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	d.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runTick(ctx)
		}
	}
}

func (d *Dispatcher) runTick(ctx context.Context) {
	summary, err := d.Tick(ctx)
	if err != nil {
		log.Error().Err(err).Msg("dispatcher: tick failed")
		return
	}

	log.Debug().
		Int("workflows", summary.Workflows).
		Int("executions", summary.Executions).
		Int("failures", summary.Failures).
		Msg("dispatcher: tick finished")
}

type TickSummary struct {
	Workflows  int
	Executions int
	Failures   int
}

// Tick evaluates every active workflow once on a bounded pool. Errors and
// panics of single workflows are logged and counted, never returned.
func (d *Dispatcher) Tick(ctx context.Context) (TickSummary, error) {
	workflows, err := d.workflowStore.ListActiveWorkflows(ctx)
	if err != nil {
		return TickSummary{}, fmt.Errorf("failed to list active workflows: %w", err)
	}

	now := d.now()

	var executions, failures atomic.Int64

	group := errgroup.Group{}
	group.SetLimit(d.concurrency)

	for _, workflow := range workflows {
		if ctx.Err() != nil {
			break
		}

		if !d.tryAcquire(workflow.ID) {
			log.Debug().Str("workflowID", workflow.ID).Msg("dispatcher: workflow still being evaluated, skipping")
			continue
		}

		workflow := workflow
		group.Go(func() error {
			defer d.release(workflow.ID)

			fired, err := d.evaluateWorkflow(ctx, workflow, now)
			executions.Add(int64(fired))

			if err != nil {
				failures.Add(1)

				log.Error().
					Err(err).
					Str("workflowID", workflow.ID).
					Str("errorClass", string(domain.ClassifyError(err))).
					Msg("dispatcher: workflow evaluation failed")
			}

			return nil
		})
	}

	_ = group.Wait()

	return TickSummary{
		Workflows:  len(workflows),
		Executions: int(executions.Load()),
		Failures:   int(failures.Load()),
	}, nil
}

func (d *Dispatcher) evaluateWorkflow(ctx context.Context, workflow domain.Workflow, now time.Time) (fired int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while evaluating workflow %s: %v", workflow.ID, r)
			log.Error().Str("workflowID", workflow.ID).Str("stack", string(debug.Stack())).Msg("dispatcher: recovered from panic")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.evaluationTimeout)
	defer cancel()

	trigger, ok := workflow.TriggerNode()
	if !ok {
		return 0, domain.NewConfigurationError("workflow %s has no single trigger node", workflow.ID)
	}

	switch workflow.ResolveTriggerKind(trigger) {
	case domain.TriggerKindPoll:
		return d.evaluatePoll(ctx, workflow, trigger, now)
	case domain.TriggerKindSchedule:
		return d.evaluateSchedule(ctx, workflow, trigger, now)
	}

	return 0, nil
}

func (d *Dispatcher) tryAcquire(workflowID string) bool {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()

	if _, ok := d.inflight[workflowID]; ok {
		return false
	}

	d.inflight[workflowID] = struct{}{}

	return true
}

func (d *Dispatcher) release(workflowID string) {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()

	delete(d.inflight, workflowID)
}
