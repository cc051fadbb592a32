package dispatcher

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain/executor"
)

// evaluatePoll polls the trigger's resource when its interval elapsed. The
// state is written once per due poll, before any execution runs, so an event is
// never fired twice. A failed poll still advances LastRunAt and keeps the
// previous watermark and ids.
func (d *Dispatcher) evaluatePoll(ctx context.Context, workflow domain.Workflow, trigger domain.Node, now time.Time) (int, error) {
	config, _ := trigger.TriggerConfig()
	if config.Poll == nil {
		return 0, domain.NewConfigurationError("poll trigger %s has no poll config", trigger.ID)
	}

	state := domain.PollState{}
	if workflow.TriggerState.Poll != nil {
		state = workflow.TriggerState.Poll.Clone()
	}

	interval := domain.ClampPollInterval(config.Poll.IntervalMinutes)
	if !state.IsDue(now, interval) {
		return 0, nil
	}

	result, pollErr := d.poll(ctx, workflow, trigger, *config.Poll, state, now)

	nextState := state
	if pollErr == nil {
		nextState = result.NextState
	}

	nextState.LastRunAt = now

	triggerState := workflow.TriggerState
	triggerState.Poll = &nextState

	if err := d.workflowStore.SaveTriggerState(ctx, workflow.ID, triggerState); err != nil {
		return 0, err
	}

	if pollErr != nil {
		return 0, pollErr
	}

	events := result.Events
	if len(events) > d.maxEventsPerTick {
		events = events[:d.maxEventsPerTick]
	}

	log.Info().
		Str("workflowID", workflow.ID).
		Str("resourceType", string(config.Poll.ResourceType)).
		Int("events", len(events)).
		Msg("dispatcher: poll finished")

	fired := 0

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return fired, err
		}

		execution, err := d.executorService.Run(ctx, executor.RunParams{
			Workflow:    workflow,
			TriggerKind: domain.TriggerKindPoll,
			TriggerData: map[string]any{
				"event":        event.Data,
				"eventId":      event.ID,
				"occurredAt":   event.OccurredAt,
				"resourceType": string(config.Poll.ResourceType),
				"eventType":    config.Poll.EventType,
			},
		})
		if err != nil {
			return fired, err
		}

		fired++

		log.Info().
			Str("workflowID", workflow.ID).
			Str("executionID", execution.ID).
			Str("eventID", event.ID).
			Str("status", string(execution.Status)).
			Msg("dispatcher: poll event executed")
	}

	return fired, nil
}

func (d *Dispatcher) poll(ctx context.Context, workflow domain.Workflow, trigger domain.Node, config domain.PollTriggerConfig, state domain.PollState, now time.Time) (domain.PollResult, error) {
	poller, err := d.integrationSelector.SelectPoller(ctx, domain.SelectIntegrationParams{
		IntegrationType: config.ResourceType,
	})
	if err != nil {
		return domain.PollResult{}, err
	}

	credential, err := d.credentialResolver.Resolve(ctx, config.CredentialID, workflow.UserID)
	if err != nil {
		return domain.PollResult{}, err
	}

	return poller.Poll(ctx, domain.PollParams{
		WorkflowID: workflow.ID,
		UserID:     workflow.UserID,
		TriggerID:  trigger.ID,
		Config:     config,
		Credential: credential,
		State:      state,
		Now:        now,
		MaxEvents:  d.maxEventsPerTick,
	})
}
