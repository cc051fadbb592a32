package dispatcher

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/domain/executor"
	cronintegration "github.com/techwithparamesh/agent-app-sub006/pkg/integrations/cron"
)

func (d *Dispatcher) evaluateSchedule(ctx context.Context, workflow domain.Workflow, trigger domain.Node, now time.Time) (int, error) {
	expression, timezone, err := workflow.ResolveSchedule(trigger)
	if err != nil {
		return 0, err
	}

	state := domain.ScheduleState{}
	if workflow.TriggerState.Schedule != nil {
		state = *workflow.TriggerState.Schedule
	}

	decision, err := d.scheduleEvaluator.Evaluate(cronintegration.EvaluateParams{
		Expression: expression,
		Timezone:   timezone,
		State:      state,
		Now:        now,
	})
	if err != nil {
		return 0, err
	}

	if !decision.Persist() {
		return 0, nil
	}

	triggerState := workflow.TriggerState
	triggerState.Schedule = &decision.NextState

	if err := d.workflowStore.SaveTriggerState(ctx, workflow.ID, triggerState); err != nil {
		return 0, err
	}

	if !decision.Due {
		log.Debug().Str("workflowID", workflow.ID).Time("anchoredAt", now).Msg("dispatcher: schedule anchored")
		return 0, nil
	}

	execution, err := d.executorService.Run(ctx, executor.RunParams{
		Workflow:    workflow,
		TriggerKind: domain.TriggerKindSchedule,
		TriggerData: map[string]any{
			"scheduledFor": decision.ScheduledFor,
			"firedAt":      now,
			"cron":         expression,
			"timezone":     timezone,
		},
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("workflowID", workflow.ID).
		Str("executionID", execution.ID).
		Time("scheduledFor", decision.ScheduledFor).
		Str("status", string(execution.Status)).
		Msg("dispatcher: schedule fired")

	return 1, nil
}
