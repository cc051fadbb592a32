package cronintegration

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

// ScheduleDecision says whether a schedule trigger fires on this tick and the
// state to persist. Anchored is set when the trigger has never run and is not
// due yet: NextState then only records the evaluation time, so later ticks look
// for instants after it instead of after their own now.
type ScheduleDecision struct {
	Due          bool
	Anchored     bool
	ScheduledFor time.Time
	NextState    domain.ScheduleState
}

// Persist reports whether NextState has to be written back.
func (d ScheduleDecision) Persist() bool {
	return d.Due || d.Anchored
}

type ScheduleEvaluator struct {
	parser cron.Parser
}

func NewScheduleEvaluator() *ScheduleEvaluator {
	return &ScheduleEvaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

type EvaluateParams struct {
	Expression string
	Timezone   string
	State      domain.ScheduleState
	Now        time.Time
}

// Evaluate looks for cron instants strictly after the last run, or after now
// minus one second when the trigger never ran. The trigger is due when such an
// instant is not in the future and has not fired before. Runs missed while the
// dispatcher was down collapse into a single firing for the latest due instant.
func (e *ScheduleEvaluator) Evaluate(p EvaluateParams) (ScheduleDecision, error) {
	location, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return ScheduleDecision{}, domain.NewConfigurationError("unknown timezone %q: %v", p.Timezone, err)
	}

	schedule, err := e.parser.Parse(p.Expression)
	if err != nil {
		return ScheduleDecision{}, domain.NewConfigurationError("invalid cron expression %q: %v", p.Expression, err)
	}

	neverRan := p.State.LastRunAt.IsZero()

	base := p.State.LastRunAt
	if neverRan {
		base = p.Now.Add(-time.Second)
	}

	next := schedule.Next(base.In(location))

	if next.IsZero() || next.After(p.Now) {
		if neverRan {
			return ScheduleDecision{
				Anchored:  true,
				NextState: domain.ScheduleState{LastRunAt: p.Now},
			}, nil
		}

		return ScheduleDecision{}, nil
	}

	for {
		following := schedule.Next(next)
		if following.IsZero() || following.After(p.Now) {
			break
		}

		next = following
	}

	if !p.State.LastScheduledFor.IsZero() && next.Equal(p.State.LastScheduledFor) {
		return ScheduleDecision{}, nil
	}

	return ScheduleDecision{
		Due:          true,
		ScheduledFor: next.UTC(),
		NextState: domain.ScheduleState{
			LastRunAt:        p.Now,
			LastScheduledFor: next.UTC(),
		},
	}, nil
}

// NextRun is the first instant after from, for display and tests.
func (e *ScheduleEvaluator) NextRun(expression string, timezone string, from time.Time) (time.Time, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, domain.NewConfigurationError("unknown timezone %q: %v", timezone, err)
	}

	schedule, err := e.parser.Parse(expression)
	if err != nil {
		return time.Time{}, domain.NewConfigurationError("invalid cron expression %q: %v", expression, err)
	}

	return schedule.Next(from.In(location)), nil
}
