package domain

import (
	"fmt"
	"time"
)

// ScheduleState records the last firing of a schedule trigger. LastScheduledFor
// is the cron instant that fired and guards against firing it twice.
type ScheduleState struct {
	LastRunAt        time.Time `json:"last_run_at" bson:"last_run_at"`
	LastScheduledFor time.Time `json:"last_scheduled_for" bson:"last_scheduled_for"`
}

type ScheduleInterval string

const (
	ScheduleIntervalMinute ScheduleInterval = "minute"
	ScheduleIntervalHour   ScheduleInterval = "hour"
	ScheduleIntervalDay    ScheduleInterval = "day"
)

// ScheduleTriggerConfig takes either a cron expression or a simple interval.
type ScheduleTriggerConfig struct {
	Cron     string `json:"cron,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	Interval ScheduleInterval `json:"interval,omitempty"`
	Minute   int              `json:"minute,omitempty"`
	Hour     int              `json:"hour,omitempty"`
	Day      int              `json:"day,omitempty"`
}

func (c ScheduleTriggerConfig) CronExpression() (string, error) {
	if c.Cron != "" {
		return c.Cron, nil
	}

	switch c.Interval {
	case "":
		return "", nil
	case ScheduleIntervalMinute:
		if c.Minute <= 0 {
			return "", NewConfigurationError("minute interval must be positive")
		}

		return fmt.Sprintf("*/%d * * * *", c.Minute), nil
	case ScheduleIntervalHour:
		if c.Hour <= 0 {
			return "", NewConfigurationError("hour interval must be positive")
		}

		return fmt.Sprintf("0 */%d * * *", c.Hour), nil
	case ScheduleIntervalDay:
		if c.Day <= 0 {
			return "", NewConfigurationError("day interval must be positive")
		}

		return fmt.Sprintf("0 0 */%d * *", c.Day), nil
	}

	return "", NewConfigurationError("unsupported schedule interval %q", c.Interval)
}
