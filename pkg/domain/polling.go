package domain

import (
	"encoding/json"
	"slices"
	"sort"
	"time"
)

const (
	MaxRecentIDs = 100

	DefaultPollIntervalMinutes = 5
	MinPollIntervalMinutes     = 1
	MaxPollIntervalMinutes     = 1440
)

// PollState is the per-workflow poll bookkeeping. LastRunAt throttles polling
// against the configured interval, LastSeenAt is the "new since" watermark and
// RecentIDs holds the most recently emitted item ids, newest first.
type PollState struct {
	LastRunAt  time.Time `json:"last_run_at" bson:"last_run_at"`
	LastSeenAt time.Time `json:"last_seen_at" bson:"last_seen_at"`
	RecentIDs  []string  `json:"recent_ids" bson:"recent_ids"`
}

// PushRecentID moves id to the front of RecentIDs, dropping the oldest entries
// beyond MaxRecentIDs.
func (s *PollState) PushRecentID(id string) {
	ids := make([]string, 0, min(len(s.RecentIDs)+1, MaxRecentIDs))
	ids = append(ids, id)

	for _, existing := range s.RecentIDs {
		if existing == id {
			continue
		}

		if len(ids) == MaxRecentIDs {
			break
		}

		ids = append(ids, existing)
	}

	s.RecentIDs = ids
}

func (s PollState) HasSeen(id string) bool {
	return slices.Contains(s.RecentIDs, id)
}

func (s PollState) Clone() PollState {
	return PollState{
		LastRunAt:  s.LastRunAt,
		LastSeenAt: s.LastSeenAt,
		RecentIDs:  slices.Clone(s.RecentIDs),
	}
}

// IsDue reports whether a poll with the given interval may run at now.
func (s PollState) IsDue(now time.Time, interval time.Duration) bool {
	if s.LastRunAt.IsZero() {
		return true
	}

	return now.Sub(s.LastRunAt) >= interval
}

// ClampPollInterval bounds a configured interval in minutes to [1, 1440],
// treating unset values as the default of 5 minutes.
func ClampPollInterval(minutes int) time.Duration {
	if minutes <= 0 {
		minutes = DefaultPollIntervalMinutes
	}

	minutes = max(minutes, MinPollIntervalMinutes)
	minutes = min(minutes, MaxPollIntervalMinutes)

	return time.Duration(minutes) * time.Minute
}

// PollEvent is one newly observed item of a polled resource.
type PollEvent struct {
	ID         string
	OccurredAt time.Time
	Data       map[string]any
}

type PollParams struct {
	WorkflowID string
	UserID     string
	TriggerID  string
	Config     PollTriggerConfig
	Credential Credential
	State      PollState
	Now        time.Time
	MaxEvents  int
}

// DecodePollSettings maps the free form poll settings onto a typed struct using
// its json tags.
func DecodePollSettings[T any](config PollTriggerConfig) (T, error) {
	var decoded T

	if len(config.Settings) == 0 {
		return decoded, nil
	}

	raw, err := json.Marshal(config.Settings)
	if err != nil {
		return decoded, err
	}

	if err := json.Unmarshal(raw, &decoded); err != nil {
		return decoded, NewConfigurationError("invalid %s poll settings: %v", config.ResourceType, err)
	}

	return decoded, nil
}

type PollResult struct {
	Events    []PollEvent
	NextState PollState
}

// CollectNewEvents filters candidates against the watermark and the recent id list,
// keeps the oldest maxEvents of them, and returns them with the advanced state.
//
// Candidates at exactly the watermark are kept unless already emitted, since the
// polled resource may report several items with the same timestamp. The watermark
// only advances to the newest emitted item, so events beyond maxEvents are picked
// up on the next poll.
//
// A state without a watermark is a first poll: current items are marked as seen,
// the watermark moves to now and nothing is emitted.
func CollectNewEvents(state PollState, candidates []PollEvent, now time.Time, maxEvents int) ([]PollEvent, PollState) {
	next := state.Clone()

	if state.LastSeenAt.IsZero() {
		sorted := sortEventsByTime(candidates)

		for _, event := range sorted {
			next.PushRecentID(event.ID)
		}

		next.LastSeenAt = now

		return nil, next
	}

	fresh := []PollEvent{}

	for _, event := range sortEventsByTime(candidates) {
		if event.OccurredAt.Before(state.LastSeenAt) {
			continue
		}

		if state.HasSeen(event.ID) {
			continue
		}

		fresh = append(fresh, event)
	}

	if maxEvents > 0 && len(fresh) > maxEvents {
		fresh = fresh[:maxEvents]
	}

	for _, event := range fresh {
		next.PushRecentID(event.ID)

		if event.OccurredAt.After(next.LastSeenAt) {
			next.LastSeenAt = event.OccurredAt
		}
	}

	return fresh, next
}

func sortEventsByTime(events []PollEvent) []PollEvent {
	sorted := slices.Clone(events)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	return sorted
}
