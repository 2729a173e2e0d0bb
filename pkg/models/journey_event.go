package models

import "time"

type JourneyEventType string

const (
	EventEnterJourney    JourneyEventType = "enter_journey"
	EventEnterStep       JourneyEventType = "enter_step"
	EventExitStep        JourneyEventType = "exit_step"
	EventActionSent      JourneyEventType = "action_sent"
	EventDelayStarted    JourneyEventType = "delay_started"
	EventConditionMet    JourneyEventType = "condition_met"
	EventConditionNotMet JourneyEventType = "condition_not_met"
	EventGoalAchieved    JourneyEventType = "goal_achieved"
	EventExitJourney     JourneyEventType = "exit_journey"
	EventError           JourneyEventType = "error"
)

// JourneyEvent is an append-only audit record. IDs increase monotonically, so
// ordering by ID is ordering by write.
type JourneyEvent struct {
	ID            int64            `json:"id"`
	ParticipantID int64            `json:"participant_id"`
	StepID        int64            `json:"step_id"`
	EventType     JourneyEventType `json:"event_type"`
	Timestamp     time.Time        `json:"timestamp"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}
