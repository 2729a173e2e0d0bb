// Package events defines the journey lifecycle notifications published after
// a transition commits.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
)

type EventType string

const Topic = "journeys.lifecycle"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ParticipantEnrolledEvent  EventType = "journey.participant.enrolled"
	ParticipantStepEntered    EventType = "journey.participant.step_entered"
	ParticipantCompletedEvent EventType = "journey.participant.completed"
)

type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	JourneyID     int64     `json:"journey_id"`
	ParticipantID int64     `json:"participant_id"`
	LeadID        int64     `json:"lead_id"`
}

func newBase(eventType EventType, participant *models.Participant, at time.Time) BaseEvent {
	return BaseEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		Timestamp:     at,
		JourneyID:     participant.JourneyID,
		ParticipantID: participant.ID,
		LeadID:        participant.LeadID,
	}
}

// ParticipantEnrolled is published once the entry step has been assigned.
type ParticipantEnrolled struct {
	BaseEvent

	EntryStepID int64 `json:"entry_step_id"`
}

func (ParticipantEnrolled) GetType() EventType {
	return ParticipantEnrolledEvent
}

func NewParticipantEnrolled(participant *models.Participant, entryStepID int64, at time.Time) *ParticipantEnrolled {
	return &ParticipantEnrolled{
		BaseEvent:   newBase(ParticipantEnrolledEvent, participant, at),
		EntryStepID: entryStepID,
	}
}

// StepEntered is published for every committed transition.
type StepEntered struct {
	BaseEvent

	FromStepID   int64           `json:"from_step_id"`
	StepID       int64           `json:"step_id"`
	StepType     models.StepType `json:"step_type"`
	ConnectionID int64           `json:"connection_id"`
}

func (StepEntered) GetType() EventType {
	return ParticipantStepEntered
}

func NewStepEntered(
	participant *models.Participant,
	connection *models.Connection,
	stepType models.StepType,
	at time.Time,
) *StepEntered {
	return &StepEntered{
		BaseEvent:    newBase(ParticipantStepEntered, participant, at),
		FromStepID:   connection.FromStepID,
		StepID:       connection.ToStepID,
		StepType:     stepType,
		ConnectionID: connection.ID,
	}
}

// ParticipantCompleted is published when a participant reaches an end step.
type ParticipantCompleted struct {
	BaseEvent

	EndStepID       int64 `json:"end_step_id"`
	DurationSeconds int64 `json:"duration_seconds"`
}

func (ParticipantCompleted) GetType() EventType {
	return ParticipantCompletedEvent
}

func NewParticipantCompleted(participant *models.Participant, endStepID int64, at time.Time) *ParticipantCompleted {
	return &ParticipantCompleted{
		BaseEvent:       newBase(ParticipantCompletedEvent, participant, at),
		EndStepID:       endStepID,
		DurationSeconds: int64(at.Sub(participant.EnteredAt).Seconds()),
	}
}
