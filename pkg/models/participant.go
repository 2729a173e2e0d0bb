package models

import "time"

type ParticipantStatus string

const (
	ParticipantStatusActive    ParticipantStatus = "active"
	ParticipantStatusCompleted ParticipantStatus = "completed"
	ParticipantStatusExited    ParticipantStatus = "exited"
	ParticipantStatusPaused    ParticipantStatus = "paused"
	ParticipantStatusOptedOut  ParticipantStatus = "opted_out"
)

// Participant is a lead's enrollment in a journey. Version is bumped on every
// successful write and guards concurrent transitions.
type Participant struct {
	ID            int64             `json:"id"`
	JourneyID     int64             `json:"journey_id"      validate:"required"`
	LeadID        int64             `json:"lead_id"         validate:"required"`
	CurrentStepID *int64            `json:"current_step_id"`
	Status        ParticipantStatus `json:"status"          validate:"required,oneof=active completed exited paused opted_out"`
	Version       int64             `json:"version"`
	EnteredAt     time.Time         `json:"entered_at"`
	LastEventAt   *time.Time        `json:"last_event_at,omitempty"`
	ExitedAt      *time.Time        `json:"exited_at,omitempty"`
}

func (p *Participant) IsActive() bool {
	return p.Status == ParticipantStatusActive
}

// AtStep reports whether the participant currently sits on stepID.
func (p *Participant) AtStep(stepID int64) bool {
	return p.CurrentStepID != nil && *p.CurrentStepID == stepID
}

// Clone returns a deep copy.
func (p *Participant) Clone() *Participant {
	clone := *p
	clone.CurrentStepID = cloneInt64(p.CurrentStepID)
	clone.LastEventAt = cloneTime(p.LastEventAt)
	clone.ExitedAt = cloneTime(p.ExitedAt)

	return &clone
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}
