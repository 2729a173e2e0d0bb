package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrJourneyNotFound indicates a journey was not found by the given identifier.
	ErrJourneyNotFound = errors.New("journey not found")

	// ErrStepNotFound indicates a step was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrNoEntryStep indicates a journey has no active entry-point step.
	ErrNoEntryStep = errors.New("journey has no active entry step")

	// ErrParticipantNotFound indicates a participant was not found.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrLeadNotFound indicates a lead was not found.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrEventNotFound indicates no journey event matched the query.
	ErrEventNotFound = errors.New("journey event not found")

	// ErrStaleParticipant indicates the participant changed since it was read.
	ErrStaleParticipant = errors.New("participant was modified concurrently")
)

// ParticipantError wraps participant-related errors with additional context.
type ParticipantError struct {
	Op            string // Operation being performed (e.g., "ParticipantByID", "UpdateParticipant")
	ParticipantID int64
	Err           error
}

func (e *ParticipantError) Error() string {
	return fmt.Sprintf("%s operation failed for participant %d: %v", e.Op, e.ParticipantID, e.Err)
}

func (e *ParticipantError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for participant errors.
func (e *ParticipantError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewParticipantError(op string, participantID int64, err error) *ParticipantError {
	return &ParticipantError{Op: op, ParticipantID: participantID, Err: err}
}

// JourneyError wraps journey graph errors with additional context.
type JourneyError struct {
	Op        string
	JourneyID int64
	StepID    int64 // Step ID if applicable
	Err       error
}

func (e *JourneyError) Error() string {
	if e.StepID != 0 {
		return fmt.Sprintf("%s operation failed for step %d in journey %d: %v", e.Op, e.StepID, e.JourneyID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for journey %d: %v", e.Op, e.JourneyID, e.Err)
}

func (e *JourneyError) Unwrap() error {
	return e.Err
}

func (e *JourneyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewJourneyError(op string, journeyID int64, err error) *JourneyError {
	return &JourneyError{Op: op, JourneyID: journeyID, Err: err}
}

func NewStepError(op string, journeyID, stepID int64, err error) *JourneyError {
	return &JourneyError{Op: op, JourneyID: journeyID, StepID: stepID, Err: err}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJourneyNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrLeadNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsStaleParticipant checks if an error indicates a lost optimistic race.
func IsStaleParticipant(err error) bool {
	return errors.Is(err, ErrStaleParticipant)
}
