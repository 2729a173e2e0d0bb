// Package persistence defines the storage contract for journeys, participants
// and the journey audit log.
package persistence

import (
	"context"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
)

// Reader is the query side shared by the store and its transactions.
type Reader interface {
	JourneyByID(ctx context.Context, id int64) (*models.Journey, error)
	StepByID(ctx context.Context, id int64) (*models.Step, error)
	// EntryStep returns the first active entry-point step of a journey by order.
	EntryStep(ctx context.Context, journeyID int64) (*models.Step, error)
	// Connections returns the active outgoing connections of a step ordered by
	// ascending priority, then id.
	Connections(ctx context.Context, fromStepID int64) ([]*models.Connection, error)

	ParticipantByID(ctx context.Context, id int64) (*models.Participant, error)
	// ActiveParticipants returns active participants with a current step.
	ActiveParticipants(ctx context.Context) ([]*models.Participant, error)
	ActiveParticipantsByLead(ctx context.Context, leadID int64) ([]*models.Participant, error)

	LeadByID(ctx context.Context, id int64) (*models.Lead, error)

	// LatestEvent returns the most recent event of the given type written for
	// the participant on the step, or ErrEventNotFound.
	LatestEvent(ctx context.Context, participantID, stepID int64, eventType models.JourneyEventType) (*models.JourneyEvent, error)
	ParticipantEvents(ctx context.Context, participantID int64) ([]*models.JourneyEvent, error)
}

// Tx is a unit of work. Writes become visible to other readers only when the
// enclosing WithTx call returns nil.
type Tx interface {
	Reader

	AppendEvent(ctx context.Context, event *models.JourneyEvent) error
	// UpdateParticipant persists the participant if its stored version still
	// equals participant.Version, then increments participant.Version. A
	// mismatch returns ErrStaleParticipant.
	UpdateParticipant(ctx context.Context, participant *models.Participant) error
}

type Persistence interface {
	Reader

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	SaveJourney(ctx context.Context, journey *models.Journey) error
	Journeys(ctx context.Context) ([]*models.Journey, error)
	CreateParticipant(ctx context.Context, participant *models.Participant) error
	SaveLead(ctx context.Context, lead *models.Lead) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
