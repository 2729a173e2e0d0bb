package memory

import (
	"context"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
)

// tx stages participant writes and appended events until commit.
type tx struct {
	store        *Persistence
	participants map[int64]*models.Participant
	events       []*models.JourneyEvent
}

func (t *tx) AppendEvent(_ context.Context, event *models.JourneyEvent) error {
	event.ID = t.store.assignEventID()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	stored := *event
	t.events = append(t.events, &stored)

	return nil
}

func (t *tx) UpdateParticipant(ctx context.Context, participant *models.Participant) error {
	current, err := t.ParticipantByID(ctx, participant.ID)
	if err != nil {
		return persistence.NewParticipantError("UpdateParticipant", participant.ID, persistence.ErrParticipantNotFound)
	}

	if current.Version != participant.Version {
		return persistence.NewParticipantError("UpdateParticipant", participant.ID, persistence.ErrStaleParticipant)
	}

	participant.Version++
	t.participants[participant.ID] = participant.Clone()

	return nil
}

func (t *tx) JourneyByID(ctx context.Context, id int64) (*models.Journey, error) {
	return t.store.JourneyByID(ctx, id)
}

func (t *tx) StepByID(ctx context.Context, id int64) (*models.Step, error) {
	return t.store.StepByID(ctx, id)
}

func (t *tx) EntryStep(ctx context.Context, journeyID int64) (*models.Step, error) {
	return t.store.EntryStep(ctx, journeyID)
}

func (t *tx) Connections(ctx context.Context, fromStepID int64) ([]*models.Connection, error) {
	return t.store.Connections(ctx, fromStepID)
}

func (t *tx) LeadByID(ctx context.Context, id int64) (*models.Lead, error) {
	return t.store.LeadByID(ctx, id)
}

func (t *tx) ParticipantByID(ctx context.Context, id int64) (*models.Participant, error) {
	if staged, ok := t.participants[id]; ok {
		return staged.Clone(), nil
	}

	return t.store.ParticipantByID(ctx, id)
}

func (t *tx) ActiveParticipants(_ context.Context) ([]*models.Participant, error) {
	return t.store.filterParticipants(func(participant *models.Participant) bool {
		return participant.CurrentStepID != nil
	}, t.participants), nil
}

func (t *tx) ActiveParticipantsByLead(_ context.Context, leadID int64) ([]*models.Participant, error) {
	return t.store.filterParticipants(func(participant *models.Participant) bool {
		return participant.LeadID == leadID
	}, t.participants), nil
}

func (t *tx) LatestEvent(
	ctx context.Context,
	participantID, stepID int64,
	eventType models.JourneyEventType,
) (*models.JourneyEvent, error) {
	if event := latestEvent(t.events, participantID, stepID, eventType); event != nil {
		return event, nil
	}

	return t.store.LatestEvent(ctx, participantID, stepID, eventType)
}

func (t *tx) ParticipantEvents(ctx context.Context, participantID int64) ([]*models.JourneyEvent, error) {
	committed, err := t.store.ParticipantEvents(ctx, participantID)
	if err != nil {
		return nil, err
	}

	return append(committed, participantEvents(t.events, participantID)...), nil
}
