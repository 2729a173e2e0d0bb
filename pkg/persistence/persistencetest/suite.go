// Package persistencetest holds the behaviour every persistence backend must
// share, expressed as a testify suite.
package persistencetest

import (
	"context"
	"errors"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
	"github.com/stretchr/testify/suite"
)

// Suite runs against a fresh store built by NewStore before every test.
type Suite struct {
	suite.Suite

	NewStore func() persistence.Persistence

	ctx   context.Context
	store persistence.Persistence
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
}

func (s *Suite) TearDownTest() {
	s.NoError(s.store.Close(s.ctx))
}

// SampleJourney is a three step journey: 10 (email, entry) -> 20 (wait) -> 30 (end).
func SampleJourney() *models.Journey {
	return &models.Journey{
		ID:       1,
		Name:     "Welcome series",
		IsActive: true,
		Steps: []*models.Step{
			{ID: 10, Name: "Welcome", Order: 1, Type: models.StepTypeEmail, IsEntryPoint: true, IsActive: true, Config: map[string]any{"content": "Hi"}},
			{ID: 20, Name: "Pause", Order: 2, Type: models.StepTypeWait, IsActive: true},
			{ID: 30, Name: "Done", Order: 3, Type: models.StepTypeEnd, IsActive: true},
			{ID: 40, Name: "Old entry", Order: 0, Type: models.StepTypeSMS, IsEntryPoint: true, IsActive: false},
		},
		Connections: []*models.Connection{
			{ID: 100, FromStepID: 10, ToStepID: 20, Priority: 2, IsActive: true, Trigger: models.ImmediateTrigger{}},
			{ID: 101, FromStepID: 10, ToStepID: 30, Priority: 1, IsActive: true, Trigger: models.EventTrigger{Name: "unsubscribed"}},
			{ID: 102, FromStepID: 10, ToStepID: 30, Priority: 0, IsActive: false, Trigger: models.ManualTrigger{}},
			{ID: 103, FromStepID: 20, ToStepID: 30, Priority: 1, IsActive: true, Trigger: models.DelayTrigger{Duration: 1, Unit: models.DelayUnitMinutes}},
		},
	}
}

func (s *Suite) seed() *models.Participant {
	s.Require().NoError(s.store.SaveJourney(s.ctx, SampleJourney()))
	s.Require().NoError(s.store.SaveLead(s.ctx, &models.Lead{ID: 7, Status: "active", Email: "lead@example.com"}))

	participant := &models.Participant{JourneyID: 1, LeadID: 7, Status: models.ParticipantStatusActive}
	s.Require().NoError(s.store.CreateParticipant(s.ctx, participant))
	s.Require().NotZero(participant.ID)

	return participant
}

func (s *Suite) TestJourneyGraphQueries() {
	s.seed()

	journey, err := s.store.JourneyByID(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("Welcome series", journey.Name)
	s.Len(journey.Steps, 4)

	entry, err := s.store.EntryStep(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(int64(10), entry.ID)

	connections, err := s.store.Connections(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(connections, 2)
	s.Equal(int64(101), connections[0].ID)
	s.Equal(int64(100), connections[1].ID)
	s.Equal(models.EventTrigger{Name: "unsubscribed"}, connections[0].Trigger)

	delays, err := s.store.Connections(s.ctx, 20)
	s.Require().NoError(err)
	s.Require().Len(delays, 1)
	s.Equal(models.DelayTrigger{Duration: 1, Unit: models.DelayUnitMinutes}, delays[0].Trigger)

	journeys, err := s.store.Journeys(s.ctx)
	s.Require().NoError(err)
	s.Len(journeys, 1)
}

func (s *Suite) TestNotFound() {
	_, err := s.store.JourneyByID(s.ctx, 99)
	s.ErrorIs(err, persistence.ErrJourneyNotFound)

	_, err = s.store.StepByID(s.ctx, 99)
	s.ErrorIs(err, persistence.ErrStepNotFound)

	_, err = s.store.EntryStep(s.ctx, 99)
	s.ErrorIs(err, persistence.ErrNoEntryStep)

	_, err = s.store.ParticipantByID(s.ctx, 99)
	s.ErrorIs(err, persistence.ErrParticipantNotFound)

	_, err = s.store.LeadByID(s.ctx, 99)
	s.ErrorIs(err, persistence.ErrLeadNotFound)

	_, err = s.store.LatestEvent(s.ctx, 99, 10, models.EventEnterStep)
	s.ErrorIs(err, persistence.ErrEventNotFound)
}

func (s *Suite) TestTransactionCommit() {
	participant := s.seed()
	step := int64(10)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := s.store.WithTx(s.ctx, func(ctx context.Context, tx persistence.Tx) error {
		participant.CurrentStepID = &step

		err := tx.UpdateParticipant(ctx, participant)
		if err != nil {
			return err
		}

		err = tx.AppendEvent(ctx, &models.JourneyEvent{
			ParticipantID: participant.ID,
			StepID:        step,
			EventType:     models.EventEnterStep,
			Timestamp:     at,
			Metadata:      map[string]any{"entry": true},
		})
		if err != nil {
			return err
		}

		staged, err := tx.ParticipantByID(ctx, participant.ID)
		if err != nil {
			return err
		}

		s.True(staged.AtStep(10))

		active, err := tx.ActiveParticipants(ctx)
		if err != nil {
			return err
		}

		s.Len(active, 1)

		_, err = tx.LatestEvent(ctx, participant.ID, step, models.EventEnterStep)

		return err
	})
	s.Require().NoError(err)

	stored, err := s.store.ParticipantByID(s.ctx, participant.ID)
	s.Require().NoError(err)
	s.True(stored.AtStep(10))
	s.Equal(int64(1), stored.Version)

	event, err := s.store.LatestEvent(s.ctx, participant.ID, step, models.EventEnterStep)
	s.Require().NoError(err)
	s.True(event.Timestamp.Equal(at))
	s.Equal(true, event.Metadata["entry"])

	byLead, err := s.store.ActiveParticipantsByLead(s.ctx, 7)
	s.Require().NoError(err)
	s.Len(byLead, 1)
}

func (s *Suite) TestTransactionRollback() {
	participant := s.seed()
	step := int64(10)
	boom := errors.New("boom")

	err := s.store.WithTx(s.ctx, func(ctx context.Context, tx persistence.Tx) error {
		err := tx.AppendEvent(ctx, &models.JourneyEvent{ParticipantID: participant.ID, StepID: step, EventType: models.EventExitStep})
		if err != nil {
			return err
		}

		participant.CurrentStepID = &step

		err = tx.UpdateParticipant(ctx, participant)
		if err != nil {
			return err
		}

		return boom
	})
	s.Require().ErrorIs(err, boom)

	stored, err := s.store.ParticipantByID(s.ctx, participant.ID)
	s.Require().NoError(err)
	s.Nil(stored.CurrentStepID)
	s.Equal(int64(0), stored.Version)

	events, err := s.store.ParticipantEvents(s.ctx, participant.ID)
	s.Require().NoError(err)
	s.Empty(events)

	active, err := s.store.ActiveParticipants(s.ctx)
	s.Require().NoError(err)
	s.Empty(active)
}

func (s *Suite) TestStaleParticipant() {
	participant := s.seed()
	stale := participant.Clone()
	step := int64(10)

	err := s.store.WithTx(s.ctx, func(ctx context.Context, tx persistence.Tx) error {
		participant.CurrentStepID = &step

		return tx.UpdateParticipant(ctx, participant)
	})
	s.Require().NoError(err)

	err = s.store.WithTx(s.ctx, func(ctx context.Context, tx persistence.Tx) error {
		other := int64(20)
		stale.CurrentStepID = &other

		return tx.UpdateParticipant(ctx, stale)
	})
	s.Require().ErrorIs(err, persistence.ErrStaleParticipant)

	stored, err := s.store.ParticipantByID(s.ctx, participant.ID)
	s.Require().NoError(err)
	s.True(stored.AtStep(10))
}

func (s *Suite) TestLatestEventOrdering() {
	participant := s.seed()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.store.WithTx(s.ctx, func(ctx context.Context, tx persistence.Tx) error {
		for i := range 3 {
			err := tx.AppendEvent(ctx, &models.JourneyEvent{
				ParticipantID: participant.ID,
				StepID:        20,
				EventType:     models.EventEnterStep,
				Timestamp:     base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	s.Require().NoError(err)

	event, err := s.store.LatestEvent(s.ctx, participant.ID, 20, models.EventEnterStep)
	s.Require().NoError(err)
	s.True(event.Timestamp.Equal(base.Add(2 * time.Minute)))

	events, err := s.store.ParticipantEvents(s.ctx, participant.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Less(events[0].ID, events[1].ID)
	s.Less(events[1].ID, events[2].ID)
}

func (s *Suite) TestSaveJourneyReplacesGraph() {
	s.seed()

	journey := SampleJourney()
	journey.Connections = journey.Connections[:1]
	journey.Steps = journey.Steps[:2]
	s.Require().NoError(s.store.SaveJourney(s.ctx, journey))

	connections, err := s.store.Connections(s.ctx, 20)
	s.Require().NoError(err)
	s.Empty(connections)

	_, err = s.store.StepByID(s.ctx, 30)
	s.ErrorIs(err, persistence.ErrStepNotFound)
}
