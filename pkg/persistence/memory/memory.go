// Package memory provides an in-process persistence implementation used for
// development, seeding and tests.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
)

// Persistence keeps everything in maps. Transactions are serialized and
// stage their writes until commit.
type Persistence struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	journeys     map[int64]*models.Journey
	steps        map[int64]*models.Step
	connections  map[int64][]*models.Connection
	participants map[int64]*models.Participant
	leads        map[int64]*models.Lead
	events       []*models.JourneyEvent

	nextJourneyID     int64
	nextStepID        int64
	nextConnectionID  int64
	nextParticipantID int64
	nextEventID       int64
}

func NewPersistence() *Persistence {
	return &Persistence{
		journeys:     make(map[int64]*models.Journey),
		steps:        make(map[int64]*models.Step),
		connections:  make(map[int64][]*models.Connection),
		participants: make(map[int64]*models.Participant),
		leads:        make(map[int64]*models.Lead),
	}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) WithTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	p.txMu.Lock()
	defer p.txMu.Unlock()

	transaction := &tx{
		store:        p,
		participants: make(map[int64]*models.Participant),
	}

	err := fn(ctx, transaction)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for id, participant := range transaction.participants {
		p.participants[id] = participant
	}

	p.events = append(p.events, transaction.events...)

	return nil
}

// SaveJourney stores the journey and replaces its steps and connections.
func (p *Persistence) SaveJourney(_ context.Context, journey *models.Journey) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	if journey.CreatedAt.IsZero() {
		journey.CreatedAt = now
	}

	journey.UpdatedAt = now

	if journey.ID == 0 {
		p.nextJourneyID++
		journey.ID = p.nextJourneyID
	}

	p.nextJourneyID = max(p.nextJourneyID, journey.ID)

	if previous, ok := p.journeys[journey.ID]; ok {
		for _, step := range previous.Steps {
			delete(p.steps, step.ID)
			delete(p.connections, step.ID)
		}
	}

	for _, step := range journey.Steps {
		if step.ID == 0 {
			p.nextStepID++
			step.ID = p.nextStepID
		}

		p.nextStepID = max(p.nextStepID, step.ID)
		step.JourneyID = journey.ID
		stored := *step
		p.steps[step.ID] = &stored
	}

	for _, connection := range journey.Connections {
		if connection.ID == 0 {
			p.nextConnectionID++
			connection.ID = p.nextConnectionID
		}

		p.nextConnectionID = max(p.nextConnectionID, connection.ID)
		connection.JourneyID = journey.ID
		stored := *connection
		p.connections[connection.FromStepID] = append(p.connections[connection.FromStepID], &stored)
	}

	for stepID := range p.connections {
		slices.SortStableFunc(p.connections[stepID], compareConnections)
	}

	stored := *journey
	p.journeys[journey.ID] = &stored

	return nil
}

func (p *Persistence) Journeys(_ context.Context) ([]*models.Journey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	journeys := make([]*models.Journey, 0, len(p.journeys))
	for _, id := range slices.Sorted(maps.Keys(p.journeys)) {
		journeys = append(journeys, p.copyJourney(id))
	}

	return journeys, nil
}

func (p *Persistence) CreateParticipant(_ context.Context, participant *models.Participant) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if participant.ID == 0 {
		p.nextParticipantID++
		participant.ID = p.nextParticipantID
	}

	p.nextParticipantID = max(p.nextParticipantID, participant.ID)

	if participant.Status == "" {
		participant.Status = models.ParticipantStatusActive
	}

	if participant.EnteredAt.IsZero() {
		participant.EnteredAt = time.Now().UTC()
	}

	p.participants[participant.ID] = participant.Clone()

	return nil
}

func (p *Persistence) SaveLead(_ context.Context, lead *models.Lead) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored := *lead
	p.leads[lead.ID] = &stored

	return nil
}

func (p *Persistence) JourneyByID(_ context.Context, id int64) (*models.Journey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.journeys[id]; !ok {
		return nil, persistence.NewJourneyError("JourneyByID", id, persistence.ErrJourneyNotFound)
	}

	return p.copyJourney(id), nil
}

func (p *Persistence) StepByID(_ context.Context, id int64) (*models.Step, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	step, ok := p.steps[id]
	if !ok {
		return nil, persistence.NewStepError("StepByID", 0, id, persistence.ErrStepNotFound)
	}

	stored := *step

	return &stored, nil
}

func (p *Persistence) EntryStep(_ context.Context, journeyID int64) (*models.Step, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var entry *models.Step

	for _, step := range p.steps {
		if step.JourneyID != journeyID || !step.IsEntryPoint || !step.IsActive {
			continue
		}

		if entry == nil || step.Order < entry.Order || (step.Order == entry.Order && step.ID < entry.ID) {
			entry = step
		}
	}

	if entry == nil {
		return nil, persistence.NewJourneyError("EntryStep", journeyID, persistence.ErrNoEntryStep)
	}

	stored := *entry

	return &stored, nil
}

func (p *Persistence) Connections(_ context.Context, fromStepID int64) ([]*models.Connection, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	connections := make([]*models.Connection, 0, len(p.connections[fromStepID]))

	for _, connection := range p.connections[fromStepID] {
		if !connection.IsActive {
			continue
		}

		stored := *connection
		connections = append(connections, &stored)
	}

	return connections, nil
}

func (p *Persistence) ParticipantByID(_ context.Context, id int64) (*models.Participant, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	participant, ok := p.participants[id]
	if !ok {
		return nil, persistence.NewParticipantError("ParticipantByID", id, persistence.ErrParticipantNotFound)
	}

	return participant.Clone(), nil
}

func (p *Persistence) ActiveParticipants(_ context.Context) ([]*models.Participant, error) {
	return p.filterParticipants(func(participant *models.Participant) bool {
		return participant.CurrentStepID != nil
	}, nil), nil
}

func (p *Persistence) ActiveParticipantsByLead(_ context.Context, leadID int64) ([]*models.Participant, error) {
	return p.filterParticipants(func(participant *models.Participant) bool {
		return participant.LeadID == leadID
	}, nil), nil
}

func (p *Persistence) LeadByID(_ context.Context, id int64) (*models.Lead, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lead, ok := p.leads[id]
	if !ok {
		return nil, persistence.ErrLeadNotFound
	}

	stored := *lead

	return &stored, nil
}

func (p *Persistence) LatestEvent(
	_ context.Context,
	participantID, stepID int64,
	eventType models.JourneyEventType,
) (*models.JourneyEvent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	event := latestEvent(p.events, participantID, stepID, eventType)
	if event == nil {
		return nil, persistence.ErrEventNotFound
	}

	return event, nil
}

func (p *Persistence) ParticipantEvents(_ context.Context, participantID int64) ([]*models.JourneyEvent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return participantEvents(p.events, participantID), nil
}

// filterParticipants returns active participants matching keep, with staged
// overrides applied first.
func (p *Persistence) filterParticipants(
	keep func(*models.Participant) bool,
	staged map[int64]*models.Participant,
) []*models.Participant {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.Participant, 0)

	for _, id := range slices.Sorted(maps.Keys(p.participants)) {
		participant := p.participants[id]
		if override, ok := staged[id]; ok {
			participant = override
		}

		if participant.IsActive() && keep(participant) {
			result = append(result, participant.Clone())
		}
	}

	return result
}

func (p *Persistence) copyJourney(id int64) *models.Journey {
	journey := *p.journeys[id]
	journey.Steps = make([]*models.Step, 0, len(p.journeys[id].Steps))
	journey.Connections = make([]*models.Connection, 0, len(p.journeys[id].Connections))

	for _, step := range p.journeys[id].Steps {
		stored := *p.steps[step.ID]
		journey.Steps = append(journey.Steps, &stored)
	}

	for _, connection := range p.journeys[id].Connections {
		stored := *connection
		journey.Connections = append(journey.Connections, &stored)
	}

	return &journey
}

func (p *Persistence) assignEventID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextEventID++

	return p.nextEventID
}

func compareConnections(a, b *models.Connection) int {
	return cmp.Or(cmp.Compare(a.Priority, b.Priority), cmp.Compare(a.ID, b.ID))
}

func latestEvent(events []*models.JourneyEvent, participantID, stepID int64, eventType models.JourneyEventType) *models.JourneyEvent {
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		if event.ParticipantID == participantID && event.StepID == stepID && event.EventType == eventType {
			stored := *event

			return &stored
		}
	}

	return nil
}

func participantEvents(events []*models.JourneyEvent, participantID int64) []*models.JourneyEvent {
	result := make([]*models.JourneyEvent, 0)

	for _, event := range events {
		if event.ParticipantID == participantID {
			stored := *event
			result = append(result, &stored)
		}
	}

	return result
}
