// Package journey moves participants through journey graphs: entry-point
// assignment, step dispatch, connection selection and atomic transitions.
package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/condition"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/delivery"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/eventbus"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/events"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/metrics"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/otelhelper"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/stepconfig"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxImmediateHops bounds the transitions a single call may chain.
const DefaultMaxImmediateHops = 25

var (
	ErrNoEntryPoint    = errors.New("journey has no active entry point")
	ErrTransitionLimit = errors.New("immediate transition limit exceeded")
	ErrStepInactive    = errors.New("target step is inactive")
)

// StepResult is what a step handler reports back to the processor. Next, when
// set, is the connection the handler already chose.
type StepResult struct {
	Success               bool
	TransitionImmediately bool
	Next                  *models.Connection
}

type Option func(*Processor)

func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

func WithMaxImmediateHops(hops int) Option {
	return func(p *Processor) {
		if hops > 0 {
			p.maxHops = hops
		}
	}
}

func WithWebhookCaller(caller delivery.WebhookCaller) Option {
	return func(p *Processor) {
		p.webhooks = caller
	}
}

// WithPublisher sends lifecycle notifications after each commit.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(p *Processor) {
		p.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) {
		p.tracer = tracer
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// Processor is safe for concurrent use. Every operation runs each
// participant in its own store transaction.
type Processor struct {
	store     persistence.Persistence
	deliverer delivery.Deliverer
	webhooks  delivery.WebhookCaller
	evaluator *condition.Evaluator
	validator *stepconfig.Validator
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	maxHops   int
}

func NewProcessor(
	store persistence.Persistence,
	deliverer delivery.Deliverer,
	logger *slog.Logger,
	options ...Option,
) (*Processor, error) {
	validator, err := stepconfig.NewValidator()
	if err != nil {
		return nil, err
	}

	p := &Processor{
		store:     store,
		deliverer: deliverer,
		validator: validator,
		publisher: eventbus.Noop{},
		tracer:    otel.Tracer("journeys"),
		logger:    logger.With("module", "journey_processor"),
		now:       func() time.Time { return time.Now().UTC() },
		maxHops:   DefaultMaxImmediateHops,
	}

	for _, option := range options {
		option(p)
	}

	if p.webhooks == nil {
		p.webhooks = delivery.NewHTTPWebhookCaller(logger, 0)
	}

	p.evaluator = condition.NewEvaluator(logger, condition.WithClock(p.now))

	return p, nil
}

// run carries the state of one participant's unit of work.
type run struct {
	tx          persistence.Tx
	participant *models.Participant

	lead       *models.Lead
	leadLoaded bool

	hops          int
	triggers      []models.TriggerType
	notifications []eventbus.Event
}

func (r *run) notify(event eventbus.Event) {
	r.notifications = append(r.notifications, event)
}

// ProcessParticipant assigns the entry step to a newly enrolled participant
// and dispatches it, or re-dispatches the current step otherwise.
func (p *Processor) ProcessParticipant(ctx context.Context, participantID int64) error {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "journey.process_participant",
		attribute.Int64(otelhelper.ParticipantIDKey, participantID),
	)
	defer span.End()

	_, err := p.inTx(ctx, participantID, func(ctx context.Context, r *run) (bool, error) {
		if r.participant.CurrentStepID == nil {
			return true, p.enter(ctx, r)
		}

		step, err := r.tx.StepByID(ctx, *r.participant.CurrentStepID)
		if err != nil {
			return false, err
		}

		if !step.IsActive {
			p.logger.DebugContext(ctx, "current step is inactive, not dispatching",
				"participant_id", participantID,
				"step_id", step.ID,
			)

			return false, nil
		}

		return true, p.runFrom(ctx, r, step)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

// ProcessTimedConnections fires elapsed delay connections for every active
// participant and returns how many participants moved.
func (p *Processor) ProcessTimedConnections(ctx context.Context) (int, error) {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "journey.process_timed_connections")
	defer span.End()

	participants, err := p.store.ActiveParticipants(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return 0, fmt.Errorf("failed to list active participants: %w", err)
	}

	transitioned := 0

	for _, participant := range participants {
		fired, err := p.inTx(ctx, participant.ID, p.fireElapsedDelay)
		if err != nil {
			p.logger.ErrorContext(ctx, "timed transition failed",
				"participant_id", participant.ID,
				"error", err,
			)

			continue
		}

		if fired {
			transitioned++
		}
	}

	span.SetAttributes(attribute.Int("journeys.transitioned", transitioned))

	return transitioned, nil
}

// ProcessEvent routes an inbound event to the participants it targets and
// returns how many of them transitioned. Per-participant failures are joined
// into the returned error.
func (p *Processor) ProcessEvent(ctx context.Context, eventType string, data map[string]any) (int, error) {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "journey.process_event",
		attribute.String(otelhelper.EventTypeKey, eventType),
	)
	defer span.End()

	targets, err := p.eventTargets(ctx, data)
	if err != nil {
		otelhelper.SetError(span, err)

		return 0, err
	}

	var (
		transitioned int
		errs         []error
	)

	for _, participant := range targets {
		fired, err := p.inTx(ctx, participant.ID, func(ctx context.Context, r *run) (bool, error) {
			return p.fireEvent(ctx, r, eventType, data)
		})
		if err != nil {
			p.logger.ErrorContext(ctx, "event transition failed",
				"participant_id", participant.ID,
				"event_type", eventType,
				"error", err,
			)

			errs = append(errs, fmt.Errorf("participant %d: %w", participant.ID, err))

			continue
		}

		if fired {
			transitioned++
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return transitioned, err
}

// inTx loads the participant in a fresh transaction, skips inactive ones and
// runs fn. A lost optimistic race is reported as a no-op.
func (p *Processor) inTx(
	ctx context.Context,
	participantID int64,
	fn func(ctx context.Context, r *run) (bool, error),
) (bool, error) {
	var (
		done bool
		r    *run
	)

	err := p.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		participant, err := tx.ParticipantByID(ctx, participantID)
		if err != nil {
			return err
		}

		if !participant.IsActive() {
			p.logger.DebugContext(ctx, "skipping inactive participant",
				"participant_id", participantID,
				"status", participant.Status,
			)

			return nil
		}

		r = &run{tx: tx, participant: participant}

		done, err = fn(ctx, r)

		return err
	})
	if err != nil {
		if persistence.IsStaleParticipant(err) {
			p.logger.InfoContext(ctx, "participant changed concurrently, skipping",
				"participant_id", participantID,
			)

			return false, nil
		}

		return false, err
	}

	if r != nil {
		p.afterCommit(ctx, r)
	}

	return done, nil
}

func (p *Processor) afterCommit(ctx context.Context, r *run) {
	for _, triggerType := range r.triggers {
		p.metrics.RecordTransition(string(triggerType))
	}

	for _, event := range r.notifications {
		err := p.publisher.Publish(ctx, strconv.FormatInt(r.participant.ID, 10), event)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to publish lifecycle event",
				"participant_id", r.participant.ID,
				"event_type", event.GetType(),
				"error", err,
			)
		}
	}
}

// enter places the participant on the journey's entry step.
func (p *Processor) enter(ctx context.Context, r *run) error {
	entry, err := r.tx.EntryStep(ctx, r.participant.JourneyID)
	if err != nil {
		if errors.Is(err, persistence.ErrNoEntryStep) {
			return fmt.Errorf("%w: %w", ErrNoEntryPoint, err)
		}

		return err
	}

	now := p.now()
	r.participant.CurrentStepID = &entry.ID
	r.participant.LastEventAt = &now

	err = r.tx.UpdateParticipant(ctx, r.participant)
	if err != nil {
		return err
	}

	err = p.record(ctx, r, entry.ID, models.EventEnterJourney, map[string]any{
		"journey_id": r.participant.JourneyID,
	})
	if err != nil {
		return err
	}

	err = p.record(ctx, r, entry.ID, models.EventEnterStep, map[string]any{
		"entry_point": true,
	})
	if err != nil {
		return err
	}

	r.notify(events.NewParticipantEnrolled(r.participant, entry.ID, now))

	p.logger.InfoContext(ctx, "participant entered journey",
		"participant_id", r.participant.ID,
		"journey_id", r.participant.JourneyID,
		"step_id", entry.ID,
	)

	return p.runFrom(ctx, r, entry)
}

// runFrom dispatches step and keeps following the chosen connections until a
// step stops the cascade.
func (p *Processor) runFrom(ctx context.Context, r *run, step *models.Step) error {
	for {
		result, err := p.dispatch(ctx, r, step)
		if err != nil {
			return err
		}

		next := result.Next
		if next == nil && result.TransitionImmediately {
			next, err = p.selectImmediate(ctx, r, step)
			if err != nil {
				return err
			}
		}

		if next == nil {
			return nil
		}

		step, err = p.transition(ctx, r, step, next)
		if err != nil {
			return err
		}
	}
}

// transition is the atomic move: exit_step, compare-and-set of the current
// step, enter_step. The caller dispatches the returned step.
func (p *Processor) transition(
	ctx context.Context,
	r *run,
	from *models.Step,
	connection *models.Connection,
) (*models.Step, error) {
	triggerType := connection.Trigger.TriggerType()

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "journey.transition",
		attribute.Int64(otelhelper.ParticipantIDKey, r.participant.ID),
		attribute.Int64(otelhelper.ConnectionIDKey, connection.ID),
		attribute.String(otelhelper.TriggerTypeKey, string(triggerType)),
	)
	defer span.End()

	r.hops++
	if r.hops > p.maxHops {
		err := fmt.Errorf("%w: participant %d exceeded %d transitions", ErrTransitionLimit, r.participant.ID, p.maxHops)
		otelhelper.SetError(span, err)

		return nil, err
	}

	to, err := r.tx.StepByID(ctx, connection.ToStepID)
	if err != nil {
		return nil, err
	}

	if !to.IsActive {
		return nil, fmt.Errorf("%w: step %d", ErrStepInactive, to.ID)
	}

	err = p.record(ctx, r, from.ID, models.EventExitStep, map[string]any{
		"connection_id": connection.ID,
		"to_step_id":    to.ID,
		"trigger_type":  string(triggerType),
	})
	if err != nil {
		return nil, err
	}

	now := p.now()
	r.participant.CurrentStepID = &to.ID
	r.participant.LastEventAt = &now

	err = r.tx.UpdateParticipant(ctx, r.participant)
	if err != nil {
		return nil, err
	}

	err = p.record(ctx, r, to.ID, models.EventEnterStep, map[string]any{
		"connection_id": connection.ID,
		"from_step_id":  from.ID,
	})
	if err != nil {
		return nil, err
	}

	r.triggers = append(r.triggers, triggerType)
	r.notify(events.NewStepEntered(r.participant, connection, to.Type, now))

	p.logger.InfoContext(ctx, "participant transitioned",
		"participant_id", r.participant.ID,
		"from_step_id", from.ID,
		"step_id", to.ID,
		"connection_id", connection.ID,
		"trigger_type", triggerType,
	)

	return to, nil
}

func (p *Processor) fireElapsedDelay(ctx context.Context, r *run) (bool, error) {
	if r.participant.CurrentStepID == nil {
		return false, nil
	}

	step, err := r.tx.StepByID(ctx, *r.participant.CurrentStepID)
	if err != nil {
		return false, err
	}

	connections, err := r.tx.Connections(ctx, step.ID)
	if err != nil {
		return false, err
	}

	for _, connection := range connections {
		delay, ok := connection.Trigger.(models.DelayTrigger)
		if !ok {
			continue
		}

		elapsed, err := p.delayElapsed(ctx, r, step.ID, delay)
		if err != nil {
			return false, err
		}

		if !elapsed {
			continue
		}

		next, err := p.transition(ctx, r, step, connection)
		if err != nil {
			return false, err
		}

		return true, p.runFrom(ctx, r, next)
	}

	return false, nil
}

func (p *Processor) fireEvent(ctx context.Context, r *run, eventType string, data map[string]any) (bool, error) {
	if r.participant.CurrentStepID == nil {
		return false, nil
	}

	step, err := r.tx.StepByID(ctx, *r.participant.CurrentStepID)
	if err != nil {
		return false, err
	}

	connections, err := r.tx.Connections(ctx, step.ID)
	if err != nil {
		return false, err
	}

	for _, connection := range connections {
		if !matchesEvent(connection, eventType, data) {
			continue
		}

		next, err := p.transition(ctx, r, step, connection)
		if err != nil {
			return false, err
		}

		return true, p.runFrom(ctx, r, next)
	}

	return false, nil
}

func (p *Processor) eventTargets(ctx context.Context, data map[string]any) ([]*models.Participant, error) {
	if participantID, ok := Int64Value(data, "participant_id"); ok {
		participant, err := p.store.ParticipantByID(ctx, participantID)
		if err != nil {
			if persistence.IsNotFound(err) {
				p.logger.WarnContext(ctx, "event targets unknown participant", "participant_id", participantID)

				return nil, nil
			}

			return nil, err
		}

		if !participant.IsActive() {
			return nil, nil
		}

		return []*models.Participant{participant}, nil
	}

	if leadID, ok := Int64Value(data, "lead_id"); ok {
		return p.store.ActiveParticipantsByLead(ctx, leadID)
	}

	p.logger.WarnContext(ctx, "event has neither participant_id nor lead_id")

	return nil, nil
}

// selectImmediate returns the first connection the processor can decide on by
// itself: immediate, satisfied condition or elapsed delay.
func (p *Processor) selectImmediate(ctx context.Context, r *run, step *models.Step) (*models.Connection, error) {
	connections, err := r.tx.Connections(ctx, step.ID)
	if err != nil {
		return nil, err
	}

	for _, connection := range connections {
		ok, err := p.selfTriggered(ctx, r, step, connection)
		if err != nil {
			return nil, err
		}

		if ok {
			return connection, nil
		}
	}

	return nil, nil
}

func (p *Processor) selfTriggered(ctx context.Context, r *run, step *models.Step, connection *models.Connection) (bool, error) {
	switch trigger := connection.Trigger.(type) {
	case models.ImmediateTrigger:
		return true, nil
	case models.ConditionTrigger:
		lead, err := p.lead(ctx, r)
		if err != nil {
			return false, err
		}

		return p.evaluator.EvaluateTrigger(entity(lead), trigger), nil
	case models.DelayTrigger:
		return p.delayElapsed(ctx, r, step.ID, trigger)
	default:
		return false, nil
	}
}

// delayElapsed compares the time since the latest entry into stepID against
// the delay. Non-positive delays never fire.
func (p *Processor) delayElapsed(ctx context.Context, r *run, stepID int64, delay models.DelayTrigger) (bool, error) {
	seconds := delay.Seconds()
	if seconds <= 0 {
		return false, nil
	}

	entered, err := p.latestEntry(ctx, r, stepID)
	if err != nil {
		return false, err
	}

	if entered == nil {
		return false, nil
	}

	return int64(p.now().Sub(entered.Timestamp)/time.Second) >= seconds, nil
}

func (p *Processor) latestEntry(ctx context.Context, r *run, stepID int64) (*models.JourneyEvent, error) {
	for _, eventType := range []models.JourneyEventType{models.EventEnterStep, models.EventEnterJourney} {
		event, err := r.tx.LatestEvent(ctx, r.participant.ID, stepID, eventType)
		if err == nil {
			return event, nil
		}

		if !errors.Is(err, persistence.ErrEventNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

func (p *Processor) lead(ctx context.Context, r *run) (*models.Lead, error) {
	if r.leadLoaded {
		return r.lead, nil
	}

	lead, err := r.tx.LeadByID(ctx, r.participant.LeadID)
	if err != nil && !errors.Is(err, persistence.ErrLeadNotFound) {
		return nil, err
	}

	r.lead = lead
	r.leadLoaded = true

	return lead, nil
}

func (p *Processor) record(
	ctx context.Context,
	r *run,
	stepID int64,
	eventType models.JourneyEventType,
	metadata map[string]any,
) error {
	err := r.tx.AppendEvent(ctx, &models.JourneyEvent{
		ParticipantID: r.participant.ID,
		StepID:        stepID,
		EventType:     eventType,
		Timestamp:     p.now(),
		Metadata:      metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", eventType, err)
	}

	return nil
}

func matchesEvent(connection *models.Connection, eventType string, data map[string]any) bool {
	switch trigger := connection.Trigger.(type) {
	case models.EventTrigger:
		return trigger.Name == eventType
	case models.FunnelChangeTrigger:
		funnelStepID, ok := Int64Value(data, "funnel_step_id")

		return eventType == EventFunnelStepChanged && ok && funnelStepID == trigger.FunnelStepID
	case models.ManualTrigger:
		connectionID, ok := Int64Value(data, "connection_id")

		return eventType == EventManualTrigger && ok && connectionID == connection.ID
	default:
		return false
	}
}

// entity avoids handing the evaluator a typed nil.
//
//nolint:ireturn // condition.Entity is the evaluator's input contract
func entity(lead *models.Lead) condition.Entity {
	if lead == nil {
		return nil
	}

	return lead
}
