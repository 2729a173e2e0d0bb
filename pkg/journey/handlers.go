package journey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/delivery"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/events"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/stepconfig"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/template"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// dispatch runs the handler for the step's type.
func (p *Processor) dispatch(ctx context.Context, r *run, step *models.Step) (StepResult, error) {
	var (
		result StepResult
		err    error
	)

	switch step.Type {
	case models.StepTypeEmail, models.StepTypeSMS, models.StepTypeVoice, models.StepTypeChat:
		result, err = p.handleMessage(ctx, r, step)
	case models.StepTypeWait:
		result, err = p.handleWait(ctx, r, step)
	case models.StepTypeValidate:
		result, err = p.handleValidate(ctx, r, step)
	case models.StepTypeGoal:
		result, err = p.handleGoal(ctx, r, step)
	case models.StepTypeWebhook:
		result, err = p.handleWebhook(ctx, r, step)
	case models.StepTypeEnd:
		result, err = p.handleEnd(ctx, r, step)
	default:
		return StepResult{}, fmt.Errorf("%w: %q", models.ErrUnknownStepType, step.Type)
	}

	if err != nil {
		return StepResult{}, err
	}

	outcome := outcomeSuccess
	if !result.Success {
		outcome = outcomeFailure
	}

	p.metrics.RecordStepDispatch(string(step.Type), outcome)

	return result, nil
}

func (p *Processor) handleMessage(ctx context.Context, r *run, step *models.Step) (StepResult, error) {
	done, err := p.alreadyDone(ctx, r, step.ID, models.EventActionSent)
	if err != nil || done {
		return StepResult{Success: true, TransitionImmediately: true}, err
	}

	err = p.validator.Validate(step)
	if err != nil {
		return p.configError(ctx, r, step, err)
	}

	var cfg stepconfig.Message

	err = stepconfig.Decode(step.Config, &cfg)
	if err != nil {
		return p.configError(ctx, r, step, err)
	}

	lead, err := p.lead(ctx, r)
	if err != nil {
		return StepResult{}, err
	}

	address := ""
	if lead != nil {
		address = lead.Address(step.Type)
	}

	if address == "" {
		p.logger.WarnContext(ctx, "lead has no address for channel",
			"participant_id", r.participant.ID,
			"step_id", step.ID,
			"channel", step.Type,
		)

		err = p.record(ctx, r, step.ID, models.EventError, map[string]any{
			"reason":  "missing_address",
			"channel": string(step.Type),
		})

		return StepResult{Success: false, TransitionImmediately: true}, err
	}

	data := template.Data(lead, r.participant, step)

	content, err := template.RenderString(cfg.Content, data)
	if err != nil {
		return p.configError(ctx, r, step, err)
	}

	subject, err := template.RenderString(cfg.Subject, data)
	if err != nil {
		return p.configError(ctx, r, step, err)
	}

	templateID := cfg.TemplateID
	if step.TemplateID != nil {
		templateID = *step.TemplateID
	}

	receipt, err := p.deliverer.Deliver(ctx, delivery.Message{
		Channel:       step.Type,
		To:            address,
		Subject:       subject,
		Content:       content,
		TemplateID:    templateID,
		ParticipantID: r.participant.ID,
		LeadID:        r.participant.LeadID,
		StepID:        step.ID,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "message delivery failed",
			"participant_id", r.participant.ID,
			"step_id", step.ID,
			"error", err,
		)

		err = p.record(ctx, r, step.ID, models.EventError, map[string]any{
			"reason": "delivery_failed",
			"error":  err.Error(),
		})

		return StepResult{}, err
	}

	metadata := map[string]any{
		"channel":             string(step.Type),
		"to":                  address,
		"provider_message_id": receipt.ProviderMessageID,
	}
	if templateID != nil {
		metadata["template_id"] = templateID
	}

	err = p.record(ctx, r, step.ID, models.EventActionSent, metadata)

	return StepResult{Success: true, TransitionImmediately: true}, err
}

func (p *Processor) handleWait(ctx context.Context, r *run, step *models.Step) (StepResult, error) {
	done, err := p.alreadyDone(ctx, r, step.ID, models.EventDelayStarted)
	if err != nil || done {
		return StepResult{Success: true}, err
	}

	connections, err := r.tx.Connections(ctx, step.ID)
	if err != nil {
		return StepResult{}, err
	}

	delays := make([]string, 0)

	for _, connection := range connections {
		if delay, ok := connection.Trigger.(models.DelayTrigger); ok {
			delays = append(delays, delay.Display())
		}
	}

	metadata := maps.Clone(step.Config)
	if metadata == nil {
		metadata = map[string]any{}
	}

	metadata["delays"] = delays

	err = p.record(ctx, r, step.ID, models.EventDelayStarted, metadata)

	return StepResult{Success: true}, err
}

// handleValidate evaluates the step condition and picks the branch itself:
// the connection labelled true/yes or false/no, else the first unlabelled one
// the processor can decide on.
func (p *Processor) handleValidate(ctx context.Context, r *run, step *models.Step) (StepResult, error) {
	spec, err := stepconfig.Condition(step.Config)
	if err != nil {
		return p.configError(ctx, r, step, err)
	}

	lead, err := p.lead(ctx, r)
	if err != nil {
		return StepResult{}, err
	}

	met := p.evaluator.Evaluate(entity(lead), spec)

	eventType := models.EventConditionNotMet
	labels := []string{"false", "no"}

	if met {
		eventType = models.EventConditionMet
		labels = []string{"true", "yes"}
	}

	err = p.record(ctx, r, step.ID, eventType, map[string]any{
		"field":    spec.Field,
		"operator": spec.Operator,
	})
	if err != nil {
		return StepResult{}, err
	}

	connections, err := r.tx.Connections(ctx, step.ID)
	if err != nil {
		return StepResult{}, err
	}

	for _, connection := range connections {
		label := connection.Label()
		if label == labels[0] || label == labels[1] {
			return StepResult{Success: true, Next: connection}, nil
		}
	}

	for _, connection := range connections {
		if connection.Label() != "" {
			continue
		}

		ok, err := p.selfTriggered(ctx, r, step, connection)
		if err != nil {
			return StepResult{}, err
		}

		if ok {
			return StepResult{Success: true, Next: connection}, nil
		}
	}

	return StepResult{Success: true}, nil
}

func (p *Processor) handleGoal(ctx context.Context, r *run, step *models.Step) (StepResult, error) {
	done, err := p.alreadyDone(ctx, r, step.ID, models.EventGoalAchieved)
	if err != nil || done {
		return StepResult{Success: true, TransitionImmediately: true}, err
	}

	var cfg stepconfig.Goal

	err = stepconfig.Decode(step.Config, &cfg)
	if err != nil {
		return p.configError(ctx, r, step, err)
	}

	err = p.record(ctx, r, step.ID, models.EventGoalAchieved, map[string]any{
		"goal_type":  cfg.GoalType,
		"goal_value": cfg.GoalValue,
	})

	return StepResult{Success: true, TransitionImmediately: true}, err
}

func (p *Processor) handleWebhook(ctx context.Context, r *run, step *models.Step) (StepResult, error) {
	done, err := p.alreadyDone(ctx, r, step.ID, models.EventActionSent)
	if err != nil || done {
		return StepResult{Success: true, TransitionImmediately: true}, err
	}

	var cfg stepconfig.Webhook

	err = stepconfig.Decode(step.Config, &cfg)
	if err != nil {
		return p.configError(ctx, r, step, err)
	}

	if cfg.URL == "" {
		err = p.record(ctx, r, step.ID, models.EventError, map[string]any{
			"reason": "missing_url",
		})

		return StepResult{Success: false, TransitionImmediately: true}, err
	}

	err = p.validator.Validate(step)
	if err != nil {
		return p.configError(ctx, r, step, err)
	}

	lead, err := p.lead(ctx, r)
	if err != nil {
		return StepResult{}, err
	}

	body, err := p.webhookBody(cfg, lead, r.participant, step)
	if err != nil {
		return p.configError(ctx, r, step, err)
	}

	response, err := p.webhooks.Call(ctx, delivery.WebhookRequest{
		URL:     cfg.URL,
		Method:  cfg.Method,
		Headers: cfg.Headers,
		Body:    body,
		Retry: delivery.RetryConfig{
			Attempts: cfg.Retry.Attempts,
			Delay:    time.Duration(cfg.Retry.Delay) * time.Second,
		},
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "webhook call failed",
			"participant_id", r.participant.ID,
			"step_id", step.ID,
			"error", err,
		)

		err = p.record(ctx, r, step.ID, models.EventError, map[string]any{
			"reason":      "webhook_failed",
			"status_code": response.StatusCode,
			"error":       err.Error(),
		})

		return StepResult{}, err
	}

	err = p.record(ctx, r, step.ID, models.EventActionSent, map[string]any{
		"channel":     string(models.StepTypeWebhook),
		"url":         cfg.URL,
		"status_code": response.StatusCode,
	})

	return StepResult{Success: true, TransitionImmediately: true}, err
}

func (p *Processor) webhookBody(
	cfg stepconfig.Webhook,
	lead *models.Lead,
	participant *models.Participant,
	step *models.Step,
) (string, error) {
	data := template.Data(lead, participant, step)

	if cfg.Body != "" {
		return template.RenderString(cfg.Body, data)
	}

	payload := map[string]any{
		"participant_id": participant.ID,
		"journey_id":     participant.JourneyID,
		"lead_id":        participant.LeadID,
		"step_id":        step.ID,
		"lead":           data["lead"],
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	return string(body), nil
}

// handleEnd completes the participant. The current step stays on the end step.
func (p *Processor) handleEnd(ctx context.Context, r *run, step *models.Step) (StepResult, error) {
	now := p.now()
	r.participant.Status = models.ParticipantStatusCompleted
	r.participant.ExitedAt = &now
	r.participant.LastEventAt = &now

	err := r.tx.UpdateParticipant(ctx, r.participant)
	if err != nil {
		return StepResult{}, err
	}

	err = p.record(ctx, r, step.ID, models.EventExitJourney, map[string]any{
		"duration_seconds": int64(now.Sub(r.participant.EnteredAt).Seconds()),
	})
	if err != nil {
		return StepResult{}, err
	}

	r.notify(events.NewParticipantCompleted(r.participant, step.ID, now))

	p.logger.InfoContext(ctx, "participant completed journey",
		"participant_id", r.participant.ID,
		"journey_id", r.participant.JourneyID,
		"step_id", step.ID,
	)

	return StepResult{Success: true}, nil
}

// configError records a configuration problem. The participant stays put.
func (p *Processor) configError(ctx context.Context, r *run, step *models.Step, cause error) (StepResult, error) {
	p.logger.ErrorContext(ctx, "invalid step configuration",
		"participant_id", r.participant.ID,
		"step_id", step.ID,
		"step_type", step.Type,
		"error", cause,
	)

	err := p.record(ctx, r, step.ID, models.EventError, map[string]any{
		"reason": "configuration",
		"error":  cause.Error(),
	})

	return StepResult{}, err
}

// alreadyDone reports whether eventType was written for stepID after the
// participant's latest entry into it. Event ids order writes.
func (p *Processor) alreadyDone(ctx context.Context, r *run, stepID int64, eventType models.JourneyEventType) (bool, error) {
	entered, err := p.latestEntry(ctx, r, stepID)
	if err != nil || entered == nil {
		return false, err
	}

	done, err := r.tx.LatestEvent(ctx, r.participant.ID, stepID, eventType)
	if err != nil {
		if errors.Is(err, persistence.ErrEventNotFound) {
			return false, nil
		}

		return false, err
	}

	return done.ID > entered.ID, nil
}
