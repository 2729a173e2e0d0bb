// Package web provides the operations API of the journey engine: health, queue
// statistics, participant audit trails and event publishing.
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/journey"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/stepconfig"
)

// ParticipantProcessor is satisfied by *journey.Processor.
type ParticipantProcessor interface {
	ProcessParticipant(ctx context.Context, participantID int64) error
}

type APIHandlers struct {
	store         persistence.Persistence
	queue         queue.Queue
	processor     ParticipantProcessor
	validator     *validator.Validate
	stepValidator *stepconfig.Validator
}

func NewAPIHandlers(
	store persistence.Persistence,
	q queue.Queue,
	processor ParticipantProcessor,
	validator *validator.Validate,
	stepValidator *stepconfig.Validator,
) *APIHandlers {
	return &APIHandlers{
		store:         store,
		queue:         q,
		processor:     processor,
		validator:     validator,
		stepValidator: stepValidator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeCheck, storeOk := "ok", true

	err := h.store.HealthCheck(c.Context())
	if err != nil {
		storeCheck, storeOk = err.Error(), false
	}

	queueCheck, queueOk := "ok", true

	_, err = h.queue.Stats(c.Context())
	if err != nil {
		queueCheck, queueOk = err.Error(), false
	}

	status := "unhealthy"
	message := "Journey API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if storeOk && queueOk {
		status = "healthy"
		message = "Journey API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
			"queue": queueCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetQueueStats(c fiber.Ctx) error {
	stats, err := h.queue.Stats(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(NewQueueStatsResponse(stats))
}

func (h *APIHandlers) GetParticipantEvents(c fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, "Participant ID must be a positive integer")
	}

	participant, err := h.store.ParticipantByID(c.Context(), id)
	if err != nil {
		return handleProcessingError(c, err)
	}

	journeyEvents, err := h.store.ParticipantEvents(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(ParticipantEventsResponse{Participant: participant, Events: journeyEvents})
}

// ProcessParticipant assigns the entry step of a new participant, or
// re-dispatches the current step, and returns the resulting state.
func (h *APIHandlers) ProcessParticipant(c fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, "Participant ID must be a positive integer")
	}

	err = h.processor.ProcessParticipant(c.Context(), id)
	if err != nil {
		return handleProcessingError(c, err)
	}

	participant, err := h.store.ParticipantByID(c.Context(), id)
	if err != nil {
		return handleProcessingError(c, err)
	}

	return c.JSON(participant)
}

func (h *APIHandlers) PublishEvent(c fiber.Ctx) error {
	var req PublishEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	messageID, err := queue.PublishEvent(c.Context(), h.queue, req.EventType, req.Data,
		time.Duration(req.DelaySeconds)*time.Second)
	if err != nil {
		return handleProcessingError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(PublishEventResponse{MessageID: messageID})
}

func (h *APIHandlers) GetJourneys(c fiber.Ctx) error {
	journeys, err := h.store.Journeys(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"journeys":    journeys,
		"total_count": len(journeys),
	})
}

func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, "Journey ID must be a positive integer")
	}

	j, err := h.store.JourneyByID(c.Context(), id)
	if err != nil {
		return handleProcessingError(c, err)
	}

	return c.JSON(j)
}

// ValidateJourney runs the graph and step configuration checks on a stored
// journey.
func (h *APIHandlers) ValidateJourney(c fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, "Journey ID must be a positive integer")
	}

	j, err := h.store.JourneyByID(c.Context(), id)
	if err != nil {
		return handleProcessingError(c, err)
	}

	problems := problemList(journey.ValidateGraph(j, h.stepValidator))

	return c.JSON(JourneyValidationResponse{
		JourneyID: id,
		Valid:     len(problems) == 0,
		Problems:  problems,
	})
}

func idParam(c fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, err
	}

	if id <= 0 {
		return 0, strconv.ErrRange
	}

	return id, nil
}

func problemList(err error) []string {
	if err == nil {
		return []string{}
	}

	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return []string{err.Error()}
	}

	problems := make([]string, 0, len(joined.Unwrap()))
	for _, e := range joined.Unwrap() {
		problems = append(problems, e.Error())
	}

	return problems
}
