package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/journey"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleProcessingError maps store, processor and queue errors to problems.
func handleProcessingError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, persistence.ErrParticipantNotFound):
		return notFound(c, "participant not found")

	case persistence.IsNotFound(err):
		return notFound(c, err.Error())

	case errors.Is(err, journey.ErrNoEntryPoint),
		errors.Is(err, journey.ErrStepInactive),
		errors.Is(err, journey.ErrTransitionLimit):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("journey_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case errors.Is(err, queue.ErrInvalidDelay):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
