package web

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/metrics"
)

func RegisterRoutes(router fiber.Router, h *APIHandlers) {
	router.Get("/health", h.HealthCheck)
	router.Get("/queue/stats", h.GetQueueStats)
	router.Post("/events", h.PublishEvent)

	p := router.Group("/participants")
	p.Get("/:id/events", h.GetParticipantEvents)
	p.Post("/:id/process", h.ProcessParticipant)

	j := router.Group("/journeys")
	j.Get("/", h.GetJourneys)
	j.Get("/:id", h.GetJourney)
	j.Get("/:id/validation", h.ValidateJourney)
}

// RequestMetrics counts requests by method, route pattern and status.
func RequestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.RecordHTTPRequest(c.Method(), c.Route().Path, strconv.Itoa(status))

		return err
	}
}
