package web

import (
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
)

// PublishEventRequest is the body of POST /events.
type PublishEventRequest struct {
	EventType    string         `json:"event_type"    validate:"required"`
	Data         map[string]any `json:"data"`
	DelaySeconds int            `json:"delay_seconds" validate:"gte=0,lte=900"`
}

type PublishEventResponse struct {
	MessageID string `json:"message_id"`
}

type QueueStatsResponse struct {
	Available  int64 `json:"available"`
	InFlight   int64 `json:"in_flight"`
	Delayed    int64 `json:"delayed"`
	DeadLetter int64 `json:"dead_letter"`
	Total      int64 `json:"total"`
}

func NewQueueStatsResponse(stats queue.Stats) QueueStatsResponse {
	return QueueStatsResponse{
		Available:  stats.Available,
		InFlight:   stats.InFlight,
		Delayed:    stats.Delayed,
		DeadLetter: stats.DeadLetter,
		Total:      stats.Total(),
	}
}

// ParticipantEventsResponse is the audit trail of one participant.
type ParticipantEventsResponse struct {
	Participant *models.Participant    `json:"participant"`
	Events      []*models.JourneyEvent `json:"events"`
}

// JourneyValidationResponse lists the graph problems of a stored journey.
type JourneyValidationResponse struct {
	JourneyID int64    `json:"journey_id"`
	Valid     bool     `json:"valid"`
	Problems  []string `json:"problems"`
}
