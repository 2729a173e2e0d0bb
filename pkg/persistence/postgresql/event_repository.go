package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
)

const eventColumns = `
	id
  , participant_id
  , step_id
  , event_type
  , event_timestamp
  , metadata
`

// EventRepository handles the append-only journey event log.
type EventRepository struct {
	db     querier
	logger *slog.Logger
}

func NewEventRepository(db querier, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger}
}

func (r *EventRepository) AppendEvent(ctx context.Context, event *models.JourneyEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO journey_events (participant_id, step_id, event_type, event_timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`,
		event.ParticipantID,
		event.StepID,
		event.EventType,
		event.Timestamp,
		metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to append %s event: %w", event.EventType, err)
	}

	return nil
}

// LatestEvent returns the most recently written event of eventType for the
// participant on stepID.
func (r *EventRepository) LatestEvent(
	ctx context.Context,
	participantID, stepID int64,
	eventType models.JourneyEventType,
) (*models.JourneyEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM journey_events
		WHERE participant_id = $1 AND step_id = $2 AND event_type = $3
		ORDER BY id DESC
		LIMIT 1
	`, participantID, stepID, eventType)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrEventNotFound
		}

		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	return event, nil
}

func (r *EventRepository) ParticipantEvents(ctx context.Context, participantID int64) ([]*models.JourneyEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM journey_events
		WHERE participant_id = $1
		ORDER BY id
	`, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	events := make([]*models.JourneyEvent, 0)

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		events = append(events, event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func scanEvent(scanner rowScanner) (*models.JourneyEvent, error) {
	var (
		event        models.JourneyEvent
		metadataJSON []byte
	)

	err := scanner.Scan(
		&event.ID,
		&event.ParticipantID,
		&event.StepID,
		&event.EventType,
		&event.Timestamp,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(metadataJSON, &event.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
	}

	return &event, nil
}
