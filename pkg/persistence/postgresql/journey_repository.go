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

const stepColumns = `
	id
  , journey_id
  , name
  , step_order
  , step_type
  , template_id
  , config
  , is_entry_point
  , is_active
`

const connectionColumns = `
	id
  , journey_id
  , from_step_id
  , to_step_id
  , priority
  , is_active
  , condition_label
  , trigger_type
  , delay_duration
  , delay_unit
  , event_type
  , funnel_step_id
  , condition_type
  , field_source
  , field_name
  , field_value
`

// JourneyRepository handles journey graph database operations.
type JourneyRepository struct {
	db     querier
	logger *slog.Logger
}

func NewJourneyRepository(db querier, logger *slog.Logger) *JourneyRepository {
	return &JourneyRepository{db: db, logger: logger}
}

// Journeys returns every journey with its steps and connections.
func (r *JourneyRepository) Journeys(ctx context.Context) ([]*models.Journey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, campaign_id, name, description, is_active, created_at, updated_at
		FROM journeys
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query journeys: %w", err)
	}

	journeys := make([]*models.Journey, 0)

	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			closeRows(ctx, r.logger, rows)

			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}

		journeys = append(journeys, journey)
	}

	err = rows.Err()

	closeRows(ctx, r.logger, rows)

	if err != nil {
		return nil, fmt.Errorf("error iterating journeys: %w", err)
	}

	for _, journey := range journeys {
		err = r.loadGraph(ctx, journey)
		if err != nil {
			return nil, err
		}
	}

	return journeys, nil
}

func (r *JourneyRepository) JourneyByID(ctx context.Context, id int64) (*models.Journey, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, campaign_id, name, description, is_active, created_at, updated_at
		FROM journeys
		WHERE id = $1
	`, id)

	journey, err := scanJourney(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewJourneyError("JourneyByID", id, persistence.ErrJourneyNotFound)
		}

		return nil, fmt.Errorf("failed to scan journey: %w", err)
	}

	err = r.loadGraph(ctx, journey)
	if err != nil {
		return nil, err
	}

	return journey, nil
}

func (r *JourneyRepository) StepByID(ctx context.Context, id int64) (*models.Step, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+stepColumns+" FROM journey_steps WHERE id = $1", id)

	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStepError("StepByID", 0, id, persistence.ErrStepNotFound)
		}

		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	return step, nil
}

func (r *JourneyRepository) EntryStep(ctx context.Context, journeyID int64) (*models.Step, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+stepColumns+`
		FROM journey_steps
		WHERE journey_id = $1 AND is_entry_point AND is_active
		ORDER BY step_order, id
		LIMIT 1
	`, journeyID)

	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewJourneyError("EntryStep", journeyID, persistence.ErrNoEntryStep)
		}

		return nil, fmt.Errorf("failed to scan entry step: %w", err)
	}

	return step, nil
}

func (r *JourneyRepository) Connections(ctx context.Context, fromStepID int64) ([]*models.Connection, error) {
	return r.queryConnections(ctx, `
		SELECT `+connectionColumns+`
		FROM journey_step_connections
		WHERE from_step_id = $1 AND is_active
		ORDER BY priority, id
	`, fromStepID)
}

// SaveJourney upserts the journey and replaces its steps and connections.
// Callers wanting atomicity run it on a transaction.
func (r *JourneyRepository) SaveJourney(ctx context.Context, journey *models.Journey) error {
	now := time.Now().UTC()
	if journey.CreatedAt.IsZero() {
		journey.CreatedAt = now
	}

	journey.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journeys (id, account_id, campaign_id, name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			campaign_id = EXCLUDED.campaign_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`,
		journey.ID,
		journey.AccountID,
		journey.CampaignID,
		journey.Name,
		journey.Description,
		journey.IsActive,
		journey.CreatedAt,
		journey.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save journey: %w", err)
	}

	_, err = r.db.ExecContext(ctx, "DELETE FROM journey_step_connections WHERE journey_id = $1", journey.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing connections: %w", err)
	}

	_, err = r.db.ExecContext(ctx, "DELETE FROM journey_steps WHERE journey_id = $1", journey.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing steps: %w", err)
	}

	for _, step := range journey.Steps {
		step.JourneyID = journey.ID

		err = r.insertStep(ctx, step)
		if err != nil {
			return err
		}
	}

	for _, connection := range journey.Connections {
		connection.JourneyID = journey.ID

		err = r.insertConnection(ctx, connection)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *JourneyRepository) insertStep(ctx context.Context, step *models.Step) error {
	configJSON, err := json.Marshal(step.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal step config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO journey_steps (id, journey_id, name, step_order, step_type, template_id, config, is_entry_point, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		step.ID,
		step.JourneyID,
		step.Name,
		step.Order,
		step.Type,
		step.TemplateID,
		configJSON,
		step.IsEntryPoint,
		step.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save step %d: %w", step.ID, err)
	}

	return nil
}

func (r *JourneyRepository) insertConnection(ctx context.Context, connection *models.Connection) error {
	fields := models.FieldsOf(connection.Trigger)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journey_step_connections (`+connectionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		connection.ID,
		connection.JourneyID,
		connection.FromStepID,
		connection.ToStepID,
		connection.Priority,
		connection.IsActive,
		connection.ConditionLabel,
		fields.TriggerType,
		fields.DelayDuration,
		fields.DelayUnit,
		fields.EventType,
		fields.FunnelStepID,
		fields.ConditionType,
		fields.FieldSource,
		fields.FieldName,
		fields.FieldValue,
	)
	if err != nil {
		return fmt.Errorf("failed to save connection %d: %w", connection.ID, err)
	}

	return nil
}

func (r *JourneyRepository) loadGraph(ctx context.Context, journey *models.Journey) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+stepColumns+`
		FROM journey_steps
		WHERE journey_id = $1
		ORDER BY step_order, id
	`, journey.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	journey.Steps = make([]*models.Step, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		journey.Steps = append(journey.Steps, step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	journey.Connections, err = r.queryConnections(ctx, `
		SELECT `+connectionColumns+`
		FROM journey_step_connections
		WHERE journey_id = $1
		ORDER BY from_step_id, priority, id
	`, journey.ID)

	return err
}

func (r *JourneyRepository) queryConnections(ctx context.Context, query string, args ...any) ([]*models.Connection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	connections := make([]*models.Connection, 0)

	for rows.Next() {
		connection, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		connections = append(connections, connection)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}

func scanJourney(scanner rowScanner) (*models.Journey, error) {
	var journey models.Journey

	err := scanner.Scan(
		&journey.ID,
		&journey.AccountID,
		&journey.CampaignID,
		&journey.Name,
		&journey.Description,
		&journey.IsActive,
		&journey.CreatedAt,
		&journey.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &journey, nil
}

func scanStep(scanner rowScanner) (*models.Step, error) {
	var (
		step       models.Step
		stepType   string
		templateID sql.NullInt64
		configJSON []byte
	)

	err := scanner.Scan(
		&step.ID,
		&step.JourneyID,
		&step.Name,
		&step.Order,
		&stepType,
		&templateID,
		&configJSON,
		&step.IsEntryPoint,
		&step.IsActive,
	)
	if err != nil {
		return nil, err
	}

	step.Type, err = models.ParseStepType(stepType)
	if err != nil {
		return nil, err
	}

	if templateID.Valid {
		step.TemplateID = &templateID.Int64
	}

	if configJSON != nil {
		err = json.Unmarshal(configJSON, &step.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step config: %w", err)
		}
	}

	return &step, nil
}

func scanConnection(scanner rowScanner) (*models.Connection, error) {
	var (
		connection models.Connection
		fields     models.TriggerFields
	)

	err := scanner.Scan(
		&connection.ID,
		&connection.JourneyID,
		&connection.FromStepID,
		&connection.ToStepID,
		&connection.Priority,
		&connection.IsActive,
		&connection.ConditionLabel,
		&fields.TriggerType,
		&fields.DelayDuration,
		&fields.DelayUnit,
		&fields.EventType,
		&fields.FunnelStepID,
		&fields.ConditionType,
		&fields.FieldSource,
		&fields.FieldName,
		&fields.FieldValue,
	)
	if err != nil {
		return nil, err
	}

	connection.Trigger, err = fields.Trigger()
	if err != nil {
		return nil, fmt.Errorf("connection %d: %w", connection.ID, err)
	}

	return &connection, nil
}
