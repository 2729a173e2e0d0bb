package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
)

const participantColumns = `
	id
  , journey_id
  , lead_id
  , current_step_id
  , status
  , version
  , entered_at
  , last_event_at
  , exited_at
`

// ParticipantRepository handles journey participant database operations.
type ParticipantRepository struct {
	db     querier
	logger *slog.Logger
}

func NewParticipantRepository(db querier, logger *slog.Logger) *ParticipantRepository {
	return &ParticipantRepository{db: db, logger: logger}
}

func (r *ParticipantRepository) ParticipantByID(ctx context.Context, id int64) (*models.Participant, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+participantColumns+" FROM journey_participants WHERE id = $1", id)

	participant, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewParticipantError("ParticipantByID", id, persistence.ErrParticipantNotFound)
		}

		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}

	return participant, nil
}

// ActiveParticipants returns active participants that sit on a step.
func (r *ParticipantRepository) ActiveParticipants(ctx context.Context) ([]*models.Participant, error) {
	return r.queryParticipants(ctx, `
		SELECT `+participantColumns+`
		FROM journey_participants
		WHERE status = $1 AND current_step_id IS NOT NULL
		ORDER BY id
	`, models.ParticipantStatusActive)
}

func (r *ParticipantRepository) ActiveParticipantsByLead(ctx context.Context, leadID int64) ([]*models.Participant, error) {
	return r.queryParticipants(ctx, `
		SELECT `+participantColumns+`
		FROM journey_participants
		WHERE lead_id = $1 AND status = $2
		ORDER BY id
	`, leadID, models.ParticipantStatusActive)
}

func (r *ParticipantRepository) CreateParticipant(ctx context.Context, participant *models.Participant) error {
	if participant.Status == "" {
		participant.Status = models.ParticipantStatusActive
	}

	if participant.EnteredAt.IsZero() {
		participant.EnteredAt = time.Now().UTC()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO journey_participants (journey_id, lead_id, current_step_id, status, version, entered_at, last_event_at, exited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		participant.JourneyID,
		participant.LeadID,
		participant.CurrentStepID,
		participant.Status,
		participant.Version,
		participant.EnteredAt,
		participant.LastEventAt,
		participant.ExitedAt,
	).Scan(&participant.ID)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}

	return nil
}

// UpdateParticipant writes the participant if the stored version still equals
// participant.Version, then bumps the version.
func (r *ParticipantRepository) UpdateParticipant(ctx context.Context, participant *models.Participant) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE journey_participants SET
			current_step_id = $1,
			status = $2,
			last_event_at = $3,
			exited_at = $4,
			version = version + 1
		WHERE id = $5 AND version = $6
	`,
		participant.CurrentStepID,
		participant.Status,
		participant.LastEventAt,
		participant.ExitedAt,
		participant.ID,
		participant.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		_, err = r.ParticipantByID(ctx, participant.ID)
		if err != nil {
			return persistence.NewParticipantError("UpdateParticipant", participant.ID, persistence.ErrParticipantNotFound)
		}

		return persistence.NewParticipantError("UpdateParticipant", participant.ID, persistence.ErrStaleParticipant)
	}

	participant.Version++

	return nil
}

func (r *ParticipantRepository) queryParticipants(ctx context.Context, query string, args ...any) ([]*models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	participants := make([]*models.Participant, 0)

	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}

		participants = append(participants, participant)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

func scanParticipant(scanner rowScanner) (*models.Participant, error) {
	var (
		participant   models.Participant
		currentStepID sql.NullInt64
		lastEventAt   sql.NullTime
		exitedAt      sql.NullTime
	)

	err := scanner.Scan(
		&participant.ID,
		&participant.JourneyID,
		&participant.LeadID,
		&currentStepID,
		&participant.Status,
		&participant.Version,
		&participant.EnteredAt,
		&lastEventAt,
		&exitedAt,
	)
	if err != nil {
		return nil, err
	}

	if currentStepID.Valid {
		participant.CurrentStepID = &currentStepID.Int64
	}

	if lastEventAt.Valid {
		participant.LastEventAt = &lastEventAt.Time
	}

	if exitedAt.Valid {
		participant.ExitedAt = &exitedAt.Time
	}

	return &participant, nil
}
