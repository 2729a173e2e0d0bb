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

// LeadRepository reads and seeds the lead read model.
type LeadRepository struct {
	db     querier
	logger *slog.Logger
}

func NewLeadRepository(db querier, logger *slog.Logger) *LeadRepository {
	return &LeadRepository{db: db, logger: logger}
}

func (r *LeadRepository) LeadByID(ctx context.Context, id int64) (*models.Lead, error) {
	var (
		lead            models.Lead
		score           sql.NullFloat64
		funnelStepID    sql.NullInt64
		lastContactedAt sql.NullTime
		fieldsJSON      []byte
		relatedJSON     []byte
		customJSON      []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, status, email, phone_number, first_name, last_name, score, funnel_step_id,
			created_at, last_contacted_at, fields, related, custom
		FROM leads
		WHERE id = $1
	`, id).Scan(
		&lead.ID,
		&lead.Status,
		&lead.Email,
		&lead.PhoneNumber,
		&lead.FirstName,
		&lead.LastName,
		&score,
		&funnelStepID,
		&lead.CreatedAt,
		&lastContactedAt,
		&fieldsJSON,
		&relatedJSON,
		&customJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrLeadNotFound
		}

		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}

	if score.Valid {
		lead.Score = &score.Float64
	}

	if funnelStepID.Valid {
		lead.FunnelStepID = &funnelStepID.Int64
	}

	if lastContactedAt.Valid {
		lead.LastContactedAt = &lastContactedAt.Time
	}

	err = json.Unmarshal(fieldsJSON, &lead.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead fields: %w", err)
	}

	err = json.Unmarshal(relatedJSON, &lead.Related)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead relations: %w", err)
	}

	err = json.Unmarshal(customJSON, &lead.Custom)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead custom values: %w", err)
	}

	return &lead, nil
}

func (r *LeadRepository) SaveLead(ctx context.Context, lead *models.Lead) error {
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	fieldsJSON, err := marshalObject(lead.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal lead fields: %w", err)
	}

	relatedJSON, err := marshalObject(lead.Related)
	if err != nil {
		return fmt.Errorf("failed to marshal lead relations: %w", err)
	}

	customJSON, err := marshalObject(lead.Custom)
	if err != nil {
		return fmt.Errorf("failed to marshal lead custom values: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO leads (id, status, email, phone_number, first_name, last_name, score, funnel_step_id,
			created_at, last_contacted_at, fields, related, custom)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			email = EXCLUDED.email,
			phone_number = EXCLUDED.phone_number,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			score = EXCLUDED.score,
			funnel_step_id = EXCLUDED.funnel_step_id,
			last_contacted_at = EXCLUDED.last_contacted_at,
			fields = EXCLUDED.fields,
			related = EXCLUDED.related,
			custom = EXCLUDED.custom
	`,
		lead.ID,
		lead.Status,
		lead.Email,
		lead.PhoneNumber,
		lead.FirstName,
		lead.LastName,
		lead.Score,
		lead.FunnelStepID,
		lead.CreatedAt,
		lead.LastContactedAt,
		fieldsJSON,
		relatedJSON,
		customJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save lead: %w", err)
	}

	return nil
}

// marshalObject encodes nil maps as an empty JSON object.
func marshalObject[M ~map[string]V, V any](m M) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(m)
}
