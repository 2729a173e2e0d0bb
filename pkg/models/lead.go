package models

import "time"

// Lead is the read model conditions are evaluated against.
type Lead struct {
	ID              int64                     `json:"id"`
	Status          string                    `json:"status"`
	Email           string                    `json:"email"`
	PhoneNumber     string                    `json:"phone_number"`
	FirstName       string                    `json:"first_name"`
	LastName        string                    `json:"last_name"`
	Score           *float64                  `json:"score,omitempty"`
	FunnelStepID    *int64                    `json:"funnel_step_id,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	LastContactedAt *time.Time                `json:"last_contacted_at,omitempty"`
	Fields          map[string]any            `json:"fields,omitempty"`
	Related         map[string]map[string]any `json:"related,omitempty"`
	Custom          map[string]any            `json:"custom,omitempty"`
}

// Value resolves a top-level attribute. Unknown names fall through to Fields.
func (l *Lead) Value(name string) (any, bool) {
	switch name {
	case "id":
		return l.ID, true
	case "status":
		return nonEmpty(l.Status)
	case "email":
		return nonEmpty(l.Email)
	case "phone_number", "phone":
		return nonEmpty(l.PhoneNumber)
	case "first_name":
		return nonEmpty(l.FirstName)
	case "last_name":
		return nonEmpty(l.LastName)
	case "score":
		if l.Score == nil {
			return nil, false
		}

		return *l.Score, true
	case "funnel_step_id":
		if l.FunnelStepID == nil {
			return nil, false
		}

		return *l.FunnelStepID, true
	case "created_at":
		if l.CreatedAt.IsZero() {
			return nil, false
		}

		return l.CreatedAt, true
	case "last_contacted_at":
		if l.LastContactedAt == nil {
			return nil, false
		}

		return *l.LastContactedAt, true
	}

	value, ok := l.Fields[name]

	return value, ok
}

func (l *Lead) Relation(name string) (map[string]any, bool) {
	related, ok := l.Related[name]

	return related, ok
}

func (l *Lead) CustomValue(name string) (any, bool) {
	value, ok := l.Custom[name]

	return value, ok
}

// Address returns the contact address a channel delivers to.
func (l *Lead) Address(stepType StepType) string {
	switch stepType {
	case StepTypeEmail:
		return l.Email
	case StepTypeSMS, StepTypeVoice:
		return l.PhoneNumber
	case StepTypeChat:
		if l.PhoneNumber != "" {
			return l.PhoneNumber
		}

		return l.Email
	default:
		return ""
	}
}

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}

	return s, true
}
