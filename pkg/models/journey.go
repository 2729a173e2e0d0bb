// Package models defines the journey graph, participant state and audit records.
package models

import (
	"fmt"
	"time"
)

// StepType is the closed set of step kinds a journey can contain.
type StepType string

const (
	StepTypeEmail    StepType = "email"
	StepTypeSMS      StepType = "sms"
	StepTypeVoice    StepType = "voice"
	StepTypeChat     StepType = "chat"
	StepTypeWait     StepType = "wait"
	StepTypeValidate StepType = "validate"
	StepTypeGoal     StepType = "goal"
	StepTypeWebhook  StepType = "webhook"
	StepTypeEnd      StepType = "end"
)

var stepTypeAliases = map[string]StepType{
	"delay":           StepTypeWait,
	"wait_step":       StepTypeWait,
	"condition":       StepTypeValidate,
	"validation_step": StepTypeValidate,
}

// StepTypes lists every known step type.
func StepTypes() []StepType {
	return []StepType{
		StepTypeEmail, StepTypeSMS, StepTypeVoice, StepTypeChat,
		StepTypeWait, StepTypeValidate, StepTypeGoal, StepTypeWebhook, StepTypeEnd,
	}
}

// ParseStepType resolves a step type name, accepting legacy aliases.
func ParseStepType(name string) (StepType, error) {
	if alias, ok := stepTypeAliases[name]; ok {
		return alias, nil
	}

	for _, known := range StepTypes() {
		if string(known) == name {
			return known, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownStepType, name)
}

func (t *StepType) UnmarshalText(text []byte) error {
	parsed, err := ParseStepType(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

// IsMessage reports whether the step delivers content over a channel.
func (t StepType) IsMessage() bool {
	switch t {
	case StepTypeEmail, StepTypeSMS, StepTypeVoice, StepTypeChat:
		return true
	default:
		return false
	}
}

// Journey is a named directed graph of steps and connections.
type Journey struct {
	ID          int64         `json:"id"          yaml:"id"`
	AccountID   int64         `json:"account_id"  yaml:"account_id"`
	CampaignID  int64         `json:"campaign_id" yaml:"campaign_id"`
	Name        string        `json:"name"        yaml:"name"        validate:"required,min=3"`
	Description string        `json:"description" yaml:"description"`
	IsActive    bool          `json:"is_active"   yaml:"is_active"`
	Steps       []*Step       `json:"steps"       yaml:"steps"       validate:"required,min=1,dive"`
	Connections []*Connection `json:"connections" yaml:"connections" validate:"dive"`
	CreatedAt   time.Time     `json:"created_at"  yaml:"-"`
	UpdatedAt   time.Time     `json:"updated_at"  yaml:"-"`
}

// Step is a node of the journey graph.
type Step struct {
	ID           int64          `json:"id"`
	JourneyID    int64          `json:"journey_id"`
	Name         string         `json:"name"           validate:"required"`
	Order        int            `json:"order"`
	Type         StepType       `json:"step_type"      validate:"required,oneof=email sms voice chat wait validate goal webhook end"`
	TemplateID   *int64         `json:"template_id,omitempty"`
	Config       map[string]any `json:"config"`
	IsEntryPoint bool           `json:"is_entry_point"`
	IsActive     bool           `json:"is_active"`
}

// StepByID returns the journey step with the given id.
func (j *Journey) StepByID(id int64) (*Step, bool) {
	for _, step := range j.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}
