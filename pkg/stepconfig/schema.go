// Package stepconfig validates and decodes per-step-type configuration.
package stepconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidConfig = errors.New("invalid step configuration")

// ConfigError lists schema violations for a single step.
type ConfigError struct {
	StepID   int64
	StepType models.StepType
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s step %d: %s", e.StepType, e.StepID, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

const messageSchema = `{
	"type": "object",
	"properties": {
		"template_id": {"type": ["integer", "string"]},
		"content": {"type": "string", "minLength": 1},
		"subject": {"type": "string"}
	},
	"anyOf": [
		{"required": ["template_id"]},
		{"required": ["content"]}
	]
}`

const waitSchema = `{
	"type": "object",
	"properties": {
		"duration": {"type": "integer", "minimum": 0},
		"unit": {"enum": ["seconds", "minutes", "hours", "days", "weeks"]}
	}
}`

const validateSchema = `{
	"type": "object",
	"properties": {
		"condition": {"type": "object"},
		"conditions": {"type": "array", "minItems": 1}
	},
	"anyOf": [
		{"required": ["condition"]},
		{"required": ["field", "operator"]},
		{"required": ["conditions"]}
	]
}`

const goalSchema = `{
	"type": "object",
	"properties": {
		"goal_type": {"type": "string"}
	}
}`

const webhookSchema = `{
	"type": "object",
	"required": ["url"],
	"properties": {
		"url": {"type": "string", "pattern": "^https?://"},
		"method": {"enum": ["GET", "POST", "PUT", "PATCH"]},
		"headers": {"type": "object", "additionalProperties": {"type": "string"}},
		"body": {"type": "string"},
		"retry": {
			"type": "object",
			"properties": {
				"attempts": {"type": "integer", "minimum": 1},
				"delay": {"type": "integer", "minimum": 0}
			}
		}
	}
}`

const anyObjectSchema = `{"type": "object"}`

var schemaSources = map[models.StepType]string{
	models.StepTypeEmail:    messageSchema,
	models.StepTypeSMS:      messageSchema,
	models.StepTypeVoice:    messageSchema,
	models.StepTypeChat:     messageSchema,
	models.StepTypeWait:     waitSchema,
	models.StepTypeValidate: validateSchema,
	models.StepTypeGoal:     goalSchema,
	models.StepTypeWebhook:  webhookSchema,
	models.StepTypeEnd:      anyObjectSchema,
}

// Validator checks step configs against the schema registered for their type.
type Validator struct {
	schemas map[models.StepType]*gojsonschema.Schema
}

func NewValidator() (*Validator, error) {
	schemas := make(map[models.StepType]*gojsonschema.Schema, len(schemaSources))

	for stepType, source := range schemaSources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", stepType, err)
		}

		schemas[stepType] = schema
	}

	return &Validator{schemas: schemas}, nil
}

// Validate returns a *ConfigError when the step config does not match.
func (v *Validator) Validate(step *models.Step) error {
	schema, ok := v.schemas[step.Type]
	if !ok {
		return &ConfigError{StepID: step.ID, StepType: step.Type, Problems: []string{"unknown step type"}}
	}

	document := make(map[string]any, len(step.Config)+1)
	for key, value := range step.Config {
		document[key] = value
	}

	if step.TemplateID != nil {
		document["template_id"] = *step.TemplateID
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return &ConfigError{StepID: step.ID, StepType: step.Type, Problems: []string{err.Error()}}
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, resultError := range result.Errors() {
		problems = append(problems, resultError.String())
	}

	return &ConfigError{StepID: step.ID, StepType: step.Type, Problems: problems}
}

// Decode copies a loosely typed config map into a typed struct.
func Decode(config map[string]any, out any) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	return nil
}
