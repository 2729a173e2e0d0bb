package stepconfig

import (
	"fmt"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
)

type Message struct {
	TemplateID any    `json:"template_id,omitempty"`
	Content    string `json:"content,omitempty"`
	Subject    string `json:"subject,omitempty"`
}

type Goal struct {
	GoalType  string `json:"goal_type"`
	GoalValue any    `json:"goal_value,omitempty"`
}

type Webhook struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Retry   Retry             `json:"retry,omitempty"`
}

// Retry controls webhook redelivery on 5xx responses.
type Retry struct {
	Attempts int `json:"attempts,omitempty"`
	Delay    int `json:"delay,omitempty"`
}

// Condition extracts the condition spec of a validate step. The spec may sit
// under "condition" or make up the config itself.
func Condition(config map[string]any) (models.ConditionSpec, error) {
	var spec models.ConditionSpec

	source := config
	if nested, ok := config["condition"].(map[string]any); ok {
		source = nested
	}

	err := Decode(source, &spec)
	if err != nil {
		return spec, err
	}

	if spec.Operator == "" && !spec.IsCombined() {
		return spec, fmt.Errorf("%w: condition has no operator", ErrInvalidConfig)
	}

	return spec, nil
}
