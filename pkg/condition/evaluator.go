// Package condition evaluates declarative field conditions against a lead.
//
// Evaluation never fails: malformed specs, unknown operators, type mismatches
// and bad patterns all resolve to false and are logged.
package condition

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
)

// Entity is anything conditions can read fields from.
type Entity interface {
	Value(name string) (any, bool)
	Relation(name string) (map[string]any, bool)
	CustomValue(name string) (any, bool)
}

// Operator compares a resolved field value with the spec value. Actual is
// never nil when an operator is called.
type Operator func(actual, expected any, now time.Time) (bool, error)

const customPrefix = "custom."

type Evaluator struct {
	logger    *slog.Logger
	operators map[string]Operator
	now       func() time.Time
}

type Option func(*Evaluator)

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// WithOperator adds or replaces an entry in the operator table.
func WithOperator(name string, operator Operator) Option {
	return func(e *Evaluator) {
		e.operators[name] = operator
	}
}

func NewEvaluator(logger *slog.Logger, options ...Option) *Evaluator {
	evaluator := &Evaluator{
		logger:    logger.With("module", "condition_evaluator"),
		operators: defaultOperators(),
		now:       time.Now,
	}

	for _, option := range options {
		option(evaluator)
	}

	return evaluator
}

// Evaluate reports whether entity satisfies spec.
func (e *Evaluator) Evaluate(entity Entity, spec models.ConditionSpec) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("condition evaluation panicked", "panic", r, "field", spec.Field, "operator", spec.Operator)

			result = false
		}
	}()

	return e.evaluate(entity, spec)
}

// EvaluateTrigger evaluates a connection-level condition trigger.
func (e *Evaluator) EvaluateTrigger(entity Entity, trigger models.ConditionTrigger) bool {
	operator, ok := triggerOperators[trigger.ConditionType]
	if !ok {
		e.logger.Warn("unknown condition type", "condition_type", trigger.ConditionType)

		return false
	}

	return e.Evaluate(entity, models.ConditionSpec{
		Type:     models.ConditionKindField,
		Field:    fieldPath(trigger.FieldSource, trigger.FieldName),
		Operator: operator,
		Value:    trigger.FieldValue,
	})
}

func (e *Evaluator) evaluate(entity Entity, spec models.ConditionSpec) bool {
	if spec.IsCombined() {
		return e.evaluateCombined(entity, spec)
	}

	if spec.Type != models.ConditionKindField && spec.Type != "" {
		e.logger.Warn("unknown condition type", "type", spec.Type)

		return false
	}

	operator, ok := e.operators[spec.Operator]
	if !ok {
		e.logger.Warn("unknown condition operator", "operator", spec.Operator, "field", spec.Field)

		return false
	}

	actual, found := Resolve(entity, spec.Field)
	if !found || actual == nil {
		return spec.Operator == "is_empty"
	}

	result, err := operator(actual, spec.Value, e.now())
	if err != nil {
		e.logger.Warn("condition evaluation failed",
			"field", spec.Field,
			"operator", spec.Operator,
			"error", err,
		)

		return false
	}

	return result
}

func (e *Evaluator) evaluateCombined(entity Entity, spec models.ConditionSpec) bool {
	if len(spec.Conditions) == 0 {
		return false
	}

	switch strings.ToLower(spec.Operator) {
	case "and":
		for _, child := range spec.Conditions {
			if !e.evaluate(entity, child) {
				return false
			}
		}

		return true
	case "or":
		for _, child := range spec.Conditions {
			if e.evaluate(entity, child) {
				return true
			}
		}

		return false
	default:
		e.logger.Warn("unknown condition combinator", "operator", spec.Operator)

		return false
	}
}

// Resolve reads a field path. Plain names are top-level attributes, dotted
// paths walk related sub-entities and "custom.<name>" reads the custom table.
func Resolve(entity Entity, path string) (any, bool) {
	if entity == nil || path == "" {
		return nil, false
	}

	if name, ok := strings.CutPrefix(path, customPrefix); ok {
		return entity.CustomValue(name)
	}

	head, rest, dotted := strings.Cut(path, ".")
	if !dotted {
		return entity.Value(path)
	}

	if related, ok := entity.Relation(head); ok {
		return walk(related, rest)
	}

	value, ok := entity.Value(head)
	if !ok {
		return nil, false
	}

	nested, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}

	return walk(nested, rest)
}

func walk(values map[string]any, path string) (any, bool) {
	current := any(values)

	for _, segment := range strings.Split(path, ".") {
		fields, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = fields[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

var triggerOperators = map[models.ConditionType]string{
	models.ConditionFieldEquals:      "eq",
	models.ConditionFieldContains:    "contains",
	models.ConditionFieldGreaterThan: "gt",
	models.ConditionFieldLessThan:    "lt",
	models.ConditionFieldIsEmpty:     "is_empty",
	models.ConditionFieldIsNotEmpty:  "is_not_empty",
}

func fieldPath(source models.FieldSource, name string) string {
	switch source {
	case models.FieldSourceD2CLead, models.FieldSourceB2BLead:
		return fmt.Sprintf("%s.%s", source, name)
	case models.FieldSourceLeadFieldValue, models.FieldSourceLeadIntakeValue, models.FieldSourceCustomField:
		return customPrefix + name
	default:
		return name
	}
}
