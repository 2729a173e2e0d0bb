package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TriggerType names the kind of trigger that makes a connection eligible.
type TriggerType string

const (
	TriggerTypeImmediate    TriggerType = "immediate"
	TriggerTypeDelay        TriggerType = "delay"
	TriggerTypeEvent        TriggerType = "event"
	TriggerTypeFunnelChange TriggerType = "funnel_change"
	TriggerTypeCondition    TriggerType = "condition"
	TriggerTypeManual       TriggerType = "manual"
)

// DelayUnit is the unit of a delay trigger duration.
type DelayUnit string

const (
	DelayUnitSeconds DelayUnit = "seconds"
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
	DelayUnitWeeks   DelayUnit = "weeks"
)

var delayUnitSeconds = map[DelayUnit]int64{
	DelayUnitSeconds: 1,
	DelayUnitMinutes: 60,
	DelayUnitHours:   3600,
	DelayUnitDays:    86400,
	DelayUnitWeeks:   604800,
}

// ConditionType is the comparison used by a condition trigger.
type ConditionType string

const (
	ConditionFieldEquals      ConditionType = "field_equals"
	ConditionFieldContains    ConditionType = "field_contains"
	ConditionFieldGreaterThan ConditionType = "field_greater_than"
	ConditionFieldLessThan    ConditionType = "field_less_than"
	ConditionFieldIsEmpty     ConditionType = "field_is_empty"
	ConditionFieldIsNotEmpty  ConditionType = "field_is_not_empty"
)

// FieldSource tells a condition trigger where on the lead to read its field.
type FieldSource string

const (
	FieldSourceLead            FieldSource = "lead"
	FieldSourceD2CLead         FieldSource = "d2c_lead"
	FieldSourceB2BLead         FieldSource = "b2b_lead"
	FieldSourceLeadFieldValue  FieldSource = "lead_field_value"
	FieldSourceLeadIntakeValue FieldSource = "lead_intake_value"
	FieldSourceCustomField     FieldSource = "custom_field"
)

// Trigger is the tagged variant carried by every connection. The set of
// implementations is closed to this package.
type Trigger interface {
	TriggerType() TriggerType
	isTrigger()
}

type ImmediateTrigger struct{}

// DelayTrigger fires once the participant has spent Duration Units in the step.
type DelayTrigger struct {
	Duration int
	Unit     DelayUnit
}

type EventTrigger struct {
	Name string
}

type FunnelChangeTrigger struct {
	FunnelStepID int64
}

// ConditionTrigger compares a lead field against FieldValue.
type ConditionTrigger struct {
	ConditionType ConditionType
	FieldSource   FieldSource
	FieldName     string
	FieldValue    string
}

// ManualTrigger fires when a manual_trigger event names the connection.
type ManualTrigger struct{}

func (ImmediateTrigger) TriggerType() TriggerType    { return TriggerTypeImmediate }
func (DelayTrigger) TriggerType() TriggerType        { return TriggerTypeDelay }
func (EventTrigger) TriggerType() TriggerType        { return TriggerTypeEvent }
func (FunnelChangeTrigger) TriggerType() TriggerType { return TriggerTypeFunnelChange }
func (ConditionTrigger) TriggerType() TriggerType    { return TriggerTypeCondition }
func (ManualTrigger) TriggerType() TriggerType       { return TriggerTypeManual }

func (ImmediateTrigger) isTrigger()    {}
func (DelayTrigger) isTrigger()        {}
func (EventTrigger) isTrigger()        {}
func (FunnelChangeTrigger) isTrigger() {}
func (ConditionTrigger) isTrigger()    {}
func (ManualTrigger) isTrigger()       {}

// Seconds converts the delay to seconds. Unknown units count as seconds.
func (d DelayTrigger) Seconds() int64 {
	factor, ok := delayUnitSeconds[d.Unit]
	if !ok {
		factor = 1
	}

	return int64(d.Duration) * factor
}

// Display renders the delay as "1 minute" or "5 minutes".
func (d DelayTrigger) Display() string {
	unit := string(d.Unit)
	if unit == "" {
		unit = string(DelayUnitSeconds)
	}

	if d.Duration == 1 {
		unit = strings.TrimSuffix(unit, "s")
	}

	return fmt.Sprintf("%d %s", d.Duration, unit)
}

// Connection is a directed, prioritized edge between two steps.
type Connection struct {
	ID             int64   `json:"id"`
	JourneyID      int64   `json:"journey_id"`
	FromStepID     int64   `json:"from_step_id"              validate:"required"`
	ToStepID       int64   `json:"to_step_id"                validate:"required"`
	Priority       int     `json:"priority"`
	IsActive       bool    `json:"is_active"`
	ConditionLabel string  `json:"condition_label,omitempty"`
	Trigger        Trigger `json:"-"                         validate:"required"`
}

// TriggerFields is the flat wire and storage form of a Trigger.
type TriggerFields struct {
	TriggerType   TriggerType   `json:"trigger_type"             yaml:"trigger_type"`
	DelayDuration int           `json:"delay_duration,omitempty" yaml:"delay_duration,omitempty"`
	DelayUnit     DelayUnit     `json:"delay_unit,omitempty"     yaml:"delay_unit,omitempty"`
	EventType     string        `json:"event_type,omitempty"     yaml:"event_type,omitempty"`
	FunnelStepID  int64         `json:"funnel_step_id,omitempty" yaml:"funnel_step_id,omitempty"`
	ConditionType ConditionType `json:"condition_type,omitempty" yaml:"condition_type,omitempty"`
	FieldSource   FieldSource   `json:"field_source,omitempty"   yaml:"field_source,omitempty"`
	FieldName     string        `json:"field_name,omitempty"     yaml:"field_name,omitempty"`
	FieldValue    string        `json:"field_value,omitempty"    yaml:"field_value,omitempty"`
}

// FieldsOf flattens a trigger. A nil trigger flattens to an empty value.
func FieldsOf(trigger Trigger) TriggerFields {
	switch t := trigger.(type) {
	case ImmediateTrigger:
		return TriggerFields{TriggerType: TriggerTypeImmediate}
	case DelayTrigger:
		return TriggerFields{TriggerType: TriggerTypeDelay, DelayDuration: t.Duration, DelayUnit: t.Unit}
	case EventTrigger:
		return TriggerFields{TriggerType: TriggerTypeEvent, EventType: t.Name}
	case FunnelChangeTrigger:
		return TriggerFields{TriggerType: TriggerTypeFunnelChange, FunnelStepID: t.FunnelStepID}
	case ConditionTrigger:
		return TriggerFields{
			TriggerType:   TriggerTypeCondition,
			ConditionType: t.ConditionType,
			FieldSource:   t.FieldSource,
			FieldName:     t.FieldName,
			FieldValue:    t.FieldValue,
		}
	case ManualTrigger:
		return TriggerFields{TriggerType: TriggerTypeManual}
	default:
		return TriggerFields{}
	}
}

// Trigger builds the variant described by the flat fields.
//
//nolint:ireturn // Trigger is a closed variant
func (f TriggerFields) Trigger() (Trigger, error) {
	switch f.TriggerType {
	case TriggerTypeImmediate:
		return ImmediateTrigger{}, nil
	case TriggerTypeDelay:
		unit := f.DelayUnit
		if unit == "" {
			unit = DelayUnitSeconds
		}

		return DelayTrigger{Duration: f.DelayDuration, Unit: unit}, nil
	case TriggerTypeEvent:
		if f.EventType == "" {
			return nil, fmt.Errorf("%w: event trigger needs event_type", ErrInvalidTrigger)
		}

		return EventTrigger{Name: f.EventType}, nil
	case TriggerTypeFunnelChange:
		if f.FunnelStepID == 0 {
			return nil, fmt.Errorf("%w: funnel_change trigger needs funnel_step_id", ErrInvalidTrigger)
		}

		return FunnelChangeTrigger{FunnelStepID: f.FunnelStepID}, nil
	case TriggerTypeCondition:
		if f.ConditionType == "" || f.FieldName == "" {
			return nil, fmt.Errorf("%w: condition trigger needs condition_type and field_name", ErrInvalidTrigger)
		}

		source := f.FieldSource
		if source == "" {
			source = FieldSourceLead
		}

		return ConditionTrigger{
			ConditionType: f.ConditionType,
			FieldSource:   source,
			FieldName:     f.FieldName,
			FieldValue:    f.FieldValue,
		}, nil
	case TriggerTypeManual:
		return ManualTrigger{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTriggerType, f.TriggerType)
	}
}

type connectionJSON struct {
	ID             int64  `json:"id"`
	JourneyID      int64  `json:"journey_id"`
	FromStepID     int64  `json:"from_step_id"`
	ToStepID       int64  `json:"to_step_id"`
	Priority       int    `json:"priority"`
	IsActive       bool   `json:"is_active"`
	ConditionLabel string `json:"condition_label,omitempty"`
	TriggerFields
}

func (c Connection) MarshalJSON() ([]byte, error) {
	return json.Marshal(connectionJSON{
		ID:             c.ID,
		JourneyID:      c.JourneyID,
		FromStepID:     c.FromStepID,
		ToStepID:       c.ToStepID,
		Priority:       c.Priority,
		IsActive:       c.IsActive,
		ConditionLabel: c.ConditionLabel,
		TriggerFields:  FieldsOf(c.Trigger),
	})
}

func (c *Connection) UnmarshalJSON(data []byte) error {
	var raw connectionJSON

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	trigger, err := raw.Trigger()
	if err != nil {
		return err
	}

	*c = Connection{
		ID:             raw.ID,
		JourneyID:      raw.JourneyID,
		FromStepID:     raw.FromStepID,
		ToStepID:       raw.ToStepID,
		Priority:       raw.Priority,
		IsActive:       raw.IsActive,
		ConditionLabel: raw.ConditionLabel,
		Trigger:        trigger,
	}

	return nil
}

// Label returns the normalized branch label used by validate steps.
func (c *Connection) Label() string {
	return strings.ToLower(strings.TrimSpace(c.ConditionLabel))
}
