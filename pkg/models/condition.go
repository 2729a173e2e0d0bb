package models

// ConditionKind distinguishes leaf and combined condition specs.
type ConditionKind string

const (
	ConditionKindField    ConditionKind = "field_condition"
	ConditionKindCombined ConditionKind = "combined_condition"
)

// ConditionSpec is either a field comparison or an and/or over nested specs.
// For combined specs Operator holds the combinator.
type ConditionSpec struct {
	Type       ConditionKind   `json:"type"                 yaml:"type"`
	Field      string          `json:"field,omitempty"      yaml:"field,omitempty"`
	Operator   string          `json:"operator"             yaml:"operator"`
	Value      any             `json:"value,omitempty"      yaml:"value,omitempty"`
	Conditions []ConditionSpec `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

func (c ConditionSpec) IsCombined() bool {
	return c.Type == ConditionKindCombined || (c.Type == "" && len(c.Conditions) > 0)
}
