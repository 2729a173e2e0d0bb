package journeyfile_test

import (
	"strings"
	"testing"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/journey"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/journeyfile"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/stepconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	journeys, err := journeyfile.Load("testdata/welcome.yaml")
	require.NoError(t, err)
	require.Len(t, journeys, 1)

	j := journeys[0]
	assert.Equal(t, int64(1), j.ID)
	assert.Equal(t, "Welcome series", j.Name)
	assert.True(t, j.IsActive)
	require.Len(t, j.Steps, 5)
	require.Len(t, j.Connections, 6)

	welcome, ok := j.StepByID(10)
	require.True(t, ok)
	assert.Equal(t, models.StepTypeEmail, welcome.Type)
	assert.True(t, welcome.IsEntryPoint)
	assert.True(t, welcome.IsActive)
	assert.Equal(t, "Welcome, {{ .FirstName }}", welcome.Config["subject"])

	assert.Equal(t, models.DelayTrigger{Duration: 1, Unit: models.DelayUnitDays}, j.Connections[2].Trigger)
	assert.Equal(t, models.FunnelChangeTrigger{FunnelStepID: 7}, j.Connections[5].Trigger)
	assert.Equal(t, "true", j.Connections[3].Label())

	validator, err := stepconfig.NewValidator()
	require.NoError(t, err)
	require.NoError(t, journey.ValidateGraph(j, validator))
}

func TestDecode_JourneyList(t *testing.T) {
	doc := `
journeys:
  - id: 3
    name: Reminder
    steps:
      - {id: 1, name: Wait, type: delay, entry_point: true}
      - {id: 2, name: End, type: end, is_active: false}
    connections:
      - {id: 9, from: 1, to: 2, trigger_type: manual, is_active: false}
  - id: 4
    name: Check-in
    steps:
      - {id: 5, name: Start, type: condition, entry_point: true, config: {field: status, operator: eq, value: new}}
---
id: 6
name: Second document
steps:
  - {id: 7, name: Goal, type: goal, entry_point: true}
`

	journeys, err := journeyfile.Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, journeys, 3)

	assert.Equal(t, models.StepTypeWait, journeys[0].Steps[0].Type)
	assert.False(t, journeys[0].Steps[1].IsActive)
	assert.False(t, journeys[0].Connections[0].IsActive)
	assert.Equal(t, models.ManualTrigger{}, journeys[0].Connections[0].Trigger)
	assert.Equal(t, models.StepTypeValidate, journeys[1].Steps[0].Type)
	assert.Equal(t, "Second document", journeys[2].Name)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown step type",
			doc:  "name: Broken\nsteps:\n  - {id: 1, name: Fax, type: fax}\n",
			want: "unknown step type",
		},
		{
			name: "event without name",
			doc:  "name: Broken\nsteps:\n  - {id: 1, name: A, type: wait}\nconnections:\n  - {id: 2, from: 1, to: 1, trigger_type: event}\n",
			want: "event trigger needs event_type",
		},
		{
			name: "unknown field",
			doc:  "name: Broken\ncolour: blue\nsteps:\n  - {id: 1, name: A, type: wait}\n",
			want: "colour",
		},
		{
			name: "name too short",
			doc:  "name: AB\nsteps:\n  - {id: 1, name: A, type: wait}\n",
			want: "Name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := journeyfile.Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := journeyfile.Load("testdata/missing.yaml")
	require.Error(t, err)
}
