package journey_test

import (
	"errors"
	"testing"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/journey"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence/persistencetest"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/stepconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGraph_SampleJourneyIsValid(t *testing.T) {
	validator, err := stepconfig.NewValidator()
	require.NoError(t, err)

	require.NoError(t, journey.ValidateGraph(persistencetest.SampleJourney(), validator))
}

func TestValidateGraph_Problems(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(j *models.Journey)
		wantErr error
		want    string
	}{
		{
			name: "no active entry point",
			mutate: func(j *models.Journey) {
				j.Steps[0].IsEntryPoint = false
			},
			wantErr: journey.ErrNoEntryPoint,
		},
		{
			name: "endpoint outside the journey",
			mutate: func(j *models.Journey) {
				j.Connections = append(j.Connections, connect(200, 20, 99, 5, models.ImmediateTrigger{}))
			},
			wantErr: journey.ErrInvalidGraph,
			want:    "journey 1 connection 200: to step 99 is not part of the journey",
		},
		{
			name: "self loop",
			mutate: func(j *models.Journey) {
				j.Connections = append(j.Connections, connect(201, 20, 20, 5, models.EventTrigger{Name: "clicked"}))
			},
			wantErr: journey.ErrInvalidGraph,
			want:    "journey 1 connection 201: connects step 20 to itself",
		},
		{
			name: "zero delay",
			mutate: func(j *models.Journey) {
				j.Connections[3].Trigger = models.DelayTrigger{Duration: 0, Unit: models.DelayUnitMinutes}
			},
			wantErr: journey.ErrInvalidGraph,
			want:    "journey 1 connection 103: delay must be positive",
		},
		{
			name: "condition without field",
			mutate: func(j *models.Journey) {
				j.Connections[1].Trigger = models.ConditionTrigger{ConditionType: models.ConditionFieldEquals}
			},
			wantErr: journey.ErrInvalidGraph,
			want:    "journey 1 connection 101: condition trigger needs condition_type and field_name",
		},
		{
			name: "missing trigger",
			mutate: func(j *models.Journey) {
				j.Connections[1].Trigger = nil
			},
			wantErr: journey.ErrInvalidGraph,
			want:    "journey 1 connection 101: has no trigger",
		},
		{
			name: "immediate cycle",
			mutate: func(j *models.Journey) {
				j.Connections = append(j.Connections, connect(202, 20, 10, 0, models.ImmediateTrigger{}))
			},
			wantErr: journey.ErrInvalidGraph,
			want:    "journey 1 step 10: immediate connections form a cycle [10 20]",
		},
		{
			name: "invalid step config",
			mutate: func(j *models.Journey) {
				j.Steps[0].Config = map[string]any{}
			},
			wantErr: stepconfig.ErrInvalidConfig,
		},
	}

	validator, err := stepconfig.NewValidator()
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := persistencetest.SampleJourney()
			tt.mutate(j)

			err := journey.ValidateGraph(j, validator)
			require.ErrorIs(t, err, tt.wantErr)

			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestValidateGraph_JoinsEveryProblem(t *testing.T) {
	j := persistencetest.SampleJourney()
	j.Steps[0].IsEntryPoint = false
	j.Connections[1].Trigger = models.EventTrigger{}

	err := journey.ValidateGraph(j, nil)
	require.Error(t, err)

	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	assert.Len(t, joined.Unwrap(), 2)

	var graphErr *journey.GraphError
	require.ErrorAs(t, err, &graphErr)
	assert.Equal(t, int64(101), graphErr.ConnectionID)
}
