package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("participant error unwraps", func(t *testing.T) {
		err := persistence.NewParticipantError("UpdateParticipant", 42, persistence.ErrStaleParticipant)

		assert.True(t, persistence.IsStaleParticipant(err))
		assert.True(t, errors.Is(err, persistence.ErrStaleParticipant))
		assert.Contains(t, err.Error(), "UpdateParticipant")
		assert.Contains(t, err.Error(), "42")
	})

	t.Run("step error contains context", func(t *testing.T) {
		err := persistence.NewStepError("StepByID", 3, 9, persistence.ErrStepNotFound)

		assert.Contains(t, err.Error(), "step 9 in journey 3")
		assert.True(t, persistence.IsNotFound(err))
	})

	t.Run("journey error without step", func(t *testing.T) {
		err := persistence.NewJourneyError("EntryStep", 3, persistence.ErrNoEntryStep)

		assert.Equal(t, "EntryStep operation failed for journey 3: journey has no active entry step", err.Error())
		assert.False(t, persistence.IsNotFound(err))
	})

	t.Run("wrapped not found", func(t *testing.T) {
		err := fmt.Errorf("loading lead: %w", persistence.ErrLeadNotFound)

		assert.True(t, persistence.IsNotFound(err))
		assert.False(t, persistence.IsStaleParticipant(err))
	})
}
