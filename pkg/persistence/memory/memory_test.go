package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence/memory"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestMemoryPersistenceSuite(t *testing.T) {
	suite.Run(t, &persistencetest.Suite{
		NewStore: func() persistence.Persistence { return memory.NewPersistence() },
	})
}

func TestMemoryPersistence_ConcurrentUpdatesOneWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()
	require.NoError(t, store.SaveJourney(ctx, persistencetest.SampleJourney()))

	participant := &models.Participant{JourneyID: 1, LeadID: 7}
	require.NoError(t, store.CreateParticipant(ctx, participant))

	const racers = 8

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		stales int
	)

	for i := range racers {
		wg.Add(1)

		go func(step int64) {
			defer wg.Done()

			copyOf := participant.Clone()

			err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
				copyOf.CurrentStepID = &step

				return tx.UpdateParticipant(ctx, copyOf)
			})

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				wins++
			} else if persistence.IsStaleParticipant(err) {
				stales++
			}
		}(int64(i + 1))
	}

	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, stales)
}

func TestMemoryPersistence_CreateParticipantDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	participant := &models.Participant{JourneyID: 1, LeadID: 2}
	require.NoError(t, store.CreateParticipant(ctx, participant))

	stored, err := store.ParticipantByID(ctx, participant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantStatusActive, stored.Status)
	assert.False(t, stored.EnteredAt.IsZero())
	assert.Nil(t, stored.CurrentStepID)
}
