package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/channels/gochannel"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/eventbus"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/events"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	received := make(chan *events.StepEntered, 1)

	require.NoError(t, bus.Handle(events.ParticipantStepEntered, func(_ context.Context, event any) error {
		received <- event.(*events.StepEntered)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	participant := &models.Participant{ID: 3, JourneyID: 1, LeadID: 7}
	connection := &models.Connection{ID: 100, FromStepID: 10, ToStepID: 20}

	require.NoError(t, bus.Publish(ctx, "3", events.NewStepEntered(participant, connection, models.StepTypeWait, time.Now())))

	select {
	case event := <-received:
		assert.Equal(t, int64(20), event.StepID)
		assert.Equal(t, models.StepTypeWait, event.StepType)
	case <-time.After(5 * time.Second):
		t.Fatal("step entered event was not delivered")
	}
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var bus eventbus.EventBus = eventbus.Noop{}

	require.NoError(t, bus.Publish(context.Background(), "k", events.ParticipantCompleted{}))
	assert.NotEmpty(t, bus.GenerateID())
}
