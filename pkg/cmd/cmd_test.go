package cmd_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/cmd"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/eventbus"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	ctx := context.Background()

	store, err := cmd.NewPersistence(ctx, log.Discard(), "memory://")
	require.NoError(t, err)
	require.NoError(t, store.HealthCheck(ctx))

	_, err = cmd.NewPersistence(ctx, log.Discard(), "mysql://root:secret@db/journeys")
	require.ErrorIs(t, err, cmd.ErrUnsupportedProvider)
	assert.NotContains(t, err.Error(), "secret")

	_, err = cmd.NewPersistence(ctx, log.Discard(), "/var/data")
	require.ErrorIs(t, err, cmd.ErrUnsupportedProvider)
}

func TestNewQueue(t *testing.T) {
	ctx := context.Background()

	q, err := cmd.NewQueue(ctx, log.Discard(), "memory://?max_receive_count=4")
	require.NoError(t, err)

	policy, err := q.RedrivePolicy(ctx)
	require.NoError(t, err)
	require.NotNil(t, policy)
	assert.Equal(t, 4, policy.MaxReceiveCount)

	mr := miniredis.RunT(t)

	q, err = cmd.NewQueue(ctx, log.Discard(), "redis://"+mr.Addr()+"/0?queue=scoring")
	require.NoError(t, err)
	require.NoError(t, q.Close())

	_, err = cmd.NewQueue(ctx, log.Discard(), "sqs://us-east-1/journey-events")
	require.ErrorIs(t, err, cmd.ErrUnsupportedProvider)
}

func TestNewEventBus(t *testing.T) {
	bus, err := cmd.NewEventBus("none", "", "journeys-test", log.Discard())
	require.NoError(t, err)
	assert.IsType(t, eventbus.Noop{}, bus)

	bus, err = cmd.NewEventBus("gochannel", "", "journeys-test", log.Discard())
	require.NoError(t, err)
	assert.IsType(t, &eventbus.WatermillEventBus{}, bus)
	require.NoError(t, bus.Close())

	_, err = cmd.NewEventBus("kafka", "", "journeys-test", log.Discard())
	require.Error(t, err)

	_, err = cmd.NewEventBus("rabbitmq", "", "journeys-test", log.Discard())
	require.ErrorIs(t, err, cmd.ErrUnsupportedProvider)
}
