package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/memory"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/queuetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestMemoryQueue(t *testing.T) {
	suite.Run(t, &queuetest.Suite{
		NewQueue: func(policy *queue.RedrivePolicy) queue.Queue {
			return memory.NewQueue(memory.WithRedrivePolicy(policy))
		},
	})
}

func TestDelayedMessageBecomesVisible(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := memory.NewQueue(memory.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := q.Send(ctx, queue.OutgoingMessage{Body: "later", Delay: 30 * time.Second})
	require.NoError(t, err)

	messages, err := q.Receive(ctx, queue.ReceiveOptions{VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, messages)

	now = now.Add(30 * time.Second)

	messages, err = q.Receive(ctx, queue.ReceiveOptions{VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	require.Len(t, messages, 1)

	now = now.Add(2 * time.Minute)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Available)
}

func TestReceiveHonoursContext(t *testing.T) {
	q := memory.NewQueue()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Receive(ctx, queue.ReceiveOptions{WaitTime: time.Second})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDeadLetters(t *testing.T) {
	q := memory.NewQueue()
	ctx := context.Background()

	_, err := q.Send(ctx, queue.OutgoingMessage{Body: "bad"})
	require.NoError(t, err)

	messages, err := q.Receive(ctx, queue.ReceiveOptions{VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.NoError(t, q.SendToDeadLetter(ctx, messages[0], "malformed"))

	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, "bad", dead[0].Body)
	assert.Empty(t, dead[0].ReceiptHandle)
}
