package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/log"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/queuetest"
	redisqueue "github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/redis"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	return mr, client
}

func TestRedisQueue(t *testing.T) {
	suite.Run(t, &queuetest.Suite{
		NewQueue: func(policy *queue.RedrivePolicy) queue.Queue {
			_, client := newClient(t)

			return redisqueue.NewQueue(client, log.Discard(), "journey-events", redisqueue.WithRedrivePolicy(policy))
		},
	})
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	q, err := redisqueue.Open(ctx, log.Discard(), "redis://"+mr.Addr()+"/0?queue=scoring&max_receive_count=3")
	require.NoError(t, err)

	defer func() {
		assert.NoError(t, q.Close())
	}()

	policy, err := q.RedrivePolicy(ctx)
	require.NoError(t, err)
	require.NotNil(t, policy)
	assert.Equal(t, 3, policy.MaxReceiveCount)
	assert.Equal(t, "scoring-dlq", policy.DeadLetterTarget)

	_, err = q.Send(ctx, queue.OutgoingMessage{Body: "hello"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("journeys:queue:scoring:pending"))
}

func TestOpen_Unreachable(t *testing.T) {
	_, err := redisqueue.Open(context.Background(), log.Discard(), "redis://127.0.0.1:1/0")
	require.Error(t, err)
}

func TestConcurrentReceiversNeverShareMessages(t *testing.T) {
	_, client := newClient(t)
	q := redisqueue.NewQueue(client, log.Discard(), "journey-events")
	ctx := context.Background()

	for range 5 {
		_, err := q.Send(ctx,
			queue.OutgoingMessage{Body: "a"},
			queue.OutgoingMessage{Body: "b"},
			queue.OutgoingMessage{Body: "c"},
			queue.OutgoingMessage{Body: "d"},
		)
		require.NoError(t, err)
	}

	results := make(chan []queue.Message, 4)

	for range 4 {
		go func() {
			messages, err := q.Receive(ctx, queue.ReceiveOptions{MaxMessages: 10, VisibilityTimeout: time.Minute})
			assert.NoError(t, err)
			results <- messages
		}()
	}

	seen := map[string]bool{}

	for range 4 {
		for _, message := range <-results {
			assert.False(t, seen[message.ID], "message %s delivered twice", message.ID)
			seen[message.ID] = true
		}
	}

	assert.Len(t, seen, 20)
}

func TestSend_ScoresByVisibleTime(t *testing.T) {
	mr, client := newClient(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	q := redisqueue.NewQueue(client, log.Discard(), "journey-events", redisqueue.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	ids, err := q.Send(ctx,
		queue.OutgoingMessage{Body: "now"},
		queue.OutgoingMessage{Body: "later", Delay: 90 * time.Second},
	)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	score, err := mr.ZScore("journeys:queue:journey-events:pending", ids[0])
	require.NoError(t, err)
	assert.InDelta(t, float64(now.UnixMilli()), score, 0)

	score, err = mr.ZScore("journeys:queue:journey-events:pending", ids[1])
	require.NoError(t, err)
	assert.InDelta(t, float64(now.Add(90*time.Second).UnixMilli()), score, 0)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Available: 1, Delayed: 1}, stats)
}
