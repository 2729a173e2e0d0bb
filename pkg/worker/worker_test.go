package worker_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/delivery"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/journey"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/log"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/metrics"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence/memory"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	memqueue "github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/memory"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type processorMock struct {
	mock.Mock
}

func (m *processorMock) ProcessEvent(ctx context.Context, eventType string, data map[string]any) (int, error) {
	args := m.Called(ctx, eventType, data)

	return args.Int(0), args.Error(1)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type failingQueue struct {
	*memqueue.Queue

	receives atomic.Int32
}

type countingQueue struct {
	*memqueue.Queue

	receives atomic.Int32
}

func (q *countingQueue) Receive(ctx context.Context, options queue.ReceiveOptions) ([]queue.Message, error) {
	q.receives.Add(1)

	return q.Queue.Receive(ctx, options)
}

func (q *failingQueue) Receive(context.Context, queue.ReceiveOptions) ([]queue.Message, error) {
	q.receives.Add(1)

	return nil, errors.New("connection reset")
}

func config() worker.Config {
	c := worker.DefaultConfig()
	c.WaitTime = 0

	return c
}

func clickJourney() *models.Journey {
	return &models.Journey{
		ID:       5,
		Name:     "Click follow-up",
		IsActive: true,
		Steps: []*models.Step{
			{ID: 1, Name: "Wait for click", Order: 1, Type: models.StepTypeWait, IsEntryPoint: true, IsActive: true},
			{ID: 2, Name: "Done", Order: 2, Type: models.StepTypeEnd, IsActive: true},
		},
		Connections: []*models.Connection{
			{ID: 11, FromStepID: 1, ToStepID: 2, Priority: 1, IsActive: true, Trigger: models.EventTrigger{Name: "clicked"}},
		},
	}
}

func TestWorker_PublishBatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	require.NoError(t, store.SaveJourney(ctx, clickJourney()))
	require.NoError(t, store.SaveLead(ctx, &models.Lead{ID: 7, Status: "active", Email: "lead@example.com"}))

	participant := &models.Participant{JourneyID: 5, LeadID: 7, Status: models.ParticipantStatusActive}
	require.NoError(t, store.CreateParticipant(ctx, participant))

	processor, err := journey.NewProcessor(store, delivery.NewLogDeliverer(log.Discard()), log.Discard())
	require.NoError(t, err)
	require.NoError(t, processor.ProcessParticipant(ctx, participant.ID))

	q := memqueue.NewQueue()
	m := metrics.New()

	ids, err := queue.PublishBatch(ctx, q, []queue.Event{
		{EventType: "clicked", Data: map[string]any{"participant_id": participant.ID}},
		{EventType: "clicked", Data: map[string]any{"participant_id": 999}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	w := worker.New("worker-test", q, processor, config(), log.Discard(), worker.WithMetrics(m))

	processed, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	stored, err := store.ParticipantByID(ctx, participant.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CurrentStepID)
	assert.Equal(t, int64(2), *stored.CurrentStepID)
	assert.Equal(t, models.ParticipantStatusCompleted, stored.Status)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total())

	expected := `
# HELP journeys_queue_messages_total Queue messages handled by the event worker by outcome
# TYPE journeys_queue_messages_total counter
journeys_queue_messages_total{outcome="processed"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expected), "journeys_queue_messages_total"))
}

func TestWorker_PoisonMessages(t *testing.T) {
	tests := []struct {
		name         string
		policy       *queue.RedrivePolicy
		body         string
		wantDead     int
		wantInFlight int64
	}{
		{"malformed json with redrive", &queue.RedrivePolicy{MaxReceiveCount: 3, DeadLetterTarget: "journey-events-dlq"}, `{"event_type":`, 1, 0},
		{"missing event type with redrive", &queue.RedrivePolicy{MaxReceiveCount: 3, DeadLetterTarget: "journey-events-dlq"}, `{"data":{}}`, 1, 0},
		{"malformed json without redrive", nil, `not json`, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			q := memqueue.NewQueue(memqueue.WithRedrivePolicy(tt.policy))
			processor := &processorMock{}

			_, err := q.Send(ctx, queue.OutgoingMessage{Body: tt.body})
			require.NoError(t, err)

			w := worker.New("worker-test", q, processor, config(), log.Discard())

			processed, err := w.Poll(ctx)
			require.NoError(t, err)
			assert.Zero(t, processed)
			assert.Len(t, q.DeadLetters(), tt.wantDead)

			stats, err := q.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantInFlight, stats.InFlight)

			processor.AssertNotCalled(t, "ProcessEvent", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestWorker_FailedMessagesAreRedelivered(t *testing.T) {
	tests := []struct {
		name            string
		retryVisibility time.Duration
		visibleAfter    time.Duration
	}{
		{"shortened retry visibility", time.Minute, 61 * time.Second},
		{"receive visibility kept", 0, 301 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
			q := memqueue.NewQueue(memqueue.WithClock(c.Now))

			processor := &processorMock{}
			processor.On("ProcessEvent", mock.Anything, "clicked", mock.Anything).
				Return(0, errors.New("database unavailable")).Once()

			_, err := queue.PublishEvent(ctx, q, "clicked", map[string]any{"lead_id": 7}, 0)
			require.NoError(t, err)

			cfg := config()
			cfg.RetryVisibility = tt.retryVisibility

			w := worker.New("worker-test", q, processor, cfg, log.Discard())

			processed, err := w.Poll(ctx)
			require.NoError(t, err)
			assert.Zero(t, processed)

			c.Advance(tt.visibleAfter - 2*time.Second)

			stats, err := q.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.InFlight)

			c.Advance(2 * time.Second)

			stats, err = q.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.Available)

			processor.On("ProcessEvent", mock.Anything, "clicked", mock.Anything).Return(1, nil).Once()

			processed, err = w.Poll(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, processed)

			messages, err := q.Receive(ctx, queue.ReceiveOptions{})
			require.NoError(t, err)
			assert.Empty(t, messages)

			processor.AssertExpectations(t)
		})
	}
}

func TestWorker_ProcessesDataFromEnvelope(t *testing.T) {
	ctx := context.Background()
	q := memqueue.NewQueue()

	processor := &processorMock{}
	processor.On("ProcessEvent", mock.Anything, "funnel_step_changed", mock.MatchedBy(func(data map[string]any) bool {
		value, ok := data["funnel_step_id"]

		return ok && value != nil
	})).Return(1, nil).Once()

	_, err := queue.PublishEvent(ctx, q, "funnel_step_changed", map[string]any{"lead_id": 7, "funnel_step_id": 500}, 0)
	require.NoError(t, err)

	processed, err := worker.New("worker-test", q, processor, config(), log.Discard()).Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	processor.AssertExpectations(t)
}

func TestWorker_RunBacksOffOnReceiveErrors(t *testing.T) {
	q := &failingQueue{Queue: memqueue.NewQueue()}

	cfg := config()
	cfg.ErrorBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	err := worker.New("worker-test", q, &processorMock{}, cfg, log.Discard()).Run(ctx)
	require.NoError(t, err)

	receives := q.receives.Load()
	assert.GreaterOrEqual(t, receives, int32(2))
	assert.LessOrEqual(t, receives, int32(7))
}

func TestWorker_RunIdlesBetweenEmptyPolls(t *testing.T) {
	q := &countingQueue{Queue: memqueue.NewQueue()}

	cfg := config()
	cfg.IdleBackoff = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := worker.New("worker-test", q, &processorMock{}, cfg, log.Discard()).Run(ctx)
	require.NoError(t, err)

	receives := q.receives.Load()
	assert.GreaterOrEqual(t, receives, int32(1))
	assert.LessOrEqual(t, receives, int32(4))
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	q := memqueue.NewQueue()

	cfg := config()
	cfg.WaitTime = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- worker.New("worker-test", q, &processorMock{}, cfg, log.Discard()).Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
