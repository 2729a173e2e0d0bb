package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"event_type":"clicked","data":{"lead_id":7},"timestamp":"2026-01-01T00:00:00Z"}`, false},
		{"missing data", `{"event_type":"clicked"}`, false},
		{"missing event type", `{"data":{"lead_id":7}}`, true},
		{"malformed json", `{"event_type":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := queue.DecodeEnvelope(tt.body)
			if tt.wantErr {
				require.ErrorIs(t, err, queue.ErrInvalidEnvelope)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "clicked", envelope.EventType)
			assert.NotNil(t, envelope.Data)
		})
	}
}

func TestDecodeEnvelope_NumbersStayExact(t *testing.T) {
	envelope, err := queue.DecodeEnvelope(`{"event_type":"clicked","data":{"participant_id":9007199254740993}}`)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), envelope.Data["participant_id"])
}

func TestPublishEvent(t *testing.T) {
	q := memory.NewQueue()
	ctx := context.Background()

	id, err := queue.PublishEvent(ctx, q, "funnel_step_changed", map[string]any{
		"lead_id":        int64(7),
		"funnel_step_id": 500,
	}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	messages, err := q.Receive(ctx, queue.ReceiveOptions{VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	require.Len(t, messages, 1)

	message := messages[0]
	assert.Equal(t, map[string]string{"EventType": "funnel_step_changed", "LeadId": "7"}, message.Attributes)

	envelope, err := queue.DecodeEnvelope(message.Body)
	require.NoError(t, err)
	assert.Equal(t, "funnel_step_changed", envelope.EventType)
	assert.Equal(t, json.Number("500"), envelope.Data["funnel_step_id"])
	assert.False(t, envelope.Timestamp.IsZero())
}

func TestPublishEvent_DelayRange(t *testing.T) {
	q := memory.NewQueue()

	_, err := queue.PublishEvent(context.Background(), q, "clicked", nil, 901*time.Second)
	require.ErrorIs(t, err, queue.ErrInvalidDelay)

	_, err = queue.PublishEvent(context.Background(), q, "clicked", nil, -time.Second)
	require.ErrorIs(t, err, queue.ErrInvalidDelay)

	_, err = queue.PublishEvent(context.Background(), q, "clicked", nil, queue.MaxDelay)
	require.NoError(t, err)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)
}

func TestPublishBatch(t *testing.T) {
	q := memory.NewQueue()
	ctx := context.Background()

	events := []queue.Event{{EventType: ""}}
	for i := range 12 {
		events = append(events, queue.Event{
			EventType: "clicked",
			Data:      map[string]any{"participant_id": i, "connection_id": "c"},
		})
	}

	ids, err := queue.PublishBatch(ctx, q, events)
	require.NoError(t, err)
	assert.Len(t, ids, 9)

	messages, err := q.Receive(ctx, queue.ReceiveOptions{VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	require.Len(t, messages, 9)
	assert.Equal(t, "0", messages[0].Attributes[queue.AttributeParticipantID])
	assert.Equal(t, "c", messages[0].Attributes[queue.AttributeConnectionID])

	ids, err = queue.PublishBatch(ctx, q, []queue.Event{{}})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSplitURL(t *testing.T) {
	cleaned, options, err := queue.SplitURL("redis://localhost:6379/0?queue=events&max_receive_count=5&dial_timeout=3s")
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0?dial_timeout=3s", cleaned)
	assert.Equal(t, "events", options.Name)
	require.NotNil(t, options.Redrive)
	assert.Equal(t, 5, options.Redrive.MaxReceiveCount)
	assert.Equal(t, "events-dlq", options.Redrive.DeadLetterTarget)

	_, options, err = queue.SplitURL("postgres://u:p@db/journeys?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, queue.DefaultName, options.Name)
	assert.Nil(t, options.Redrive)

	_, _, err = queue.SplitURL("memory://?max_receive_count=zero")
	require.Error(t, err)
}

func TestStatsTotal(t *testing.T) {
	stats := queue.Stats{Available: 1, InFlight: 2, Delayed: 3, DeadLetter: 4}
	assert.Equal(t, int64(6), stats.Total())
}
