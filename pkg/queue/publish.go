package queue

import (
	"context"
	"fmt"
	"time"
)

// Event is one entry of a batch publish.
type Event struct {
	EventType string
	Data      map[string]any
}

// PublishEvent sends a single event, optionally delayed by up to MaxDelay.
func PublishEvent(ctx context.Context, q Queue, eventType string, data map[string]any, delay time.Duration) (string, error) {
	if delay < 0 || delay > MaxDelay {
		return "", fmt.Errorf("%w: %s", ErrInvalidDelay, delay)
	}

	message, err := outgoing(eventType, data, time.Now().UTC())
	if err != nil {
		return "", err
	}

	message.Delay = delay

	ids, err := q.Send(ctx, message)
	if err != nil {
		return "", fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	return ids[0], nil
}

// PublishBatch sends up to MaxBatchSize events in one call. Entries past the
// limit are ignored and entries without an event type are skipped.
func PublishBatch(ctx context.Context, q Queue, events []Event) ([]string, error) {
	if len(events) > MaxBatchSize {
		events = events[:MaxBatchSize]
	}

	now := time.Now().UTC()
	messages := make([]OutgoingMessage, 0, len(events))

	for _, event := range events {
		if event.EventType == "" {
			continue
		}

		message, err := outgoing(event.EventType, event.Data, now)
		if err != nil {
			return nil, err
		}

		messages = append(messages, message)
	}

	if len(messages) == 0 {
		return nil, nil
	}

	ids, err := q.Send(ctx, messages...)
	if err != nil {
		return nil, fmt.Errorf("failed to publish batch: %w", err)
	}

	return ids, nil
}

func outgoing(eventType string, data map[string]any, at time.Time) (OutgoingMessage, error) {
	if data == nil {
		data = map[string]any{}
	}

	envelope := &Envelope{EventType: eventType, Data: data, Timestamp: at}

	body, err := envelope.Encode()
	if err != nil {
		return OutgoingMessage{}, err
	}

	return OutgoingMessage{Body: body, Attributes: Attributes(eventType, data)}, nil
}
