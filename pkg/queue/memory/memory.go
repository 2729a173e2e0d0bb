// Package memory provides an in-process queue with visibility timeouts and
// redrive, used by tests and single-binary deployments.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
)

const pollInterval = 20 * time.Millisecond

type entry struct {
	message   queue.Message
	visibleAt time.Time
	inFlight  bool
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

func WithRedrivePolicy(policy *queue.RedrivePolicy) Option {
	return func(q *Queue) {
		q.policy = policy
	}
}

type Queue struct {
	mu      sync.Mutex
	now     func() time.Time
	policy  *queue.RedrivePolicy
	entries []*entry
	dead    []queue.Message
	signal  chan struct{}
}

func NewQueue(options ...Option) *Queue {
	q := &Queue{
		now:    time.Now,
		signal: make(chan struct{}),
	}

	for _, option := range options {
		option(q)
	}

	return q
}

func (q *Queue) Send(_ context.Context, messages ...queue.OutgoingMessage) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	ids := make([]string, 0, len(messages))

	for _, outgoing := range messages {
		id := uuid.NewString()
		q.entries = append(q.entries, &entry{
			message: queue.Message{
				ID:         id,
				Body:       outgoing.Body,
				Attributes: maps.Clone(outgoing.Attributes),
				SentAt:     now,
			},
			visibleAt: now.Add(outgoing.Delay),
		})
		ids = append(ids, id)
	}

	close(q.signal)
	q.signal = make(chan struct{})

	return ids, nil
}

func (q *Queue) Receive(ctx context.Context, options queue.ReceiveOptions) ([]queue.Message, error) {
	options = options.Normalize()
	deadline := time.Now().Add(options.WaitTime)

	for {
		messages, signal := q.take(options)
		if len(messages) > 0 || !time.Now().Before(deadline) {
			return messages, nil
		}

		timer := time.NewTimer(min(pollInterval, time.Until(deadline)))

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-signal:
		case <-timer.C:
		}

		timer.Stop()
	}
}

func (q *Queue) take(options queue.ReceiveOptions) ([]queue.Message, chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	messages := make([]queue.Message, 0, options.MaxMessages)
	kept := q.entries[:0]

	for _, e := range q.entries {
		if len(messages) == options.MaxMessages || e.visibleAt.After(now) {
			kept = append(kept, e)

			continue
		}

		e.message.ReceiveCount++

		if q.policy != nil && e.message.ReceiveCount > q.policy.MaxReceiveCount {
			e.message.ReceiptHandle = ""
			q.dead = append(q.dead, e.message)

			continue
		}

		e.inFlight = true
		e.visibleAt = now.Add(options.VisibilityTimeout)
		e.message.ReceiptHandle = uuid.NewString()
		messages = append(messages, e.message)
		kept = append(kept, e)
	}

	q.entries = kept

	return messages, q.signal
}

func (q *Queue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.message.ReceiptHandle == receiptHandle && receiptHandle != "" {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)

			return nil
		}
	}

	return queue.ErrReceiptNotFound
}

func (q *Queue) ChangeVisibility(_ context.Context, receiptHandle string, timeout time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.byReceipt(receiptHandle)
	if e == nil {
		return queue.ErrReceiptNotFound
	}

	e.visibleAt = q.now().Add(timeout)

	return nil
}

func (q *Queue) SendToDeadLetter(_ context.Context, message queue.Message, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.message.ID == message.ID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)

			break
		}
	}

	message.ReceiptHandle = ""
	q.dead = append(q.dead, message)

	return nil
}

func (q *Queue) RedrivePolicy(context.Context) (*queue.RedrivePolicy, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.policy == nil {
		return nil, nil
	}

	policy := *q.policy

	return &policy, nil
}

func (q *Queue) Stats(context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	stats := queue.Stats{DeadLetter: int64(len(q.dead))}

	for _, e := range q.entries {
		switch {
		case !e.visibleAt.After(now):
			stats.Available++
		case e.inFlight:
			stats.InFlight++
		default:
			stats.Delayed++
		}
	}

	return stats, nil
}

// DeadLetters returns a copy of the dead-lettered messages.
func (q *Queue) DeadLetters() []queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	dead := make([]queue.Message, len(q.dead))
	copy(dead, q.dead)

	return dead
}

func (q *Queue) Purge(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = nil

	return nil
}

func (q *Queue) Close() error {
	return nil
}

func (q *Queue) byReceipt(receiptHandle string) *entry {
	if receiptHandle == "" {
		return nil
	}

	for _, e := range q.entries {
		if e.message.ReceiptHandle == receiptHandle {
			return e
		}
	}

	return nil
}
