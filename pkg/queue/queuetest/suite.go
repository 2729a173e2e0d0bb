// Package queuetest holds the behaviour every queue backend must share.
package queuetest

import (
	"context"
	"fmt"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	"github.com/stretchr/testify/suite"
)

// Suite builds a queue per test. NewQueue receives the redrive policy the
// test needs, or nil.
type Suite struct {
	suite.Suite

	NewQueue func(policy *queue.RedrivePolicy) queue.Queue

	ctx context.Context
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
}

func (s *Suite) open(policy *queue.RedrivePolicy) queue.Queue {
	q := s.NewQueue(policy)
	s.T().Cleanup(func() {
		s.NoError(q.Close())
	})

	return q
}

func (s *Suite) receive(q queue.Queue, visibility time.Duration) []queue.Message {
	messages, err := q.Receive(s.ctx, queue.ReceiveOptions{MaxMessages: 10, VisibilityTimeout: visibility})
	s.Require().NoError(err)

	return messages
}

func (s *Suite) TestSendReceiveDelete() {
	q := s.open(nil)

	ids, err := q.Send(s.ctx,
		queue.OutgoingMessage{Body: "first", Attributes: map[string]string{"EventType": "a"}},
		queue.OutgoingMessage{Body: "second"},
	)
	s.Require().NoError(err)
	s.Require().Len(ids, 2)

	messages := s.receive(q, time.Minute)
	s.Require().Len(messages, 2)
	s.Equal("first", messages[0].Body)
	s.Equal(ids[0], messages[0].ID)
	s.Equal("a", messages[0].Attributes["EventType"])
	s.Equal(1, messages[0].ReceiveCount)
	s.NotEmpty(messages[0].ReceiptHandle)

	s.Empty(s.receive(q, time.Minute))

	stats, err := q.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), stats.InFlight)

	s.Require().NoError(q.Delete(s.ctx, messages[0].ReceiptHandle))
	s.Require().NoError(q.Delete(s.ctx, messages[1].ReceiptHandle))
	s.ErrorIs(q.Delete(s.ctx, messages[0].ReceiptHandle), queue.ErrReceiptNotFound)

	stats, err = q.Stats(s.ctx)
	s.Require().NoError(err)
	s.Zero(stats.Total())
}

func (s *Suite) TestReceiveRespectsBatchLimit() {
	q := s.open(nil)

	for i := range 12 {
		_, err := q.Send(s.ctx, queue.OutgoingMessage{Body: fmt.Sprintf("m%d", i)})
		s.Require().NoError(err)
	}

	messages, err := q.Receive(s.ctx, queue.ReceiveOptions{MaxMessages: 50, VisibilityTimeout: time.Minute})
	s.Require().NoError(err)
	s.Len(messages, queue.MaxBatchSize)

	messages, err = q.Receive(s.ctx, queue.ReceiveOptions{MaxMessages: 3, VisibilityTimeout: time.Minute})
	s.Require().NoError(err)
	s.Len(messages, 2)
}

func (s *Suite) TestVisibilityRedelivery() {
	q := s.open(nil)

	_, err := q.Send(s.ctx, queue.OutgoingMessage{Body: "retry me"})
	s.Require().NoError(err)

	first := s.receive(q, time.Minute)
	s.Require().Len(first, 1)

	s.Require().NoError(q.ChangeVisibility(s.ctx, first[0].ReceiptHandle, 0))

	second := s.receive(q, time.Minute)
	s.Require().Len(second, 1)
	s.Equal(first[0].ID, second[0].ID)
	s.Equal(2, second[0].ReceiveCount)
	s.NotEqual(first[0].ReceiptHandle, second[0].ReceiptHandle)

	s.ErrorIs(q.ChangeVisibility(s.ctx, "unknown", 0), queue.ErrReceiptNotFound)
}

func (s *Suite) TestDelayedMessagesAreHidden() {
	q := s.open(nil)

	_, err := q.Send(s.ctx, queue.OutgoingMessage{Body: "later", Delay: queue.MaxDelay})
	s.Require().NoError(err)

	s.Empty(s.receive(q, time.Minute))

	stats, err := q.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.Delayed)
	s.Zero(stats.Available)
}

func (s *Suite) TestRedriveMovesExhaustedMessages() {
	q := s.open(&queue.RedrivePolicy{MaxReceiveCount: 1, DeadLetterTarget: "journey-events-dlq"})

	policy, err := q.RedrivePolicy(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(policy)
	s.Equal(1, policy.MaxReceiveCount)

	_, err = q.Send(s.ctx, queue.OutgoingMessage{Body: "poison"})
	s.Require().NoError(err)

	first := s.receive(q, time.Minute)
	s.Require().Len(first, 1)
	s.Require().NoError(q.ChangeVisibility(s.ctx, first[0].ReceiptHandle, 0))

	s.Empty(s.receive(q, time.Minute))

	stats, err := q.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.DeadLetter)
	s.Zero(stats.Total())
}

func (s *Suite) TestSendToDeadLetter() {
	q := s.open(nil)

	policy, err := q.RedrivePolicy(s.ctx)
	s.Require().NoError(err)
	s.Nil(policy)

	_, err = q.Send(s.ctx, queue.OutgoingMessage{Body: "{not json"})
	s.Require().NoError(err)

	messages := s.receive(q, time.Minute)
	s.Require().Len(messages, 1)
	s.Require().NoError(q.SendToDeadLetter(s.ctx, messages[0], "malformed"))

	stats, err := q.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.DeadLetter)
	s.Zero(stats.InFlight)
}

func (s *Suite) TestPurge() {
	q := s.open(nil)

	_, err := q.Send(s.ctx,
		queue.OutgoingMessage{Body: "a"},
		queue.OutgoingMessage{Body: "b", Delay: time.Minute},
	)
	s.Require().NoError(err)

	s.Require().NoError(q.Purge(s.ctx))

	stats, err := q.Stats(s.ctx)
	s.Require().NoError(err)
	s.Zero(stats.Total())
	s.Empty(s.receive(q, time.Minute))
}

func (s *Suite) TestReceiveWaitsForMessages() {
	q := s.open(nil)

	go func() {
		time.Sleep(50 * time.Millisecond)

		_, _ = q.Send(context.Background(), queue.OutgoingMessage{Body: "late"})
	}()

	messages, err := q.Receive(s.ctx, queue.ReceiveOptions{
		MaxMessages:       1,
		WaitTime:          5 * time.Second,
		VisibilityTimeout: time.Minute,
	})
	s.Require().NoError(err)
	s.Require().Len(messages, 1)
	s.Equal("late", messages[0].Body)
}
