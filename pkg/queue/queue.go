// Package queue defines the durable event queue consumed by the event worker.
//
// Semantics follow hosted queues: received messages stay invisible for a
// visibility timeout and reappear unless deleted; a redrive policy moves
// messages received too often to a dead-letter target.
package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	// MaxBatchSize bounds both receive and batch publish.
	MaxBatchSize = 10
	// MaxDelay is the longest delivery delay accepted on publish.
	MaxDelay = 900 * time.Second

	DefaultName = "journey-events"
)

var (
	ErrReceiptNotFound = errors.New("receipt handle not found")
	ErrInvalidDelay    = errors.New("delay must be between 0 and 900 seconds")
	ErrInvalidEnvelope = errors.New("invalid queue envelope")
)

// Message is a received message. ReceiptHandle identifies this receive and is
// what Delete and ChangeVisibility take.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          string
	Attributes    map[string]string
	ReceiveCount  int
	SentAt        time.Time
}

type OutgoingMessage struct {
	Body       string
	Attributes map[string]string
	Delay      time.Duration
}

type ReceiveOptions struct {
	MaxMessages       int
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
}

// Normalize clamps MaxMessages to 1..MaxBatchSize.
func (o ReceiveOptions) Normalize() ReceiveOptions {
	if o.MaxMessages <= 0 || o.MaxMessages > MaxBatchSize {
		o.MaxMessages = MaxBatchSize
	}

	if o.VisibilityTimeout < 0 {
		o.VisibilityTimeout = 0
	}

	return o
}

type RedrivePolicy struct {
	MaxReceiveCount  int    `json:"max_receive_count"`
	DeadLetterTarget string `json:"dead_letter_target"`
}

type Stats struct {
	Available  int64 `json:"available"`
	InFlight   int64 `json:"in_flight"`
	Delayed    int64 `json:"delayed"`
	DeadLetter int64 `json:"dead_letter"`
}

// Total counts the messages still deliverable.
func (s Stats) Total() int64 {
	return s.Available + s.InFlight + s.Delayed
}

type Queue interface {
	// Send enqueues messages and returns their ids in order.
	Send(ctx context.Context, messages ...OutgoingMessage) ([]string, error)
	// Receive returns up to MaxMessages visible messages, waiting up to
	// WaitTime for the first one.
	Receive(ctx context.Context, options ReceiveOptions) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
	ChangeVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error
	// SendToDeadLetter moves a received message to the dead-letter target.
	SendToDeadLetter(ctx context.Context, message Message, reason string) error
	// RedrivePolicy returns nil when the queue has none.
	RedrivePolicy(ctx context.Context) (*RedrivePolicy, error)
	Stats(ctx context.Context) (Stats, error)
	Purge(ctx context.Context) error
	Close() error
}

// Options are the queue settings carried in a queue URL query string.
type Options struct {
	Name    string
	Redrive *RedrivePolicy
}

// DeadLetterName returns the dead-letter target, defaulting to "<name>-dlq".
func (o Options) DeadLetterName() string {
	if o.Redrive != nil && o.Redrive.DeadLetterTarget != "" {
		return o.Redrive.DeadLetterTarget
	}

	return o.Name + "-dlq"
}

// SplitURL removes the queue, max_receive_count and dead_letter_target
// parameters from rawURL so the rest can go to the backend driver.
func SplitURL(rawURL string) (string, Options, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", Options{}, fmt.Errorf("failed to parse queue url: %w", err)
	}

	query := parsed.Query()
	options := Options{Name: query.Get("queue")}

	if options.Name == "" {
		options.Name = DefaultName
	}

	if raw := query.Get("max_receive_count"); raw != "" {
		maxReceive, err := strconv.Atoi(raw)
		if err != nil || maxReceive < 1 {
			return "", Options{}, fmt.Errorf("invalid max_receive_count %q", raw)
		}

		options.Redrive = &RedrivePolicy{
			MaxReceiveCount:  maxReceive,
			DeadLetterTarget: query.Get("dead_letter_target"),
		}
		options.Redrive.DeadLetterTarget = options.DeadLetterName()
	}

	query.Del("queue")
	query.Del("max_receive_count")
	query.Del("dead_letter_target")
	parsed.RawQuery = query.Encode()

	return parsed.String(), options, nil
}
