// Package worker consumes journey events from a queue and hands them to the
// journey processor.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/metrics"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/otelhelper"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Message outcomes, used as log values and the metrics outcome label.
const (
	OutcomeProcessed    = "processed"
	OutcomeFailed       = "failed"
	OutcomePoison       = "poison"
	OutcomeDeadLettered = "dead_lettered"
)

// EventProcessor is satisfied by *journey.Processor.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, eventType string, data map[string]any) (int, error)
}

type Config struct {
	BatchSize         int
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	// RetryVisibility shortens the visibility of a failed message. Zero keeps
	// the receive visibility timeout.
	RetryVisibility time.Duration
	ErrorBackoff    time.Duration
	// IdleBackoff is the shortest time an empty poll cycle takes.
	IdleBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:         queue.MaxBatchSize,
		WaitTime:          20 * time.Second,
		VisibilityTimeout: 300 * time.Second,
		RetryVisibility:   60 * time.Second,
		ErrorBackoff:      5 * time.Second,
		IdleBackoff:       time.Second,
	}
}

type Option func(*Worker)

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(w *Worker) {
		w.tracer = tracer
	}
}

type Worker struct {
	id        string
	queue     queue.Queue
	processor EventProcessor
	config    Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func New(
	id string,
	q queue.Queue,
	processor EventProcessor,
	config Config,
	logger *slog.Logger,
	options ...Option,
) *Worker {
	defaults := DefaultConfig()

	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = defaults.VisibilityTimeout
	}

	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = defaults.ErrorBackoff
	}

	if config.IdleBackoff <= 0 {
		config.IdleBackoff = defaults.IdleBackoff
	}

	w := &Worker{
		id:        id,
		queue:     q,
		processor: processor,
		config:    config,
		logger:    logger.With("module", "event_worker", "worker_id", id),
		tracer:    otel.Tracer("journeys"),
	}

	for _, option := range options {
		option(w)
	}

	return w
}

// Run polls until ctx is cancelled. Receive errors are logged and retried
// after the configured backoff. Empty cycles are padded to IdleBackoff.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "event worker started",
		"batch_size", w.config.BatchSize,
		"wait_time", w.config.WaitTime,
		"visibility_timeout", w.config.VisibilityTimeout,
	)

	for {
		if ctx.Err() != nil {
			w.logger.InfoContext(ctx, "event worker stopped")

			return nil
		}

		started := time.Now()

		n, err := w.Poll(ctx)
		if err == nil {
			if n == 0 {
				sleep(ctx, w.config.IdleBackoff-time.Since(started))
			}

			continue
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			continue
		}

		w.logger.ErrorContext(ctx, "failed to receive messages", "error", err, "backoff", w.config.ErrorBackoff)

		sleep(ctx, w.config.ErrorBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Poll receives one batch and handles each message. It returns how many
// messages were processed and deleted; only receive errors are returned.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	messages, err := w.queue.Receive(ctx, queue.ReceiveOptions{
		MaxMessages:       w.config.BatchSize,
		WaitTime:          w.config.WaitTime,
		VisibilityTimeout: w.config.VisibilityTimeout,
	})
	if err != nil {
		return 0, err
	}

	processed := 0

	for _, message := range messages {
		outcome := w.handle(ctx, message)
		w.metrics.RecordQueueMessage(outcome)

		if outcome == OutcomeProcessed {
			processed++
		}
	}

	return processed, nil
}

func (w *Worker) handle(ctx context.Context, message queue.Message) string {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.handle_message",
		attribute.String(otelhelper.MessageIDKey, message.ID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
		attribute.Int("journeys.message.receive_count", message.ReceiveCount),
	)
	defer span.End()

	logger := w.logger.With("message_id", message.ID, "receive_count", message.ReceiveCount)

	envelope, err := queue.DecodeEnvelope(message.Body)
	if err != nil {
		otelhelper.SetError(span, err)

		return w.poison(ctx, logger, message, err)
	}

	span.SetAttributes(attribute.String(otelhelper.EventTypeKey, envelope.EventType))
	logger = logger.With("event_type", envelope.EventType)

	transitioned, err := w.processor.ProcessEvent(ctx, envelope.EventType, envelope.Data)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "failed to process event, leaving message for redelivery", "error", err)

		if w.config.RetryVisibility > 0 {
			visibilityErr := w.queue.ChangeVisibility(ctx, message.ReceiptHandle, w.config.RetryVisibility)
			if visibilityErr != nil {
				logger.WarnContext(ctx, "failed to shorten message visibility", "error", visibilityErr)
			}
		}

		return OutcomeFailed
	}

	err = w.queue.Delete(ctx, message.ReceiptHandle)
	if err != nil {
		// The message reappears after its visibility timeout and is processed
		// again.
		logger.ErrorContext(ctx, "failed to delete processed message", "error", err)

		return OutcomeFailed
	}

	logger.DebugContext(ctx, "event processed", "transitioned", transitioned)

	return OutcomeProcessed
}

func (w *Worker) poison(ctx context.Context, logger *slog.Logger, message queue.Message, cause error) string {
	policy, err := w.queue.RedrivePolicy(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read redrive policy", "error", err)

		return OutcomePoison
	}

	if policy == nil {
		logger.WarnContext(ctx, "poison message left for native redrive", "error", cause)

		return OutcomePoison
	}

	err = w.queue.SendToDeadLetter(ctx, message, cause.Error())
	if err != nil {
		logger.ErrorContext(ctx, "failed to dead-letter poison message", "error", err)

		return OutcomePoison
	}

	logger.WarnContext(ctx, "poison message dead-lettered",
		"dead_letter_target", policy.DeadLetterTarget,
		"error", cause,
	)

	return OutcomeDeadLettered
}
