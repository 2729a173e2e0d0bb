// Package scanner periodically fires elapsed delay connections.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/metrics"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 5m"

// TimedProcessor is satisfied by *journey.Processor.
type TimedProcessor interface {
	ProcessTimedConnections(ctx context.Context) (int, error)
}

type Option func(*Scanner)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

type Scanner struct {
	processor TimedProcessor
	schedule  string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	cron      *cron.Cron
}

// New validates schedule, a standard cron expression or descriptor such as
// "@every 5m".
func New(processor TimedProcessor, schedule string, logger *slog.Logger, options ...Option) (*Scanner, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	_, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid scanner schedule %q: %w", schedule, err)
	}

	s := &Scanner{
		processor: processor,
		schedule:  schedule,
		logger:    logger.With("module", "timed_scanner"),
	}

	for _, option := range options {
		option(s)
	}

	return s, nil
}

// Start schedules the scan. Overlapping ticks are skipped and a panicking
// scan is logged without stopping the scheduler.
func (s *Scanner) Start(ctx context.Context) error {
	cronLog := cronLogger{logger: s.logger}

	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLog),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		),
	)

	_, err := s.cron.AddFunc(s.schedule, func() {
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule scan: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "timed scanner started", "schedule", s.schedule)

	return nil
}

// Stop halts the scheduler; the returned context is done once a running scan
// has finished.
func (s *Scanner) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		return ctx
	}

	return s.cron.Stop()
}

// RunOnce performs a single scan and returns how many participants moved.
func (s *Scanner) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()

	transitioned, err := s.processor.ProcessTimedConnections(ctx)
	elapsed := time.Since(started)

	s.metrics.RecordScan(elapsed, transitioned, err)

	if err != nil {
		s.logger.ErrorContext(ctx, "timed connection scan failed", "error", err, "duration", elapsed)

		return transitioned, err
	}

	s.logger.InfoContext(ctx, "timed connection scan finished",
		"transitioned", transitioned,
		"duration", elapsed,
	)

	return transitioned, nil
}

// cronLogger bridges cron's logr-style logger to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
