// Command journey-worker consumes journey events from the queue and moves the
// targeted participants through their journeys.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/cmd"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/worker"
	cli "github.com/urfave/cli/v3"
)

func main() {
	defaults := worker.DefaultConfig()

	command := &cli.Command{
		Name:                  "journey-worker",
		EnableShellCompletion: true,
		Usage:                 "Consume journey events and run participant transitions",
		Flags: append(cmd.CommonFlags(),
			cmd.QueueFlag(true),
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Messages received per poll (1-10)",
				Value:   defaults.BatchSize,
				Sources: cli.EnvVars("WORKER_BATCH_SIZE"),
			},
			&cli.DurationFlag{
				Name:    "wait-time",
				Usage:   "Long-poll wait per receive",
				Value:   defaults.WaitTime,
				Sources: cli.EnvVars("WORKER_WAIT_TIME"),
			},
			&cli.DurationFlag{
				Name:    "visibility-timeout",
				Usage:   "How long a received message stays hidden from other workers",
				Value:   defaults.VisibilityTimeout,
				Sources: cli.EnvVars("WORKER_VISIBILITY_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "retry-visibility",
				Usage:   "Visibility of a message whose processing failed (0 keeps the visibility timeout)",
				Value:   defaults.RetryVisibility,
				Sources: cli.EnvVars("WORKER_RETRY_VISIBILITY"),
			},
			&cli.DurationFlag{
				Name:    "error-backoff",
				Usage:   "Pause after a failed receive",
				Value:   defaults.ErrorBackoff,
				Sources: cli.EnvVars("WORKER_ERROR_BACKOFF"),
			},
			&cli.DurationFlag{
				Name:    "idle-backoff",
				Usage:   "Shortest duration of a poll cycle that received nothing",
				Value:   defaults.IdleBackoff,
				Sources: cli.EnvVars("WORKER_IDLE_BACKOFF"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Address serving /metrics (disabled when empty)",
				Sources: cli.EnvVars("METRICS_ADDR"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.NewRuntime(ctx, command, "journey-worker")
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := rt.Logger.With("workerId", workerID)
			logger.InfoContext(ctx, "Initializing journey worker")

			q, err := cmd.NewQueue(ctx, logger, command.String("queue-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := q.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			cmd.ServeMetrics(ctx, command.String("metrics-addr"), rt.Metrics, logger)

			w := worker.New(workerID, q, rt.Processor, worker.Config{
				BatchSize:         command.Int("batch-size"),
				WaitTime:          command.Duration("wait-time"),
				VisibilityTimeout: command.Duration("visibility-timeout"),
				RetryVisibility:   command.Duration("retry-visibility"),
				ErrorBackoff:      command.Duration("error-backoff"),
				IdleBackoff:       command.Duration("idle-backoff"),
			}, logger,
				worker.WithMetrics(rt.Metrics),
				worker.WithTracer(rt.Tracer),
			)

			return w.Run(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
