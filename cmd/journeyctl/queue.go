package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/cmd"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/log"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	cli "github.com/urfave/cli/v3"
)

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish an event to the journey event queue",
		Flags: []cli.Flag{
			cmd.QueueFlag(false),
			&cli.StringFlag{
				Name:     "event-type",
				Usage:    "Event type matched against event connections",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "Event data as a JSON object",
				Value: "{}",
			},
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "Delivery delay, up to 15m",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			var data map[string]any

			err := json.Unmarshal([]byte(command.String("data")), &data)
			if err != nil {
				return fmt.Errorf("invalid --data: %w", err)
			}

			return withQueue(ctx, command, func(q queue.Queue) error {
				id, err := queue.PublishEvent(ctx, q, command.String("event-type"), data, command.Duration("delay"))
				if err != nil {
					return err
				}

				fmt.Fprintf(command.Root().Writer, "published %s\n", id)

				return nil
			})
		},
	}
}

func queueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect the journey event queue",
		Flags: []cli.Flag{cmd.QueueFlag(false)},
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Print message counts",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withQueue(ctx, command, func(q queue.Queue) error {
						stats, err := q.Stats(ctx)
						if err != nil {
							return err
						}

						fmt.Fprintf(command.Root().Writer, "available=%d in_flight=%d delayed=%d dead_letter=%d total=%d\n",
							stats.Available, stats.InFlight, stats.Delayed, stats.DeadLetter, stats.Total())

						return nil
					})
				},
			},
			{
				Name:  "purge",
				Usage: "Delete every deliverable message",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withQueue(ctx, command, func(q queue.Queue) error {
						err := q.Purge(ctx)
						if err != nil {
							return err
						}

						fmt.Fprintln(command.Root().Writer, "queue purged")

						return nil
					})
				},
			},
		},
	}
}

func withQueue(ctx context.Context, command *cli.Command, fn func(q queue.Queue) error) error {
	logger := log.WithModule("journeyctl")

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

	return fn(q)
}
