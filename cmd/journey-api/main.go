// Command journey-api serves the operations API of the journey engine.
package main

import (
	"context"
	"os"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/cmd"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "journey-api",
		Usage:                 "Inspect participants, publish events and read queue statistics",
		EnableShellCompletion: true,
		Flags: append(cmd.CommonFlags(),
			cmd.QueueFlag(false),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := cmd.NewRuntime(ctx, command, "journey-api")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			rt.Logger.InfoContext(ctx, "Initializing journey API")

			q, err := cmd.NewQueue(ctx, rt.Logger, command.String("queue-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := q.Close()
				if err != nil {
					rt.Logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			api, err := NewAPI(rt.Logger, rt.Store, q, rt.Processor, rt.Metrics)
			if err != nil {
				return err
			}

			return api.Start(command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
