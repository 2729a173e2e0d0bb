// Command journey-scheduler fires elapsed delay connections on a schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/cmd"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/scanner"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "journey-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Scan active participants for elapsed delay connections",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression or descriptor for the scan",
				Value:   scanner.DefaultSchedule,
				Sources: cli.EnvVars("SCANNER_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "once",
				Usage:   "Run a single scan and exit",
				Sources: cli.EnvVars("SCANNER_RUN_ONCE"),
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

			rt, err := cmd.NewRuntime(ctx, command, "journey-scheduler")
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			s, err := scanner.New(rt.Processor, command.String("schedule"), rt.Logger,
				scanner.WithMetrics(rt.Metrics),
			)
			if err != nil {
				return err
			}

			if command.Bool("once") {
				_, err = s.RunOnce(ctx)

				return err
			}

			cmd.ServeMetrics(ctx, command.String("metrics-addr"), rt.Metrics, rt.Logger)

			err = s.Start(ctx)
			if err != nil {
				return err
			}

			<-ctx.Done()
			rt.Logger.InfoContext(ctx, "Shutting down scheduler...")
			<-s.Stop().Done()

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
