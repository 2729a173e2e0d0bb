package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/cmd"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/journey"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/journeyfile"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/scanner"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/stepconfig"
	cli "github.com/urfave/cli/v3"
)

var errInvalidJourneys = errors.New("journey file has invalid journeys")

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check journey definitions in a YAML file",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, command *cli.Command) error {
			journeys, err := loadFile(command)
			if err != nil {
				return err
			}

			validator, err := stepconfig.NewValidator()
			if err != nil {
				return err
			}

			w := command.Root().Writer
			invalid := 0

			for _, j := range journeys {
				problems := unwrapAll(journey.ValidateGraph(j, validator))
				if len(problems) == 0 {
					fmt.Fprintf(w, "journey %d (%s): ok\n", j.ID, j.Name)

					continue
				}

				invalid++

				fmt.Fprintf(w, "journey %d (%s): %d problem(s)\n", j.ID, j.Name, len(problems))

				for _, problem := range problems {
					fmt.Fprintf(w, "  - %s\n", problem)
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%w: %d of %d", errInvalidJourneys, invalid, len(journeys))
			}

			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:      "seed",
		Usage:     "Validate and store journey definitions from a YAML file",
		ArgsUsage: "<file>",
		Flags:     cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			journeys, err := loadFile(command)
			if err != nil {
				return err
			}

			validator, err := stepconfig.NewValidator()
			if err != nil {
				return err
			}

			for _, j := range journeys {
				err := journey.ValidateGraph(j, validator)
				if err != nil {
					return fmt.Errorf("journey %d not seeded: %w", j.ID, err)
				}
			}

			rt, err := cmd.NewRuntime(ctx, command, "journeyctl")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			for _, j := range journeys {
				err := rt.Store.SaveJourney(ctx, j)
				if err != nil {
					return fmt.Errorf("failed to save journey %d: %w", j.ID, err)
				}

				fmt.Fprintf(command.Root().Writer, "seeded journey %d (%s)\n", j.ID, j.Name)
			}

			return nil
		},
	}
}

func enrollCommand() *cli.Command {
	return &cli.Command{
		Name:  "enroll",
		Usage: "Enroll a lead in a journey and process it once",
		Flags: append(cmd.CommonFlags(),
			&cli.Int64Flag{
				Name:     "journey",
				Usage:    "Journey ID",
				Required: true,
			},
			&cli.Int64Flag{
				Name:     "lead",
				Usage:    "Lead ID",
				Required: true,
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := cmd.NewRuntime(ctx, command, "journeyctl")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			participant := &models.Participant{
				JourneyID: command.Int64("journey"),
				LeadID:    command.Int64("lead"),
				Status:    models.ParticipantStatusActive,
			}

			err = rt.Store.CreateParticipant(ctx, participant)
			if err != nil {
				return fmt.Errorf("failed to create participant: %w", err)
			}

			err = rt.Processor.ProcessParticipant(ctx, participant.ID)
			if err != nil {
				return err
			}

			participant, err = rt.Store.ParticipantByID(ctx, participant.ID)
			if err != nil {
				return err
			}

			step := "none"
			if participant.CurrentStepID != nil {
				step = fmt.Sprint(*participant.CurrentStepID)
			}

			fmt.Fprintf(command.Root().Writer, "participant %d: status %s, step %s\n", participant.ID, participant.Status, step)

			return nil
		},
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Run one timed-connection scan",
		Flags: cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := cmd.NewRuntime(ctx, command, "journeyctl")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			s, err := scanner.New(rt.Processor, scanner.DefaultSchedule, rt.Logger, scanner.WithMetrics(rt.Metrics))
			if err != nil {
				return err
			}

			transitioned, err := s.RunOnce(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(command.Root().Writer, "%d participant(s) transitioned\n", transitioned)

			return nil
		},
	}
}

func loadFile(command *cli.Command) ([]*models.Journey, error) {
	if command.Args().Len() != 1 {
		return nil, fmt.Errorf("expected one journey file, got %d arguments", command.Args().Len())
	}

	return journeyfile.Load(command.Args().First())
}

func unwrapAll(err error) []error {
	if err == nil {
		return nil
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}

	return []error{err}
}
