// Command journeyctl validates and seeds journey definitions, enrolls leads
// and operates the journey event queue.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	err := newCommand().Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "journeyctl",
		Usage:                 "Manage journeys, participants and the journey event queue",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			validateCommand(),
			seedCommand(),
			enrollCommand(),
			scanCommand(),
			publishCommand(),
			queueCommand(),
		},
	}
}
