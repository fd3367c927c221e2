// Package main provides the agentgraph command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/agentgraph/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "agentgraph"

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  serviceName,
		Usage:                 "Run agent workflow graphs with human review",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewResumeCommand(),
			NewStatusCommand(),
			NewValidateCommand(),
			NewLevelsCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.WithModule(serviceName).Error("Command failed", "error", err)
		os.Exit(1)
	}
}
