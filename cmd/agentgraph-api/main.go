package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/agentgraph/pkg/cmd"
	"github.com/dukex/agentgraph/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const (
	serviceName = "agentgraph-api"
	defaultPort = 9091
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Run agent graphs and answer their reviews over HTTP",
		EnableShellCompletion: true,
		Flags: append(cmd.EngineFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing agentgraph API")

			runtime, err := cmd.NewRuntime(ctx, logger, cmd.OptionsFromCommand(serviceName, command))
			if err != nil {
				return err
			}

			defer func() {
				if err := runtime.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			api := NewAPI(logger, runtime.Engine, runtime.Persistence, cmd.NewRegistry(logger))

			return api.Start(ctx, command.Int("port"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		log.WithModule("api").Error("API server stopped", "error", err)
		os.Exit(1)
	}
}
