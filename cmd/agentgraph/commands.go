package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dukex/agentgraph/pkg/cmd"
	"github.com/dukex/agentgraph/pkg/engine"
	"github.com/dukex/agentgraph/pkg/events"
	"github.com/dukex/agentgraph/pkg/graph"
	"github.com/dukex/agentgraph/pkg/log"
	"github.com/dukex/agentgraph/pkg/models"
	cli "github.com/urfave/cli/v3"
)

func graphFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "graph",
		Aliases:  []string{"g"},
		Usage:    "Graph definition file (.yaml or .json)",
		Required: true,
	}
}

func conversationFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "conversation",
		Aliases:  []string{"c"},
		Usage:    "Conversation ID",
		Required: required,
	}
}

// withRuntime sets up logging and an engine runtime for one command invocation.
func withRuntime(ctx context.Context, command *cli.Command, action string, body func(*cmd.Runtime, *slog.Logger) error) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule(serviceName).With("action", action)

	runtime, err := cmd.NewRuntime(ctx, logger, cmd.OptionsFromCommand(serviceName, command))
	if err != nil {
		return err
	}

	defer func() {
		if err := runtime.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
		}
	}()

	return body(runtime, logger)
}

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run a graph until it completes, fails or pauses for review",
		Flags: append(cmd.EngineFlags(),
			graphFlag(),
			conversationFlag(false),
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "User input the run starts from",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "var",
				Usage: "Run variable as key=value, repeatable",
			},
			&cli.BoolFlag{
				Name:  "events",
				Usage: "Print node events while the graph runs",
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			g, err := models.LoadGraph(command.String("graph"))
			if err != nil {
				return err
			}

			variables, err := parseVariables(command.StringSlice("var"))
			if err != nil {
				return err
			}

			return withRuntime(ctx, command, "run", func(rt *cmd.Runtime, logger *slog.Logger) error {
				if command.Bool("events") {
					if err := followEvents(ctx, rt, command.Root().Writer); err != nil {
						return err
					}
				}

				logger.InfoContext(ctx, "Running graph", "graph_id", g.ID, "nodes", len(g.Nodes))

				result, err := rt.Engine.Execute(ctx, g, engine.Initial{
					ConversationID: command.String("conversation"),
					UserInput:      command.String("input"),
					Variables:      variables,
				})
				if err != nil {
					return err
				}

				return printJSON(command.Root().Writer, result)
			})
		},
	}
}

func NewResumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Answer the pending review of a paused conversation and continue it",
		Flags: append(cmd.EngineFlags(),
			conversationFlag(true),
			&cli.BoolFlag{
				Name:  "approve",
				Usage: "Approve the pending review",
			},
			&cli.BoolFlag{
				Name:  "reject",
				Usage: "Reject the pending review",
			},
			&cli.StringFlag{
				Name:  "comments",
				Usage: "Reviewer comments",
			},
			&cli.StringFlag{
				Name:  "edits",
				Usage: "JSON object of context edits (node_results, user_input, custom_variables, message_history)",
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "Replacement output for a node paused after execution",
			},
			&cli.BoolFlag{
				Name:  "show",
				Usage: "Print the pending review instead of answering it",
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			conversationID := command.String("conversation")

			return withRuntime(ctx, command, "resume", func(rt *cmd.Runtime, logger *slog.Logger) error {
				if command.Bool("show") {
					request, err := rt.Engine.PendingReview(ctx, conversationID)
					if err != nil {
						return err
					}

					return printJSON(command.Root().Writer, request)
				}

				req, err := resumeRequest(command)
				if err != nil {
					return err
				}

				logger.InfoContext(ctx, "Resuming conversation", "conversation_id", conversationID, "approved", req.Approved)

				result, err := rt.Engine.Resume(ctx, conversationID, req)
				if err != nil {
					return err
				}

				return printJSON(command.Root().Writer, result)
			})
		},
	}
}

func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Print the latest execution record of a conversation",
		Flags: append(cmd.EngineFlags(), conversationFlag(true)),
		Action: func(ctx context.Context, command *cli.Command) error {
			return withRuntime(ctx, command, "status", func(rt *cmd.Runtime, _ *slog.Logger) error {
				record, err := rt.Engine.Status(ctx, command.String("conversation"))
				if err != nil {
					return err
				}

				return printJSON(command.Root().Writer, record)
			})
		},
	}
}

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate a graph definition and its node configs",
		Flags:   []cli.Flag{graphFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			g, err := models.LoadGraph(command.String("graph"))
			if err != nil {
				return err
			}

			if err := validateGraph(g); err != nil {
				return err
			}

			_, err = fmt.Fprintf(command.Root().Writer, "graph %s is valid: %d nodes, %d edges\n", g.ID, len(g.Nodes), len(g.Edges))

			return err
		},
	}
}

func NewLevelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "levels",
		Usage: "Print the execution levels of a graph",
		Flags: []cli.Flag{graphFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			g, err := models.LoadGraph(command.String("graph"))
			if err != nil {
				return err
			}

			if err := graph.Validate(g); err != nil {
				return err
			}

			levels, err := graph.Levels(g)
			if err != nil {
				return err
			}

			for i, level := range levels {
				if _, err := fmt.Fprintf(command.Root().Writer, "%d: %s\n", i, strings.Join(level, ", ")); err != nil {
					return err
				}
			}

			return nil
		},
	}
}

// validateGraph runs the structural checks, the ordering check and the node config checks.
func validateGraph(g *models.Graph) error {
	if err := graph.Validate(g); err != nil {
		return err
	}

	if _, err := graph.Sort(g); err != nil {
		return err
	}

	reg := cmd.NewRegistry(slog.Default())

	var errs []error

	for _, id := range g.NodeIDs() {
		if err := reg.ValidateConfig(g.Nodes[id]); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func resumeRequest(command *cli.Command) (engine.ResumeRequest, error) {
	approve, reject := command.Bool("approve"), command.Bool("reject")
	if approve == reject {
		return engine.ResumeRequest{}, errors.New("exactly one of --approve or --reject is required")
	}

	req := engine.ResumeRequest{
		Approved: approve,
		Comments: command.String("comments"),
	}

	if raw := command.String("edits"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.ContextEdits); err != nil {
			return engine.ResumeRequest{}, fmt.Errorf("invalid --edits: %w", err)
		}
	}

	if command.IsSet("output") {
		req.ModifiedOutput = command.String("output")
	}

	return req, nil
}

func parseVariables(pairs []string) (map[string]any, error) {
	variables := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", pair)
		}

		variables[key] = value
	}

	return variables, nil
}

// followEvents prints node and run events from the runtime event bus.
func followEvents(ctx context.Context, rt *cmd.Runtime, w io.Writer) error {
	printEvent := func(_ context.Context, event any) error {
		switch e := event.(type) {
		case *events.NodeEvent:
			_, err := fmt.Fprintf(w, "[%s] %s %s\n", e.Type, e.NodeID, e.Status)

			return err
		case *events.OutputChunk:
			_, err := fmt.Fprintf(w, "[%s] %s %q\n", e.Type, e.NodeID, e.Content)

			return err
		case *events.DagEvent:
			_, err := fmt.Fprintf(w, "[%s] %s %s\n", e.Type, e.GraphID, e.Status)

			return err
		default:
			return nil
		}
	}

	for _, eventType := range []events.EventType{
		events.NodeStartingEvent,
		events.NodeCompletedEvent,
		events.NodeFailedEvent,
		events.NodePausedEvent,
		events.NodeSkippedEvent,
		events.NodeOutputChunkEvent,
		events.DagStartEvent,
		events.DagCompleteEvent,
		events.DagResumedEvent,
	} {
		if err := rt.EventBus.Handle(eventType, printEvent); err != nil {
			return err
		}
	}

	return rt.EventBus.Subscribe(ctx)
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}
