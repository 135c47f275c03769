package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/polling"
	cli "github.com/urfave/cli/v3"
)

var errMissingCanvas = errors.New("canvas id is required")

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Start a canvas run and follow it until it ends",
		ArgsUsage: "<canvas-id>",
		Flags: append(remoteFlags(),
			&cli.StringSliceFlag{
				Name:    "param",
				Aliases: []string{"p"},
				Usage:   "Run param as key=value, repeatable",
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			canvasID := command.Args().First()
			if canvasID == "" {
				return errMissingCanvas
			}

			params, err := parseParams(command.StringSlice("param"))
			if err != nil {
				return err
			}

			s, err := openSession(ctx, command, "run")
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.coordinator.RunWorkflow(ctx, canvasID, s.canvases.RunParams(canvasID, params))
			if polling.IsStartRunError(err) {
				return err
			}

			s.logger.InfoContext(ctx, "Run ended",
				"canvas_id", result.CanvasID,
				"serial_id", result.SerialID,
				"outcome", result.Outcome,
				"status", result.Status,
				"attempts", result.Attempts,
				"duration", result.Duration,
			)

			return exitFor(result)
		},
	}
}

// exitFor maps a run result to the process exit code: 0 on success, 1 on a
// failed run, 2 when the status is unknown.
func exitFor(result polling.RunResult) error {
	switch {
	case result.Outcome == models.OutcomeCompleted && result.Status == models.StatusSuccess:
		return nil
	case result.Outcome.IsInconclusive():
		return cli.Exit(fmt.Sprintf("run %s: execution status unknown (%s)", result.SerialID, result.Outcome), 2)
	default:
		detail := string(result.Status)
		if result.Err != nil {
			detail = result.Err.Error()
		}

		return cli.Exit(fmt.Sprintf("run %s %s: %s", result.SerialID, result.Outcome, detail), 1)
	}
}
