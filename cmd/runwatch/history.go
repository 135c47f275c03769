package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/dukex/runwatch/pkg/cmd"
	"github.com/dukex/runwatch/pkg/log"
	"github.com/dukex/runwatch/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

var errMissingArchive = errors.New("database-url is required to read the run archive")

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Aliases:   []string{"h"},
		Usage:     "Print the archived runs of a canvas as JSON",
		ArgsUsage: "<canvas-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Run archive URL (file path, postgres:// or redis://)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to print",
				Value: persistence.DefaultHistoryLimit,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("history")

			canvasID := command.Args().First()
			if canvasID == "" {
				return errMissingCanvas
			}

			databaseURL := command.String("database-url")
			if databaseURL == "" {
				return errMissingArchive
			}

			archive, err := cmd.NewPersistence(ctx, logger, databaseURL)
			if err != nil {
				return err
			}

			defer func() {
				if err := archive.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			runs, err := archive.RunsByCanvas(ctx, canvasID, command.Int("limit"))
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			return encoder.Encode(runs)
		},
	}
}
