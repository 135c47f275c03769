package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/runwatch/pkg/cmd"
	"github.com/dukex/runwatch/pkg/config"
	"github.com/dukex/runwatch/pkg/log"
	"github.com/dukex/runwatch/pkg/persistence"
	"github.com/dukex/runwatch/pkg/polling"
	"github.com/dukex/runwatch/pkg/projector"
	"github.com/dukex/runwatch/pkg/store"
	cli "github.com/urfave/cli/v3"
)

var errInvalidParam = errors.New("invalid param")

// remoteFlags configure the backend client and the polling loop.
func remoteFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL of the workflow backend",
			Sources: cli.EnvVars("RUNWATCH_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Bearer token for the workflow backend",
			Sources: cli.EnvVars("RUNWATCH_TOKEN"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Timeout of a single backend request",
			Sources: cli.EnvVars("RUNWATCH_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Archive finished runs (file path, postgres:// or redis://)",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Delay between trace fetches",
			Sources: cli.EnvVars("POLL_INTERVAL"),
		},
		&cli.IntFlag{
			Name:    "poll-max-attempts",
			Usage:   "Trace fetches before a run is considered timed out",
			Sources: cli.EnvVars("POLL_MAX_ATTEMPTS"),
		},
	}
}

// session is the in-process wiring shared by the subcommands.
type session struct {
	logger      *slog.Logger
	canvases    *config.File
	coordinator *polling.Coordinator
	closers     []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openSession(ctx context.Context, command *cli.Command, module string) (*session, error) {
	log.Setup(command.String("log-level"))

	s := &session{logger: log.WithModule(module)}

	canvases, err := config.LoadOrDefault(command.String("config"))
	if err != nil {
		return nil, err
	}

	s.canvases = canvases

	client, err := cmd.NewRemoteClient(canvases, command.String("base-url"), command.String("token"), command.Duration("timeout"), nil, s.logger)
	if err != nil {
		return nil, err
	}

	eventBus, err := cmd.NewEventBus("gochannel", "", serviceName, s.logger)
	if err != nil {
		return nil, err
	}

	s.closers = append(s.closers, func() {
		if err := eventBus.Close(); err != nil {
			s.logger.Error("Failed to close event bus", "error", err)
		}
	})

	recordStore := store.New()

	opts := []polling.Option{
		polling.WithLogger(s.logger),
		polling.WithPublisher(eventBus),
	}

	if interval := pick(command.Duration("poll-interval"), canvases.Polling.Interval); interval > 0 {
		opts = append(opts, polling.WithInterval(interval))
	}

	if attempts := pick(command.Int("poll-max-attempts"), canvases.Polling.MaxAttempts); attempts > 0 {
		opts = append(opts, polling.WithMaxAttempts(attempts))
	}

	if databaseURL := command.String("database-url"); databaseURL != "" {
		archive, err := openArchive(ctx, s, databaseURL)
		if err != nil {
			s.Close()

			return nil, err
		}

		opts = append(opts, polling.WithArchive(archive))
	}

	s.coordinator = polling.New(client, recordStore, opts...)
	s.closers = append(s.closers, s.coordinator.Close)

	s.closers = append(s.closers, projector.Relay(ctx, recordStore, eventBus, s.logger))

	dispatcher := projector.NewDispatcher(recordStore, s.coordinator, projector.NewLogProjector(s.logger), s.logger)

	err = dispatcher.Register(eventBus)
	if err == nil {
		err = eventBus.Subscribe(ctx)
	}

	if err != nil {
		s.Close()

		return nil, err
	}

	return s, nil
}

func openArchive(ctx context.Context, s *session, databaseURL string) (persistence.Persistence, error) {
	archive, err := cmd.NewPersistence(ctx, s.logger, databaseURL)
	if err != nil {
		return nil, err
	}

	s.closers = append(s.closers, func() {
		if err := archive.Close(context.Background()); err != nil {
			s.logger.Error("Failed to close persistence", "error", err)
		}
	})

	return archive, nil
}

func pick[T int | ~int64](flag, fallback T) T {
	if flag > 0 {
		return flag
	}

	return fallback
}

// parseParams turns key=value pairs into run params. Values that parse as
// JSON keep their type; anything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w %q: expected key=value", errInvalidParam, pair)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}

		params[strings.TrimSpace(key)] = value
	}

	return params, nil
}
