package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/runwatch/pkg/cmd"
	"github.com/dukex/runwatch/pkg/config"
	"github.com/dukex/runwatch/pkg/log"
	"github.com/dukex/runwatch/pkg/otelhelper"
	"github.com/dukex/runwatch/pkg/polling"
	"github.com/dukex/runwatch/pkg/projector"
	"github.com/dukex/runwatch/pkg/schedule"
	"github.com/dukex/runwatch/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPort = 9091
	serviceName = "runwatch-api"
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Start canvas runs and follow their execution",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the canvas configuration file",
				Value:   "runwatch.yaml",
				Sources: cli.EnvVars("RUNWATCH_CONFIG"),
			},
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
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Run archive URL (file path, postgres:// or redis://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
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
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("RUNWATCH_TRACING"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing runwatch API")

	canvases, err := config.LoadOrDefault(command.String("config"))
	if err != nil {
		return err
	}

	var tracer trace.Tracer

	if command.Bool("tracing") {
		t, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()

		tracer = t
	}

	client, err := cmd.NewRemoteClient(canvases, command.String("base-url"), command.String("token"), 0, tracer, logger)
	if err != nil {
		return err
	}

	archive, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := archive.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	recordStore := store.New()

	opts := []polling.Option{
		polling.WithLogger(logger),
		polling.WithMetrics(polling.NewMetrics(registry)),
		polling.WithArchive(archive),
		polling.WithPublisher(eventBus),
	}

	opts = append(opts, pollingOptions(command, canvases)...)

	if tracer != nil {
		opts = append(opts, polling.WithTracer(tracer))
	}

	coordinator := polling.New(client, recordStore, opts...)
	defer coordinator.Close()

	stopRelay := projector.Relay(ctx, recordStore, eventBus, logger)
	defer stopRelay()

	dispatcher := projector.NewDispatcher(recordStore, coordinator, projector.NewLogProjector(logger), logger)

	err = dispatcher.Register(eventBus)
	if err != nil {
		return err
	}

	err = eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	scheduler, err := startScheduler(canvases, coordinator, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := scheduler.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
		}
	}()

	api := NewAPI(logger, coordinator, archive, canvases, registry, scheduler)

	return api.Start(ctx, command.Int("port"))
}

func startScheduler(canvases *config.File, runner schedule.Runner, logger *slog.Logger) (*schedule.Scheduler, error) {
	schedules, err := canvases.Schedules()
	if err != nil {
		return nil, err
	}

	scheduler := schedule.New(runner, logger)

	for _, sched := range schedules {
		err := scheduler.Add(sched)
		if err != nil {
			return nil, err
		}
	}

	scheduler.Start()

	return scheduler, nil
}

func pollingOptions(command *cli.Command, canvases *config.File) []polling.Option {
	var opts []polling.Option

	interval := command.Duration("poll-interval")
	if interval <= 0 {
		interval = canvases.Polling.Interval
	}

	if interval > 0 {
		opts = append(opts, polling.WithInterval(interval))
	}

	maxAttempts := command.Int("poll-max-attempts")
	if maxAttempts <= 0 {
		maxAttempts = canvases.Polling.MaxAttempts
	}

	if maxAttempts > 0 {
		opts = append(opts, polling.WithMaxAttempts(maxAttempts))
	}

	return opts
}
