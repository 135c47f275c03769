// Package main provides the runwatch API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/runwatch/pkg/config"
	"github.com/dukex/runwatch/pkg/persistence"
	"github.com/dukex/runwatch/pkg/polling"
	"github.com/dukex/runwatch/pkg/schedule"
	"github.com/dukex/runwatch/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	coordinator *polling.Coordinator
	persistence persistence.Persistence
	canvases    *config.File
	registry    *prometheus.Registry
	scheduler   *schedule.Scheduler
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	coordinator *polling.Coordinator,
	persistence persistence.Persistence,
	canvases *config.File,
	registry *prometheus.Registry,
	scheduler *schedule.Scheduler,
) *API {
	return &API{
		logger:      logger,
		coordinator: coordinator,
		persistence: persistence,
		canvases:    canvases,
		registry:    registry,
		scheduler:   scheduler,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.coordinator, a.persistence, a.canvases, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("runwatch API")
	})

	if a.registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{
			Registry: a.registry,
		})))
	}

	handlers.Register(app)

	if a.scheduler != nil {
		web.NewScheduleHandlers(a.scheduler, a.coordinator).Register(app)
	}

	return app
}

// Start serves until ctx is done, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.ShutdownWithTimeout(shutdownTimeout)
		if err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
