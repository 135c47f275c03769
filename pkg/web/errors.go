package web

import (
	"errors"

	"github.com/dukex/runwatch/pkg/persistence"
	"github.com/dukex/runwatch/pkg/polling"
	"github.com/dukex/runwatch/pkg/remote"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleStartError maps a failed run start to a problem response.
func handleStartError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, polling.ErrEmptyCanvasID), remote.IsInvalidParams(err):
		return badRequest(c, err.Error())

	case remote.IsUnauthorized(err):
		problem := problems.NewStatusProblem(401).
			WithInstance(c.Path()).
			WithType("unauthorized").
			WithDetail("the workflow backend rejected the session")

		return c.Status(fiber.StatusUnauthorized).JSON(problem)

	case errors.Is(err, polling.ErrClosed):
		problem := problems.NewStatusProblem(503).
			WithInstance(c.Path()).
			WithType("shutting_down").
			WithDetail(err.Error())

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	default:
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("remote_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)
	}
}

// handleArchiveError maps run archive errors to a problem response.
func handleArchiveError(c fiber.Ctx, err error) error {
	if persistence.IsRunNotFound(err) {
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("run_not_found").
			WithDetail("run not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)
	}

	return internalError(c, err)
}
