package web

import (
	"errors"

	"github.com/dukex/agentgraph/pkg/engine"
	"github.com/dukex/agentgraph/pkg/graph"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleEngineError maps engine, graph and persistence errors to problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case graph.IsGraphConfigError(err):
		return problem(c, fiber.StatusUnprocessableEntity, "invalid_graph", err.Error())

	case graph.IsCyclicDependency(err):
		return problem(c, fiber.StatusUnprocessableEntity, "cyclic_graph", err.Error())

	case errors.Is(err, models.ErrFieldNotEditable):
		return problem(c, fiber.StatusBadRequest, "invalid_context_edit", err.Error())

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	case errors.Is(err, engine.ErrNoPendingReview), persistence.IsPauseStateNotFound(err):
		return notFound(c, "no pending review")

	case errors.Is(err, engine.ErrVersionConflict):
		return problem(c, fiber.StatusConflict, "version_conflict", err.Error())

	case errors.Is(err, engine.ErrNotPaused):
		return problem(c, fiber.StatusConflict, "not_paused", err.Error())

	default:
		return internalError(c, err)
	}
}
