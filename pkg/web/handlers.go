package web

import (
	"context"
	"net/http"

	"github.com/dukex/agentgraph/pkg/engine"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/dukex/agentgraph/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Engine is the part of *engine.Engine the handlers drive.
type Engine interface {
	Execute(ctx context.Context, g *models.Graph, initial engine.Initial) (*models.ExecutionResult, error)
	Resume(ctx context.Context, conversationID string, req engine.ResumeRequest) (*models.ExecutionResult, error)
	Status(ctx context.Context, conversationID string) (*models.Execution, error)
	PendingReview(ctx context.Context, conversationID string) (*models.HumanInterventionRequest, error)
}

type APIHandlers struct {
	engine      Engine
	persistence persistence.Persistence
	validator   *validator.Validate
	registry    *registry.Registry
}

func NewAPIHandlers(
	engine Engine,
	persistence persistence.Persistence,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		persistence: persistence,
		validator:   validator,
		registry:    registry,
	}
}

// Routes mounts every endpoint on a router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/node-types", h.GetNodeTypes)

	e := router.Group("/executions")
	e.Post("/", h.RunExecution)
	e.Get("/:conversationId", h.GetExecution)
	e.Get("/:conversationId/review", h.GetReview)
	e.Post("/:conversationId/resume", h.ResumeExecution)
	e.Get("/:conversationId/nodes", h.GetNodeExecutions)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	repositoryCheck := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
		repositoryCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   len(h.registry.Types()),
			"repository": repositoryCheck,
		},
	})
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"node_types": h.registry.Types()})
}

// RunExecution runs a graph to its end or its first pause. Node failures are reported
// in the result body; only invalid graphs and storage errors are error responses.
func (h *APIHandlers) RunExecution(c fiber.Ctx) error {
	var req RunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.engine.Execute(c.Context(), req.Graph, engine.Initial{
		ConversationID: req.ConversationID,
		UserInput:      req.UserInput,
		Variables:      req.Variables,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	conversationID := c.Params("conversationId")
	if conversationID == "" {
		return badRequest(c, "Conversation ID is required")
	}

	record, err := h.engine.Status(c.Context(), conversationID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(TransformExecutionResponse(record))
}

func (h *APIHandlers) GetReview(c fiber.Ctx) error {
	conversationID := c.Params("conversationId")
	if conversationID == "" {
		return badRequest(c, "Conversation ID is required")
	}

	request, err := h.engine.PendingReview(c.Context(), conversationID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	conversationID := c.Params("conversationId")
	if conversationID == "" {
		return badRequest(c, "Conversation ID is required")
	}

	var req ResumeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.engine.Resume(c.Context(), conversationID, engine.ResumeRequest{
		Approved:       *req.Approved,
		Comments:       req.Comments,
		ContextEdits:   req.ContextEdits,
		ModifiedOutput: req.ModifiedOutput,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(result)
}

// GetNodeExecutions lists the node audit log of the latest run of a conversation.
func (h *APIHandlers) GetNodeExecutions(c fiber.Ctx) error {
	conversationID := c.Params("conversationId")
	if conversationID == "" {
		return badRequest(c, "Conversation ID is required")
	}

	record, err := h.engine.Status(c.Context(), conversationID)
	if err != nil {
		return handleEngineError(c, err)
	}

	entries, err := h.persistence.NodeLogs().ListByExecution(c.Context(), record.ID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id":    record.ID,
		"node_executions": entries,
	})
}
