// Package web provides the HTTP surface: triggering and querying executions,
// recording approval decisions, and managing definition lifecycles.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/services"
)

// userHeader carries the authenticated caller's identity. Authentication
// itself happens upstream; the gateway injects this header.
const userHeader = "X-User-ID"

type APIHandlers struct {
	executionService  *services.Execution
	definitionService *services.Definition
	validator         *validator.Validate
}

func NewAPIHandlers(
	executionService *services.Execution,
	definitionService *services.Definition,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		executionService:  executionService,
		definitionService: definitionService,
		validator:         validator,
	}
}

func caller(c fiber.Ctx) string {
	return c.Get(userHeader)
}

// StartExecutionRequest triggers a definition.
type StartExecutionRequest struct {
	DefinitionID string         `json:"definition_id" validate:"required"`
	Input        map[string]any `json:"input"`
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	userID := caller(c)
	if userID == "" {
		return badRequest(c, userHeader+" header is required")
	}

	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	view, err := h.executionService.Start(c.Context(), req.DefinitionID, req.Input, userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(view)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	view, err := h.executionService.Get(c.Context(), id, caller(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	req := services.ListRequest{CreatorID: c.Query("creator_id")}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		req.Status = &status
	}

	views, err := h.executionService.List(c.Context(), req, caller(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  views,
		"total_count": len(views),
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.executionService.Cancel(c.Context(), id, caller(c)); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// DecisionRequest records an approval decision.
type DecisionRequest struct {
	Decision models.ApprovalDecision `json:"decision" validate:"required,oneof=approved rejected"`
}

func (h *APIHandlers) DecideApproval(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval ID is required")
	}

	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.executionService.Decide(c.Context(), id, caller(c), req.Decision); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetPendingApprovals(c fiber.Ctx) error {
	records, err := h.executionService.PendingApprovals(c.Context(), caller(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"approvals":   records,
		"total_count": len(records),
	})
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var req services.CreateDraftRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.Owner == "" {
		req.Owner = caller(c)
	}

	def, err := h.definitionService.CreateDraft(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) UpdateDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	var req services.CreateDraftRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	def, err := h.definitionService.UpdateDraft(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	def, err := h.definitionService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	defs, err := h.definitionService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"definitions": defs,
		"total_count": len(defs),
	})
}

func (h *APIHandlers) PublishDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	def, err := h.definitionService.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) CreateDraftVersion(c fiber.Ctx) error {
	groupID := c.Params("groupId")
	if groupID == "" {
		return badRequest(c, "Group ID is required")
	}

	def, err := h.definitionService.NewDraftVersion(c.Context(), groupID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

// Webhook triggers an execution from an external system. The JSON payload
// becomes the trigger input verbatim.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	definitionID := c.Params("definitionId")
	if definitionID == "" {
		return badRequest(c, "Definition ID is required")
	}

	userID := caller(c)
	if userID == "" {
		userID = "webhook"
	}

	input := map[string]any{}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&input); err != nil {
			return badRequest(c, "Invalid JSON payload")
		}
	}

	view, err := h.executionService.Start(c.Context(), definitionID, input, userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(view)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.executionService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
