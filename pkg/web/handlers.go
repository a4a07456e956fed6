package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/talentflow/approvals/pkg/events"
	"github.com/talentflow/approvals/pkg/models"
	"github.com/talentflow/approvals/pkg/persistence"
	"github.com/talentflow/approvals/pkg/services"
)

type APIHandlers struct {
	workflowService *services.Workflow
	trackingService *services.Tracking
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	trackingService *services.Tracking,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		trackingService: trackingService,
		validator:       validator,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := h.parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

// parseListWorkflowsRequest parses and validates query parameters for listing workflows.
func (h *APIHandlers) parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if typeStr := c.Query("type"); typeStr != "" {
		workflowType := models.WorkflowType(typeStr)
		req.Type = &workflowType
	}

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return nil, err
		}

		req.Active = &active
	}

	req.Keyword = c.Query("keyword")

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Type:        models.WorkflowType(req.Type),
		Steps:       stepsFromRequest(req.Steps),
		Predicate:   req.Predicate,
		CreatedBy:   req.CreatedBy,
		UpdatedBy:   req.CreatedBy,
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Active != nil {
		existing.Active = *req.Active
	}

	existing.Steps = stepsFromRequest(req.Steps)
	existing.Predicate = req.Predicate
	existing.UpdatedBy = req.UpdatedBy

	updated, err := h.workflowService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

// DeactivateWorkflow retires a template from selection. DELETE never removes
// data; in-flight requests keep resolving their steps.
func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	_, err := h.workflowService.Deactivate(c.Context(), id, c.Query("updated_by"))
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetTrackings(c fiber.Ctx) error {
	req := services.ListTrackingsRequest{
		RequestID:      c.Query("request_id"),
		AssignedUserID: c.Query("assigned_user_id"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+err.Error())
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return badRequest(c, "Invalid offset: "+err.Error())
		}

		req.Offset = offset
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.TrackingStatus(statusStr)
		req.Status = &status
	}

	result, err := h.trackingService.ListTrackings(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"trackings":     result.Trackings,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

// GetRequestApproval returns the derived approval state of one request: the
// logical state, the current pending row and the full attempt history.
func (h *APIHandlers) GetRequestApproval(c fiber.Ctx) error {
	requestID := c.Params("requestId")
	if requestID == "" {
		return badRequest(c, "Request ID is required")
	}

	state, err := h.trackingService.RequestState(c.Context(), requestID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(state)
}

// SubmitDecision applies an approver decision in-process and responds with
// the resulting approval state. Stale duplicates come back as 204, decisions
// naming a step other than the pending one as 409.
func (h *APIHandlers) SubmitDecision(c fiber.Ctx) error {
	requestID := c.Params("requestId")
	if requestID == "" {
		return badRequest(c, "Request ID is required")
	}

	var req SubmitDecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.trackingService.SubmitDecision(c.Context(), services.SubmitDecisionRequest{
		RequestID:        requestID,
		RequestType:      events.RequestType(req.RequestType),
		StepID:           req.StepID,
		Decision:         events.Decision(req.Decision),
		ActorUserID:      req.ActorUserID,
		Notes:            req.Notes,
		Reason:           req.Reason,
		ReturnedToStepID: req.ReturnedToStepID,
		DelegateUserID:   req.DelegateUserID,
		AuthToken:        bearerToken(c),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	state, err := h.trackingService.RequestState(c.Context(), requestID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(state)
}

// CancelRequest accepts a requester-initiated withdrawal.
func (h *APIHandlers) CancelRequest(c fiber.Ctx) error {
	requestID := c.Params("requestId")
	if requestID == "" {
		return badRequest(c, "Request ID is required")
	}

	var req CancelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.trackingService.RequestCancellation(c.Context(), requestID,
		events.RequestType(req.RequestType), req.ActorUserID, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Approvals API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Approvals API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func bearerToken(c fiber.Ctx) string {
	header := c.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}

	return ""
}
