package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/uxone/internal/application/service"
	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/pkg/utils"
)

// Services groups the application services the handlers call.
// Inventory may be nil when the ERP integration is disabled.
type Services struct {
	Approval     service.ApprovalService
	Sequence     service.SequenceGenerator
	Export       service.ExportService
	Inventory    service.InventoryService
	Notification service.NotificationService
	Policy       service.AuthorizationPolicy
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	services  Services
	validator *utils.Validator
	logger    Logger
	version   string
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	if services.Policy == nil {
		services.Policy = service.NewAuthorizationPolicy(nil)
	}
	return &Handlers{
		services:  services,
		validator: newRequestValidator(),
		logger:    logger,
		version:   "1.0.0",
	}
}

// Response represents a standard JSON response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// DecisionRequest is the body of a department decision
type DecisionRequest struct {
	Department string `json:"department" validate:"required,department"`
	Action     string `json:"action" validate:"required,decision"`
	Comment    string `json:"comment" validate:"max=2000"`
}

// ListAggregatesRequest represents query parameters for listing aggregates
type ListAggregatesRequest struct {
	Kind   string `form:"kind"`
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// PageRequest represents limit/offset query parameters
type PageRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// AggregateResponse is an aggregate with its per-department view
type AggregateResponse struct {
	*entity.WorkflowAggregate
	Link               string                    `json:"link"`
	DepartmentStatuses []entity.DepartmentStatus `json:"department_statuses"`
}

// InventoryResponse is an inventory snapshot with derived availability
type InventoryResponse struct {
	*entity.InventoryItem
	Available float64 `json:"available"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
		},
	})
}

// CreateAggregate handles POST /api/v1/aggregates
func (h *Handlers) CreateAggregate(c *gin.Context) {
	var cmd service.CreateAggregateCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	if cmd.OwnerID == "" {
		cmd.OwnerID = actorFromContext(c).UserID
	}
	if err := h.validateRequest(cmd); err != nil {
		h.respondError(c, "create aggregate", err)
		return
	}

	agg, err := h.services.Approval.CreateAggregate(c.Request.Context(), cmd)
	if err != nil {
		h.respondError(c, "create aggregate", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: toAggregateResponse(agg)})
}

// ListAggregates handles GET /api/v1/aggregates
func (h *Handlers) ListAggregates(c *gin.Context) {
	var req ListAggregatesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	filter := entity.AggregateFilter{
		Status: entity.AggregateStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if req.Kind != "" {
		kind, err := entity.ParseKind(req.Kind)
		if err != nil {
			h.respondError(c, "list aggregates", err)
			return
		}
		filter.Kind = kind
	}

	aggs, err := h.services.Approval.ListAggregates(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "list aggregates", err)
		return
	}

	out := make([]AggregateResponse, 0, len(aggs))
	for _, agg := range aggs {
		out = append(out, toAggregateResponse(agg))
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: out})
}

// GetAggregate handles GET /api/v1/aggregates/:id
func (h *Handlers) GetAggregate(c *gin.Context) {
	id, ok := h.aggregateID(c)
	if !ok {
		return
	}

	agg, err := h.services.Approval.GetAggregate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get aggregate", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toAggregateResponse(agg)})
}

// GetAggregateByCode handles GET /api/v1/aggregates/code/:code
func (h *Handlers) GetAggregateByCode(c *gin.Context) {
	agg, err := h.services.Approval.GetAggregateByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, "get aggregate", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toAggregateResponse(agg)})
}

// RecordDecision handles POST /api/v1/aggregates/:id/decisions
func (h *Handlers) RecordDecision(c *gin.Context) {
	id, ok := h.aggregateID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	if err := h.validateRequest(req); err != nil {
		h.respondError(c, "record decision", err)
		return
	}

	actor := actorFromContext(c)
	agg, err := h.services.Approval.RecordDecision(c.Request.Context(), service.RecordDecisionCommand{
		AggregateID: id,
		Department:  req.Department,
		Action:      req.Action,
		Comment:     req.Comment,
		Actor:       actor,
	})
	if err != nil {
		h.respondError(c, "record decision", err)
		return
	}

	h.logger.Info("Decision accepted", "aggregate_id", id, "department", req.Department, "actor", actor.UserID)
	c.JSON(http.StatusOK, Response{Success: true, Data: toAggregateResponse(agg)})
}

// ExportApprovalLog handles GET /api/v1/aggregates/:id/export
func (h *Handlers) ExportApprovalLog(c *gin.Context) {
	id, ok := h.aggregateID(c)
	if !ok {
		return
	}

	result, err := h.services.Export.ExportApprovalLog(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "export approval log", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

// NextIdentifier handles POST /api/v1/sequences/:family/next
func (h *Handlers) NextIdentifier(c *gin.Context) {
	family := strings.TrimSpace(c.Param("family"))
	id, err := h.services.Sequence.NextIdentifier(c.Request.Context(), family)
	if err != nil {
		h.respondError(c, "allocate identifier", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: gin.H{"family": family, "identifier": id}})
}

// GetInventoryItem handles GET /api/v1/inventory/:sku
func (h *Handlers) GetInventoryItem(c *gin.Context) {
	if !h.inventoryEnabled(c) {
		return
	}

	item, err := h.services.Inventory.GetItem(c.Request.Context(), c.Param("sku"))
	if err != nil {
		h.respondError(c, "get inventory item", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: InventoryResponse{InventoryItem: item, Available: item.Available()}})
}

// InvalidateInventoryItem handles DELETE /api/v1/inventory/:sku
func (h *Handlers) InvalidateInventoryItem(c *gin.Context) {
	if !h.inventoryEnabled(c) || !h.requireElevated(c) {
		return
	}

	if err := h.services.Inventory.Invalidate(c.Request.Context(), c.Param("sku")); err != nil {
		h.respondError(c, "invalidate inventory item", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// InvalidateInventory handles DELETE /api/v1/inventory
func (h *Handlers) InvalidateInventory(c *gin.Context) {
	if !h.inventoryEnabled(c) || !h.requireElevated(c) {
		return
	}

	if err := h.services.Inventory.InvalidateAll(c.Request.Context()); err != nil {
		h.respondError(c, "invalidate inventory", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ListNotifications handles GET /api/v1/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	var req PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	list, err := h.services.Notification.ListForRecipient(c.Request.Context(), actorFromContext(c).UserID, req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, "list notifications", err)
		return
	}
	if list == nil {
		list = []*entity.Notification{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

func (h *Handlers) aggregateID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid aggregate ID")
		return 0, false
	}
	return id, true
}

func (h *Handlers) inventoryEnabled(c *gin.Context) bool {
	if h.services.Inventory == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "inventory integration disabled"})
		return false
	}
	return true
}

func (h *Handlers) requireElevated(c *gin.Context) bool {
	if !h.services.Policy.IsElevated(actorFromContext(c)) {
		c.JSON(http.StatusForbidden, Response{Success: false, Error: "elevated role required"})
		return false
	}
	return true
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

func toAggregateResponse(agg *entity.WorkflowAggregate) AggregateResponse {
	return AggregateResponse{
		WorkflowAggregate:  agg,
		Link:               agg.Link(),
		DepartmentStatuses: agg.DepartmentStatuses(),
	}
}
