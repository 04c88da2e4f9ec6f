package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/dto"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/prohmpiriya/crowdsense/pkg/response"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ActionOrderHandler handles field-staff work orders
type ActionOrderHandler struct {
	orders service.ActionOrderService
}

// NewActionOrderHandler creates a new action order handler
func NewActionOrderHandler(orders service.ActionOrderService) *ActionOrderHandler {
	return &ActionOrderHandler{orders: orders}
}

// Create handles POST /action-orders
func (h *ActionOrderHandler) Create(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.action_order.create")
	defer span.End()

	var req dto.CreateActionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BindError(c, err)
		return
	}

	order, err := h.orders.CreateActionOrder(ctx, &service.CreateActionOrderRequest{
		AssignedTo:  req.AssignedTo,
		ZoneID:      req.ZoneID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.ActionPriority(req.Priority),
		Target:      req.Target.Point(),
	})
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetAttributes(attribute.String("order_id", order.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, order)
}

// List handles GET /action-orders
func (h *ActionOrderHandler) List(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.action_order.list")
	defer span.End()

	var q dto.ListActionOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		response.BindError(c, err)
		return
	}

	orders, err := h.orders.ListActionOrders(ctx, repository.ActionOrderFilter{
		AssignedTo: q.AssignedTo,
		ZoneID:     q.ZoneID,
		Status:     domain.ActionOrderStatus(q.Status),
		Limit:      q.Limit,
	})
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, orders)
}

// Acknowledge handles POST /action-orders/:id/acknowledge
func (h *ActionOrderHandler) Acknowledge(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.action_order.acknowledge")
	defer span.End()

	order, err := h.orders.AcknowledgeActionOrder(ctx, c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, order)
}

// Complete handles POST /action-orders/:id/complete
func (h *ActionOrderHandler) Complete(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.action_order.complete")
	defer span.End()

	var req dto.CompleteActionOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request")
			response.BindError(c, err)
			return
		}
	}

	order, err := h.orders.CompleteActionOrder(ctx, c.Param("id"), &service.CompleteActionOrderRequest{
		Note:     req.Note,
		Location: req.Location.Point(),
	})
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, order)
}
