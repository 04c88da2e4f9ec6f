package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CreateActionOrderRequest asks to dispatch field staff
type CreateActionOrderRequest struct {
	AssignedTo  string
	ZoneID      string
	Title       string
	Description string
	Priority    domain.ActionPriority
	Target      *domain.GeoPoint
}

// CompleteActionOrderRequest closes an order, optionally with a location proof
type CompleteActionOrderRequest struct {
	Note     string
	Location *domain.GeoPoint
}

// ActionOrderService manages field-staff work orders
type ActionOrderService interface {
	CreateActionOrder(ctx context.Context, req *CreateActionOrderRequest) (*domain.ActionOrder, error)
	ListActionOrders(ctx context.Context, filter repository.ActionOrderFilter) ([]*domain.ActionOrder, error)
	AcknowledgeActionOrder(ctx context.Context, orderID string) (*domain.ActionOrder, error)
	CompleteActionOrder(ctx context.Context, orderID string, req *CompleteActionOrderRequest) (*domain.ActionOrder, error)
}

// ActionOrderServiceConfig contains configuration for the action order service
type ActionOrderServiceConfig struct {
	// GeoProofRadiusMeters bounds how far a completion may be from the target
	GeoProofRadiusMeters float64
	Clock                func() time.Time
}

type actionOrderService struct {
	orders repository.ActionOrderRepository
	radius float64
	now    func() time.Time
}

// NewActionOrderService creates a new ActionOrderService
func NewActionOrderService(orders repository.ActionOrderRepository, cfg *ActionOrderServiceConfig) ActionOrderService {
	radius := 100.0
	now := time.Now
	if cfg != nil {
		if cfg.GeoProofRadiusMeters > 0 {
			radius = cfg.GeoProofRadiusMeters
		}
		if cfg.Clock != nil {
			now = cfg.Clock
		}
	}
	return &actionOrderService{orders: orders, radius: radius, now: now}
}

func (s *actionOrderService) CreateActionOrder(ctx context.Context, req *CreateActionOrderRequest) (*domain.ActionOrder, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.action_order.create")
	defer span.End()

	if req == nil || strings.TrimSpace(req.Title) == "" {
		return nil, fail(span, domain.ErrInvalidActionOrder.Withf("title is required"))
	}
	if req.AssignedTo == "" {
		return nil, fail(span, domain.ErrInvalidActionOrder.Withf("assigned_to is required"))
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.ActionPriorityMedium
	}
	if !priority.IsValid() {
		return nil, fail(span, domain.ErrInvalidActionOrder.Withf("unknown priority %q", req.Priority))
	}
	if req.Target != nil && !validCoordinate(*req.Target) {
		return nil, fail(span, domain.ErrInvalidActionOrder.Withf("target coordinate is out of range"))
	}

	now := s.now()
	order := &domain.ActionOrder{
		ID:          uuid.New().String(),
		AssignedTo:  req.AssignedTo,
		ZoneID:      req.ZoneID,
		Title:       req.Title,
		Description: req.Description,
		Status:      domain.ActionOrderStatusPending,
		Priority:    priority,
		Target:      req.Target,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(
		attribute.String("action_order_id", order.ID),
		attribute.String("priority", string(order.Priority)),
	)
	span.SetStatus(codes.Ok, "")
	return order, nil
}

func (s *actionOrderService) ListActionOrders(ctx context.Context, filter repository.ActionOrderFilter) ([]*domain.ActionOrder, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.action_order.list")
	defer span.End()

	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Int("count", len(orders)))
	span.SetStatus(codes.Ok, "")
	return orders, nil
}

func (s *actionOrderService) AcknowledgeActionOrder(ctx context.Context, orderID string) (*domain.ActionOrder, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.action_order.acknowledge")
	defer span.End()

	span.SetAttributes(attribute.String("action_order_id", orderID))

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fail(span, err)
	}
	if err := order.Acknowledge(s.now()); err != nil {
		return nil, fail(span, err)
	}
	if err := s.orders.Update(ctx, order, domain.ActionOrderStatusPending); err != nil {
		return nil, fail(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return order, nil
}

func (s *actionOrderService) CompleteActionOrder(ctx context.Context, orderID string, req *CompleteActionOrderRequest) (*domain.ActionOrder, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.action_order.complete")
	defer span.End()

	span.SetAttributes(attribute.String("action_order_id", orderID))

	if req == nil {
		req = &CompleteActionOrderRequest{}
	}
	if req.Location != nil && !validCoordinate(*req.Location) {
		return nil, fail(span, domain.ErrInvalidActionOrder.Withf("completion coordinate is out of range"))
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fail(span, err)
	}
	from := order.Status
	if err := order.Complete(s.now(), req.Note, req.Location, s.radius); err != nil {
		return nil, fail(span, err)
	}
	if err := s.orders.Update(ctx, order, from); err != nil {
		return nil, fail(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return order, nil
}

func validCoordinate(p domain.GeoPoint) bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}
