package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/dto"
	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/prohmpiriya/crowdsense/pkg/response"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DestinationHandler serves capacity, availability, pricing and occupancy reads
type DestinationHandler struct {
	resolver     service.RuleResolver
	availability service.AvailabilityChecker
	pricing      service.PricingEngine
	occupancy    service.OccupancyService
	location     *time.Location
	now          func() time.Time
}

// DestinationHandlerConfig contains configuration for the destination handler
type DestinationHandlerConfig struct {
	// Location decides which day "today" is when no date is given
	Location *time.Location
	Clock    func() time.Time
}

// NewDestinationHandler creates a new destination handler
func NewDestinationHandler(
	resolver service.RuleResolver,
	availability service.AvailabilityChecker,
	pricing service.PricingEngine,
	occupancy service.OccupancyService,
	cfg *DestinationHandlerConfig,
) *DestinationHandler {
	h := &DestinationHandler{
		resolver:     resolver,
		availability: availability,
		pricing:      pricing,
		occupancy:    occupancy,
		location:     time.UTC,
		now:          time.Now,
	}
	if cfg != nil {
		if cfg.Location != nil {
			h.location = cfg.Location
		}
		if cfg.Clock != nil {
			h.now = cfg.Clock
		}
	}
	return h
}

// GetCapacity handles GET /destinations/:id/capacity
func (h *DestinationHandler) GetCapacity(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.destination.capacity")
	defer span.End()

	var q dto.CapacityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		response.BindError(c, err)
		return
	}

	date := domain.DateOnly(h.now().In(h.location))
	if q.Date != "" {
		date, _ = domain.ParseDate(q.Date)
	}

	destID := c.Param("id")
	span.SetAttributes(
		attribute.String("destination_id", destID),
		attribute.String("date", date.Format(domain.DateLayout)),
	)

	eff, err := h.resolver.ResolveEffectiveCapacity(ctx, destID, date)
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.CapacityResponse{
		DestinationID:     destID,
		Date:              date.Format(domain.DateLayout),
		EffectiveCapacity: eff.Capacity,
		MaxDailyCapacity:  eff.MaxDailyCapacity,
		AppliedRule:       eff.AppliedRule,
	})
}

// CheckAvailability handles GET /destinations/:id/availability.
// A denial is a successful answer with is_available false.
func (h *DestinationHandler) CheckAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.destination.availability")
	defer span.End()

	var q dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		response.BindError(c, err)
		return
	}
	date, _ := domain.ParseDate(q.Date)

	span.SetAttributes(
		attribute.String("destination_id", c.Param("id")),
		attribute.String("zone_id", q.ZoneID),
		attribute.Int("visitors", q.VisitorCount),
	)

	result, err := h.availability.CheckAvailability(ctx, &service.AvailabilityRequest{
		DestinationID: c.Param("id"),
		Date:          date,
		VisitorCount:  q.VisitorCount,
		ZoneID:        q.ZoneID,
	})
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetAttributes(attribute.Bool("is_available", result.IsAvailable))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// Quote handles POST /destinations/:id/quote
func (h *DestinationHandler) Quote(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.destination.quote")
	defer span.End()

	var req dto.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BindError(c, err)
		return
	}
	date, _ := domain.ParseDate(req.VisitDate)

	quote, err := h.pricing.Quote(ctx, &service.QuoteRequest{
		DestinationID:  c.Param("id"),
		VisitDate:      date,
		VisitorCount:   req.VisitorCount,
		VisitorDetails: req.Details(),
	})
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetAttributes(attribute.Float64("surge_multiplier", quote.SurgeMultiplier))
	span.SetStatus(codes.Ok, "")
	response.Success(c, quote)
}

// GetOccupancy handles GET /destinations/:id/occupancy
func (h *DestinationHandler) GetOccupancy(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.destination.occupancy")
	defer span.End()

	view, err := h.occupancy.GetOccupancy(ctx, c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetAttributes(attribute.String("source", view.Source))
	span.SetStatus(codes.Ok, "")
	response.Success(c, view)
}
