package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/dto"
	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/prohmpiriya/crowdsense/pkg/middleware"
	"github.com/prohmpiriya/crowdsense/pkg/response"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookingService service.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// CreateBooking handles POST /bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, _ := middleware.GetUserID(c)

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BindError(c, err)
		return
	}

	visitDate, err := domain.ParseDate(req.VisitDate)
	if err != nil {
		span.SetStatus(codes.Error, "invalid visit date")
		response.BadRequest(c, "visit_date must be YYYY-MM-DD")
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("destination_id", req.DestinationID),
		attribute.String("zone_id", req.ZoneID),
		attribute.Int("visitors", req.VisitorCount),
	)

	booking, err := h.bookingService.CreateBooking(ctx, &service.CreateBookingRequest{
		UserID:         userID,
		DestinationID:  req.DestinationID,
		ZoneID:         req.ZoneID,
		VisitDate:      visitDate,
		VisitorCount:   req.VisitorCount,
		VisitorDetails: req.Details(),
	})
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.FromBooking(booking))
}

// ListBookings handles GET /bookings. A reference query parameter looks up
// a single booking instead of listing.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, _ := middleware.GetUserID(c)

	if ref := c.Query("reference"); ref != "" {
		booking, err := h.bookingService.GetBookingByReference(ctx, ref)
		if err == nil && booking.UserID != userID {
			err = domain.ErrBookingNotFound
		}
		if err != nil {
			fail(c, span, err)
			return
		}
		span.SetStatus(codes.Ok, "")
		response.Success(c, dto.FromBooking(booking))
		return
	}

	var q dto.ListBookingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid query")
		response.BindError(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	bookings, err := h.bookingService.ListUserBookings(ctx, userID, q.Limit, q.Offset)
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.PaginatedResponse{
		Items:  dto.FromBookings(bookings),
		Limit:  q.Limit,
		Offset: q.Offset,
		Count:  len(bookings),
	})
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	booking, err := h.ownBooking(c)
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromBooking(booking))
}

// ConfirmBooking handles POST /bookings/:id/confirm
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.confirm")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	if _, err := h.ownBooking(c); err != nil {
		fail(c, span, err)
		return
	}

	booking, err := h.bookingService.ConfirmBooking(ctx, c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromBooking(booking))
}

// CancelBooking handles POST /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CancelBookingRequest
	// Reason is optional, so an empty body is fine
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request")
			response.BindError(c, err)
			return
		}
	}

	if _, err := h.ownBooking(c); err != nil {
		fail(c, span, err)
		return
	}

	booking, err := h.bookingService.CancelBooking(ctx, c.Param("id"), req.Reason)
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromBooking(booking))
}

// CheckIn handles POST /bookings/:id/check-in. Staff use it to admit a
// group without scanning a token.
func (h *BookingHandler) CheckIn(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.check_in")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	span.SetAttributes(attribute.String("booking_id", c.Param("id")))

	booking, err := h.bookingService.CheckIn(ctx, c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromBooking(booking))
}

// CheckOut handles POST /bookings/:id/check-out
func (h *BookingHandler) CheckOut(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.check_out")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	span.SetAttributes(attribute.String("booking_id", c.Param("id")))

	booking, err := h.bookingService.CheckOut(ctx, c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromBooking(booking))
}

// ownBooking loads the booking named by :id and hides it from other users
func (h *BookingHandler) ownBooking(c *gin.Context) (*domain.Booking, error) {
	userID, _ := middleware.GetUserID(c)
	booking, err := h.bookingService.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, domain.ErrBookingNotFound
	}
	return booking, nil
}
