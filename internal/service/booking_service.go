package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/metrics"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
	"github.com/prohmpiriya/crowdsense/pkg/retry"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CreateBookingRequest asks to book a visit
type CreateBookingRequest struct {
	UserID         string
	DestinationID  string
	ZoneID         string
	VisitDate      time.Time
	VisitorCount   int
	VisitorDetails []domain.VisitorDetail
}

// BookingService owns the booking lifecycle and is the only writer of
// occupancy counters
type BookingService interface {
	// CreateBooking admits and prices a new PENDING booking
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*domain.Booking, error)

	// ConfirmBooking issues the entry token and marks payment completed
	ConfirmBooking(ctx context.Context, bookingID string) (*domain.Booking, error)

	// CheckIn moves a CONFIRMED booking to CHECKED_IN and occupies its slots
	CheckIn(ctx context.Context, bookingID string) (*domain.Booking, error)

	// CheckOut moves a CHECKED_IN booking to COMPLETED and releases its slots
	CheckOut(ctx context.Context, bookingID string) (*domain.Booking, error)

	// CancelBooking cancels a booking, releasing slots if visitors are inside
	CancelBooking(ctx context.Context, bookingID, reason string) (*domain.Booking, error)

	GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error)
	ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	// Location decides which calendar day "today" is
	Location *time.Location
	// ReferenceAttempts bounds reference regeneration on collisions
	ReferenceAttempts int
	// Clock defaults to time.Now
	Clock func() time.Time
}

type bookingService struct {
	destinations repository.DestinationRepository
	bookings     repository.BookingRepository
	availability AvailabilityChecker
	pricing      PricingEngine
	health       ZoneHealthTracker
	tokens       TokenIssuer
	broadcaster  Broadcaster
	notifier     NotificationSink
	dispatcher   Dispatcher
	location     *time.Location
	attempts     int
	now          func() time.Time
}

// BookingServiceDeps groups the collaborators of the booking service
type BookingServiceDeps struct {
	Destinations repository.DestinationRepository
	Bookings     repository.BookingRepository
	Availability AvailabilityChecker
	Pricing      PricingEngine
	Health       ZoneHealthTracker
	Tokens       TokenIssuer
	Broadcaster  Broadcaster
	Notifier     NotificationSink
	Dispatcher   Dispatcher
}

// NewBookingService creates a new booking service
func NewBookingService(deps BookingServiceDeps, cfg *BookingServiceConfig) BookingService {
	loc := time.Local
	attempts := 5
	now := time.Now
	if cfg != nil {
		if cfg.Location != nil {
			loc = cfg.Location
		}
		if cfg.ReferenceAttempts > 0 {
			attempts = cfg.ReferenceAttempts
		}
		if cfg.Clock != nil {
			now = cfg.Clock
		}
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewNoOpBroadcaster()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewNoOpNotificationSink()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = InlineDispatcher{}
	}
	return &bookingService{
		destinations: deps.Destinations,
		bookings:     deps.Bookings,
		availability: deps.Availability,
		pricing:      deps.Pricing,
		health:       deps.Health,
		tokens:       deps.Tokens,
		broadcaster:  deps.Broadcaster,
		notifier:     deps.Notifier,
		dispatcher:   deps.Dispatcher,
		location:     loc,
		attempts:     attempts,
		now:          now,
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	if req == nil || req.VisitorCount <= 0 {
		span.SetStatus(codes.Error, "invalid visitor count")
		return nil, domain.ErrInvalidVisitorCount
	}
	if req.UserID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if req.DestinationID == "" {
		span.SetStatus(codes.Error, "invalid destination_id")
		return nil, domain.ErrInvalidDestinationID
	}
	if len(req.VisitorDetails) > 0 && len(req.VisitorDetails) != req.VisitorCount {
		span.SetStatus(codes.Error, "visitor details mismatch")
		return nil, domain.ErrVisitorDetailsCount
	}

	visitDate := domain.DateOnly(req.VisitDate)
	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("destination_id", req.DestinationID),
		attribute.String("zone_id", req.ZoneID),
		attribute.String("visit_date", visitDate.Format(domain.DateLayout)),
		attribute.Int("visitor_count", req.VisitorCount),
	)

	dest, err := s.destinations.GetByID(ctx, req.DestinationID)
	if err != nil {
		return nil, fail(span, err)
	}
	if !dest.IsActive() {
		metrics.RecordDenial(ctx, dest.ID, domain.ErrDestinationUnavailable.Code)
		return nil, fail(span, domain.ErrDestinationUnavailable.Withf("%s is %s", dest.Name, dest.Status))
	}

	now := s.now()
	if visitDate.Before(s.today(now)) {
		return nil, fail(span, domain.ErrVisitDateInPast)
	}

	avail, err := s.availability.CheckAvailability(ctx, &AvailabilityRequest{
		DestinationID: req.DestinationID,
		Date:          visitDate,
		VisitorCount:  req.VisitorCount,
		ZoneID:        req.ZoneID,
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if !avail.IsAvailable {
		metrics.RecordDenial(ctx, dest.ID, domain.ErrCapacityExceeded.Code)
		return nil, fail(span, domain.DeniedError(avail.Reason))
	}

	quote, err := s.pricing.Quote(ctx, &QuoteRequest{
		DestinationID:  req.DestinationID,
		VisitDate:      visitDate,
		VisitorCount:   req.VisitorCount,
		VisitorDetails: req.VisitorDetails,
	})
	if err != nil {
		return nil, fail(span, err)
	}

	booking := &domain.Booking{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		DestinationID:    req.DestinationID,
		ZoneID:           req.ZoneID,
		NumberOfVisitors: req.VisitorCount,
		VisitDate:        visitDate,
		Status:           domain.BookingStatusPending,
		PaymentStatus:    domain.PaymentStatusPending,
		TotalAmount:      quote.TotalPrice,
		PricePerPerson:   quote.FinalPricePerPerson,
		SurgeMultiplier:  quote.SurgeMultiplier,
		Currency:         quote.Currency,
		VisitorDetails:   req.VisitorDetails,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	result := retry.Do(ctx, &retry.Config{
		MaxRetries:      s.attempts - 1,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     50 * time.Millisecond,
		Multiplier:      2,
	}, func(ctx context.Context) error {
		ref, err := NewBookingReference(s.now())
		if err != nil {
			return retry.Permanent(err)
		}
		booking.BookingReference = ref
		err = s.bookings.Create(ctx, booking)
		if err != nil && !errors.Is(err, domain.ErrDuplicateReference) {
			return retry.Permanent(err)
		}
		return err
	})
	if result.Err != nil {
		err := result.Err
		if errors.Is(err, retry.ErrMaxRetriesExceeded) {
			err = result.LastError
		}
		return nil, fail(span, err)
	}

	metrics.RecordBookingCreated(ctx, booking.DestinationID, booking.NumberOfVisitors)
	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("booking_reference", booking.BookingReference),
		attribute.Int("reference_attempts", result.Attempts),
	)
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) ConfirmBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.confirm")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fail(span, err)
	}

	now := s.now()
	token, err := s.tokens.Issue(booking.ID, now)
	if err != nil {
		return nil, fail(span, err)
	}
	if err := booking.Confirm(token, now); err != nil {
		return nil, fail(span, err)
	}
	if _, err := s.bookings.Transition(ctx, booking, domain.BookingStatusPending, nil); err != nil {
		return nil, fail(span, err)
	}

	metrics.RecordBookingConfirmed(ctx, booking.DestinationID)
	confirmed := *booking
	s.dispatcher.Dispatch(TaskNotify, func(ctx context.Context) error {
		return s.notifier.NotifyBookingConfirmed(ctx, &confirmed, token)
	})

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) CheckIn(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.check_in")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fail(span, err)
	}

	now := s.now()
	if err := booking.CheckIn(s.localNow(now)); err != nil {
		return nil, fail(span, err)
	}
	res, err := s.bookings.Transition(ctx, booking, domain.BookingStatusConfirmed, booking.OccupancyDelta(1))
	if err != nil {
		// Lost a race with another scan: report what the winner did
		if errors.Is(err, domain.ErrInvalidTransition) {
			err = s.explainCheckInConflict(ctx, bookingID, now, err)
		}
		return nil, fail(span, err)
	}

	s.afterCounterChange(ctx, booking, res, domain.CapacityReasonCheckIn, booking.NumberOfVisitors)
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) CheckOut(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.check_out")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fail(span, err)
	}

	now := s.now()
	if err := booking.CheckOut(now); err != nil {
		return nil, fail(span, err)
	}
	res, err := s.bookings.Transition(ctx, booking, domain.BookingStatusCheckedIn, booking.OccupancyDelta(-1))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			err = domain.ErrNotCheckedIn
		}
		return nil, fail(span, err)
	}

	s.afterCounterChange(ctx, booking, res, domain.CapacityReasonCheckOut, -booking.NumberOfVisitors)
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, bookingID, reason string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fail(span, err)
	}

	from := booking.Status
	now := s.now()
	if err := booking.Cancel(reason, now); err != nil {
		return nil, fail(span, err)
	}

	var delta *domain.CounterDelta
	if from == domain.BookingStatusCheckedIn {
		delta = booking.OccupancyDelta(-1)
	}
	res, err := s.bookings.Transition(ctx, booking, from, delta)
	if err != nil {
		return nil, fail(span, err)
	}

	metrics.RecordBookingCancelled(ctx, booking.DestinationID)
	if delta != nil {
		s.afterCounterChange(ctx, booking, res, domain.CapacityReasonCancel, delta.Delta)
	}

	span.SetAttributes(attribute.String("previous_status", string(from)))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get_by_reference")
	defer span.End()

	booking, err := s.bookings.GetByReference(ctx, reference)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_user")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := s.bookings.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// afterCounterChange reclassifies the zone and hands the new occupancy to the
// broadcaster. Failures here never undo the committed transition. The update
// is ordered by the counter versions the store returned.
func (s *bookingService) afterCounterChange(ctx context.Context, booking *domain.Booking, res *repository.TransitionResult, reason string, delta int) {
	metrics.RecordOccupancyChange(ctx, booking.DestinationID, delta)
	if res == nil || res.Destination == nil {
		return
	}

	zone := res.Zone
	if zone != nil {
		recomputed, err := s.health.Recompute(ctx, zone.ID)
		if err != nil {
			logger.Get().Warn("zone health recompute failed",
				zap.String("zone_id", zone.ID),
				zap.Error(err),
			)
		} else {
			zone = recomputed
		}
	}

	update := domain.NewCapacityUpdate(res.Destination, zone, reason, delta, s.now())
	s.dispatcher.Dispatch(TaskBroadcast, func(ctx context.Context) error {
		return s.broadcaster.PublishCapacityUpdate(ctx, update)
	})
}

func (s *bookingService) explainCheckInConflict(ctx context.Context, bookingID string, now time.Time, cause error) error {
	current, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return cause
	}
	if err := current.CanCheckIn(s.localNow(now)); err != nil {
		return err
	}
	return cause
}

func (s *bookingService) localNow(now time.Time) time.Time {
	return now.In(s.location)
}

func (s *bookingService) today(now time.Time) time.Time {
	return domain.DateOnly(s.localNow(now))
}

// NewBookingReference returns CS-<base36 millis>-<8 hex>
func NewBookingReference(now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	millis := strconv.FormatInt(now.UnixMilli(), 36)
	return "CS-" + strings.ToUpper(millis) + "-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
