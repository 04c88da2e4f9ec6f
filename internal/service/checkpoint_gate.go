package service

import (
	"context"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/metrics"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EntryResult is returned to the checkpoint after a successful entry scan
type EntryResult struct {
	BookingID    string `json:"booking_id"`
	VisitorCount int    `json:"visitor_count"`
	ZoneName     string `json:"zone_name,omitempty"`
}

// ExitResult is returned to the checkpoint after a successful exit scan
type ExitResult struct {
	BookingID string `json:"booking_id"`
	ZoneName  string `json:"zone_name,omitempty"`
}

// CheckpointGate validates entry tokens at physical checkpoints
type CheckpointGate interface {
	ScanEntry(ctx context.Context, token, checkpointID string) (*EntryResult, error)
	ScanExit(ctx context.Context, token, checkpointID string) (*ExitResult, error)
}

// CheckpointGateConfig contains configuration for the checkpoint gate
type CheckpointGateConfig struct {
	Location *time.Location
	Clock    func() time.Time
}

type checkpointGate struct {
	bookings  repository.BookingRepository
	zones     repository.ZoneRepository
	lifecycle BookingService
	location  *time.Location
	now       func() time.Time
}

// NewCheckpointGate creates a new CheckpointGate
func NewCheckpointGate(
	bookings repository.BookingRepository,
	zones repository.ZoneRepository,
	lifecycle BookingService,
	cfg *CheckpointGateConfig,
) CheckpointGate {
	loc := time.Local
	now := time.Now
	if cfg != nil {
		if cfg.Location != nil {
			loc = cfg.Location
		}
		if cfg.Clock != nil {
			now = cfg.Clock
		}
	}
	return &checkpointGate{bookings: bookings, zones: zones, lifecycle: lifecycle, location: loc, now: now}
}

// ScanEntry admits the booking's group. Every rejection happens before any
// counter moves.
func (g *checkpointGate) ScanEntry(ctx context.Context, token, checkpointID string) (*EntryResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkpoint.scan_entry")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordScanDuration(ctx, "entry", float64(time.Since(start).Milliseconds()))
	}()

	span.SetAttributes(attribute.String("checkpoint_id", checkpointID))

	booking, err := g.lookup(ctx, token)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("booking_id", booking.ID))

	if err := booking.CanCheckIn(g.now().In(g.location)); err != nil {
		metrics.RecordDenial(ctx, booking.DestinationID, domain.CodeOf(err))
		return nil, fail(span, err)
	}

	result := &EntryResult{BookingID: booking.ID, VisitorCount: booking.NumberOfVisitors}
	if booking.HasZone() {
		zone, err := g.zones.GetByID(ctx, booking.ZoneID)
		if err != nil {
			return nil, fail(span, err)
		}
		if zone.IsBlocked() {
			metrics.RecordDenial(ctx, booking.DestinationID, domain.ErrZoneBlocked.Code)
			return nil, fail(span, domain.ErrZoneBlocked.Withf("zone %q is at %s alert level, entry is blocked", zone.Name, zone.AlertLevel))
		}
		result.ZoneName = zone.Name
	}

	if _, err := g.lifecycle.CheckIn(ctx, booking.ID); err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.Int("visitor_count", booking.NumberOfVisitors))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ScanExit checks the booking's group out
func (g *checkpointGate) ScanExit(ctx context.Context, token, checkpointID string) (*ExitResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkpoint.scan_exit")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordScanDuration(ctx, "exit", float64(time.Since(start).Milliseconds()))
	}()

	span.SetAttributes(attribute.String("checkpoint_id", checkpointID))

	booking, err := g.lookup(ctx, token)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("booking_id", booking.ID))

	if booking.Status != domain.BookingStatusCheckedIn {
		return nil, fail(span, domain.ErrNotCheckedIn)
	}

	result := &ExitResult{BookingID: booking.ID}
	if booking.HasZone() {
		if zone, err := g.zones.GetByID(ctx, booking.ZoneID); err == nil {
			result.ZoneName = zone.Name
		}
	}

	if _, err := g.lifecycle.CheckOut(ctx, booking.ID); err != nil {
		return nil, fail(span, err)
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (g *checkpointGate) lookup(ctx context.Context, token string) (*domain.Booking, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	booking, err := g.bookings.GetByToken(ctx, token)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	return booking, nil
}
