package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AvailabilityRequest asks whether a visitor group fits on a date
type AvailabilityRequest struct {
	DestinationID string
	Date          time.Time
	VisitorCount  int
	// ZoneID is optional
	ZoneID string
}

// AvailabilityResult is the admission decision for a request
type AvailabilityResult struct {
	IsAvailable       bool   `json:"is_available"`
	Reason            string `json:"reason,omitempty"`
	AvailableSlots    int    `json:"available_slots"`
	EffectiveCapacity int    `json:"effective_capacity"`
	AppliedRule       string `json:"applied_rule"`
	DestinationSlots  int    `json:"destination_slots"`
	ZoneSlots         *int   `json:"zone_slots,omitempty"`
	ZoneName          string `json:"zone_name,omitempty"`
}

// AvailabilityChecker decides admission feasibility at destination and zone level
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, req *AvailabilityRequest) (*AvailabilityResult, error)
}

type availabilityChecker struct {
	resolver RuleResolver
	zones    repository.ZoneRepository
	bookings repository.BookingRepository
}

// NewAvailabilityChecker creates a new AvailabilityChecker
func NewAvailabilityChecker(resolver RuleResolver, zones repository.ZoneRepository, bookings repository.BookingRepository) AvailabilityChecker {
	return &availabilityChecker{resolver: resolver, zones: zones, bookings: bookings}
}

// CheckAvailability compares committed demand plus the request against the
// effective ceiling. Filling the ceiling exactly is allowed.
func (c *availabilityChecker) CheckAvailability(ctx context.Context, req *AvailabilityRequest) (*AvailabilityResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.check")
	defer span.End()

	span.SetAttributes(
		attribute.String("destination_id", req.DestinationID),
		attribute.String("zone_id", req.ZoneID),
		attribute.String("date", req.Date.Format(domain.DateLayout)),
		attribute.Int("visitor_count", req.VisitorCount),
	)

	if req.VisitorCount <= 0 {
		span.SetStatus(codes.Error, "invalid visitor count")
		return nil, domain.ErrInvalidVisitorCount
	}

	capacity, err := c.resolver.ResolveEffectiveCapacity(ctx, req.DestinationID, req.Date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	committed, err := c.bookings.SumVisitorsOnDate(ctx, repository.VisitorSumFilter{
		DestinationID: req.DestinationID,
		Date:          req.Date,
		Statuses:      domain.CommittedStatuses,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	day := req.Date.Format(domain.DateLayout)
	result := &AvailabilityResult{
		EffectiveCapacity: capacity.Capacity,
		AppliedRule:       capacity.AppliedRule,
		DestinationSlots:  capacity.Capacity - committed,
	}
	destOK := result.DestinationSlots >= req.VisitorCount
	slots := result.DestinationSlots

	zoneOK := true
	var zoneSlots int
	var zone *domain.Zone
	if req.ZoneID != "" {
		zone, err = c.zones.GetByID(ctx, req.ZoneID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if zone.DestinationID != req.DestinationID {
			span.SetStatus(codes.Error, "zone belongs to another destination")
			return nil, domain.ErrZoneNotFound.Withf("zone %s is not part of destination %s", req.ZoneID, req.DestinationID)
		}

		zoneCommitted, err := c.bookings.SumVisitorsOnDate(ctx, repository.VisitorSumFilter{
			DestinationID: req.DestinationID,
			ZoneID:        req.ZoneID,
			Date:          req.Date,
			Statuses:      domain.CommittedStatuses,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		zoneSlots = zone.MaxCapacity - zoneCommitted
		result.ZoneSlots = &zoneSlots
		result.ZoneName = zone.Name
		zoneOK = zoneSlots >= req.VisitorCount
		if zoneSlots < slots {
			slots = zoneSlots
		}
	}
	result.AvailableSlots = nonNegative(slots)

	switch {
	case !zoneOK && (destOK || zoneSlots <= result.DestinationSlots):
		result.Reason = fmt.Sprintf("Zone %q has only %d slots left on %s", zone.Name, nonNegative(zoneSlots), day)
	case !destOK:
		if capacity.IsBase() {
			result.Reason = fmt.Sprintf("Only %d slots left on %s", nonNegative(result.DestinationSlots), day)
		} else {
			result.Reason = fmt.Sprintf("Only %d slots left on %s (capacity limited by %q)", nonNegative(result.DestinationSlots), day, capacity.AppliedRule)
		}
	default:
		result.IsAvailable = true
	}

	span.SetAttributes(
		attribute.Bool("is_available", result.IsAvailable),
		attribute.Int("available_slots", result.AvailableSlots),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
