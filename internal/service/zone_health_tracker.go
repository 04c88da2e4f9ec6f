package service

import (
	"context"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxHealthAttempts = 3

// ZoneHealthTracker classifies zone crowding after every counter mutation
type ZoneHealthTracker interface {
	// Recompute classifies the zone's current counter and persists the result
	Recompute(ctx context.Context, zoneID string) (*domain.Zone, error)
}

type zoneHealthTracker struct {
	zones repository.ZoneRepository
}

// NewZoneHealthTracker creates a new ZoneHealthTracker
func NewZoneHealthTracker(zones repository.ZoneRepository) ZoneHealthTracker {
	return &zoneHealthTracker{zones: zones}
}

// Recompute reads the zone, classifies it and stores the health only if the
// counter has not moved in between. A moved counter is re-read, so the last
// writer always classifies the latest value.
func (t *zoneHealthTracker) Recompute(ctx context.Context, zoneID string) (*domain.Zone, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.zone_health.recompute")
	defer span.End()

	span.SetAttributes(attribute.String("zone_id", zoneID))

	var zone *domain.Zone
	for attempt := 1; attempt <= maxHealthAttempts; attempt++ {
		var err error
		zone, err = t.zones.GetByID(ctx, zoneID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		health := zone.Health()
		stored, err := t.zones.UpdateHealth(ctx, zoneID, zone.CurrentCapacity, health)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		zone.Status = health.Status
		zone.AlertLevel = health.AlertLevel
		if stored {
			span.SetAttributes(
				attribute.Int("attempts", attempt),
				attribute.String("status", string(health.Status)),
				attribute.Float64("ratio", health.Ratio),
			)
			span.SetStatus(codes.Ok, "")
			return zone, nil
		}
	}

	// A concurrent mutation moved the counter every time; its own recompute
	// will store the newer classification.
	span.SetAttributes(attribute.Int("attempts", maxHealthAttempts))
	span.SetStatus(codes.Ok, "superseded")
	return zone, nil
}
