package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Occupancy sources
const (
	OccupancySourceCache = "cache"
	OccupancySourceStore = "store"
)

// ZoneOccupancyView is one zone on the dashboard
type ZoneOccupancyView struct {
	ZoneID     string            `json:"zone_id"`
	Name       string            `json:"name"`
	Current    int               `json:"current"`
	Max        int               `json:"max"`
	Ratio      float64           `json:"ratio"`
	Status     domain.ZoneStatus `json:"status"`
	AlertLevel domain.AlertLevel `json:"alert_level"`
}

// OccupancyView is the live dashboard of a destination
type OccupancyView struct {
	DestinationID     string              `json:"destination_id"`
	Current           int                 `json:"current"`
	MaxDailyCapacity  int                 `json:"max_daily_capacity"`
	EffectiveCapacity int                 `json:"effective_capacity"`
	AppliedRule       string              `json:"applied_rule"`
	Zones             []ZoneOccupancyView `json:"zones"`
	Source            string              `json:"source"`
	AsOf              time.Time           `json:"as_of"`
}

// OccupancyService serves live destination occupancy
type OccupancyService interface {
	GetOccupancy(ctx context.Context, destinationID string) (*OccupancyView, error)
}

// OccupancyServiceConfig contains configuration for the occupancy service
type OccupancyServiceConfig struct {
	Location *time.Location
	Clock    func() time.Time
}

type occupancyService struct {
	destinations repository.DestinationRepository
	zones        repository.ZoneRepository
	resolver     RuleResolver
	cache        repository.OccupancyCache
	location     *time.Location
	now          func() time.Time
}

// NewOccupancyService creates a new OccupancyService. cache may be nil.
func NewOccupancyService(
	destinations repository.DestinationRepository,
	zones repository.ZoneRepository,
	resolver RuleResolver,
	cache repository.OccupancyCache,
	cfg *OccupancyServiceConfig,
) OccupancyService {
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
	return &occupancyService{
		destinations: destinations,
		zones:        zones,
		resolver:     resolver,
		cache:        cache,
		location:     loc,
		now:          now,
	}
}

// GetOccupancy prefers the live cache and falls back to the store on a miss
// or cache error
func (s *occupancyService) GetOccupancy(ctx context.Context, destinationID string) (*OccupancyView, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.occupancy.get")
	defer span.End()

	span.SetAttributes(attribute.String("destination_id", destinationID))

	now := s.now()
	capacity, err := s.resolver.ResolveEffectiveCapacity(ctx, destinationID, domain.DateOnly(now.In(s.location)))
	if err != nil {
		return nil, fail(span, err)
	}

	view, err := s.fromCache(ctx, destinationID)
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			logger.Get().Warn("occupancy cache read failed, using store",
				zap.String("destination_id", destinationID),
				zap.Error(err),
			)
		}
		view, err = s.fromStore(ctx, destinationID, now)
		if err != nil {
			return nil, fail(span, err)
		}
	}

	view.EffectiveCapacity = capacity.Capacity
	view.AppliedRule = capacity.AppliedRule
	view.MaxDailyCapacity = capacity.MaxDailyCapacity

	span.SetAttributes(attribute.String("source", view.Source))
	span.SetStatus(codes.Ok, "")
	return view, nil
}

func (s *occupancyService) fromCache(ctx context.Context, destinationID string) (*OccupancyView, error) {
	if s.cache == nil {
		return nil, repository.ErrCacheMiss
	}
	snap, err := s.cache.Get(ctx, destinationID)
	if err != nil {
		return nil, err
	}

	view := &OccupancyView{
		DestinationID: destinationID,
		Current:       snap.DestinationCurrent,
		Zones:         make([]ZoneOccupancyView, 0, len(snap.Zones)),
		Source:        OccupancySourceCache,
		AsOf:          snap.UpdatedAt,
	}
	for _, z := range snap.Zones {
		health := domain.Classify(z.Current, z.Max)
		view.Zones = append(view.Zones, ZoneOccupancyView{
			ZoneID:     z.ZoneID,
			Name:       z.Name,
			Current:    z.Current,
			Max:        z.Max,
			Ratio:      health.Ratio,
			Status:     z.Status,
			AlertLevel: z.AlertLevel,
		})
	}
	sortZones(view.Zones)
	return view, nil
}

func (s *occupancyService) fromStore(ctx context.Context, destinationID string, now time.Time) (*OccupancyView, error) {
	dest, err := s.destinations.GetByID(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	zones, err := s.zones.ListByDestination(ctx, destinationID)
	if err != nil {
		return nil, err
	}

	view := &OccupancyView{
		DestinationID: destinationID,
		Current:       dest.CurrentCapacity,
		Zones:         make([]ZoneOccupancyView, 0, len(zones)),
		Source:        OccupancySourceStore,
		AsOf:          now,
	}
	for _, z := range zones {
		health := z.Health()
		view.Zones = append(view.Zones, ZoneOccupancyView{
			ZoneID:     z.ID,
			Name:       z.Name,
			Current:    z.CurrentCapacity,
			Max:        z.MaxCapacity,
			Ratio:      health.Ratio,
			Status:     z.Status,
			AlertLevel: z.AlertLevel,
		})
	}
	sortZones(view.Zones)
	return view, nil
}

func sortZones(zones []ZoneOccupancyView) {
	sort.Slice(zones, func(i, j int) bool { return zones[i].Name < zones[j].Name })
}
