package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOccupancyService(f *fixture, cache repository.OccupancyCache) OccupancyService {
	return NewOccupancyService(f.store.Destinations(), f.store.Zones(), f.resolver, cache, &OccupancyServiceConfig{
		Location: time.UTC,
		Clock:    fixedClock(scanTime),
	})
}

func TestOccupancyService_FromCache(t *testing.T) {
	f := newFixture(t)
	f.store.AddCapacityRule(mustCapacityRule(t, domain.CapacityRuleParams{
		Name: "Saturday", Priority: 1, ApplicableDays: []int{6}, AbsoluteCapacity: intPtr(600),
	}))
	cache := &MockOccupancyCache{
		GetFunc: func(ctx context.Context, destinationID string) (*repository.OccupancySnapshot, error) {
			return &repository.OccupancySnapshot{
				DestinationID:      destinationID,
				DestinationCurrent: 42,
				DestinationMax:     1000,
				UpdatedAt:          scanTime.Add(-time.Second),
				Zones: map[string]repository.ZoneOccupancy{
					"zone-2": {ZoneID: "zone-2", Name: "Museum", Current: 9, Max: 10, Status: domain.ZoneStatusRed, AlertLevel: domain.AlertLevelHigh},
					"zone-1": {ZoneID: "zone-1", Name: "Ramparts", Current: 33, Max: 100, Status: domain.ZoneStatusGreen, AlertLevel: domain.AlertLevelNormal},
				},
			}, nil
		},
	}

	view, err := newOccupancyService(f, cache).GetOccupancy(context.Background(), "dest-1")
	require.NoError(t, err)
	assert.Equal(t, OccupancySourceCache, view.Source)
	assert.Equal(t, 42, view.Current)
	assert.Equal(t, 600, view.EffectiveCapacity)
	assert.Equal(t, "Saturday", view.AppliedRule)
	assert.Equal(t, 1000, view.MaxDailyCapacity)
	require.Len(t, view.Zones, 2)
	assert.Equal(t, "Museum", view.Zones[0].Name)
	assert.InDelta(t, 0.9, view.Zones[0].Ratio, 1e-9)
}

func TestOccupancyService_FallsBackToStore(t *testing.T) {
	tests := []struct {
		name  string
		cache repository.OccupancyCache
	}{
		{"no cache", nil},
		{"cache miss", &MockOccupancyCache{}},
		{"cache error", &MockOccupancyCache{
			GetFunc: func(ctx context.Context, id string) (*repository.OccupancySnapshot, error) {
				return nil, errors.New("connection refused")
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := f.confirmed(t, "zone-2", 7)
			_, err := f.gate.ScanEntry(context.Background(), b.QRCode, "gate-a")
			require.NoError(t, err)

			view, err := newOccupancyService(f, tt.cache).GetOccupancy(context.Background(), "dest-1")
			require.NoError(t, err)
			assert.Equal(t, OccupancySourceStore, view.Source)
			assert.Equal(t, 7, view.Current)
			assert.Equal(t, BaseCapacityLabel, view.AppliedRule)
			require.Len(t, view.Zones, 2)
			assert.Equal(t, "Museum", view.Zones[0].Name)
			assert.Equal(t, domain.ZoneStatusYellow, view.Zones[0].Status)
		})
	}
}

func TestOccupancyService_UnknownDestination(t *testing.T) {
	f := newFixture(t)
	_, err := newOccupancyService(f, nil).GetOccupancy(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrDestinationNotFound)
}
