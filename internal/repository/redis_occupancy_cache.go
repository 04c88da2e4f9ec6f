package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	pkgredis "github.com/prohmpiriya/crowdsense/pkg/redis"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed scripts/apply_occupancy.lua
var applyOccupancyScript string

const scriptApplyOccupancy = "apply_occupancy"

// ErrCacheMiss is returned when a destination has no cached occupancy
var ErrCacheMiss = errors.New("occupancy not cached")

// Keys share a hash tag so the script stays on one cluster slot
func occupancyDestinationKey(destinationID string) string {
	return fmt.Sprintf("occupancy:{%s}:destination", destinationID)
}

func occupancyZoneKey(destinationID, zoneID string) string {
	return fmt.Sprintf("occupancy:{%s}:zone:%s", destinationID, zoneID)
}

func occupancyZoneIndexKey(destinationID string) string {
	return fmt.Sprintf("occupancy:{%s}:zones", destinationID)
}

// RedisOccupancyCache implements OccupancyCache with a Lua script per update
type RedisOccupancyCache struct {
	client *pkgredis.Client
	ttl    time.Duration
}

// NewRedisOccupancyCache creates a new RedisOccupancyCache. A zero ttl keeps entries forever.
func NewRedisOccupancyCache(client *pkgredis.Client, ttl time.Duration) *RedisOccupancyCache {
	return &RedisOccupancyCache{client: client, ttl: ttl}
}

// LoadScripts loads the Lua script into Redis
func (c *RedisOccupancyCache) LoadScripts(ctx context.Context) error {
	if _, err := c.client.LoadScript(ctx, scriptApplyOccupancy, applyOccupancyScript); err != nil {
		return fmt.Errorf("failed to load script %s: %w", scriptApplyOccupancy, err)
	}
	return nil
}

func occupancyArgs(u *domain.CapacityUpdate, ttl time.Duration) ([]string, []interface{}) {
	keys := []string{
		occupancyDestinationKey(u.DestinationID),
		occupancyZoneKey(u.DestinationID, u.ZoneID),
		occupancyZoneIndexKey(u.DestinationID),
	}
	args := []interface{}{
		u.DestinationCurrent,     // ARGV[1]
		u.DestinationMax,         // ARGV[2]
		u.OccurredAt.UnixMilli(), // ARGV[3]
		int64(ttl / time.Second), // ARGV[4]
		u.ZoneID,                 // ARGV[5]
		u.ZoneName,               // ARGV[6]
		u.ZoneCurrent,            // ARGV[7]
		u.ZoneMax,                // ARGV[8]
		string(u.ZoneStatus),     // ARGV[9]
		string(u.ZoneAlertLevel), // ARGV[10]
		u.DestinationVersion,     // ARGV[11]
		u.ZoneVersion,            // ARGV[12]
	}
	return keys, args
}

// Apply writes update into the cache atomically for destination and zone.
// Hashes already holding a newer or equal counter version are left untouched.
func (c *RedisOccupancyCache) Apply(ctx context.Context, update *domain.CapacityUpdate) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.occupancy.apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("destination_id", update.DestinationID),
		attribute.String("zone_id", update.ZoneID),
	)

	keys, args := occupancyArgs(update, c.ttl)
	applied, err := c.client.EvalWithFallback(ctx, scriptApplyOccupancy, applyOccupancyScript, keys, args...).Int64()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to execute %s script: %w", scriptApplyOccupancy, err)
	}

	span.SetAttributes(attribute.Int64("applied", applied))
	span.SetStatus(codes.Ok, "")
	return nil
}

// Get reads a destination's cached counters and every cached zone
func (c *RedisOccupancyCache) Get(ctx context.Context, destinationID string) (*OccupancySnapshot, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.occupancy.get")
	defer span.End()
	span.SetAttributes(attribute.String("destination_id", destinationID))

	dest, err := c.client.HGetAll(ctx, occupancyDestinationKey(destinationID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read destination occupancy: %w", err)
	}
	if len(dest) == 0 {
		span.SetStatus(codes.Ok, "miss")
		return nil, ErrCacheMiss
	}

	snap := &OccupancySnapshot{
		DestinationID:      destinationID,
		DestinationCurrent: atoi(dest["current"]),
		DestinationMax:     atoi(dest["max"]),
		UpdatedAt:          time.UnixMilli(int64(atoi(dest["ts"]))),
		Zones:              make(map[string]ZoneOccupancy),
	}

	zoneIDs, err := c.client.SMembers(ctx, occupancyZoneIndexKey(destinationID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read zone index: %w", err)
	}

	if len(zoneIDs) > 0 {
		pipe := c.client.Pipeline()
		cmds := make([]*redis.MapStringStringCmd, len(zoneIDs))
		for i, id := range zoneIDs {
			cmds[i] = pipe.HGetAll(ctx, occupancyZoneKey(destinationID, id))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to read zone occupancy: %w", err)
		}
		for i, cmd := range cmds {
			z := cmd.Val()
			if len(z) == 0 {
				continue
			}
			snap.Zones[zoneIDs[i]] = ZoneOccupancy{
				ZoneID:     zoneIDs[i],
				Name:       z["name"],
				Current:    atoi(z["current"]),
				Max:        atoi(z["max"]),
				Status:     domain.ZoneStatus(z["status"]),
				AlertLevel: domain.AlertLevel(z["alert_level"]),
			}
		}
	}

	span.SetAttributes(attribute.Int("zone_count", len(snap.Zones)))
	span.SetStatus(codes.Ok, "")
	return snap, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
