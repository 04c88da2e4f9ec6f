package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const destinationColumns = `id, name, max_daily_capacity, current_capacity, counter_version, status, created_at, updated_at`

const zoneColumns = `id, destination_id, name, max_capacity, current_capacity, counter_version, status, alert_level, updated_at`

func scanDestination(row pgx.Row) (*domain.Destination, error) {
	d := &domain.Destination{}
	var status string
	if err := row.Scan(&d.ID, &d.Name, &d.MaxDailyCapacity, &d.CurrentCapacity, &d.CounterVersion, &status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Status = domain.DestinationStatus(status)
	return d, nil
}

func scanZone(row pgx.Row) (*domain.Zone, error) {
	z := &domain.Zone{}
	var status, level string
	if err := row.Scan(&z.ID, &z.DestinationID, &z.Name, &z.MaxCapacity, &z.CurrentCapacity, &z.CounterVersion, &status, &level, &z.UpdatedAt); err != nil {
		return nil, err
	}
	z.Status = domain.ZoneStatus(status)
	z.AlertLevel = domain.AlertLevel(level)
	return z, nil
}

// PostgresDestinationRepository implements DestinationRepository using pgxpool
type PostgresDestinationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresDestinationRepository creates a new PostgresDestinationRepository
func NewPostgresDestinationRepository(pool *pgxpool.Pool) *PostgresDestinationRepository {
	return &PostgresDestinationRepository{pool: pool}
}

// GetByID retrieves a destination by its ID
func (r *PostgresDestinationRepository) GetByID(ctx context.Context, id string) (*domain.Destination, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.destination.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("destination_id", id))

	d, err := scanDestination(r.pool.QueryRow(ctx, `SELECT `+destinationColumns+` FROM destinations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrDestinationNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewStoreError("failed to get destination", err)
	}

	span.SetStatus(codes.Ok, "")
	return d, nil
}

// List returns every destination ordered by name
func (r *PostgresDestinationRepository) List(ctx context.Context) ([]*domain.Destination, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.destination.list")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT `+destinationColumns+` FROM destinations ORDER BY name`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewStoreError("failed to list destinations", err)
	}
	defer rows.Close()

	out := make([]*domain.Destination, 0)
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, domain.NewStoreError("failed to scan destination", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("failed to iterate destinations", err)
	}

	span.SetStatus(codes.Ok, "")
	return out, nil
}

// PostgresZoneRepository implements ZoneRepository using pgxpool
type PostgresZoneRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresZoneRepository creates a new PostgresZoneRepository
func NewPostgresZoneRepository(pool *pgxpool.Pool) *PostgresZoneRepository {
	return &PostgresZoneRepository{pool: pool}
}

// GetByID retrieves a zone by its ID
func (r *PostgresZoneRepository) GetByID(ctx context.Context, id string) (*domain.Zone, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("zone_id", id))

	z, err := scanZone(r.pool.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrZoneNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewStoreError("failed to get zone", err)
	}

	span.SetStatus(codes.Ok, "")
	return z, nil
}

// ListByDestination returns a destination's zones ordered by name
func (r *PostgresZoneRepository) ListByDestination(ctx context.Context, destinationID string) ([]*domain.Zone, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.list_by_destination")
	defer span.End()
	span.SetAttributes(attribute.String("destination_id", destinationID))

	rows, err := r.pool.Query(ctx, `SELECT `+zoneColumns+` FROM zones WHERE destination_id = $1 ORDER BY name`, destinationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewStoreError("failed to list zones", err)
	}
	defer rows.Close()

	out := make([]*domain.Zone, 0)
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, domain.NewStoreError("failed to scan zone", err)
		}
		out = append(out, z)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("failed to iterate zones", err)
	}

	span.SetStatus(codes.Ok, "")
	return out, nil
}

// UpdateHealth writes the classification only if current_capacity is unchanged
func (r *PostgresZoneRepository) UpdateHealth(ctx context.Context, zoneID string, observedCurrent int, health domain.ZoneHealth) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.update_health")
	defer span.End()
	span.SetAttributes(
		attribute.String("zone_id", zoneID),
		attribute.String("status", string(health.Status)),
	)

	tag, err := r.pool.Exec(ctx, `
		UPDATE zones
		SET status = $2, alert_level = $3, updated_at = NOW()
		WHERE id = $1 AND current_capacity = $4
	`, zoneID, string(health.Status), string(health.AlertLevel), observedCurrent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, domain.NewStoreError("failed to update zone health", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() == 1, nil
}
