package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const actionOrderColumns = `
	id, assigned_to, zone_id, title, description, status, priority,
	target_latitude, target_longitude, completed_latitude, completed_longitude,
	completion_note, acknowledged_at, completed_at, escalated_at, created_at, updated_at`

// PostgresActionOrderRepository implements ActionOrderRepository using pgxpool
type PostgresActionOrderRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresActionOrderRepository creates a new PostgresActionOrderRepository
func NewPostgresActionOrderRepository(pool *pgxpool.Pool) *PostgresActionOrderRepository {
	return &PostgresActionOrderRepository{pool: pool}
}

// Create inserts a new action order
func (r *PostgresActionOrderRepository) Create(ctx context.Context, order *domain.ActionOrder) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.action_order.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("action_order_id", order.ID),
		attribute.String("priority", string(order.Priority)),
	)

	tLat, tLng := splitPoint(order.Target)
	cLat, cLng := splitPoint(order.CompletedFrom)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO action_orders (`+actionOrderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		order.ID, order.AssignedTo, order.ZoneID, order.Title, order.Description,
		string(order.Status), string(order.Priority),
		tLat, tLng, cLat, cLng,
		nullString(order.CompletionNote), order.AcknowledgedAt, order.CompletedAt, order.EscalatedAt,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.NewStoreError("failed to create action order", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves an action order by its ID
func (r *PostgresActionOrderRepository) GetByID(ctx context.Context, id string) (*domain.ActionOrder, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.action_order.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("action_order_id", id))

	order, err := scanActionOrder(r.pool.QueryRow(ctx, `SELECT `+actionOrderColumns+` FROM action_orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrActionOrderNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewStoreError("failed to get action order", err)
	}

	span.SetStatus(codes.Ok, "")
	return order, nil
}

// List returns orders matching filter, newest first
func (r *PostgresActionOrderRepository) List(ctx context.Context, filter ActionOrderFilter) ([]*domain.ActionOrder, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.action_order.list")
	defer span.End()

	var (
		conds []string
		args  []interface{}
	)
	add := func(col string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if filter.AssignedTo != "" {
		add("assigned_to", filter.AssignedTo)
	}
	if filter.ZoneID != "" {
		add("zone_id", filter.ZoneID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}

	query := `SELECT ` + actionOrderColumns + ` FROM action_orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	orders, err := r.query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return orders, nil
}

// Update persists order guarded by its previous status
func (r *PostgresActionOrderRepository) Update(ctx context.Context, order *domain.ActionOrder, from domain.ActionOrderStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.action_order.update")
	defer span.End()
	span.SetAttributes(
		attribute.String("action_order_id", order.ID),
		attribute.String("status", string(order.Status)),
	)

	cLat, cLng := splitPoint(order.CompletedFrom)
	tag, err := r.pool.Exec(ctx, `
		UPDATE action_orders
		SET status = $2, priority = $3, description = $4,
			completed_latitude = $5, completed_longitude = $6, completion_note = $7,
			acknowledged_at = $8, completed_at = $9, updated_at = $10
		WHERE id = $1 AND status = $11
	`,
		order.ID, string(order.Status), string(order.Priority), order.Description,
		cLat, cLng, nullString(order.CompletionNote),
		order.AcknowledgedAt, order.CompletedAt, order.UpdatedAt,
		string(from),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.NewStoreError("failed to update action order", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "status changed")
		return domain.ErrInvalidTransition.Withf("action order %s is no longer %s", order.ID, from)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListStale returns PENDING unescalated orders created before olderThan, oldest first
func (r *PostgresActionOrderRepository) ListStale(ctx context.Context, olderThan time.Time, priorities []domain.ActionPriority, limit int) ([]*domain.ActionOrder, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.action_order.list_stale")
	defer span.End()

	ps := make([]string, len(priorities))
	for i, p := range priorities {
		ps[i] = string(p)
	}

	orders, err := r.query(ctx, `
		SELECT `+actionOrderColumns+`
		FROM action_orders
		WHERE status = $1 AND escalated_at IS NULL AND priority = ANY($2) AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`, string(domain.ActionOrderStatusPending), ps, olderThan, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("stale_count", len(orders)))
	span.SetStatus(codes.Ok, "")
	return orders, nil
}

// MarkEscalated stores the escalation only while the order is PENDING and unescalated
func (r *PostgresActionOrderRepository) MarkEscalated(ctx context.Context, order *domain.ActionOrder) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.action_order.mark_escalated")
	defer span.End()
	span.SetAttributes(attribute.String("action_order_id", order.ID))

	tag, err := r.pool.Exec(ctx, `
		UPDATE action_orders
		SET priority = $2, description = $3, escalated_at = $4, updated_at = $5
		WHERE id = $1 AND status = $6 AND escalated_at IS NULL
	`, order.ID, string(order.Priority), order.Description, order.EscalatedAt, order.UpdatedAt,
		string(domain.ActionOrderStatusPending))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, domain.NewStoreError("failed to escalate action order", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresActionOrderRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.ActionOrder, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStoreError("failed to query action orders", err)
	}
	defer rows.Close()

	out := make([]*domain.ActionOrder, 0)
	for rows.Next() {
		o, err := scanActionOrder(rows)
		if err != nil {
			return nil, domain.NewStoreError("failed to scan action order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("failed to iterate action orders", err)
	}
	return out, nil
}

func scanActionOrder(row pgx.Row) (*domain.ActionOrder, error) {
	o := &domain.ActionOrder{}
	var (
		status, priority string
		tLat, tLng       *float64
		cLat, cLng       *float64
		note             *string
	)
	err := row.Scan(
		&o.ID, &o.AssignedTo, &o.ZoneID, &o.Title, &o.Description, &status, &priority,
		&tLat, &tLng, &cLat, &cLng,
		&note, &o.AcknowledgedAt, &o.CompletedAt, &o.EscalatedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.ActionOrderStatus(status)
	o.Priority = domain.ActionPriority(priority)
	o.Target = joinPoint(tLat, tLng)
	o.CompletedFrom = joinPoint(cLat, cLng)
	o.CompletionNote = derefString(note)
	return o, nil
}

func splitPoint(p *domain.GeoPoint) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Latitude, p.Longitude
	return &lat, &lng
}

func joinPoint(lat, lng *float64) *domain.GeoPoint {
	if lat == nil || lng == nil {
		return nil
	}
	return &domain.GeoPoint{Latitude: *lat, Longitude: *lng}
}
