package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresRuleRepository implements RuleRepository using pgxpool
type PostgresRuleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRuleRepository creates a new PostgresRuleRepository
func NewPostgresRuleRepository(pool *pgxpool.Pool) *PostgresRuleRepository {
	return &PostgresRuleRepository{pool: pool}
}

// ListCapacityRules returns active capacity rules, highest priority first
func (r *PostgresRuleRepository) ListCapacityRules(ctx context.Context, destinationID string) ([]*domain.CapacityRule, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.rule.list_capacity")
	defer span.End()
	span.SetAttributes(attribute.String("destination_id", destinationID))

	rows, err := r.pool.Query(ctx, `
		SELECT id, destination_id, name, priority, start_date, end_date,
			applicable_days, absolute_capacity, capacity_percentage, is_active, created_at
		FROM capacity_rules
		WHERE destination_id = $1 AND is_active
		ORDER BY priority DESC, created_at ASC
	`, destinationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewStoreError("failed to list capacity rules", err)
	}
	defer rows.Close()

	out := make([]*domain.CapacityRule, 0)
	for rows.Next() {
		var (
			p        domain.CapacityRuleParams
			days     []int32
			absolute *int32
		)
		if err := rows.Scan(&p.ID, &p.DestinationID, &p.Name, &p.Priority, &p.StartDate, &p.EndDate,
			&days, &absolute, &p.CapacityPercentage, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, domain.NewStoreError("failed to scan capacity rule", err)
		}
		for _, d := range days {
			p.ApplicableDays = append(p.ApplicableDays, int(d))
		}
		if absolute != nil {
			n := int(*absolute)
			p.AbsoluteCapacity = &n
		}

		rule, err := domain.NewCapacityRule(p)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("stored capacity rule %s is invalid: %w", p.ID, err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("failed to iterate capacity rules", err)
	}

	span.SetAttributes(attribute.Int("rule_count", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// ListPricingRules returns active pricing rules, highest priority first
func (r *PostgresRuleRepository) ListPricingRules(ctx context.Context, destinationID string) ([]*domain.PricingRule, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.rule.list_pricing")
	defer span.End()
	span.SetAttributes(attribute.String("destination_id", destinationID))

	rows, err := r.pool.Query(ctx, `
		SELECT id, destination_id, name, base_price, adult_price, child_price, local_price, foreign_price,
			peak_multiplier, off_peak_multiplier, priority, is_active, start_date, end_date, created_at
		FROM pricing_rules
		WHERE destination_id = $1 AND is_active
		ORDER BY priority DESC, created_at ASC
	`, destinationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewStoreError("failed to list pricing rules", err)
	}
	defer rows.Close()

	out := make([]*domain.PricingRule, 0)
	for rows.Next() {
		var (
			p          domain.PricingRule
			start, end *time.Time
		)
		if err := rows.Scan(&p.ID, &p.DestinationID, &p.Name, &p.BasePrice, &p.AdultPrice, &p.ChildPrice,
			&p.LocalPrice, &p.ForeignPrice, &p.PeakMultiplier, &p.OffPeakMultiplier, &p.Priority,
			&p.IsActive, &start, &end, &p.CreatedAt); err != nil {
			return nil, domain.NewStoreError("failed to scan pricing rule", err)
		}
		p.StartDate, p.EndDate = start, end

		rule, err := domain.NewPricingRule(p)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("stored pricing rule %s is invalid: %w", p.ID, err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("failed to iterate pricing rules", err)
	}

	span.SetAttributes(attribute.Int("rule_count", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}
