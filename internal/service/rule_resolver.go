package service

import (
	"context"
	"sort"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BaseCapacityLabel names the ceiling when no rule applies
const BaseCapacityLabel = "Base Capacity"

// EffectiveCapacity is a destination's ceiling for one date
type EffectiveCapacity struct {
	Capacity         int                  `json:"capacity"`
	AppliedRule      string               `json:"applied_rule"`
	MaxDailyCapacity int                  `json:"max_daily_capacity"`
	Rule             *domain.CapacityRule `json:"-"`
}

// IsBase returns true if no capacity rule matched
func (e *EffectiveCapacity) IsBase() bool {
	return e.Rule == nil
}

// RuleResolver resolves the effective capacity ceiling of a destination
type RuleResolver interface {
	// ResolveEffectiveCapacity applies the highest-priority matching rule for date
	ResolveEffectiveCapacity(ctx context.Context, destinationID string, date time.Time) (*EffectiveCapacity, error)
}

type ruleResolver struct {
	destinations repository.DestinationRepository
	rules        repository.RuleRepository
}

// NewRuleResolver creates a new RuleResolver
func NewRuleResolver(destinations repository.DestinationRepository, rules repository.RuleRepository) RuleResolver {
	return &ruleResolver{destinations: destinations, rules: rules}
}

func (r *ruleResolver) ResolveEffectiveCapacity(ctx context.Context, destinationID string, date time.Time) (*EffectiveCapacity, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.rules.resolve_capacity")
	defer span.End()

	span.SetAttributes(
		attribute.String("destination_id", destinationID),
		attribute.String("date", date.Format(domain.DateLayout)),
	)

	dest, err := r.destinations.GetByID(ctx, destinationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rules, err := r.rules.ListCapacityRules(ctx, destinationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := ResolveCapacity(dest, rules, date)
	span.SetAttributes(
		attribute.Int("capacity", result.Capacity),
		attribute.String("applied_rule", result.AppliedRule),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ResolveCapacity picks the first matching active rule in priority-descending
// order. Equal priorities keep their input order.
func ResolveCapacity(dest *domain.Destination, rules []*domain.CapacityRule, date time.Time) *EffectiveCapacity {
	result := &EffectiveCapacity{
		Capacity:         dest.MaxDailyCapacity,
		AppliedRule:      BaseCapacityLabel,
		MaxDailyCapacity: dest.MaxDailyCapacity,
	}

	ordered := make([]*domain.CapacityRule, 0, len(rules))
	for _, rule := range rules {
		if rule.IsActive {
			ordered = append(ordered, rule)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	for _, rule := range ordered {
		if !rule.Matches(date) {
			continue
		}
		result.Capacity = rule.Limit.Apply(dest.MaxDailyCapacity)
		result.AppliedRule = rule.Name
		result.Rule = rule
		break
	}
	return result
}
