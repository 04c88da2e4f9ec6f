package service

import (
	"context"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/metrics"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// SweepResult summarizes one escalation pass
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
}

// EscalationSweeper raises stale urgent action orders to CRITICAL
type EscalationSweeper interface {
	Sweep(ctx context.Context, now time.Time) (*SweepResult, error)
}

// EscalationSweeperConfig contains configuration for the sweeper
type EscalationSweeperConfig struct {
	StaleAfter time.Duration
	BatchSize  int
}

type escalationSweeper struct {
	orders     repository.ActionOrderRepository
	staleAfter time.Duration
	batchSize  int
}

// NewEscalationSweeper creates a new EscalationSweeper
func NewEscalationSweeper(orders repository.ActionOrderRepository, cfg *EscalationSweeperConfig) EscalationSweeper {
	staleAfter := 5 * time.Minute
	batchSize := 200
	if cfg != nil {
		if cfg.StaleAfter > 0 {
			staleAfter = cfg.StaleAfter
		}
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
	}
	return &escalationSweeper{orders: orders, staleAfter: staleAfter, batchSize: batchSize}
}

// Sweep escalates each stale order at most once. Per-order failures are
// logged and counted; only a failed listing is returned as an error.
func (s *escalationSweeper) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.escalation.sweep")
	defer span.End()

	start := time.Now()
	result := &SweepResult{}

	stale, err := s.orders.ListStale(ctx, now.Add(-s.staleAfter), domain.EscalatablePriorities, s.batchSize)
	if err != nil {
		return result, fail(span, err)
	}
	result.Scanned = len(stale)

	for _, order := range stale {
		order.Escalate(now)
		ok, err := s.orders.MarkEscalated(ctx, order)
		switch {
		case err != nil:
			result.Failed++
			logger.Get().Error("failed to escalate action order",
				zap.String("action_order_id", order.ID),
				zap.Error(err),
			)
		case ok:
			result.Escalated++
			logger.Get().Warn("action order escalated",
				zap.String("action_order_id", order.ID),
				zap.String("assigned_to", order.AssignedTo),
				zap.String("zone_id", order.ZoneID),
			)
		}
	}

	metrics.RecordSweep(ctx, result.Escalated, result.Failed, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(
		attribute.Int("scanned", result.Scanned),
		attribute.Int("escalated", result.Escalated),
		attribute.Int("failed", result.Failed),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}
