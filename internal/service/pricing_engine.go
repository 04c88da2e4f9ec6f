package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/metrics"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Demand thresholds in percent of the static ceiling
const (
	PeakDemandPct    = 90.0
	HighDemandPct    = 70.0
	OffPeakDemandPct = 30.0
)

// Surge increments used when a destination has no pricing rule
const (
	defaultPeakSurge    = 0.20
	defaultHighSurge    = 0.10
	defaultWeekendSurge = 0.15
)

// QuoteRequest asks for the price of a visitor group
type QuoteRequest struct {
	DestinationID  string
	VisitDate      time.Time
	VisitorCount   int
	VisitorDetails []domain.VisitorDetail
}

// PriceQuote is the price of a visitor group on a date
type PriceQuote struct {
	BasePrice           float64  `json:"base_price"`
	FinalPricePerPerson float64  `json:"final_price_per_person"`
	TotalPrice          float64  `json:"total_price"`
	SurgeMultiplier     float64  `json:"surge_multiplier"`
	DemandPercentage    float64  `json:"demand_percentage"`
	Currency            string   `json:"currency"`
	AppliedRule         string   `json:"applied_rule,omitempty"`
	Reasons             []string `json:"reasons"`
}

// PricingEngine prices visitor groups from pricing rules and confirmed demand
type PricingEngine interface {
	Quote(ctx context.Context, req *QuoteRequest) (*PriceQuote, error)
}

// PricingEngineConfig contains configuration for the pricing engine
type PricingEngineConfig struct {
	DefaultBasePrice float64
	Currency         string
}

type pricingEngine struct {
	destinations repository.DestinationRepository
	rules        repository.RuleRepository
	bookings     repository.BookingRepository
	basePrice    float64
	currency     string
}

// NewPricingEngine creates a new PricingEngine
func NewPricingEngine(
	destinations repository.DestinationRepository,
	rules repository.RuleRepository,
	bookings repository.BookingRepository,
	cfg *PricingEngineConfig,
) PricingEngine {
	basePrice := 100.0
	currency := "INR"
	if cfg != nil {
		if cfg.DefaultBasePrice > 0 {
			basePrice = cfg.DefaultBasePrice
		}
		if cfg.Currency != "" {
			currency = cfg.Currency
		}
	}
	return &pricingEngine{
		destinations: destinations,
		rules:        rules,
		bookings:     bookings,
		basePrice:    basePrice,
		currency:     currency,
	}
}

func (e *pricingEngine) Quote(ctx context.Context, req *QuoteRequest) (*PriceQuote, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.pricing.quote")
	defer span.End()

	span.SetAttributes(
		attribute.String("destination_id", req.DestinationID),
		attribute.String("visit_date", req.VisitDate.Format(domain.DateLayout)),
		attribute.Int("visitor_count", req.VisitorCount),
	)

	if req.VisitorCount <= 0 {
		span.SetStatus(codes.Error, "invalid visitor count")
		return nil, domain.ErrInvalidVisitorCount
	}
	if len(req.VisitorDetails) > 0 && len(req.VisitorDetails) != req.VisitorCount {
		span.SetStatus(codes.Error, "visitor details mismatch")
		return nil, domain.ErrVisitorDetailsCount
	}

	dest, err := e.destinations.GetByID(ctx, req.DestinationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rules, err := e.rules.ListPricingRules(ctx, req.DestinationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	confirmed, err := e.bookings.SumVisitorsOnDate(ctx, repository.VisitorSumFilter{
		DestinationID: req.DestinationID,
		Date:          req.VisitDate,
		Statuses:      domain.ConfirmedStatuses,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	quote := PriceQuoteFor(PricingInput{
		Rule:             SelectPricingRule(rules, req.VisitDate),
		DefaultBasePrice: e.basePrice,
		Currency:         e.currency,
		DemandPercentage: DemandPercentage(confirmed, dest.MaxDailyCapacity),
		VisitDate:        req.VisitDate,
		VisitorCount:     req.VisitorCount,
		VisitorDetails:   req.VisitorDetails,
	})

	span.SetAttributes(
		attribute.Float64("demand_pct", quote.DemandPercentage),
		attribute.Float64("surge_multiplier", quote.SurgeMultiplier),
		attribute.Float64("total_price", quote.TotalPrice),
	)
	metrics.RecordQuote(ctx, req.DestinationID, quote.SurgeMultiplier)
	span.SetStatus(codes.Ok, "")
	return quote, nil
}

// SelectPricingRule returns the highest-priority active rule whose window
// admits date, or nil
func SelectPricingRule(rules []*domain.PricingRule, date time.Time) *domain.PricingRule {
	ordered := make([]*domain.PricingRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive && r.Matches(date) {
			ordered = append(ordered, r)
		}
	}
	if len(ordered) == 0 {
		return nil
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })
	return ordered[0]
}

// DemandPercentage returns confirmed visitors as a percentage of the static
// ceiling. A destination without a ceiling is fully booked.
func DemandPercentage(confirmed, maxDailyCapacity int) float64 {
	if maxDailyCapacity <= 0 {
		return 100
	}
	return float64(confirmed) / float64(maxDailyCapacity) * 100
}

// PricingInput carries everything PriceQuoteFor needs
type PricingInput struct {
	Rule             *domain.PricingRule
	DefaultBasePrice float64
	Currency         string
	DemandPercentage float64
	VisitDate        time.Time
	VisitorCount     int
	VisitorDetails   []domain.VisitorDetail
}

// PriceQuoteFor applies the surge ladder and totals the group
func PriceQuoteFor(in PricingInput) *PriceQuote {
	rule := in.Rule
	quote := &PriceQuote{
		BasePrice:        in.DefaultBasePrice,
		SurgeMultiplier:  1.0,
		DemandPercentage: roundTo(in.DemandPercentage, 2),
		Currency:         in.Currency,
		Reasons:          []string{},
	}
	if rule != nil {
		quote.BasePrice = rule.BasePrice
		quote.AppliedRule = rule.Name
	}

	demand := in.DemandPercentage
	switch {
	case demand >= PeakDemandPct:
		if rule != nil {
			quote.SurgeMultiplier += rule.PeakMultiplier - 1
		} else {
			quote.SurgeMultiplier += defaultPeakSurge
		}
		quote.Reasons = append(quote.Reasons, fmt.Sprintf("Peak demand: %.0f%% of capacity booked", demand))
	case demand >= HighDemandPct:
		if rule != nil {
			quote.SurgeMultiplier += (rule.PeakMultiplier - 1) / 2
		} else {
			quote.SurgeMultiplier += defaultHighSurge
		}
		quote.Reasons = append(quote.Reasons, fmt.Sprintf("High demand: %.0f%% of capacity booked", demand))
	case demand < OffPeakDemandPct && rule != nil && rule.OffPeakMultiplier < 1:
		quote.SurgeMultiplier = rule.OffPeakMultiplier
		quote.Reasons = append(quote.Reasons, fmt.Sprintf("Off-peak discount: %.0f%% off", (1-rule.OffPeakMultiplier)*100))
	}

	if quote.SurgeMultiplier == 1.0 && rule == nil && domain.IsWeekend(in.VisitDate) {
		quote.SurgeMultiplier += defaultWeekendSurge
		quote.Reasons = append(quote.Reasons, "Weekend pricing")
	}
	quote.SurgeMultiplier = roundTo(quote.SurgeMultiplier, 4)

	var total float64
	if len(in.VisitorDetails) > 0 && rule != nil {
		for _, v := range in.VisitorDetails {
			total += rule.PriceFor(v.Category)
		}
	} else {
		total = quote.BasePrice * float64(in.VisitorCount)
	}

	quote.TotalPrice = math.Round(total * quote.SurgeMultiplier)
	quote.FinalPricePerPerson = math.Round(quote.TotalPrice / float64(in.VisitorCount))
	return quote
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
