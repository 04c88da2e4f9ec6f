package domain

import (
	"math"
	"time"
)

type limitKind uint8

const (
	limitAbsolute limitKind = iota + 1
	limitPercentage
)

// CapacityLimit is either an absolute head count or a share of the
// destination's static ceiling, never both.
type CapacityLimit struct {
	kind     limitKind
	absolute int
	percent  float64
}

// AbsoluteLimit caps capacity at n visitors
func AbsoluteLimit(n int) CapacityLimit {
	return CapacityLimit{kind: limitAbsolute, absolute: n}
}

// PercentageLimit caps capacity at a share of the static ceiling.
// Values up to 1 are fractions, larger values are percent.
func PercentageLimit(p float64) CapacityLimit {
	return CapacityLimit{kind: limitPercentage, percent: p}
}

// Absolute returns the absolute cap, if this is an absolute limit
func (l CapacityLimit) Absolute() (int, bool) {
	return l.absolute, l.kind == limitAbsolute
}

// Percentage returns the stored percentage, if this is a percentage limit
func (l CapacityLimit) Percentage() (float64, bool) {
	return l.percent, l.kind == limitPercentage
}

// IsZero reports whether the limit was never set
func (l CapacityLimit) IsZero() bool {
	return l.kind == 0
}

// Apply computes the effective ceiling against maxDailyCapacity
func (l CapacityLimit) Apply(maxDailyCapacity int) int {
	switch l.kind {
	case limitAbsolute:
		return l.absolute
	case limitPercentage:
		fraction := l.percent
		if fraction > 1 {
			fraction = fraction / 100
		}
		return int(math.Floor(float64(maxDailyCapacity) * fraction))
	default:
		return maxDailyCapacity
	}
}

// CapacityRule overrides a destination's ceiling on matching dates
type CapacityRule struct {
	ID             string
	DestinationID  string
	Name           string
	Priority       int
	StartDate      *time.Time
	EndDate        *time.Time
	ApplicableDays []time.Weekday
	Limit          CapacityLimit
	IsActive       bool
	CreatedAt      time.Time
}

// CapacityRuleParams holds the raw, possibly inconsistent rule fields
type CapacityRuleParams struct {
	ID                 string
	DestinationID      string
	Name               string
	Priority           int
	StartDate          *time.Time
	EndDate            *time.Time
	ApplicableDays     []int
	AbsoluteCapacity   *int
	CapacityPercentage *float64
	IsActive           bool
	CreatedAt          time.Time
}

// NewCapacityRule validates params. Exactly one of AbsoluteCapacity and
// CapacityPercentage must be set.
func NewCapacityRule(p CapacityRuleParams) (*CapacityRule, error) {
	if p.Name == "" {
		return nil, ErrInvalidCapacityRule.Withf("capacity rule name is required")
	}
	if (p.AbsoluteCapacity == nil) == (p.CapacityPercentage == nil) {
		return nil, ErrInvalidCapacityRule.Withf("capacity rule %q must set exactly one of absolute capacity or capacity percentage", p.Name)
	}
	if p.StartDate != nil && p.EndDate != nil && DateOnly(*p.EndDate).Before(DateOnly(*p.StartDate)) {
		return nil, ErrInvalidCapacityRule.Withf("capacity rule %q ends before it starts", p.Name)
	}

	var limit CapacityLimit
	if p.AbsoluteCapacity != nil {
		if *p.AbsoluteCapacity < 0 {
			return nil, ErrInvalidCapacityRule.Withf("capacity rule %q has a negative absolute capacity", p.Name)
		}
		limit = AbsoluteLimit(*p.AbsoluteCapacity)
	} else {
		if *p.CapacityPercentage < 0 || math.IsNaN(*p.CapacityPercentage) {
			return nil, ErrInvalidCapacityRule.Withf("capacity rule %q has an invalid percentage", p.Name)
		}
		limit = PercentageLimit(*p.CapacityPercentage)
	}

	days := make([]time.Weekday, 0, len(p.ApplicableDays))
	for _, d := range p.ApplicableDays {
		if d < 0 || d > 6 {
			return nil, ErrInvalidCapacityRule.Withf("capacity rule %q has an invalid weekday %d", p.Name, d)
		}
		days = append(days, time.Weekday(d))
	}

	return &CapacityRule{
		ID:             p.ID,
		DestinationID:  p.DestinationID,
		Name:           p.Name,
		Priority:       p.Priority,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		ApplicableDays: days,
		Limit:          limit,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
	}, nil
}

// Matches reports whether both the date window and the weekday set admit date
func (r *CapacityRule) Matches(date time.Time) bool {
	if !withinWindow(date, r.StartDate, r.EndDate) {
		return false
	}
	if len(r.ApplicableDays) == 0 {
		return true
	}
	wd := date.Weekday()
	for _, d := range r.ApplicableDays {
		if d == wd {
			return true
		}
	}
	return false
}

// WeekdayInts returns ApplicableDays as 0 (Sunday) to 6 (Saturday)
func (r *CapacityRule) WeekdayInts() []int {
	out := make([]int, len(r.ApplicableDays))
	for i, d := range r.ApplicableDays {
		out[i] = int(d)
	}
	return out
}
