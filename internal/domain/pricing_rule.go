package domain

import "time"

// VisitorCategory selects a per-visitor price
type VisitorCategory string

const (
	VisitorCategoryAdult     VisitorCategory = "ADULT"
	VisitorCategoryChild     VisitorCategory = "CHILD"
	VisitorCategoryLocal     VisitorCategory = "LOCAL"
	VisitorCategoryForeigner VisitorCategory = "FOREIGNER"
)

// VisitorDetail describes one member of a visitor group
type VisitorDetail struct {
	Name     string          `json:"name,omitempty"`
	Age      int             `json:"age,omitempty"`
	Category VisitorCategory `json:"category"`
}

// PricingRule sets base and category prices plus demand multipliers
type PricingRule struct {
	ID                string
	DestinationID     string
	Name              string
	BasePrice         float64
	AdultPrice        *float64
	ChildPrice        *float64
	LocalPrice        *float64
	ForeignPrice      *float64
	PeakMultiplier    float64
	OffPeakMultiplier float64
	Priority          int
	IsActive          bool
	StartDate         *time.Time
	EndDate           *time.Time
	CreatedAt         time.Time
}

// NewPricingRule validates r. Zero multipliers default to 1.
func NewPricingRule(r PricingRule) (*PricingRule, error) {
	if r.Name == "" {
		return nil, ErrInvalidPricingRule.Withf("pricing rule name is required")
	}
	if r.BasePrice <= 0 {
		return nil, ErrInvalidPricingRule.Withf("pricing rule %q must have a positive base price", r.Name)
	}
	if r.PeakMultiplier == 0 {
		r.PeakMultiplier = 1
	}
	if r.OffPeakMultiplier == 0 {
		r.OffPeakMultiplier = 1
	}
	if r.PeakMultiplier < 0 || r.OffPeakMultiplier < 0 {
		return nil, ErrInvalidPricingRule.Withf("pricing rule %q has a negative multiplier", r.Name)
	}
	for _, p := range []*float64{r.AdultPrice, r.ChildPrice, r.LocalPrice, r.ForeignPrice} {
		if p != nil && *p < 0 {
			return nil, ErrInvalidPricingRule.Withf("pricing rule %q has a negative category price", r.Name)
		}
	}
	if r.StartDate != nil && r.EndDate != nil && DateOnly(*r.EndDate).Before(DateOnly(*r.StartDate)) {
		return nil, ErrInvalidPricingRule.Withf("pricing rule %q ends before it starts", r.Name)
	}
	return &r, nil
}

// Matches reports whether the rule's date window admits date
func (r *PricingRule) Matches(date time.Time) bool {
	return withinWindow(date, r.StartDate, r.EndDate)
}

// PriceFor returns the category price, falling back to BasePrice when unset
func (r *PricingRule) PriceFor(category VisitorCategory) float64 {
	var p *float64
	switch category {
	case VisitorCategoryAdult:
		p = r.AdultPrice
	case VisitorCategoryChild:
		p = r.ChildPrice
	case VisitorCategoryLocal:
		p = r.LocalPrice
	case VisitorCategoryForeigner:
		p = r.ForeignPrice
	}
	if p == nil {
		return r.BasePrice
	}
	return *p
}
