package dto

import "github.com/prohmpiriya/crowdsense/internal/domain"

// CapacityQuery selects the date for GET /destinations/:id/capacity
type CapacityQuery struct {
	Date string `form:"date" binding:"omitempty,datetime=2006-01-02"`
}

// AvailabilityQuery holds the inputs of GET /destinations/:id/availability
type AvailabilityQuery struct {
	Date         string `form:"date" binding:"required,datetime=2006-01-02"`
	VisitorCount int    `form:"visitors" binding:"required,min=1"`
	ZoneID       string `form:"zone_id"`
}

// QuoteRequest represents request to price a visit
type QuoteRequest struct {
	VisitDate      string                 `json:"visit_date" binding:"required,datetime=2006-01-02"`
	VisitorCount   int                    `json:"number_of_visitors" binding:"required,min=1,max=100"`
	VisitorDetails []VisitorDetailRequest `json:"visitor_details,omitempty" binding:"omitempty,dive"`
}

// Details converts the request visitors into domain values
func (r *QuoteRequest) Details() []domain.VisitorDetail {
	return toVisitorDetails(r.VisitorDetails)
}

// CapacityResponse is the effective ceiling of a destination on a date
type CapacityResponse struct {
	DestinationID     string `json:"destination_id"`
	Date              string `json:"date"`
	EffectiveCapacity int    `json:"effective_capacity"`
	MaxDailyCapacity  int    `json:"max_daily_capacity"`
	AppliedRule       string `json:"applied_rule"`
}
