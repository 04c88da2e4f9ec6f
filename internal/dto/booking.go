package dto

import (
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
)

// VisitorDetailRequest describes one visitor in a booking request
type VisitorDetailRequest struct {
	Name     string `json:"name,omitempty" binding:"omitempty,max=120"`
	Age      int    `json:"age,omitempty" binding:"omitempty,min=0,max=130"`
	Category string `json:"category" binding:"required,oneof=ADULT CHILD LOCAL FOREIGNER"`
}

// CreateBookingRequest represents request to book a visit
type CreateBookingRequest struct {
	DestinationID  string                 `json:"destination_id" binding:"required"`
	ZoneID         string                 `json:"zone_id,omitempty"`
	VisitDate      string                 `json:"visit_date" binding:"required,datetime=2006-01-02"`
	VisitorCount   int                    `json:"number_of_visitors" binding:"required,min=1,max=100"`
	VisitorDetails []VisitorDetailRequest `json:"visitor_details,omitempty" binding:"omitempty,dive"`
}

// Details converts the request visitors into domain values
func (r *CreateBookingRequest) Details() []domain.VisitorDetail {
	return toVisitorDetails(r.VisitorDetails)
}

func toVisitorDetails(in []VisitorDetailRequest) []domain.VisitorDetail {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.VisitorDetail, len(in))
	for i, v := range in {
		out[i] = domain.VisitorDetail{Name: v.Name, Age: v.Age, Category: domain.VisitorCategory(v.Category)}
	}
	return out
}

// CancelBookingRequest represents request to cancel a booking
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty" binding:"omitempty,max=500"`
}

// ListBookingsQuery holds pagination for GET /bookings
type ListBookingsQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// BookingResponse represents a booking in API response
type BookingResponse struct {
	ID                 string                 `json:"id"`
	UserID             string                 `json:"user_id"`
	DestinationID      string                 `json:"destination_id"`
	ZoneID             string                 `json:"zone_id,omitempty"`
	NumberOfVisitors   int                    `json:"number_of_visitors"`
	VisitDate          string                 `json:"visit_date"`
	Status             string                 `json:"status"`
	PaymentStatus      string                 `json:"payment_status"`
	BookingReference   string                 `json:"booking_reference"`
	EntryToken         string                 `json:"entry_token,omitempty"`
	TotalAmount        float64                `json:"total_amount"`
	PricePerPerson     float64                `json:"price_per_person"`
	SurgeMultiplier    float64                `json:"surge_multiplier"`
	Currency           string                 `json:"currency"`
	VisitorDetails     []domain.VisitorDetail `json:"visitor_details,omitempty"`
	CancellationReason string                 `json:"cancellation_reason,omitempty"`
	EntryTime          *time.Time             `json:"entry_time,omitempty"`
	ExitTime           *time.Time             `json:"exit_time,omitempty"`
	ConfirmedAt        *time.Time             `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time             `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}

// FromBooking converts a domain booking into its API shape
func FromBooking(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:                 b.ID,
		UserID:             b.UserID,
		DestinationID:      b.DestinationID,
		ZoneID:             b.ZoneID,
		NumberOfVisitors:   b.NumberOfVisitors,
		VisitDate:          b.VisitDate.Format(domain.DateLayout),
		Status:             b.Status.String(),
		PaymentStatus:      string(b.PaymentStatus),
		BookingReference:   b.BookingReference,
		EntryToken:         b.QRCode,
		TotalAmount:        b.TotalAmount,
		PricePerPerson:     b.PricePerPerson,
		SurgeMultiplier:    b.SurgeMultiplier,
		Currency:           b.Currency,
		VisitorDetails:     b.VisitorDetails,
		CancellationReason: b.CancellationReason,
		EntryTime:          b.EntryTime,
		ExitTime:           b.ExitTime,
		ConfirmedAt:        b.ConfirmedAt,
		CancelledAt:        b.CancelledAt,
		CreatedAt:          b.CreatedAt,
	}
}

// FromBookings converts a page of bookings
func FromBookings(bookings []*domain.Booking) []*BookingResponse {
	out := make([]*BookingResponse, len(bookings))
	for i, b := range bookings {
		out[i] = FromBooking(b)
	}
	return out
}

// PaginatedResponse represents a page of results
type PaginatedResponse struct {
	Items  interface{} `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
	Count  int         `json:"count"`
}
