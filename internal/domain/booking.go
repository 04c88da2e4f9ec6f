package domain

import (
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCheckedIn BookingStatus = "CHECKED_IN"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// String returns the string representation of BookingStatus
func (s BookingStatus) String() string {
	return string(s)
}

// IsValid checks if the booking status is valid
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCheckedIn,
		BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

// Demand sets used by the admission and pricing aggregates
var (
	// CommittedStatuses count toward availability
	CommittedStatuses = []BookingStatus{BookingStatusPending, BookingStatusConfirmed, BookingStatusCheckedIn}
	// ConfirmedStatuses count toward pricing demand
	ConfirmedStatuses = []BookingStatus{BookingStatusConfirmed, BookingStatusCheckedIn}
)

// PaymentStatus represents the payment state of a booking
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Booking is a visitor group's reservation for one destination and date
type Booking struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	DestinationID      string          `json:"destination_id"`
	ZoneID             string          `json:"zone_id,omitempty"`
	NumberOfVisitors   int             `json:"number_of_visitors"`
	VisitDate          time.Time       `json:"visit_date"`
	Status             BookingStatus   `json:"status"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	BookingReference   string          `json:"booking_reference"`
	QRCode             string          `json:"qr_code,omitempty"`
	TotalAmount        float64         `json:"total_amount"`
	PricePerPerson     float64         `json:"price_per_person"`
	SurgeMultiplier    float64         `json:"surge_multiplier"`
	Currency           string          `json:"currency"`
	VisitorDetails     []VisitorDetail `json:"visitor_details,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	EntryTime          *time.Time      `json:"entry_time,omitempty"`
	ExitTime           *time.Time      `json:"exit_time,omitempty"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// HasZone returns true if the booking is restricted to one zone
func (b *Booking) HasZone() bool {
	return b.ZoneID != ""
}

// IsVisitDay reports whether today is the booking's visit day
func (b *Booking) IsVisitDay(today time.Time) bool {
	return SameDay(b.VisitDate, today)
}

// Confirm moves PENDING to CONFIRMED and records the entry token
func (b *Booking) Confirm(token string, now time.Time) error {
	if b.Status != BookingStatusPending {
		return b.conflict("confirm")
	}
	b.Status = BookingStatusConfirmed
	b.PaymentStatus = PaymentStatusCompleted
	b.QRCode = token
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	return nil
}

// CanCheckIn validates the CONFIRMED to CHECKED_IN transition for today
// without mutating the booking. Checks run in checkpoint rejection order.
func (b *Booking) CanCheckIn(today time.Time) error {
	switch b.Status {
	case BookingStatusCancelled:
		return ErrAlreadyCancelled
	case BookingStatusCompleted:
		return ErrAlreadyUsed
	case BookingStatusCheckedIn:
		return ErrAlreadyCheckedIn
	case BookingStatusPending:
		return ErrNotConfirmed
	}
	if !b.IsVisitDay(today) {
		return ErrWrongDate.Withf("booking is valid for %s, not today", b.VisitDate.Format(DateLayout))
	}
	return nil
}

// CheckIn moves CONFIRMED to CHECKED_IN and sets EntryTime once
func (b *Booking) CheckIn(now time.Time) error {
	if err := b.CanCheckIn(now); err != nil {
		return err
	}
	b.Status = BookingStatusCheckedIn
	if b.EntryTime == nil {
		b.EntryTime = &now
	}
	b.UpdatedAt = now
	return nil
}

// CheckOut moves CHECKED_IN to COMPLETED and sets ExitTime once
func (b *Booking) CheckOut(now time.Time) error {
	if b.Status != BookingStatusCheckedIn {
		return ErrNotCheckedIn
	}
	b.Status = BookingStatusCompleted
	if b.ExitTime == nil {
		b.ExitTime = &now
	}
	b.UpdatedAt = now
	return nil
}

// Cancel moves any pre-COMPLETED status to CANCELLED, refunding a completed payment
func (b *Booking) Cancel(reason string, now time.Time) error {
	switch b.Status {
	case BookingStatusCancelled:
		return ErrAlreadyCancelled
	case BookingStatusCompleted:
		return ErrCannotCancel
	}
	b.Status = BookingStatusCancelled
	if b.PaymentStatus == PaymentStatusCompleted {
		b.PaymentStatus = PaymentStatusRefunded
	}
	b.CancellationReason = reason
	b.CancelledAt = &now
	b.UpdatedAt = now
	return nil
}

func (b *Booking) conflict(action string) error {
	return ErrInvalidTransition.Withf("cannot %s a %s booking", action, b.Status)
}

// CounterDelta is a change applied atomically to a destination counter and,
// when ZoneID is set, to a zone counter.
type CounterDelta struct {
	DestinationID string
	ZoneID        string
	Delta         int
}

// OccupancyDelta returns the counter change for this booking's group
func (b *Booking) OccupancyDelta(sign int) *CounterDelta {
	return &CounterDelta{
		DestinationID: b.DestinationID,
		ZoneID:        b.ZoneID,
		Delta:         sign * b.NumberOfVisitors,
	}
}
