package domain

import (
	"time"

	"github.com/google/uuid"
)

// Occupancy change reasons
const (
	CapacityReasonCheckIn  = "CHECK_IN"
	CapacityReasonCheckOut = "CHECK_OUT"
	CapacityReasonCancel   = "CANCEL"
)

// CapacityUpdate is broadcast after every counter mutation
type CapacityUpdate struct {
	EventID            string     `json:"event_id"`
	DestinationID      string     `json:"destination_id"`
	DestinationCurrent int        `json:"destination_current"`
	DestinationMax     int        `json:"destination_max"`
	DestinationVersion int64      `json:"destination_version"`
	ZoneID             string     `json:"zone_id,omitempty"`
	ZoneName           string     `json:"zone_name,omitempty"`
	ZoneCurrent        int        `json:"zone_current,omitempty"`
	ZoneMax            int        `json:"zone_max,omitempty"`
	ZoneVersion        int64      `json:"zone_version,omitempty"`
	ZoneStatus         ZoneStatus `json:"zone_status,omitempty"`
	ZoneAlertLevel     AlertLevel `json:"zone_alert_level,omitempty"`
	Reason             string     `json:"reason"`
	Delta              int        `json:"delta"`
	OccurredAt         time.Time  `json:"occurred_at"`
}

// NewCapacityUpdate builds an update from the post-mutation aggregates.
// zone may be nil. Consumers order updates by the counter versions, not by
// OccurredAt. The zone status is derived from the counters so two updates
// with the same version always agree.
func NewCapacityUpdate(dest *Destination, zone *Zone, reason string, delta int, now time.Time) *CapacityUpdate {
	u := &CapacityUpdate{
		EventID:            uuid.New().String(),
		DestinationID:      dest.ID,
		DestinationCurrent: dest.CurrentCapacity,
		DestinationMax:     dest.MaxDailyCapacity,
		DestinationVersion: dest.CounterVersion,
		Reason:             reason,
		Delta:              delta,
		OccurredAt:         now,
	}
	if zone != nil {
		u.ZoneID = zone.ID
		u.ZoneName = zone.Name
		u.ZoneCurrent = zone.CurrentCapacity
		u.ZoneMax = zone.MaxCapacity
		u.ZoneVersion = zone.CounterVersion
		h := zone.Health()
		u.ZoneStatus = h.Status
		u.ZoneAlertLevel = h.AlertLevel
	}
	return u
}

// BookingConfirmedEvent is handed to the notification sink
type BookingConfirmedEvent struct {
	EventID          string    `json:"event_id"`
	BookingID        string    `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	UserID           string    `json:"user_id"`
	DestinationID    string    `json:"destination_id"`
	VisitDate        string    `json:"visit_date"`
	NumberOfVisitors int       `json:"number_of_visitors"`
	TotalAmount      float64   `json:"total_amount"`
	EntryToken       string    `json:"entry_token"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewBookingConfirmedEvent builds the notification payload for a confirmed booking
func NewBookingConfirmedEvent(b *Booking, token string, now time.Time) *BookingConfirmedEvent {
	return &BookingConfirmedEvent{
		EventID:          uuid.New().String(),
		BookingID:        b.ID,
		BookingReference: b.BookingReference,
		UserID:           b.UserID,
		DestinationID:    b.DestinationID,
		VisitDate:        b.VisitDate.Format(DateLayout),
		NumberOfVisitors: b.NumberOfVisitors,
		TotalAmount:      b.TotalAmount,
		EntryToken:       token,
		OccurredAt:       now,
	}
}
