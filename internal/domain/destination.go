package domain

import "time"

// DestinationStatus represents the operating status of a destination
type DestinationStatus string

const (
	DestinationStatusActive      DestinationStatus = "ACTIVE"
	DestinationStatusClosed      DestinationStatus = "CLOSED"
	DestinationStatusMaintenance DestinationStatus = "MAINTENANCE"
)

// Destination is a bookable place with a static daily ceiling and a live occupancy counter
type Destination struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	MaxDailyCapacity int               `json:"max_daily_capacity"`
	CurrentCapacity  int               `json:"current_capacity"`
	// CounterVersion increases by one with every committed counter change
	CounterVersion   int64             `json:"counter_version"`
	Status           DestinationStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// IsActive returns true if the destination accepts bookings
func (d *Destination) IsActive() bool {
	return d.Status == DestinationStatusActive
}
