package domain

import "time"

// ZoneStatus is the crowd-control tri-state shown at checkpoints
type ZoneStatus string

const (
	ZoneStatusGreen  ZoneStatus = "GREEN"
	ZoneStatusYellow ZoneStatus = "YELLOW"
	ZoneStatusRed    ZoneStatus = "RED"
)

// AlertLevel is the occupancy tier behind a zone status
type AlertLevel string

const (
	AlertLevelNormal   AlertLevel = "NORMAL"
	AlertLevelModerate AlertLevel = "MODERATE"
	AlertLevelHigh     AlertLevel = "HIGH"
	AlertLevelCritical AlertLevel = "CRITICAL"
)

// Occupancy thresholds in percent of MaxCapacity
const (
	ModerateThresholdPct = 60
	HighThresholdPct     = 80
	CriticalThresholdPct = 95
)

// Zone is a sub-area of a destination with its own ceiling and counter
type Zone struct {
	ID              string     `json:"id"`
	DestinationID   string     `json:"destination_id"`
	Name            string     `json:"name"`
	MaxCapacity     int        `json:"max_capacity"`
	CurrentCapacity int        `json:"current_capacity"`
	CounterVersion  int64      `json:"counter_version"`
	Status          ZoneStatus `json:"status"`
	AlertLevel      AlertLevel `json:"alert_level"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsBlocked returns true if entry into the zone is vetoed
func (z *Zone) IsBlocked() bool {
	return z.Status == ZoneStatusRed
}

// Health returns the classification of the zone's current counters
func (z *Zone) Health() ZoneHealth {
	return Classify(z.CurrentCapacity, z.MaxCapacity)
}

// ZoneHealth is the result of classifying a zone's occupancy
type ZoneHealth struct {
	Ratio      float64    `json:"ratio"`
	AlertLevel AlertLevel `json:"alert_level"`
	Status     ZoneStatus `json:"status"`
}

// Classify maps an occupancy to an alert level and status.
// A zone without capacity is treated as full.
func Classify(current, max int) ZoneHealth {
	if max <= 0 {
		return ZoneHealth{Ratio: 1, AlertLevel: AlertLevelCritical, Status: ZoneStatusRed}
	}

	h := ZoneHealth{Ratio: float64(current) / float64(max)}
	pct := current * 100
	switch {
	case pct >= CriticalThresholdPct*max:
		h.AlertLevel, h.Status = AlertLevelCritical, ZoneStatusRed
	case pct >= HighThresholdPct*max:
		h.AlertLevel, h.Status = AlertLevelHigh, ZoneStatusRed
	case pct >= ModerateThresholdPct*max:
		h.AlertLevel, h.Status = AlertLevelModerate, ZoneStatusYellow
	default:
		h.AlertLevel, h.Status = AlertLevelNormal, ZoneStatusGreen
	}
	return h
}
