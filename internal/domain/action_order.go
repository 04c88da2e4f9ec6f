package domain

import (
	"fmt"
	"math"
	"time"
)

// ActionOrderStatus represents the status of a field-staff work order
type ActionOrderStatus string

const (
	ActionOrderStatusPending      ActionOrderStatus = "PENDING"
	ActionOrderStatusAcknowledged ActionOrderStatus = "ACKNOWLEDGED"
	ActionOrderStatusCompleted    ActionOrderStatus = "COMPLETED"
)

// ActionPriority orders work by urgency
type ActionPriority string

const (
	ActionPriorityLow      ActionPriority = "LOW"
	ActionPriorityMedium   ActionPriority = "MEDIUM"
	ActionPriorityHigh     ActionPriority = "HIGH"
	ActionPriorityCritical ActionPriority = "CRITICAL"
)

// IsValid checks if the priority is known
func (p ActionPriority) IsValid() bool {
	switch p {
	case ActionPriorityLow, ActionPriorityMedium, ActionPriorityHigh, ActionPriorityCritical:
		return true
	}
	return false
}

// EscalatablePriorities are the priorities the sweeper promotes
var EscalatablePriorities = []ActionPriority{ActionPriorityHigh, ActionPriorityCritical}

// GeoPoint is a WGS84 coordinate in degrees
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine distance between a and b
func DistanceMeters(a, b GeoPoint) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ActionOrder is a work order assigned to a staff member in a zone
type ActionOrder struct {
	ID             string            `json:"id"`
	AssignedTo     string            `json:"assigned_to"`
	ZoneID         string            `json:"zone_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Status         ActionOrderStatus `json:"status"`
	Priority       ActionPriority    `json:"priority"`
	Target         *GeoPoint         `json:"target,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	CompletedFrom  *GeoPoint         `json:"completed_from,omitempty"`
	CompletionNote string            `json:"completion_note,omitempty"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	EscalatedAt    *time.Time        `json:"escalated_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// IsStale reports whether the order is a PENDING high-priority order older
// than staleAfter that has not been escalated yet
func (o *ActionOrder) IsStale(now time.Time, staleAfter time.Duration) bool {
	if o.Status != ActionOrderStatusPending || o.EscalatedAt != nil {
		return false
	}
	if o.Priority != ActionPriorityHigh && o.Priority != ActionPriorityCritical {
		return false
	}
	return o.CreatedAt.Before(now.Add(-staleAfter))
}

// Escalate promotes the order to CRITICAL and marks it so it escalates once
func (o *ActionOrder) Escalate(now time.Time) {
	o.Priority = ActionPriorityCritical
	o.Description = fmt.Sprintf("[ESCALATED %s] %s", now.UTC().Format(time.RFC3339), o.Description)
	o.EscalatedAt = &now
	o.UpdatedAt = now
}

// Acknowledge moves PENDING to ACKNOWLEDGED
func (o *ActionOrder) Acknowledge(now time.Time) error {
	if o.Status != ActionOrderStatusPending {
		return ErrInvalidTransition.Withf("cannot acknowledge a %s action order", o.Status)
	}
	o.Status = ActionOrderStatusAcknowledged
	o.AcknowledgedAt = &now
	o.UpdatedAt = now
	return nil
}

// Complete closes the order. When the order has a target, proof must lie
// within radiusMeters of it.
func (o *ActionOrder) Complete(now time.Time, note string, proof *GeoPoint, radiusMeters float64) error {
	if o.Status == ActionOrderStatusCompleted {
		return ErrInvalidTransition.Withf("action order is already completed")
	}
	if o.Target != nil {
		if proof == nil {
			return ErrLocationProofMissing
		}
		if d := DistanceMeters(*o.Target, *proof); d > radiusMeters {
			return ErrLocationProofTooFar.Withf("completion location is %.0fm from the target, limit is %.0fm", d, radiusMeters)
		}
	}
	o.Status = ActionOrderStatusCompleted
	o.CompletedAt = &now
	o.CompletedFrom = proof
	o.CompletionNote = note
	o.UpdatedAt = now
	return nil
}
