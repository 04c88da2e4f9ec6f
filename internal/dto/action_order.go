package dto

import "github.com/prohmpiriya/crowdsense/internal/domain"

// GeoPointRequest is a coordinate in degrees
type GeoPointRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"required,min=-180,max=180"`
}

// Point converts the request coordinate, or returns nil
func (g *GeoPointRequest) Point() *domain.GeoPoint {
	if g == nil {
		return nil
	}
	return &domain.GeoPoint{Latitude: *g.Latitude, Longitude: *g.Longitude}
}

// CreateActionOrderRequest represents request to dispatch field staff
type CreateActionOrderRequest struct {
	AssignedTo  string           `json:"assigned_to" binding:"required"`
	ZoneID      string           `json:"zone_id" binding:"required"`
	Title       string           `json:"title" binding:"required,max=200"`
	Description string           `json:"description,omitempty" binding:"omitempty,max=2000"`
	Priority    string           `json:"priority,omitempty" binding:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Target      *GeoPointRequest `json:"target,omitempty"`
}

// CompleteActionOrderRequest represents request to close an order
type CompleteActionOrderRequest struct {
	Note     string           `json:"note,omitempty" binding:"omitempty,max=2000"`
	Location *GeoPointRequest `json:"location,omitempty"`
}

// ListActionOrdersQuery filters GET /action-orders
type ListActionOrdersQuery struct {
	AssignedTo string `form:"assigned_to"`
	ZoneID     string `form:"zone_id"`
	Status     string `form:"status" binding:"omitempty,oneof=PENDING ACKNOWLEDGED COMPLETED"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=200"`
}
