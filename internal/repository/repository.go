package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
)

// DestinationRepository reads destinations
type DestinationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Destination, error)
	List(ctx context.Context) ([]*domain.Destination, error)
}

// ZoneRepository reads zones and persists their health classification
type ZoneRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Zone, error)
	ListByDestination(ctx context.Context, destinationID string) ([]*domain.Zone, error)
	// UpdateHealth stores health only if the zone counter still equals
	// observedCurrent. It returns false when the counter moved.
	UpdateHealth(ctx context.Context, zoneID string, observedCurrent int, health domain.ZoneHealth) (bool, error)
}

// RuleRepository lists active rules ordered by priority descending
type RuleRepository interface {
	ListCapacityRules(ctx context.Context, destinationID string) ([]*domain.CapacityRule, error)
	ListPricingRules(ctx context.Context, destinationID string) ([]*domain.PricingRule, error)
}

// VisitorSumFilter selects bookings for the committed-demand aggregate
type VisitorSumFilter struct {
	DestinationID string
	// ZoneID restricts the sum to one zone when set
	ZoneID   string
	Date     time.Time
	Statuses []domain.BookingStatus
}

// TransitionResult holds counters as they stand after a transition
type TransitionResult struct {
	Destination *domain.Destination
	// Zone is nil when the booking has no zone or no counters moved
	Zone *domain.Zone
}

// BookingRepository persists bookings and owns the atomic counter update
type BookingRepository interface {
	// Create returns domain.ErrDuplicateReference when the reference is taken
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	// GetByToken matches the booking reference or the issued entry token
	GetByToken(ctx context.Context, token string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)
	SumVisitorsOnDate(ctx context.Context, filter VisitorSumFilter) (int, error)
	// Transition persists booking, which must currently be stored with
	// status from, and applies delta to the destination and zone counters
	// in the same atomic operation. delta may be nil.
	Transition(ctx context.Context, booking *domain.Booking, from domain.BookingStatus, delta *domain.CounterDelta) (*TransitionResult, error)
}

// ActionOrderFilter narrows ListActionOrders
type ActionOrderFilter struct {
	AssignedTo string
	ZoneID     string
	Status     domain.ActionOrderStatus
	Limit      int
}

// ActionOrderRepository persists field-staff work orders
type ActionOrderRepository interface {
	Create(ctx context.Context, order *domain.ActionOrder) error
	GetByID(ctx context.Context, id string) (*domain.ActionOrder, error)
	List(ctx context.Context, filter ActionOrderFilter) ([]*domain.ActionOrder, error)
	// Update persists order if it is still stored with status from
	Update(ctx context.Context, order *domain.ActionOrder, from domain.ActionOrderStatus) error
	// ListStale returns PENDING, never-escalated orders with one of
	// priorities created before olderThan, oldest first
	ListStale(ctx context.Context, olderThan time.Time, priorities []domain.ActionPriority, limit int) ([]*domain.ActionOrder, error)
	// MarkEscalated persists an escalation if the order is still PENDING
	// and unescalated. It returns false when another sweeper won.
	MarkEscalated(ctx context.Context, order *domain.ActionOrder) (bool, error)
}

// OccupancySnapshot is the live view served to dashboards
type OccupancySnapshot struct {
	DestinationID      string
	DestinationCurrent int
	DestinationMax     int
	Zones              map[string]ZoneOccupancy
	UpdatedAt          time.Time
}

// ZoneOccupancy is one zone's entry in an OccupancySnapshot
type ZoneOccupancy struct {
	ZoneID     string
	Name       string
	Current    int
	Max        int
	Status     domain.ZoneStatus
	AlertLevel domain.AlertLevel
}

// OccupancyCache mirrors counters for read-heavy dashboards. It is never
// the source of truth.
type OccupancyCache interface {
	Apply(ctx context.Context, update *domain.CapacityUpdate) error
	Get(ctx context.Context, destinationID string) (*OccupancySnapshot, error)
}
