package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
)

// MemoryStore keeps every aggregate in process memory behind one mutex.
// Used for tests and STORE_DRIVER=memory.
type MemoryStore struct {
	mu            sync.Mutex
	destinations  map[string]*domain.Destination
	zones         map[string]*domain.Zone
	capacityRules map[string][]*domain.CapacityRule
	pricingRules  map[string][]*domain.PricingRule
	bookings      map[string]*domain.Booking
	references    map[string]string
	tokens        map[string]string
	orders        map[string]*domain.ActionOrder
	now           func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		destinations:  make(map[string]*domain.Destination),
		zones:         make(map[string]*domain.Zone),
		capacityRules: make(map[string][]*domain.CapacityRule),
		pricingRules:  make(map[string][]*domain.PricingRule),
		bookings:      make(map[string]*domain.Booking),
		references:    make(map[string]string),
		tokens:        make(map[string]string),
		orders:        make(map[string]*domain.ActionOrder),
		now:           time.Now,
	}
}

// Repository views. Each shares the store's lock.
func (s *MemoryStore) Destinations() DestinationRepository { return memDestinations{s} }
func (s *MemoryStore) Zones() ZoneRepository               { return memZones{s} }
func (s *MemoryStore) Rules() RuleRepository               { return memRules{s} }
func (s *MemoryStore) Bookings() BookingRepository         { return memBookings{s} }
func (s *MemoryStore) ActionOrders() ActionOrderRepository { return memActionOrders{s} }

// AddDestination inserts or replaces a destination
func (s *MemoryStore) AddDestination(d *domain.Destination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.destinations[d.ID] = &cp
}

// AddZone inserts or replaces a zone, classifying its counters
func (s *MemoryStore) AddZone(z *domain.Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *z
	h := domain.Classify(cp.CurrentCapacity, cp.MaxCapacity)
	cp.Status, cp.AlertLevel = h.Status, h.AlertLevel
	s.zones[z.ID] = &cp
}

// AddCapacityRule appends a capacity rule
func (s *MemoryStore) AddCapacityRule(r *domain.CapacityRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.capacityRules[r.DestinationID] = append(s.capacityRules[r.DestinationID], &cp)
}

// AddPricingRule appends a pricing rule
func (s *MemoryStore) AddPricingRule(r *domain.PricingRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.pricingRules[r.DestinationID] = append(s.pricingRules[r.DestinationID], &cp)
}

func cloneBooking(b *domain.Booking) *domain.Booking {
	cp := *b
	if b.VisitorDetails != nil {
		cp.VisitorDetails = append([]domain.VisitorDetail(nil), b.VisitorDetails...)
	}
	return &cp
}

func cloneOrder(o *domain.ActionOrder) *domain.ActionOrder {
	cp := *o
	return &cp
}

func adjust(current, delta int) int {
	if current+delta < 0 {
		return 0
	}
	return current + delta
}

// --- destinations ---

type memDestinations struct{ s *MemoryStore }

func (r memDestinations) GetByID(ctx context.Context, id string) (*domain.Destination, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.destinations[id]
	if !ok {
		return nil, domain.ErrDestinationNotFound
	}
	cp := *d
	return &cp, nil
}

func (r memDestinations) List(ctx context.Context) ([]*domain.Destination, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.Destination, 0, len(r.s.destinations))
	for _, d := range r.s.destinations {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- zones ---

type memZones struct{ s *MemoryStore }

func (r memZones) GetByID(ctx context.Context, id string) (*domain.Zone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	z, ok := r.s.zones[id]
	if !ok {
		return nil, domain.ErrZoneNotFound
	}
	cp := *z
	return &cp, nil
}

func (r memZones) ListByDestination(ctx context.Context, destinationID string) ([]*domain.Zone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.Zone, 0)
	for _, z := range r.s.zones {
		if z.DestinationID == destinationID {
			cp := *z
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memZones) UpdateHealth(ctx context.Context, zoneID string, observedCurrent int, health domain.ZoneHealth) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	z, ok := r.s.zones[zoneID]
	if !ok {
		return false, domain.ErrZoneNotFound
	}
	if z.CurrentCapacity != observedCurrent {
		return false, nil
	}
	z.Status = health.Status
	z.AlertLevel = health.AlertLevel
	z.UpdatedAt = r.s.now()
	return true, nil
}

// --- rules ---

type memRules struct{ s *MemoryStore }

func (r memRules) ListCapacityRules(ctx context.Context, destinationID string) ([]*domain.CapacityRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.CapacityRule, 0)
	for _, rule := range r.s.capacityRules[destinationID] {
		if rule.IsActive {
			cp := *rule
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (r memRules) ListPricingRules(ctx context.Context, destinationID string) ([]*domain.PricingRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.PricingRule, 0)
	for _, rule := range r.s.pricingRules[destinationID] {
		if rule.IsActive {
			cp := *rule
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// --- bookings ---

type memBookings struct{ s *MemoryStore }

func (r memBookings) Create(ctx context.Context, booking *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.references[booking.BookingReference]; taken {
		return domain.ErrDuplicateReference
	}
	if _, exists := r.s.bookings[booking.ID]; exists {
		return domain.ErrInvalidTransition.Withf("booking %s already exists", booking.ID)
	}
	r.s.bookings[booking.ID] = cloneBooking(booking)
	r.s.references[booking.BookingReference] = booking.ID
	return nil
}

func (r memBookings) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

func (r memBookings) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.references[reference]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return cloneBooking(r.s.bookings[id]), nil
}

func (r memBookings) GetByToken(ctx context.Context, token string) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.references[token]
	if !ok {
		id, ok = r.s.tokens[token]
	}
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return cloneBooking(r.s.bookings[id]), nil
}

func (r memBookings) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]*domain.Booking, 0)
	for _, b := range r.s.bookings {
		if b.UserID == userID {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return []*domain.Booking{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*domain.Booking, 0, end-offset)
	for _, b := range all[offset:end] {
		out = append(out, cloneBooking(b))
	}
	return out, nil
}

func (r memBookings) SumVisitorsOnDate(ctx context.Context, filter VisitorSumFilter) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	statuses := make(map[domain.BookingStatus]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}

	total := 0
	for _, b := range r.s.bookings {
		if b.DestinationID != filter.DestinationID || !statuses[b.Status] {
			continue
		}
		if filter.ZoneID != "" && b.ZoneID != filter.ZoneID {
			continue
		}
		if !domain.SameDay(b.VisitDate, filter.Date) {
			continue
		}
		total += b.NumberOfVisitors
	}
	return total, nil
}

func (r memBookings) Transition(ctx context.Context, booking *domain.Booking, from domain.BookingStatus, delta *domain.CounterDelta) (*TransitionResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.bookings[booking.ID]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	if stored.Status != from {
		return nil, domain.ErrInvalidTransition.Withf("booking %s is %s, expected %s", booking.ID, stored.Status, from)
	}

	result := &TransitionResult{}
	if delta != nil {
		dest, ok := r.s.destinations[delta.DestinationID]
		if !ok {
			return nil, domain.ErrDestinationNotFound
		}
		var zone *domain.Zone
		if delta.ZoneID != "" {
			if zone, ok = r.s.zones[delta.ZoneID]; !ok {
				return nil, domain.ErrZoneNotFound
			}
		}

		now := r.s.now()
		dest.CurrentCapacity = adjust(dest.CurrentCapacity, delta.Delta)
		dest.CounterVersion++
		dest.UpdatedAt = now
		destCopy := *dest
		result.Destination = &destCopy
		if zone != nil {
			zone.CurrentCapacity = adjust(zone.CurrentCapacity, delta.Delta)
			zone.CounterVersion++
			zone.UpdatedAt = now
			zoneCopy := *zone
			result.Zone = &zoneCopy
		}
	}

	r.s.bookings[booking.ID] = cloneBooking(booking)
	if booking.QRCode != "" {
		r.s.tokens[booking.QRCode] = booking.ID
	}
	return result, nil
}

// --- action orders ---

type memActionOrders struct{ s *MemoryStore }

func (r memActionOrders) Create(ctx context.Context, order *domain.ActionOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r memActionOrders) GetByID(ctx context.Context, id string) (*domain.ActionOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrActionOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r memActionOrders) List(ctx context.Context, filter ActionOrderFilter) ([]*domain.ActionOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.ActionOrder, 0)
	for _, o := range r.s.orders {
		if filter.AssignedTo != "" && o.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.ZoneID != "" && o.ZoneID != filter.ZoneID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r memActionOrders) Update(ctx context.Context, order *domain.ActionOrder, from domain.ActionOrderStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[order.ID]
	if !ok {
		return domain.ErrActionOrderNotFound
	}
	if stored.Status != from {
		return domain.ErrInvalidTransition.Withf("action order %s is %s, expected %s", order.ID, stored.Status, from)
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r memActionOrders) ListStale(ctx context.Context, olderThan time.Time, priorities []domain.ActionPriority, limit int) ([]*domain.ActionOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[domain.ActionPriority]bool, len(priorities))
	for _, p := range priorities {
		wanted[p] = true
	}

	out := make([]*domain.ActionOrder, 0)
	for _, o := range r.s.orders {
		if o.Status == domain.ActionOrderStatusPending && o.EscalatedAt == nil &&
			wanted[o.Priority] && o.CreatedAt.Before(olderThan) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memActionOrders) MarkEscalated(ctx context.Context, order *domain.ActionOrder) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[order.ID]
	if !ok {
		return false, domain.ErrActionOrderNotFound
	}
	if stored.Status != domain.ActionOrderStatusPending || stored.EscalatedAt != nil {
		return false, nil
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return true, nil
}
