package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/kafka"
	"github.com/stretchr/testify/require"
)

var (
	visitDay = time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC) // Saturday
	scanTime = time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC)
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

// MockBookingRepository wraps a real repository and overrides selected calls
type MockBookingRepository struct {
	repository.BookingRepository
	CreateFunc     func(ctx context.Context, booking *domain.Booking) error
	TransitionFunc func(ctx context.Context, booking *domain.Booking, from domain.BookingStatus, delta *domain.CounterDelta) (*repository.TransitionResult, error)
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, booking)
	}
	return m.BookingRepository.Create(ctx, booking)
}

func (m *MockBookingRepository) Transition(ctx context.Context, booking *domain.Booking, from domain.BookingStatus, delta *domain.CounterDelta) (*repository.TransitionResult, error) {
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, booking, from, delta)
	}
	return m.BookingRepository.Transition(ctx, booking, from, delta)
}

// MockZoneRepository is a mock implementation of ZoneRepository
type MockZoneRepository struct {
	GetByIDFunc           func(ctx context.Context, id string) (*domain.Zone, error)
	ListByDestinationFunc func(ctx context.Context, destinationID string) ([]*domain.Zone, error)
	UpdateHealthFunc      func(ctx context.Context, zoneID string, observedCurrent int, health domain.ZoneHealth) (bool, error)
}

func (m *MockZoneRepository) GetByID(ctx context.Context, id string) (*domain.Zone, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrZoneNotFound
}

func (m *MockZoneRepository) ListByDestination(ctx context.Context, destinationID string) ([]*domain.Zone, error) {
	if m.ListByDestinationFunc != nil {
		return m.ListByDestinationFunc(ctx, destinationID)
	}
	return []*domain.Zone{}, nil
}

func (m *MockZoneRepository) UpdateHealth(ctx context.Context, zoneID string, observedCurrent int, health domain.ZoneHealth) (bool, error) {
	if m.UpdateHealthFunc != nil {
		return m.UpdateHealthFunc(ctx, zoneID, observedCurrent, health)
	}
	return true, nil
}

// MockActionOrderRepository wraps a real repository and overrides selected calls
type MockActionOrderRepository struct {
	repository.ActionOrderRepository
	ListStaleFunc     func(ctx context.Context, olderThan time.Time, priorities []domain.ActionPriority, limit int) ([]*domain.ActionOrder, error)
	MarkEscalatedFunc func(ctx context.Context, order *domain.ActionOrder) (bool, error)
}

func (m *MockActionOrderRepository) ListStale(ctx context.Context, olderThan time.Time, priorities []domain.ActionPriority, limit int) ([]*domain.ActionOrder, error) {
	if m.ListStaleFunc != nil {
		return m.ListStaleFunc(ctx, olderThan, priorities, limit)
	}
	return m.ActionOrderRepository.ListStale(ctx, olderThan, priorities, limit)
}

func (m *MockActionOrderRepository) MarkEscalated(ctx context.Context, order *domain.ActionOrder) (bool, error) {
	if m.MarkEscalatedFunc != nil {
		return m.MarkEscalatedFunc(ctx, order)
	}
	return m.ActionOrderRepository.MarkEscalated(ctx, order)
}

// MockOccupancyCache is a mock implementation of OccupancyCache
type MockOccupancyCache struct {
	ApplyFunc func(ctx context.Context, update *domain.CapacityUpdate) error
	GetFunc   func(ctx context.Context, destinationID string) (*repository.OccupancySnapshot, error)
}

func (m *MockOccupancyCache) Apply(ctx context.Context, update *domain.CapacityUpdate) error {
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, update)
	}
	return nil
}

func (m *MockOccupancyCache) Get(ctx context.Context, destinationID string) (*repository.OccupancySnapshot, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, destinationID)
	}
	return nil, repository.ErrCacheMiss
}

// MockTokenIssuer is a mock implementation of TokenIssuer
type MockTokenIssuer struct {
	IssueFunc func(bookingID string, issuedAt time.Time) (string, error)
}

func (m *MockTokenIssuer) Issue(bookingID string, issuedAt time.Time) (string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(bookingID, issuedAt)
	}
	return "token-" + bookingID, nil
}

// recordingBroadcaster keeps every published update
type recordingBroadcaster struct {
	mu        sync.Mutex
	updates   []*domain.CapacityUpdate
	err       error
	panicWith string
}

func (b *recordingBroadcaster) PublishCapacityUpdate(ctx context.Context, update *domain.CapacityUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, update)
	if b.panicWith != "" {
		panic(b.panicWith)
	}
	return b.err
}

func (b *recordingBroadcaster) all() []*domain.CapacityUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*domain.CapacityUpdate(nil), b.updates...)
}

// recordingNotifier keeps every confirmation
type recordingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *recordingNotifier) NotifyBookingConfirmed(ctx context.Context, booking *domain.Booking, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = make(map[string]string)
	}
	n.tokens[booking.ID] = token
	return nil
}

// MockProducer is a mock implementation of kafka.MessageProducer
type MockProducer struct {
	mu          sync.Mutex
	Messages    []*kafka.Message
	ProduceFunc func(ctx context.Context, msg *kafka.Message) error
}

func (m *MockProducer) Produce(ctx context.Context, msg *kafka.Message) error {
	m.mu.Lock()
	m.Messages = append(m.Messages, msg)
	m.mu.Unlock()
	if m.ProduceFunc != nil {
		return m.ProduceFunc(ctx, msg)
	}
	return nil
}

func (m *MockProducer) Close() {}

// fixture wires every service over one MemoryStore
type fixture struct {
	store       *repository.MemoryStore
	bookings    repository.BookingRepository
	resolver    RuleResolver
	checker     AvailabilityChecker
	pricing     PricingEngine
	lifecycle   BookingService
	gate        CheckpointGate
	broadcaster *recordingBroadcaster
	notifier    *recordingNotifier
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	bookings func(repository.BookingRepository) repository.BookingRepository
	clock    func() time.Time
}

func withBookingRepo(wrap func(repository.BookingRepository) repository.BookingRepository) fixtureOption {
	return func(c *fixtureConfig) { c.bookings = wrap }
}

func withClock(clock func() time.Time) fixtureOption {
	return func(c *fixtureConfig) { c.clock = clock }
}

// newFixture seeds dest-1 (1000/day) with zone-1 Ramparts (100) and zone-2
// Museum (10)
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := &fixtureConfig{clock: fixedClock(scanTime)}
	for _, opt := range opts {
		opt(cfg)
	}

	store := repository.NewMemoryStore()
	store.AddDestination(&domain.Destination{
		ID: "dest-1", Name: "Amber Fort", MaxDailyCapacity: 1000, Status: domain.DestinationStatusActive,
	})
	store.AddZone(&domain.Zone{ID: "zone-1", DestinationID: "dest-1", Name: "Ramparts", MaxCapacity: 100})
	store.AddZone(&domain.Zone{ID: "zone-2", DestinationID: "dest-1", Name: "Museum", MaxCapacity: 10})

	bookings := store.Bookings()
	if cfg.bookings != nil {
		bookings = cfg.bookings(bookings)
	}

	issuer, err := NewJWTTokenIssuer(&TokenIssuerConfig{Secret: "test-secret"})
	require.NoError(t, err)

	f := &fixture{
		store:       store,
		bookings:    bookings,
		broadcaster: &recordingBroadcaster{},
		notifier:    &recordingNotifier{},
	}
	f.resolver = NewRuleResolver(store.Destinations(), store.Rules())
	f.checker = NewAvailabilityChecker(f.resolver, store.Zones(), bookings)
	f.pricing = NewPricingEngine(store.Destinations(), store.Rules(), bookings, nil)
	f.lifecycle = NewBookingService(BookingServiceDeps{
		Destinations: store.Destinations(),
		Bookings:     bookings,
		Availability: f.checker,
		Pricing:      f.pricing,
		Health:       NewZoneHealthTracker(store.Zones()),
		Tokens:       issuer,
		Broadcaster:  f.broadcaster,
		Notifier:     f.notifier,
		Dispatcher:   InlineDispatcher{},
	}, &BookingServiceConfig{Location: time.UTC, Clock: cfg.clock})
	f.gate = NewCheckpointGate(bookings, store.Zones(), f.lifecycle, &CheckpointGateConfig{Location: time.UTC, Clock: cfg.clock})
	return f
}

// confirmed creates and confirms a booking for visitDay
func (f *fixture) confirmed(t *testing.T, zoneID string, visitors int) *domain.Booking {
	t.Helper()
	ctx := context.Background()
	b, err := f.lifecycle.CreateBooking(ctx, &CreateBookingRequest{
		UserID:        "user-1",
		DestinationID: "dest-1",
		ZoneID:        zoneID,
		VisitDate:     visitDay,
		VisitorCount:  visitors,
	})
	require.NoError(t, err)
	b, err = f.lifecycle.ConfirmBooking(ctx, b.ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) zone(t *testing.T, id string) *domain.Zone {
	t.Helper()
	z, err := f.store.Zones().GetByID(context.Background(), id)
	require.NoError(t, err)
	return z
}

func (f *fixture) destination(t *testing.T) *domain.Destination {
	t.Helper()
	d, err := f.store.Destinations().GetByID(context.Background(), "dest-1")
	require.NoError(t, err)
	return d
}
