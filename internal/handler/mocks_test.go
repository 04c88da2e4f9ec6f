package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/prohmpiriya/crowdsense/pkg/middleware"
	"github.com/prohmpiriya/crowdsense/pkg/response"
	"github.com/stretchr/testify/require"
)

var visitDay = time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)

// MockBookingService is a mock implementation of BookingService for testing
type MockBookingService struct {
	CreateBookingFunc         func(ctx context.Context, req *service.CreateBookingRequest) (*domain.Booking, error)
	ConfirmBookingFunc        func(ctx context.Context, bookingID string) (*domain.Booking, error)
	CheckInFunc               func(ctx context.Context, bookingID string) (*domain.Booking, error)
	CheckOutFunc              func(ctx context.Context, bookingID string) (*domain.Booking, error)
	CancelBookingFunc         func(ctx context.Context, bookingID, reason string) (*domain.Booking, error)
	GetBookingFunc            func(ctx context.Context, bookingID string) (*domain.Booking, error)
	GetBookingByReferenceFunc func(ctx context.Context, reference string) (*domain.Booking, error)
	ListUserBookingsFunc      func(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, req *service.CreateBookingRequest) (*domain.Booking, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockBookingService) ConfirmBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if m.ConfirmBookingFunc != nil {
		return m.ConfirmBookingFunc(ctx, bookingID)
	}
	return nil, nil
}

func (m *MockBookingService) CheckIn(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if m.CheckInFunc != nil {
		return m.CheckInFunc(ctx, bookingID)
	}
	return nil, nil
}

func (m *MockBookingService) CheckOut(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if m.CheckOutFunc != nil {
		return m.CheckOutFunc(ctx, bookingID)
	}
	return nil, nil
}

func (m *MockBookingService) CancelBooking(ctx context.Context, bookingID, reason string) (*domain.Booking, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID, reason)
	}
	return nil, nil
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingService) GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	if m.GetBookingByReferenceFunc != nil {
		return m.GetBookingByReferenceFunc(ctx, reference)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingService) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	if m.ListUserBookingsFunc != nil {
		return m.ListUserBookingsFunc(ctx, userID, limit, offset)
	}
	return nil, nil
}

// MockCheckpointGate is a mock implementation of CheckpointGate for testing
type MockCheckpointGate struct {
	ScanEntryFunc func(ctx context.Context, token, checkpointID string) (*service.EntryResult, error)
	ScanExitFunc  func(ctx context.Context, token, checkpointID string) (*service.ExitResult, error)
}

func (m *MockCheckpointGate) ScanEntry(ctx context.Context, token, checkpointID string) (*service.EntryResult, error) {
	if m.ScanEntryFunc != nil {
		return m.ScanEntryFunc(ctx, token, checkpointID)
	}
	return &service.EntryResult{}, nil
}

func (m *MockCheckpointGate) ScanExit(ctx context.Context, token, checkpointID string) (*service.ExitResult, error) {
	if m.ScanExitFunc != nil {
		return m.ScanExitFunc(ctx, token, checkpointID)
	}
	return &service.ExitResult{}, nil
}

// MockActionOrderService is a mock implementation of ActionOrderService for testing
type MockActionOrderService struct {
	CreateFunc      func(ctx context.Context, req *service.CreateActionOrderRequest) (*domain.ActionOrder, error)
	ListFunc        func(ctx context.Context, filter repository.ActionOrderFilter) ([]*domain.ActionOrder, error)
	AcknowledgeFunc func(ctx context.Context, orderID string) (*domain.ActionOrder, error)
	CompleteFunc    func(ctx context.Context, orderID string, req *service.CompleteActionOrderRequest) (*domain.ActionOrder, error)
}

func (m *MockActionOrderService) CreateActionOrder(ctx context.Context, req *service.CreateActionOrderRequest) (*domain.ActionOrder, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	return &domain.ActionOrder{}, nil
}

func (m *MockActionOrderService) ListActionOrders(ctx context.Context, filter repository.ActionOrderFilter) ([]*domain.ActionOrder, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockActionOrderService) AcknowledgeActionOrder(ctx context.Context, orderID string) (*domain.ActionOrder, error) {
	if m.AcknowledgeFunc != nil {
		return m.AcknowledgeFunc(ctx, orderID)
	}
	return &domain.ActionOrder{}, nil
}

func (m *MockActionOrderService) CompleteActionOrder(ctx context.Context, orderID string, req *service.CompleteActionOrderRequest) (*domain.ActionOrder, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, orderID, req)
	}
	return &domain.ActionOrder{}, nil
}

// MockRuleResolver is a mock implementation of RuleResolver for testing
type MockRuleResolver struct {
	ResolveFunc func(ctx context.Context, destinationID string, date time.Time) (*service.EffectiveCapacity, error)
}

func (m *MockRuleResolver) ResolveEffectiveCapacity(ctx context.Context, destinationID string, date time.Time) (*service.EffectiveCapacity, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, destinationID, date)
	}
	return &service.EffectiveCapacity{}, nil
}

// MockAvailabilityChecker is a mock implementation of AvailabilityChecker for testing
type MockAvailabilityChecker struct {
	CheckFunc func(ctx context.Context, req *service.AvailabilityRequest) (*service.AvailabilityResult, error)
}

func (m *MockAvailabilityChecker) CheckAvailability(ctx context.Context, req *service.AvailabilityRequest) (*service.AvailabilityResult, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, req)
	}
	return &service.AvailabilityResult{IsAvailable: true}, nil
}

// MockPricingEngine is a mock implementation of PricingEngine for testing
type MockPricingEngine struct {
	QuoteFunc func(ctx context.Context, req *service.QuoteRequest) (*service.PriceQuote, error)
}

func (m *MockPricingEngine) Quote(ctx context.Context, req *service.QuoteRequest) (*service.PriceQuote, error) {
	if m.QuoteFunc != nil {
		return m.QuoteFunc(ctx, req)
	}
	return &service.PriceQuote{}, nil
}

// MockOccupancyService is a mock implementation of OccupancyService for testing
type MockOccupancyService struct {
	GetOccupancyFunc func(ctx context.Context, destinationID string) (*service.OccupancyView, error)
}

func (m *MockOccupancyService) GetOccupancy(ctx context.Context, destinationID string) (*service.OccupancyView, error) {
	if m.GetOccupancyFunc != nil {
		return m.GetOccupancyFunc(ctx, destinationID)
	}
	return &service.OccupancyView{}, nil
}

// mockChecker is a HealthChecker returning err
type mockChecker struct{ err error }

func (m mockChecker) HealthCheck(ctx context.Context) error { return m.err }

type testServices struct {
	bookings     *MockBookingService
	gate         *MockCheckpointGate
	orders       *MockActionOrderService
	resolver     *MockRuleResolver
	availability *MockAvailabilityChecker
	pricing      *MockPricingEngine
	occupancy    *MockOccupancyService
	health       map[string]HealthChecker
	limiter      *middleware.KeyedLimiter
}

func newTestServices() *testServices {
	return &testServices{
		bookings:     &MockBookingService{},
		gate:         &MockCheckpointGate{},
		orders:       &MockActionOrderService{},
		resolver:     &MockRuleResolver{},
		availability: &MockAvailabilityChecker{},
		pricing:      &MockPricingEngine{},
		occupancy:    &MockOccupancyService{},
	}
}

func (s *testServices) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	clock := func() time.Time { return visitDay.Add(10 * time.Hour) }
	return NewRouter(&Handlers{
		Health:      NewHealthHandler(s.health),
		Destination: NewDestinationHandler(s.resolver, s.availability, s.pricing, s.occupancy, &DestinationHandlerConfig{Clock: clock}),
		Booking:     NewBookingHandler(s.bookings),
		Checkpoint:  NewCheckpointHandler(s.gate),
		ActionOrder: NewActionOrderHandler(s.orders),
	}, &RouterConfig{ScanLimiter: s.limiter})
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorData `json:"error"`
}

type call struct {
	method string
	path   string
	body   interface{}
	userID string
}

func (s *testServices) do(t *testing.T, c call) (int, *envelope) {
	t.Helper()
	var body *bytes.Buffer
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(c.method, c.path, body)
	require.NoError(t, err)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(middleware.UserIDHeader, c.userID)
	}

	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, &env
}

func decode[T any](t *testing.T, env *envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func testBooking(userID string) *domain.Booking {
	return &domain.Booking{
		ID:               "booking-1",
		UserID:           userID,
		DestinationID:    "dest-1",
		NumberOfVisitors: 2,
		VisitDate:        visitDay,
		Status:           domain.BookingStatusPending,
		PaymentStatus:    domain.PaymentStatusPending,
		BookingReference: "CS-LXDX9MO0-0A1B2C3D",
		TotalAmount:      230,
		PricePerPerson:   115,
		SurgeMultiplier:  1.15,
		Currency:         "INR",
		CreatedAt:        visitDay,
	}
}
