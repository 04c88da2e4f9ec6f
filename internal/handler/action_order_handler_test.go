package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateActionOrder(t *testing.T) {
	s := newTestServices()
	var got *service.CreateActionOrderRequest
	s.orders.CreateFunc = func(ctx context.Context, req *service.CreateActionOrderRequest) (*domain.ActionOrder, error) {
		got = req
		return &domain.ActionOrder{ID: "order-1", Title: req.Title, Priority: req.Priority, Status: domain.ActionOrderStatusPending}, nil
	}

	code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/action-orders", body: map[string]interface{}{
		"assigned_to": "staff-7",
		"zone_id":     "zone-1",
		"title":       "Open the east gate",
		"priority":    "HIGH",
		"target":      map[string]float64{"latitude": 27.1751, "longitude": 0},
	}})

	require.Equal(t, http.StatusCreated, code)
	require.NotNil(t, got)
	assert.Equal(t, domain.ActionPriorityHigh, got.Priority)
	require.NotNil(t, got.Target)
	assert.Equal(t, 27.1751, got.Target.Latitude)
	assert.Zero(t, got.Target.Longitude)
	assert.Equal(t, "order-1", decode[domain.ActionOrder](t, env).ID)
}

func TestCreateActionOrder_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing title", map[string]interface{}{"assigned_to": "s", "zone_id": "z"}},
		{"bad priority", map[string]interface{}{"assigned_to": "s", "zone_id": "z", "title": "t", "priority": "URGENT"}},
		{"latitude out of range", map[string]interface{}{
			"assigned_to": "s", "zone_id": "z", "title": "t",
			"target": map[string]float64{"latitude": 91, "longitude": 0},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServices()
			code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/action-orders", body: tt.body})
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		})
	}
}

func TestListActionOrders(t *testing.T) {
	s := newTestServices()
	var got repository.ActionOrderFilter
	s.orders.ListFunc = func(ctx context.Context, filter repository.ActionOrderFilter) ([]*domain.ActionOrder, error) {
		got = filter
		return []*domain.ActionOrder{{ID: "order-1"}}, nil
	}

	code, env := s.do(t, call{method: http.MethodGet, path: "/api/v1/action-orders?assigned_to=staff-7&status=PENDING&limit=10"})

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "staff-7", got.AssignedTo)
	assert.Equal(t, domain.ActionOrderStatusPending, got.Status)
	assert.Equal(t, 10, got.Limit)
	assert.Len(t, decode[[]domain.ActionOrder](t, env), 1)

	code, _ = s.do(t, call{method: http.MethodGet, path: "/api/v1/action-orders?status=DONE"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAcknowledgeActionOrder(t *testing.T) {
	s := newTestServices()
	s.orders.AcknowledgeFunc = func(ctx context.Context, id string) (*domain.ActionOrder, error) {
		if id == "missing" {
			return nil, domain.ErrActionOrderNotFound
		}
		return &domain.ActionOrder{ID: id, Status: domain.ActionOrderStatusAcknowledged}, nil
	}

	code, _ := s.do(t, call{method: http.MethodPost, path: "/api/v1/action-orders/order-1/acknowledge"})
	assert.Equal(t, http.StatusOK, code)

	code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/action-orders/missing/acknowledge"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ACTION_ORDER_NOT_FOUND", env.Error.Code)
}

func TestCompleteActionOrder(t *testing.T) {
	s := newTestServices()
	var got *service.CompleteActionOrderRequest
	s.orders.CompleteFunc = func(ctx context.Context, id string, req *service.CompleteActionOrderRequest) (*domain.ActionOrder, error) {
		got = req
		if req.Location == nil {
			return nil, domain.ErrLocationProofMissing
		}
		return &domain.ActionOrder{ID: id, Status: domain.ActionOrderStatusCompleted}, nil
	}

	code, _ := s.do(t, call{method: http.MethodPost, path: "/api/v1/action-orders/order-1/complete", body: map[string]interface{}{
		"note":     "gate open",
		"location": map[string]float64{"latitude": 27.1751, "longitude": 78.0421},
	}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "gate open", got.Note)
	assert.Equal(t, 78.0421, got.Location.Longitude)

	code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/action-orders/order-1/complete"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "LOCATION_PROOF_REQUIRED", env.Error.Code)
}
