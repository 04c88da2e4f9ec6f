package service

import (
	"context"
	"testing"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jantarMantar = domain.GeoPoint{Latitude: 26.9248, Longitude: 75.8246}

func newActionOrderService(t *testing.T) (ActionOrderService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	svc := NewActionOrderService(store.ActionOrders(), &ActionOrderServiceConfig{
		GeoProofRadiusMeters: 100,
		Clock:                fixedClock(scanTime),
	})
	return svc, store
}

func TestActionOrderService_Create(t *testing.T) {
	svc, _ := newActionOrderService(t)
	ctx := context.Background()

	order, err := svc.CreateActionOrder(ctx, &CreateActionOrderRequest{
		AssignedTo: "staff-1", ZoneID: "zone-1", Title: "Close east gate", Target: &jantarMantar,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, domain.ActionOrderStatusPending, order.Status)
	assert.Equal(t, domain.ActionPriorityMedium, order.Priority)
	assert.Equal(t, scanTime, order.CreatedAt)

	tests := []struct {
		name string
		req  *CreateActionOrderRequest
	}{
		{"missing title", &CreateActionOrderRequest{AssignedTo: "staff-1", Title: "  "}},
		{"missing assignee", &CreateActionOrderRequest{Title: "x"}},
		{"unknown priority", &CreateActionOrderRequest{AssignedTo: "staff-1", Title: "x", Priority: "URGENT"}},
		{"bad coordinate", &CreateActionOrderRequest{AssignedTo: "staff-1", Title: "x", Target: &domain.GeoPoint{Latitude: 91}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateActionOrder(ctx, tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidActionOrder)
		})
	}
}

func TestActionOrderService_AcknowledgeThenComplete(t *testing.T) {
	svc, _ := newActionOrderService(t)
	ctx := context.Background()
	order, err := svc.CreateActionOrder(ctx, &CreateActionOrderRequest{
		AssignedTo: "staff-1", Title: "Refill water station", Priority: domain.ActionPriorityHigh,
	})
	require.NoError(t, err)

	acked, err := svc.AcknowledgeActionOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionOrderStatusAcknowledged, acked.Status)

	_, err = svc.AcknowledgeActionOrder(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	done, err := svc.CompleteActionOrder(ctx, order.ID, &CompleteActionOrderRequest{Note: "refilled"})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionOrderStatusCompleted, done.Status)
	assert.Equal(t, "refilled", done.CompletionNote)

	_, err = svc.CompleteActionOrder(ctx, order.ID, nil)
	assert.True(t, domain.IsConflictError(err))

	_, err = svc.AcknowledgeActionOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrActionOrderNotFound)
}

func TestActionOrderService_CompleteRequiresNearbyProof(t *testing.T) {
	svc, _ := newActionOrderService(t)
	ctx := context.Background()
	order, err := svc.CreateActionOrder(ctx, &CreateActionOrderRequest{
		AssignedTo: "staff-1", Title: "Inspect sundial", Target: &jantarMantar,
	})
	require.NoError(t, err)

	_, err = svc.CompleteActionOrder(ctx, order.ID, &CompleteActionOrderRequest{})
	assert.ErrorIs(t, err, domain.ErrLocationProofMissing)

	// roughly 1.1 km north
	far := domain.GeoPoint{Latitude: jantarMantar.Latitude + 0.01, Longitude: jantarMantar.Longitude}
	_, err = svc.CompleteActionOrder(ctx, order.ID, &CompleteActionOrderRequest{Location: &far})
	assert.ErrorIs(t, err, domain.ErrLocationProofTooFar)
	assert.True(t, domain.IsValidationError(err))

	near := domain.GeoPoint{Latitude: jantarMantar.Latitude + 0.0003, Longitude: jantarMantar.Longitude}
	done, err := svc.CompleteActionOrder(ctx, order.ID, &CompleteActionOrderRequest{Location: &near})
	require.NoError(t, err)
	require.NotNil(t, done.CompletedFrom)
	assert.Equal(t, near, *done.CompletedFrom)
}

func TestActionOrderService_List(t *testing.T) {
	svc, store := newActionOrderService(t)
	ctx := context.Background()
	for i, assignee := range []string{"staff-1", "staff-1", "staff-2"} {
		require.NoError(t, store.ActionOrders().Create(ctx, &domain.ActionOrder{
			ID: string(rune('a' + i)), AssignedTo: assignee, Title: "t",
			Status: domain.ActionOrderStatusPending, Priority: domain.ActionPriorityLow,
			CreatedAt: scanTime.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := svc.ListActionOrders(ctx, repository.ActionOrderFilter{AssignedTo: "staff-1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.ListActionOrders(ctx, repository.ActionOrderFilter{Status: domain.ActionOrderStatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, got)
}
