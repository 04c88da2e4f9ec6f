package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/dto"
	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCreateBody() map[string]interface{} {
	return map[string]interface{}{
		"destination_id":     "dest-1",
		"zone_id":            "zone-1",
		"visit_date":         "2025-06-14",
		"number_of_visitors": 2,
		"visitor_details": []map[string]interface{}{
			{"name": "Asha", "category": "ADULT"},
			{"name": "Ravi", "age": 9, "category": "CHILD"},
		},
	}
}

func TestCreateBooking_Success(t *testing.T) {
	s := newTestServices()
	var got *service.CreateBookingRequest
	s.bookings.CreateBookingFunc = func(ctx context.Context, req *service.CreateBookingRequest) (*domain.Booking, error) {
		got = req
		return testBooking(req.UserID), nil
	}

	code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: validCreateBody(), userID: "user-1"})

	require.Equal(t, http.StatusCreated, code)
	assert.True(t, env.Success)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, visitDay, got.VisitDate)
	assert.Equal(t, "zone-1", got.ZoneID)
	require.Len(t, got.VisitorDetails, 2)
	assert.Equal(t, domain.VisitorCategoryChild, got.VisitorDetails[1].Category)

	resp := decode[dto.BookingResponse](t, env)
	assert.Equal(t, "2025-06-14", resp.VisitDate)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, 230.0, resp.TotalAmount)
}

func TestCreateBooking_RequiresUser(t *testing.T) {
	s := newTestServices()
	code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: validCreateBody()})

	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestCreateBooking_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(body map[string]interface{})
		field  string
	}{
		{"missing destination", func(b map[string]interface{}) { delete(b, "destination_id") }, "DestinationID"},
		{"bad date", func(b map[string]interface{}) { b["visit_date"] = "14/06/2025" }, "VisitDate"},
		{"zero visitors", func(b map[string]interface{}) { b["number_of_visitors"] = 0 }, "VisitorCount"},
		{"unknown category", func(b map[string]interface{}) {
			b["visitor_details"] = []map[string]interface{}{{"category": "VIP"}}
		}, "Category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServices()
			called := false
			s.bookings.CreateBookingFunc = func(ctx context.Context, req *service.CreateBookingRequest) (*domain.Booking, error) {
				called = true
				return nil, nil
			}
			body := validCreateBody()
			tt.mutate(body)

			code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: body, userID: "user-1"})

			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
			assert.Contains(t, env.Error.Message, tt.field)
			assert.False(t, called)
		})
	}
}

func TestCreateBooking_DomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"capacity denied", domain.DeniedError("Only 10 slots left on 2025-06-14"), http.StatusConflict, "CAPACITY_EXCEEDED"},
		{"closed destination", domain.ErrDestinationUnavailable, http.StatusConflict, "DESTINATION_UNAVAILABLE"},
		{"past date", domain.ErrVisitDateInPast, http.StatusBadRequest, "VISIT_DATE_IN_PAST"},
		{"unknown destination", domain.ErrDestinationNotFound, http.StatusNotFound, "DESTINATION_NOT_FOUND"},
		{"store failure", domain.NewStoreError("create booking", errors.New("conn reset")), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServices()
			s.bookings.CreateBookingFunc = func(ctx context.Context, req *service.CreateBookingRequest) (*domain.Booking, error) {
				return nil, tt.err
			}

			code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: validCreateBody(), userID: "user-1"})

			assert.Equal(t, tt.status, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestCreateBooking_DenialMessageReachesClient(t *testing.T) {
	s := newTestServices()
	s.bookings.CreateBookingFunc = func(ctx context.Context, req *service.CreateBookingRequest) (*domain.Booking, error) {
		return nil, domain.DeniedError(`Zone "Museum" has only 2 slots left on 2025-06-14`)
	}

	_, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: validCreateBody(), userID: "user-1"})

	assert.Equal(t, `Zone "Museum" has only 2 slots left on 2025-06-14`, env.Error.Message)
}

func TestGetBooking_HidesOtherUsersBookings(t *testing.T) {
	s := newTestServices()
	s.bookings.GetBookingFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
		return testBooking("owner"), nil
	}

	code, _ := s.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/booking-1", userID: "owner"})
	assert.Equal(t, http.StatusOK, code)

	code, env := s.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/booking-1", userID: "someone-else"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "BOOKING_NOT_FOUND", env.Error.Code)
}

func TestConfirmBooking(t *testing.T) {
	s := newTestServices()
	s.bookings.GetBookingFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
		return testBooking("user-1"), nil
	}
	s.bookings.ConfirmBookingFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
		b := testBooking("user-1")
		b.Status = domain.BookingStatusConfirmed
		b.QRCode = "signed-token"
		return b, nil
	}

	code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/booking-1/confirm", userID: "user-1"})

	require.Equal(t, http.StatusOK, code)
	resp := decode[dto.BookingResponse](t, env)
	assert.Equal(t, "CONFIRMED", resp.Status)
	assert.Equal(t, "signed-token", resp.EntryToken)
}

func TestConfirmBooking_Twice(t *testing.T) {
	s := newTestServices()
	s.bookings.GetBookingFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
		return testBooking("user-1"), nil
	}
	s.bookings.ConfirmBookingFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
		return nil, domain.ErrInvalidTransition
	}

	code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/booking-1/confirm", userID: "user-1"})

	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
}

func TestCancelBooking(t *testing.T) {
	s := newTestServices()
	s.bookings.GetBookingFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
		return testBooking("user-1"), nil
	}
	var reason string
	s.bookings.CancelBookingFunc = func(ctx context.Context, id, r string) (*domain.Booking, error) {
		reason = r
		b := testBooking("user-1")
		b.Status = domain.BookingStatusCancelled
		b.CancellationReason = r
		return b, nil
	}

	t.Run("with reason", func(t *testing.T) {
		code, env := s.do(t, call{
			method: http.MethodPost, path: "/api/v1/bookings/booking-1/cancel",
			body: map[string]string{"reason": "rain"}, userID: "user-1",
		})
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "rain", reason)
		assert.Equal(t, "CANCELLED", decode[dto.BookingResponse](t, env).Status)
	})

	t.Run("without body", func(t *testing.T) {
		code, _ := s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/booking-1/cancel", userID: "user-1"})
		assert.Equal(t, http.StatusOK, code)
		assert.Empty(t, reason)
	})

	t.Run("completed booking", func(t *testing.T) {
		s.bookings.CancelBookingFunc = func(ctx context.Context, id, r string) (*domain.Booking, error) {
			return nil, domain.ErrCannotCancel
		}
		code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/booking-1/cancel", userID: "user-1"})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "CANNOT_CANCEL", env.Error.Code)
	})
}

func TestCheckInAndCheckOut(t *testing.T) {
	s := newTestServices()
	s.bookings.CheckInFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
		b := testBooking("user-1")
		b.Status = domain.BookingStatusCheckedIn
		return b, nil
	}
	s.bookings.CheckOutFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
		return nil, domain.ErrNotCheckedIn
	}

	code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/booking-1/check-in", userID: "staff-1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CHECKED_IN", decode[dto.BookingResponse](t, env).Status)

	code, env = s.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/booking-1/check-out", userID: "staff-1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NOT_CHECKED_IN", env.Error.Code)
}

func TestListBookings(t *testing.T) {
	s := newTestServices()
	var gotLimit, gotOffset int
	s.bookings.ListUserBookingsFunc = func(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
		gotLimit, gotOffset = limit, offset
		return []*domain.Booking{testBooking(userID)}, nil
	}

	code, env := s.do(t, call{method: http.MethodGet, path: "/api/v1/bookings?offset=5", userID: "user-1"})

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 20, gotLimit)
	assert.Equal(t, 5, gotOffset)
	page := decode[struct {
		Items []dto.BookingResponse `json:"items"`
		Count int                   `json:"count"`
	}](t, env)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, "user-1", page.Items[0].UserID)

	code, _ = s.do(t, call{method: http.MethodGet, path: "/api/v1/bookings?limit=1000", userID: "user-1"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListBookings_ByReference(t *testing.T) {
	s := newTestServices()
	s.bookings.GetBookingByReferenceFunc = func(ctx context.Context, ref string) (*domain.Booking, error) {
		b := testBooking("user-1")
		b.BookingReference = ref
		return b, nil
	}

	code, env := s.do(t, call{method: http.MethodGet, path: "/api/v1/bookings?reference=CS-ABC-12345678", userID: "user-1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CS-ABC-12345678", decode[dto.BookingResponse](t, env).BookingReference)

	code, _ = s.do(t, call{method: http.MethodGet, path: "/api/v1/bookings?reference=CS-ABC-12345678", userID: "user-2"})
	assert.Equal(t, http.StatusNotFound, code)
}
