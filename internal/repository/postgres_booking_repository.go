package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/pkg/database"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const bookingColumns = `
	id, user_id, destination_id, zone_id, number_of_visitors, visit_date,
	status, payment_status, booking_reference, qr_code,
	total_amount, price_per_person, surge_multiplier, currency, visitor_details,
	cancellation_reason, entry_time, exit_time, confirmed_at, cancelled_at,
	created_at, updated_at`

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

// Create creates a new booking record in the database
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("destination_id", booking.DestinationID),
		attribute.String("booking_reference", booking.BookingReference),
	)

	details, err := marshalVisitorDetails(booking.VisitorDetails)
	if err != nil {
		return domain.ErrValidation.Withf("invalid visitor details: %v", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22
		)
	`,
		booking.ID,
		booking.UserID,
		booking.DestinationID,
		nullString(booking.ZoneID),
		booking.NumberOfVisitors,
		booking.VisitDate,
		booking.Status.String(),
		string(booking.PaymentStatus),
		booking.BookingReference,
		nullString(booking.QRCode),
		booking.TotalAmount,
		booking.PricePerPerson,
		booking.SurgeMultiplier,
		booking.Currency,
		details,
		nullString(booking.CancellationReason),
		booking.EntryTime,
		booking.ExitTime,
		booking.ConfirmedAt,
		booking.CancelledAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if database.IsUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return domain.NewStoreError("failed to create booking", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.getOne(ctx, "repo.postgres.booking.get_by_id", `WHERE id = $1`, id)
}

// GetByReference retrieves a booking by its booking reference
func (r *PostgresBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	return r.getOne(ctx, "repo.postgres.booking.get_by_reference", `WHERE booking_reference = $1`, reference)
}

// GetByToken retrieves a booking whose reference or entry token equals token
func (r *PostgresBookingRepository) GetByToken(ctx context.Context, token string) (*domain.Booking, error) {
	return r.getOne(ctx, "repo.postgres.booking.get_by_token", `WHERE booking_reference = $1 OR qr_code = $1 LIMIT 1`, token)
}

func (r *PostgresBookingRepository) getOne(ctx context.Context, spanName, where string, arg string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	booking, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewStoreError("failed to get booking", err)
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// ListByUser returns a user's bookings, newest first
func (r *PostgresBookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_user")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewStoreError("failed to list bookings", err)
	}
	defer rows.Close()

	out := make([]*domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, domain.NewStoreError("failed to scan booking", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("failed to iterate bookings", err)
	}

	span.SetStatus(codes.Ok, "")
	return out, nil
}

// SumVisitorsOnDate sums number_of_visitors for matching bookings on one calendar date
func (r *PostgresBookingRepository) SumVisitorsOnDate(ctx context.Context, filter VisitorSumFilter) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.sum_visitors")
	defer span.End()
	span.SetAttributes(
		attribute.String("destination_id", filter.DestinationID),
		attribute.String("zone_id", filter.ZoneID),
		attribute.String("date", filter.Date.Format(domain.DateLayout)),
	)

	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = s.String()
	}

	query := `
		SELECT COALESCE(SUM(number_of_visitors), 0)
		FROM bookings
		WHERE destination_id = $1 AND visit_date = $2 AND status = ANY($3)`
	args := []interface{}{filter.DestinationID, domain.DateOnly(filter.Date), statuses}
	if filter.ZoneID != "" {
		query += ` AND zone_id = $4`
		args = append(args, filter.ZoneID)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, domain.NewStoreError("failed to sum visitors", err)
	}

	span.SetAttributes(attribute.Int64("visitors", total))
	span.SetStatus(codes.Ok, "")
	return int(total), nil
}

// Transition updates the booking row guarded by its previous status and moves
// the destination and zone counters in the same transaction
func (r *PostgresBookingRepository) Transition(ctx context.Context, booking *domain.Booking, from domain.BookingStatus, delta *domain.CounterDelta) (*TransitionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.transition")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("from", from.String()),
		attribute.String("to", booking.Status.String()),
	)

	result := &TransitionResult{}
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE bookings
			SET status = $2, payment_status = $3, qr_code = $4,
				entry_time = $5, exit_time = $6, confirmed_at = $7, cancelled_at = $8,
				cancellation_reason = $9, updated_at = $10
			WHERE id = $1 AND status = $11
		`,
			booking.ID,
			booking.Status.String(),
			string(booking.PaymentStatus),
			nullString(booking.QRCode),
			booking.EntryTime,
			booking.ExitTime,
			booking.ConfirmedAt,
			booking.CancelledAt,
			nullString(booking.CancellationReason),
			booking.UpdatedAt,
			from.String(),
		)
		if err != nil {
			return domain.NewStoreError("failed to update booking", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrInvalidTransition.Withf("booking %s is no longer %s", booking.ID, from)
		}

		if delta == nil {
			return nil
		}

		dest, err := scanDestination(tx.QueryRow(ctx, `
			UPDATE destinations
			SET current_capacity = GREATEST(current_capacity + $2, 0),
			    counter_version = counter_version + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING `+destinationColumns, delta.DestinationID, delta.Delta))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrDestinationNotFound
			}
			return domain.NewStoreError("failed to adjust destination capacity", err)
		}
		result.Destination = dest

		if delta.ZoneID == "" {
			return nil
		}
		zone, err := scanZone(tx.QueryRow(ctx, `
			UPDATE zones
			SET current_capacity = GREATEST(current_capacity + $2, 0),
			    counter_version = counter_version + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING `+zoneColumns, delta.ZoneID, delta.Delta))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrZoneNotFound
			}
			return domain.NewStoreError("failed to adjust zone capacity", err)
		}
		result.Zone = zone
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domain.KindOf(err) == "" {
			return nil, domain.NewStoreError("booking transition failed", err)
		}
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	b := &domain.Booking{}
	var (
		zoneID, qrCode, reason *string
		status, payment        string
		details                []byte
		visitDate              time.Time
	)

	err := row.Scan(
		&b.ID, &b.UserID, &b.DestinationID, &zoneID, &b.NumberOfVisitors, &visitDate,
		&status, &payment, &b.BookingReference, &qrCode,
		&b.TotalAmount, &b.PricePerPerson, &b.SurgeMultiplier, &b.Currency, &details,
		&reason, &b.EntryTime, &b.ExitTime, &b.ConfirmedAt, &b.CancelledAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.VisitDate = domain.DateOnly(visitDate)
	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.PaymentStatus(payment)
	b.ZoneID = derefString(zoneID)
	b.QRCode = derefString(qrCode)
	b.CancellationReason = derefString(reason)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &b.VisitorDetails); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func marshalVisitorDetails(details []domain.VisitorDetail) ([]byte, error) {
	if len(details) == 0 {
		return nil, nil
	}
	return json.Marshal(details)
}

// nullString converts empty string to nil for nullable columns
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
