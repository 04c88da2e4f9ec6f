package metrics

import (
	"context"
	"sync"

	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	BookingsCreated   *telemetry.Counter
	BookingsConfirmed *telemetry.Counter
	BookingsCancelled *telemetry.Counter

	// Checkpoint counters
	Entries          *telemetry.Counter
	Exits            *telemetry.Counter
	AdmissionDenials *telemetry.Counter

	// Escalation counters
	Escalations        *telemetry.Counter
	EscalationFailures *telemetry.Counter

	// Dispatcher counters
	DispatchFailures *telemetry.Counter
	DispatchDropped  *telemetry.Counter

	// Histograms
	ScanDuration  *telemetry.Histogram
	QuoteSurge    *telemetry.Histogram
	SweepDuration *telemetry.Histogram

	// Gauges
	Occupancy *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all admission metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		target **telemetry.Counter
		opts   telemetry.MetricOpts
	}{
		{&BookingsCreated, telemetry.MetricOpts{Name: "admission_bookings_created_total", Description: "Bookings created", Unit: "1"}},
		{&BookingsConfirmed, telemetry.MetricOpts{Name: "admission_bookings_confirmed_total", Description: "Bookings confirmed", Unit: "1"}},
		{&BookingsCancelled, telemetry.MetricOpts{Name: "admission_bookings_cancelled_total", Description: "Bookings cancelled", Unit: "1"}},
		{&Entries, telemetry.MetricOpts{Name: "admission_entries_total", Description: "Visitor groups admitted at checkpoints", Unit: "1"}},
		{&Exits, telemetry.MetricOpts{Name: "admission_exits_total", Description: "Visitor groups checked out at checkpoints", Unit: "1"}},
		{&AdmissionDenials, telemetry.MetricOpts{Name: "admission_denials_total", Description: "Denied bookings and scans by reason code", Unit: "1"}},
		{&Escalations, telemetry.MetricOpts{Name: "admission_escalations_total", Description: "Action orders escalated to critical", Unit: "1"}},
		{&EscalationFailures, telemetry.MetricOpts{Name: "admission_escalation_failures_total", Description: "Action orders the sweeper failed to escalate", Unit: "1"}},
		{&DispatchFailures, telemetry.MetricOpts{Name: "admission_dispatch_failures_total", Description: "Side effects that failed in the dispatcher", Unit: "1"}},
		{&DispatchDropped, telemetry.MetricOpts{Name: "admission_dispatch_dropped_total", Description: "Side effects dropped because the dispatch queue was full", Unit: "1"}},
	}
	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.target = counter
	}

	var err error
	ScanDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "admission_scan_duration_ms",
		Description: "Checkpoint scan latency",
		Unit:        "ms",
	})
	if err != nil {
		return err
	}

	QuoteSurge, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "admission_quote_surge_multiplier",
		Description: "Surge multiplier of issued price quotes",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SweepDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "admission_sweep_duration_ms",
		Description: "Escalation sweep latency",
		Unit:        "ms",
	})
	if err != nil {
		return err
	}

	Occupancy, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "admission_occupancy",
		Description: "Visitors currently inside, by destination",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordBookingCreated records a new PENDING booking
func RecordBookingCreated(ctx context.Context, destinationID string, visitors int) {
	BookingsCreated.Inc(ctx,
		attribute.String("destination_id", destinationID),
		attribute.Int("visitors", visitors),
	)
}

// RecordBookingConfirmed records a confirmation
func RecordBookingConfirmed(ctx context.Context, destinationID string) {
	BookingsConfirmed.Inc(ctx, attribute.String("destination_id", destinationID))
}

// RecordBookingCancelled records a cancellation
func RecordBookingCancelled(ctx context.Context, destinationID string) {
	BookingsCancelled.Inc(ctx, attribute.String("destination_id", destinationID))
}

// RecordDenial records an admission denial or rejected scan by its error code
func RecordDenial(ctx context.Context, destinationID, code string) {
	AdmissionDenials.Inc(ctx,
		attribute.String("destination_id", destinationID),
		attribute.String("code", code),
	)
}

// RecordOccupancyChange records a counter change applied at a checkpoint
func RecordOccupancyChange(ctx context.Context, destinationID string, delta int) {
	attrs := attribute.String("destination_id", destinationID)
	if delta > 0 {
		Entries.Inc(ctx, attrs)
	} else {
		Exits.Inc(ctx, attrs)
	}
	Occupancy.Add(ctx, int64(delta), attrs)
}

// RecordScanDuration records a checkpoint scan latency
func RecordScanDuration(ctx context.Context, direction string, ms float64) {
	ScanDuration.Record(ctx, ms, attribute.String("direction", direction))
}

// RecordQuote records the surge multiplier of a quote
func RecordQuote(ctx context.Context, destinationID string, surge float64) {
	QuoteSurge.Record(ctx, surge, attribute.String("destination_id", destinationID))
}

// RecordSweep records an escalation sweep
func RecordSweep(ctx context.Context, escalated, failed int, ms float64) {
	Escalations.Add(ctx, int64(escalated))
	EscalationFailures.Add(ctx, int64(failed))
	SweepDuration.Record(ctx, ms)
}

// RecordDispatchFailure records a failed side effect
func RecordDispatchFailure(ctx context.Context, kind string) {
	DispatchFailures.Inc(ctx, attribute.String("kind", kind))
}

// RecordDispatchDropped records a side effect dropped on a full queue
func RecordDispatchDropped(ctx context.Context, kind string) {
	DispatchDropped.Inc(ctx, attribute.String("kind", kind))
}
