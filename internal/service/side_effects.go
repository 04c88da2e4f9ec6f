package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/domain"
	"github.com/prohmpiriya/crowdsense/internal/metrics"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/kafka"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
	"go.uber.org/zap"
)

// Side effect kinds, used for dispatch logging and metrics
const (
	TaskBroadcast = "broadcast"
	TaskNotify    = "notify"
)

// Kafka event types
const (
	EventCapacityUpdated  = "capacity.updated"
	EventBookingConfirmed = "booking.confirmed"
)

// Dispatcher hands best-effort side effects to the background. A failing
// task never affects the transition that scheduled it.
type Dispatcher interface {
	Dispatch(kind string, task func(ctx context.Context) error) bool
}

// InlineDispatcher runs tasks synchronously and logs failures
type InlineDispatcher struct{}

// Dispatch runs task on the calling goroutine. A panicking task is recovered
// and counted as a failure.
func (InlineDispatcher) Dispatch(kind string, task func(ctx context.Context) error) bool {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDispatchFailure(ctx, kind)
			logger.Get().Error("side effect panicked",
				zap.String("kind", kind),
				zap.Any("panic", r),
			)
		}
	}()

	if err := task(ctx); err != nil {
		metrics.RecordDispatchFailure(ctx, kind)
		logger.Get().Warn("side effect failed", zap.String("kind", kind), zap.Error(err))
	}
	return true
}

// Broadcaster publishes live occupancy changes
type Broadcaster interface {
	PublishCapacityUpdate(ctx context.Context, update *domain.CapacityUpdate) error
}

// NotificationSink tells visitors their booking is confirmed
type NotificationSink interface {
	NotifyBookingConfirmed(ctx context.Context, booking *domain.Booking, token string) error
}

// KafkaBroadcaster publishes capacity updates keyed by destination
type KafkaBroadcaster struct {
	producer    kafka.MessageProducer
	topic       string
	serviceName string
}

// NewKafkaBroadcaster creates a new KafkaBroadcaster
func NewKafkaBroadcaster(producer kafka.MessageProducer, topic, serviceName string) *KafkaBroadcaster {
	if topic == "" {
		topic = "capacity-updates"
	}
	return &KafkaBroadcaster{producer: producer, topic: topic, serviceName: serviceName}
}

// PublishCapacityUpdate publishes update to the capacity topic
func (b *KafkaBroadcaster) PublishCapacityUpdate(ctx context.Context, update *domain.CapacityUpdate) error {
	return publishJSON(ctx, b.producer, b.topic, b.serviceName, EventCapacityUpdated, update.EventID, update.DestinationID, update)
}

// KafkaNotificationSink publishes confirmation events for the notification service
type KafkaNotificationSink struct {
	producer    kafka.MessageProducer
	topic       string
	serviceName string
	now         func() time.Time
}

// NewKafkaNotificationSink creates a new KafkaNotificationSink
func NewKafkaNotificationSink(producer kafka.MessageProducer, topic, serviceName string) *KafkaNotificationSink {
	if topic == "" {
		topic = "booking-notifications"
	}
	return &KafkaNotificationSink{producer: producer, topic: topic, serviceName: serviceName, now: time.Now}
}

// NotifyBookingConfirmed publishes a booking.confirmed event keyed by booking
func (s *KafkaNotificationSink) NotifyBookingConfirmed(ctx context.Context, booking *domain.Booking, token string) error {
	event := domain.NewBookingConfirmedEvent(booking, token, s.now())
	return publishJSON(ctx, s.producer, s.topic, s.serviceName, EventBookingConfirmed, event.EventID, booking.ID, event)
}

func publishJSON(ctx context.Context, producer kafka.MessageProducer, topic, source, eventType, eventID, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	msg := &kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			"event_type":   eventType,
			"event_id":     eventID,
			"source":       source,
			"content_type": "application/json",
		},
		Timestamp: time.Now(),
	}

	if err := producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// CacheBroadcaster writes capacity updates into the live occupancy cache
type CacheBroadcaster struct {
	cache repository.OccupancyCache
}

// NewCacheBroadcaster creates a new CacheBroadcaster
func NewCacheBroadcaster(cache repository.OccupancyCache) *CacheBroadcaster {
	return &CacheBroadcaster{cache: cache}
}

// PublishCapacityUpdate applies update to the cache
func (b *CacheBroadcaster) PublishCapacityUpdate(ctx context.Context, update *domain.CapacityUpdate) error {
	return b.cache.Apply(ctx, update)
}

// MultiBroadcaster fans an update out to every broadcaster
type MultiBroadcaster []Broadcaster

// PublishCapacityUpdate publishes to all, joining the failures
func (m MultiBroadcaster) PublishCapacityUpdate(ctx context.Context, update *domain.CapacityUpdate) error {
	var errs []error
	for _, b := range m {
		if err := b.PublishCapacityUpdate(ctx, update); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpBroadcaster drops updates, logging them at debug level
type NoOpBroadcaster struct{}

// NewNoOpBroadcaster creates a new NoOpBroadcaster
func NewNoOpBroadcaster() *NoOpBroadcaster {
	return &NoOpBroadcaster{}
}

// PublishCapacityUpdate is a no-op
func (NoOpBroadcaster) PublishCapacityUpdate(ctx context.Context, update *domain.CapacityUpdate) error {
	logger.Get().Debug("capacity update",
		zap.String("destination_id", update.DestinationID),
		zap.Int("current", update.DestinationCurrent),
		zap.Int("max", update.DestinationMax),
	)
	return nil
}

// NoOpNotificationSink drops notifications, logging them at debug level
type NoOpNotificationSink struct{}

// NewNoOpNotificationSink creates a new NoOpNotificationSink
func NewNoOpNotificationSink() *NoOpNotificationSink {
	return &NoOpNotificationSink{}
}

// NotifyBookingConfirmed is a no-op
func (NoOpNotificationSink) NotifyBookingConfirmed(ctx context.Context, booking *domain.Booking, token string) error {
	logger.Get().Debug("booking confirmed", zap.String("booking_id", booking.ID))
	return nil
}
