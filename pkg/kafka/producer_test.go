package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewProducer(context.Background(), &ProducerConfig{})
	assert.Error(t, err)
}

func TestToRecord(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rec := toRecord(&Message{
		Topic:     "capacity-updates",
		Key:       []byte("dest-1"),
		Value:     []byte(`{"current":10}`),
		Headers:   map[string]string{"event_type": "capacity.updated"},
		Timestamp: ts,
	})

	assert.Equal(t, "capacity-updates", rec.Topic)
	assert.Equal(t, []byte("dest-1"), rec.Key)
	assert.Equal(t, ts, rec.Timestamp)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "event_type", rec.Headers[0].Key)
	assert.Equal(t, []byte("capacity.updated"), rec.Headers[0].Value)
}
