package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(retries int) *Config {
	return &Config{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetrier_Do_Success(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, result.Err)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Do_SuccessAfterRetries(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	boom := errors.New("boom")
	result := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, result.Err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, result.LastError, boom)
	assert.Equal(t, 3, result.Attempts)
}

func TestRetrier_Do_PermanentError(t *testing.T) {
	boom := errors.New("constraint violated")
	calls := 0
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		return Permanent(boom)
	})

	assert.ErrorIs(t, result.Err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Do(ctx, fastConfig(3), func(ctx context.Context) error {
		return errors.New("never")
	})

	assert.ErrorIs(t, result.Err, ErrContextCanceled)
}

func TestRetrier_Interval(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2})

	assert.Equal(t, 100*time.Millisecond, r.interval(0))
	assert.Equal(t, 200*time.Millisecond, r.interval(1))
	assert.Equal(t, 800*time.Millisecond, r.interval(3))
	assert.Equal(t, time.Second, r.interval(10))
}

func TestPermanent_Nil(t *testing.T) {
	assert.Nil(t, Permanent(nil))
}
