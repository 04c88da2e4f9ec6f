package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSweeper struct {
	mu        sync.Mutex
	calls     []time.Time
	SweepFunc func(ctx context.Context, now time.Time) (*service.SweepResult, error)
}

func (m *MockSweeper) Sweep(ctx context.Context, now time.Time) (*service.SweepResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, now)
	m.mu.Unlock()
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx, now)
	}
	return &service.SweepResult{}, nil
}

func (m *MockSweeper) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// RecordingSweeper is a testify mock of service.EscalationSweeper
type RecordingSweeper struct {
	mock.Mock
}

func (m *RecordingSweeper) Sweep(ctx context.Context, now time.Time) (*service.SweepResult, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SweepResult), args.Error(1)
}

func TestEscalationWorker_PassesClockToSweeper(t *testing.T) {
	fixed := time.Date(2025, 6, 14, 11, 0, 0, 0, time.UTC)
	done := make(chan struct{})

	sweeper := new(RecordingSweeper)
	sweeper.On("Sweep", mock.Anything, fixed).
		Return(&service.SweepResult{Scanned: 1, Escalated: 1}, nil).
		Once().
		Run(func(args mock.Arguments) { close(done) })

	w := NewEscalationWorker(sweeper, &EscalationWorkerConfig{Interval: time.Hour})
	w.now = func() time.Time { return fixed }

	require.NoError(t, w.Start(context.Background()))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep was not called")
	}
	w.Stop()

	sweeper.AssertExpectations(t)
	assert.Equal(t, int64(1), w.GetStats().TotalEscalated)
}

func TestEscalationWorker_SweepsImmediatelyAndOnTick(t *testing.T) {
	sweeper := &MockSweeper{
		SweepFunc: func(ctx context.Context, now time.Time) (*service.SweepResult, error) {
			return &service.SweepResult{Scanned: 3, Escalated: 2, Failed: 1}, nil
		},
	}
	w := NewEscalationWorker(sweeper, &EscalationWorkerConfig{Interval: 20 * time.Millisecond})
	fixed := time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	require.Eventually(t, func() bool { return sweeper.count() >= 2 }, time.Second, 5*time.Millisecond)
	w.Stop()

	stats := w.GetStats()
	assert.False(t, stats.IsRunning)
	assert.GreaterOrEqual(t, stats.TotalSweeps, int64(2))
	assert.Equal(t, stats.TotalSweeps*2, stats.TotalEscalated)
	assert.Equal(t, stats.TotalSweeps, stats.TotalFailed)
	assert.Equal(t, fixed, stats.LastSweepTime)
	assert.Equal(t, 3, stats.LastResult.Scanned)
}

func TestEscalationWorker_SurvivesSweepError(t *testing.T) {
	sweeper := &MockSweeper{
		SweepFunc: func(ctx context.Context, now time.Time) (*service.SweepResult, error) {
			return nil, errors.New("store unavailable")
		},
	}
	w := NewEscalationWorker(sweeper, &EscalationWorkerConfig{Interval: 10 * time.Millisecond})

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return sweeper.count() >= 3 }, time.Second, 5*time.Millisecond)
	w.Stop()

	stats := w.GetStats()
	assert.Zero(t, stats.TotalEscalated)
	assert.GreaterOrEqual(t, stats.TotalSweeps, int64(3))
}

func TestEscalationWorker_StopsOnContextCancel(t *testing.T) {
	sweeper := &MockSweeper{}
	w := NewEscalationWorker(sweeper, &EscalationWorkerConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	require.Eventually(t, func() bool { return sweeper.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	w.Stop()
	assert.Equal(t, 1, sweeper.count())
}

func TestNewEscalationWorker_Defaults(t *testing.T) {
	w := NewEscalationWorker(&MockSweeper{}, nil)
	assert.Equal(t, time.Minute, w.config.Interval)

	w = NewEscalationWorker(&MockSweeper{}, &EscalationWorkerConfig{})
	assert.Equal(t, time.Minute, w.config.Interval)
}
