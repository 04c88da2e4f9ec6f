package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
)

// EscalationWorkerConfig contains configuration for the escalation worker
type EscalationWorkerConfig struct {
	// Interval is the time between sweeps
	Interval time.Duration
}

// DefaultEscalationWorkerConfig returns default configuration
func DefaultEscalationWorkerConfig() *EscalationWorkerConfig {
	return &EscalationWorkerConfig{
		Interval: time.Minute,
	}
}

// EscalationWorker runs the escalation sweep on a fixed interval
type EscalationWorker struct {
	sweeper service.EscalationSweeper
	config  *EscalationWorkerConfig
	log     *logger.Logger
	now     func() time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Stats
	totalSweeps    int64
	totalEscalated int64
	totalFailed    int64
	lastSweepTime  time.Time
	lastResult     service.SweepResult
}

// NewEscalationWorker creates a new escalation worker
func NewEscalationWorker(sweeper service.EscalationSweeper, config *EscalationWorkerConfig) *EscalationWorker {
	if config == nil {
		config = DefaultEscalationWorkerConfig()
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	return &EscalationWorker{
		sweeper: sweeper,
		config:  config,
		log:     logger.Get(),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the escalation worker
func (w *EscalationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("escalation worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info(fmt.Sprintf("Starting escalation worker (interval %s)", w.config.Interval))

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

// Stop stops the escalation worker and waits for an in-flight sweep
func (w *EscalationWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping escalation worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Escalation worker stopped")
}

func (w *EscalationWorker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *EscalationWorker) sweep(ctx context.Context) {
	now := w.now()
	result, err := w.sweeper.Sweep(ctx, now)

	w.mu.Lock()
	w.totalSweeps++
	w.lastSweepTime = now
	if result != nil {
		w.lastResult = *result
		w.totalEscalated += int64(result.Escalated)
		w.totalFailed += int64(result.Failed)
	}
	w.mu.Unlock()

	if err != nil {
		w.log.Error(fmt.Sprintf("Escalation sweep failed: %v", err))
		return
	}
	if result.Escalated > 0 || result.Failed > 0 {
		w.log.Info(fmt.Sprintf("Escalation sweep: scanned %d, escalated %d, failed %d",
			result.Scanned, result.Escalated, result.Failed))
	}
}

// GetStats returns worker statistics
func (w *EscalationWorker) GetStats() *EscalationWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &EscalationWorkerStats{
		IsRunning:      w.running,
		TotalSweeps:    w.totalSweeps,
		TotalEscalated: w.totalEscalated,
		TotalFailed:    w.totalFailed,
		LastSweepTime:  w.lastSweepTime,
		LastResult:     w.lastResult,
	}
}

// EscalationWorkerStats contains worker statistics
type EscalationWorkerStats struct {
	IsRunning      bool                `json:"is_running"`
	TotalSweeps    int64               `json:"total_sweeps"`
	TotalEscalated int64               `json:"total_escalated"`
	TotalFailed    int64               `json:"total_failed"`
	LastSweepTime  time.Time           `json:"last_sweep_time"`
	LastResult     service.SweepResult `json:"last_result"`
}
