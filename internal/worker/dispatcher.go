package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prohmpiriya/crowdsense/internal/metrics"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
	"go.uber.org/zap"
)

// DispatcherConfig contains configuration for the side-effect dispatcher
type DispatcherConfig struct {
	// WorkerCount is the number of goroutines draining the queue
	WorkerCount int
	// QueueSize bounds pending tasks; Dispatch drops when it is full
	QueueSize int
	// TaskTimeout bounds a single task
	TaskTimeout time.Duration
}

// DefaultDispatcherConfig returns default configuration
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		WorkerCount: 4,
		QueueSize:   1024,
		TaskTimeout: 5 * time.Second,
	}
}

type task struct {
	kind string
	run  func(ctx context.Context) error
}

// Dispatcher runs best-effort side effects on a fixed goroutine pool.
// Dispatch never blocks the caller.
type Dispatcher struct {
	config  *DispatcherConfig
	log     *logger.Logger
	tasks   chan task
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	closed  bool

	// Stats
	completed int64
	failed    int64
	dropped   int64
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(config *DispatcherConfig) *Dispatcher {
	def := DefaultDispatcherConfig()
	if config == nil {
		config = def
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = def.WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = def.TaskTimeout
	}
	return &Dispatcher{
		config: config,
		log:    logger.Get(),
		tasks:  make(chan task, config.QueueSize),
	}
}

// Start starts the worker pool
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("dispatcher already running")
	}
	if d.closed {
		return fmt.Errorf("dispatcher already stopped")
	}
	d.running = true

	d.log.Info(fmt.Sprintf("Starting side-effect dispatcher with %d workers", d.config.WorkerCount))
	for i := 0; i < d.config.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return nil
}

// Stop stops accepting tasks and waits for queued ones to finish
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.running = false
	close(d.tasks)
	d.mu.Unlock()

	d.log.Info("Stopping side-effect dispatcher")
	d.wg.Wait()
	d.log.Info("Side-effect dispatcher stopped")
}

// Dispatch queues run. It returns false when the queue is full or the
// dispatcher is stopped; the task is then dropped.
func (d *Dispatcher) Dispatch(kind string, run func(ctx context.Context) error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.drop(kind, "stopped")
		return false
	}

	select {
	case d.tasks <- task{kind: kind, run: run}:
		return true
	default:
		d.drop(kind, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(kind, reason string) {
	atomic.AddInt64(&d.dropped, 1)
	metrics.RecordDispatchDropped(context.Background(), kind)
	d.log.Warn("side effect dropped", zap.String("kind", kind), zap.String("reason", reason))
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for t := range d.tasks {
		d.run(id, t)
	}
}

func (d *Dispatcher) run(id int, t task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&d.failed, 1)
			metrics.RecordDispatchFailure(ctx, t.kind)
			d.log.Error("side effect panicked",
				zap.Int("worker", id),
				zap.String("kind", t.kind),
				zap.Any("panic", r),
			)
		}
	}()

	if err := t.run(ctx); err != nil {
		atomic.AddInt64(&d.failed, 1)
		metrics.RecordDispatchFailure(ctx, t.kind)
		d.log.Warn("side effect failed",
			zap.Int("worker", id),
			zap.String("kind", t.kind),
			zap.Error(err),
		)
		return
	}
	atomic.AddInt64(&d.completed, 1)
}

// GetStats returns dispatcher statistics
func (d *Dispatcher) GetStats() *DispatcherStats {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()

	return &DispatcherStats{
		IsRunning: running,
		Queued:    len(d.tasks),
		Completed: atomic.LoadInt64(&d.completed),
		Failed:    atomic.LoadInt64(&d.failed),
		Dropped:   atomic.LoadInt64(&d.dropped),
	}
}

// DispatcherStats contains dispatcher statistics
type DispatcherStats struct {
	IsRunning bool  `json:"is_running"`
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}
