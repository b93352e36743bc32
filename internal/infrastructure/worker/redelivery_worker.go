package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Redeliverer resends failed notifications and reports how many went out
type Redeliverer interface {
	RedeliverFailed(ctx context.Context, limit int) (int, error)
}

// RedeliveryConfig holds configuration for the redelivery worker
type RedeliveryConfig struct {
	Interval  time.Duration
	BatchSize int
	Timeout   time.Duration
}

// DefaultRedeliveryConfig returns default configuration
func DefaultRedeliveryConfig() RedeliveryConfig {
	return RedeliveryConfig{
		Interval:  time.Minute,
		BatchSize: 50,
		Timeout:   30 * time.Second,
	}
}

// Stats is a snapshot of a worker's run counters
type Stats struct {
	Runs      int       `json:"runs"`
	Delivered int       `json:"delivered"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// RedeliveryWorker periodically retries notifications whose delivery failed
type RedeliveryWorker struct {
	config      RedeliveryConfig
	redeliverer Redeliverer
	logger      *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	stats     Stats
}

// NewRedeliveryWorker creates a new redelivery worker
func NewRedeliveryWorker(config RedeliveryConfig, redeliverer Redeliverer, logger *zap.Logger) *RedeliveryWorker {
	defaults := DefaultRedeliveryConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &RedeliveryWorker{
		config:      config,
		redeliverer: redeliverer,
		logger:      logger,
	}
}

// Start begins the polling loop
func (w *RedeliveryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("redelivery worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("RedeliveryWorker started",
		zap.Duration("interval", w.config.Interval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(runCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight batch to finish
func (w *RedeliveryWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("RedeliveryWorker stopped",
		zap.Int("runs", stats.Runs),
		zap.Int("delivered", stats.Delivered),
		zap.Int("failures", stats.Failures))
	return nil
}

// Name returns the worker name for identification
func (w *RedeliveryWorker) Name() string {
	return "RedeliveryWorker"
}

// Stats returns a snapshot of the run counters
func (w *RedeliveryWorker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *RedeliveryWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Redelivery loop context cancelled")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce processes a single batch
func (w *RedeliveryWorker) RunOnce(ctx context.Context) {
	batchCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	sent, err := w.redeliverer.RedeliverFailed(batchCtx, w.config.BatchSize)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.Delivered += sent
	w.stats.LastRun = time.Now()
	if err != nil {
		w.stats.Failures++
		w.stats.LastError = err.Error()
	} else {
		w.stats.LastError = ""
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Failed to redeliver notifications", zap.Error(err))
		return
	}
	if sent > 0 {
		w.logger.Info("Redelivered notifications", zap.Int("count", sent))
	}
}
