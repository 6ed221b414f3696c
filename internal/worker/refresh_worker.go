// Package worker keeps the mirrored cost-center report up to date. Invoice
// events enqueue refresh requests; a poll loop claims them, recomputes the
// full report through the aggregation engine and rewrites the mirror. A
// periodic full refresh covers lost events, so the mirror converges even when
// the broker drops messages.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fatture/internal/aggregate"
	"fatture/internal/amqp"
	"fatture/internal/sheets"
	"fatture/internal/storage"
)

// Queue is the persistence port for refresh requests. Both storage backends
// satisfy it.
type Queue interface {
	// EnqueueRefresh records a request unless one is already pending.
	EnqueueRefresh(ctx context.Context, reason string) error
	ClaimRefresh(ctx context.Context) (storage.ReportRefresh, bool, error)
	CompleteRefresh(ctx context.Context, id int64) error
	// FailRefresh requeues below maxAttempts, marks failed at the cap.
	FailRefresh(ctx context.Context, id int64, cause string, maxAttempts int) error
	ResetStaleRefreshes(ctx context.Context, olderThan time.Duration) (int64, error)
	CleanupRefreshes(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Config struct {
	PollInterval    time.Duration
	RefreshInterval time.Duration
	CleanupInterval time.Duration
	BatchSize       int
	MaxRetries      int
	StaleAfter      time.Duration
	CleanupAge      time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    10 * time.Second,
		RefreshInterval: 10 * time.Minute,
		CleanupInterval: time.Hour,
		BatchSize:       10,
		MaxRetries:      3,
		StaleAfter:      5 * time.Minute,
		CleanupAge:      24 * time.Hour,
	}
}

// RefreshWorker drives the report mirror.
type RefreshWorker struct {
	queue  Queue
	engine *aggregate.Engine
	writer sheets.ReportWriter
	config Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRefreshWorker(queue Queue, engine *aggregate.Engine, writer sheets.ReportWriter, config Config) *RefreshWorker {
	return &RefreshWorker{
		queue:  queue,
		engine: engine,
		writer: writer,
		config: config,
	}
}

// HandleInvoiceEvent folds a broker event into the refresh queue. Any action
// triggers the same full recompute, and the queue dedupes while one is
// pending.
func (w *RefreshWorker) HandleInvoiceEvent(ctx context.Context, event *amqp.InvoiceEvent) error {
	reason := fmt.Sprintf("invoice %d %s", event.InvoiceID, event.Action)
	if err := w.queue.EnqueueRefresh(ctx, reason); err != nil {
		return fmt.Errorf("enqueue refresh: %w", err)
	}
	return nil
}

// Start begins the processing loop. Returns an error if already running.
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("refresh worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	// Recover requests orphaned by a previous crash.
	if n, err := w.queue.ResetStaleRefreshes(ctx, w.config.StaleAfter); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale refreshes", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Reset stale refreshes", "count", n)
	}

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Refresh worker started",
		"poll_interval", w.config.PollInterval,
		"refresh_interval", w.config.RefreshInterval,
		"batch_size", w.config.BatchSize)
	return nil
}

// Stop gracefully stops the worker and waits for completion.
func (w *RefreshWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		slog.InfoContext(ctx, "Refresh worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Refresh worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *RefreshWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	pollTicker := time.NewTicker(w.config.PollInterval)
	defer pollTicker.Stop()

	refreshTicker := time.NewTicker(w.config.RefreshInterval)
	defer refreshTicker.Stop()

	cleanupTicker := time.NewTicker(w.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Drain whatever queued up while the worker was down.
	w.processBatch(ctx)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			w.processBatch(ctx)
		case <-refreshTicker.C:
			// Periodic full refresh, independent of events.
			if err := w.queue.EnqueueRefresh(ctx, "periodic refresh"); err != nil {
				slog.ErrorContext(ctx, "Failed to enqueue periodic refresh", "error", err)
			}
		case <-cleanupTicker.C:
			w.cleanupOld(ctx)
		}
	}
}

// processBatch claims and processes up to BatchSize requests. In practice the
// dedupe rule keeps the queue at one pending entry; the batch bound matters
// only after retries pile up.
func (w *RefreshWorker) processBatch(ctx context.Context) {
	for i := 0; i < w.config.BatchSize; i++ {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		req, ok, err := w.queue.ClaimRefresh(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to claim refresh", "error", err)
			return
		}
		if !ok {
			return
		}

		if err := w.refresh(ctx); err != nil {
			slog.ErrorContext(ctx, "Report refresh failed",
				"id", req.ID,
				"reason", req.Reason,
				"attempt", req.Attempts+1,
				"error", err)
			if failErr := w.queue.FailRefresh(ctx, req.ID, err.Error(), w.config.MaxRetries); failErr != nil {
				slog.ErrorContext(ctx, "Failed to record refresh failure", "id", req.ID, "error", failErr)
			}
			continue
		}

		if err := w.queue.CompleteRefresh(ctx, req.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark refresh complete", "id", req.ID, "error", err)
			continue
		}
		slog.InfoContext(ctx, "Report refreshed", "id", req.ID, "reason", req.Reason)
	}
}

// refresh recomputes the full report and rewrites the mirror. IncludeEmpty
// keeps zero rows so the mirror always shows every cost center.
func (w *RefreshWorker) refresh(ctx context.Context) error {
	report, err := w.engine.Aggregate(ctx, aggregate.Request{IncludeEmpty: true})
	if err != nil {
		return fmt.Errorf("aggregate report: %w", err)
	}
	if err := w.writer.WriteReport(ctx, report); err != nil {
		return fmt.Errorf("write report mirror: %w", err)
	}
	return nil
}

func (w *RefreshWorker) cleanupOld(ctx context.Context) {
	n, err := w.queue.CleanupRefreshes(ctx, w.config.CleanupAge)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to clean up old refreshes", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up old refreshes", "count", n)
	}
}
