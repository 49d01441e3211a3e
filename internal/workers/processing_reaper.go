package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/autopost"
	"github.com/PortNumber53/quote-autopost/internal/logging"
	"github.com/PortNumber53/quote-autopost/internal/models"
)

// StaleLister finds queue entries stuck in processing.
type StaleLister interface {
	StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]models.QueueItem, error)
}

// ProcessingReaper fails queue entries whose run crashed between claim and record. It only ever
// takes the legal processing→failed step; nothing goes back to queued.
type ProcessingReaper struct {
	Queue    StaleLister
	Recorder autopost.OutcomeRecorder
	Logger   *zap.Logger

	StaleAfter time.Duration // default: 30m
	Interval   time.Duration // default: 5m
	BatchSize  int           // default: 50
	Now        func() time.Time
}

func (w *ProcessingReaper) defaults() {
	if w.StaleAfter <= 0 {
		w.StaleAfter = 30 * time.Minute
	}
	if w.Interval <= 0 {
		w.Interval = 5 * time.Minute
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 50
	}
	if w.Now == nil {
		w.Now = time.Now
	}
}

// Start runs the reaper loop until ctx is cancelled.
func (w *ProcessingReaper) Start(ctx context.Context) {
	w.defaults()
	log := logging.OrNop(w.Logger).Named("reaper")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	log.Info("started", zap.Duration("staleAfter", w.StaleAfter), zap.Duration("interval", w.Interval))
	for {
		select {
		case <-ctx.Done():
			log.Info("stopped")
			return
		case <-ticker.C:
			if _, err := w.Reap(ctx); err != nil {
				log.Error("reap_failed", zap.Error(err))
			}
		}
	}
}

// Reap fails one batch of stale entries and returns how many outcome rows it wrote.
func (w *ProcessingReaper) Reap(ctx context.Context) (int, error) {
	w.defaults()
	log := logging.OrNop(w.Logger).Named("reaper")

	now := w.Now()
	items, err := w.Queue.StaleProcessing(ctx, now.Add(-w.StaleAfter), w.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale processing: %w", err)
	}

	reaped := 0
	for _, it := range items {
		cause := fmt.Errorf("abandoned in processing since %s (no result recorded within %s)",
			it.UpdatedAt.UTC().Format(time.RFC3339), w.StaleAfter)
		_, inserted, err := w.Recorder.Record(ctx, autopost.Attempt{Item: it, Err: cause})
		if err != nil {
			log.Error("reap_record_failed", zap.Int64("queueId", it.ID), zap.Error(err))
			continue
		}
		if inserted {
			reaped++
		}
		log.Warn("reaped", zap.Int64("queueId", it.ID), zap.String("platform", string(it.Platform)),
			zap.Int64("quoteId", it.QuoteID), zap.Bool("inserted", inserted))
	}
	return reaped, nil
}
