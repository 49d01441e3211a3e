package autopost

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/PortNumber53/quote-autopost/internal/logging"
)

// maxCatchUp bounds how many missed minutes one tick replays.
const maxCatchUp = 10

// Worker fires the scheduled entry point on a ticker. Each wall-clock minute runs at most once,
// so an interval shorter than a minute cannot double-post. Minutes skipped between two ticks
// are replayed so a late tick cannot step over the trigger minute.
type Worker struct {
	Runner   *Runner
	Interval time.Duration
	Logger   *zap.Logger
	Now      func() time.Time

	lastMinute time.Time
	idle       rate.Sometimes
}

// Tick runs one sweep. It returns the results, or nil when this minute was already handled.
func (w *Worker) Tick(ctx context.Context) []Result {
	log := logging.OrNop(w.Logger).Named("autopost.worker")
	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}
	minute := now.Truncate(time.Minute)
	if !minute.After(w.lastMinute) {
		return nil
	}
	var results []Result
	if !w.lastMinute.IsZero() {
		from := w.lastMinute.Add(time.Minute)
		if earliest := minute.Add(-maxCatchUp * time.Minute); from.Before(earliest) {
			from = earliest
		}
		for m := from; m.Before(minute); m = m.Add(time.Minute) {
			missed, err := w.Runner.RunScheduled(ctx, m, "")
			if err != nil {
				log.Error("sweep_error", zap.Time("minute", m.UTC()), zap.Error(err))
			}
			for _, r := range missed {
				if r.Reason != "not_trigger_time" {
					log.Info("missed_minute_replayed", zap.Time("minute", m.UTC()))
					results = append(results, r)
				}
			}
		}
	}
	w.lastMinute = minute

	current, err := w.Runner.RunScheduled(ctx, now, "")
	if err != nil {
		log.Error("sweep_error", zap.Error(err))
	}
	results = append(results, current...)
	if len(results) == 1 && results[0].Status == StatusSkipped {
		w.idle.Do(func() {
			log.Info("sweep_ok", zap.String("reason", results[0].Reason), zap.Time("at", now.UTC()))
		})
		return results
	}
	for _, r := range results {
		log.Info("sweep_result",
			zap.String("status", string(r.Status)),
			zap.String("reason", r.Reason),
			zap.String("platform", string(r.Platform)),
			zap.Int64("queueId", r.QueueID),
			zap.String("postUrl", r.PostURL),
			zap.String("error", r.Error),
		)
	}
	return results
}

// Start blocks until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	log := logging.OrNop(w.Logger).Named("autopost.worker")
	interval := w.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	if w.idle.Interval == 0 {
		w.idle.Interval = 30 * time.Minute
	}
	log.Info("worker_started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("worker_stopped", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}
