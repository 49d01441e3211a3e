package autopost

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/logging"
	"github.com/PortNumber53/quote-autopost/internal/models"
)

var (
	// ErrQueueEmpty means no queue entry is eligible for the requested platforms right now.
	ErrQueueEmpty = errors.New("no eligible queue item")
	// ErrClaimLost means another run claimed the selected entry first.
	ErrClaimLost = errors.New("queue item claimed by another run")
)

// Store reads and claims rows of public.social_autopost_queue.
type Store struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// ClaimNext selects the next eligible entry and moves it queued→processing with a conditional
// update. Zero rows affected means the race was lost; selection is not retried.
//
// When the claim succeeds but the quote cannot be loaded, the claimed item is returned together
// with the error so the caller can still record a failure against it. A missing quote is not an
// error: Quote is nil.
func (s Store) ClaimNext(ctx context.Context, platforms []models.Platform, now time.Time) (*models.ClaimedItem, error) {
	log := logging.OrNop(s.Logger).Named("queue")
	if len(platforms) == 0 {
		return nil, ErrQueueEmpty
	}
	names := make([]string, 0, len(platforms))
	for _, p := range platforms {
		names = append(names, string(p))
	}

	var item models.QueueItem
	var platform, status string
	var scheduledFor sql.NullTime
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, platform, quote_id, status, scheduled_for, position, updated_at
		  FROM public.social_autopost_queue
		 WHERE platform = ANY($1)
		   AND status = 'queued'
		   AND (scheduled_for IS NULL OR scheduled_for <= $2)
		 ORDER BY position ASC, id ASC
		 LIMIT 1
	`, pq.Array(names), now).Scan(&item.ID, &platform, &item.QuoteID, &status, &scheduledFor, &item.Position, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("select queue item: %w", err)
	}
	item.Platform = models.Platform(platform)
	if scheduledFor.Valid {
		t := scheduledFor.Time
		item.ScheduledFor = &t
	}

	res, err := s.DB.ExecContext(ctx, `
		UPDATE public.social_autopost_queue
		   SET status = 'processing',
		       updated_at = $2
		 WHERE id = $1
		   AND status = 'queued'
	`, item.ID, now)
	if err != nil {
		return nil, fmt.Errorf("claim queue item %d: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Info("claim_skipped", zap.Int64("queueId", item.ID), zap.String("platform", platform), zap.String("reason", "already_claimed"))
		return nil, ErrClaimLost
	}
	item.Status = models.QueueStatusProcessing
	item.UpdatedAt = now
	log.Info("claimed", zap.Int64("queueId", item.ID), zap.String("platform", platform), zap.Int64("quoteId", item.QuoteID))

	claimed := &models.ClaimedItem{Item: item}
	q, err := s.loadQuote(ctx, item.QuoteID)
	if err != nil {
		return claimed, fmt.Errorf("load quote %d: %w", item.QuoteID, err)
	}
	claimed.Quote = q
	return claimed, nil
}

func (s Store) loadQuote(ctx context.Context, id int64) (*models.Quote, error) {
	var q models.Quote
	err := s.DB.QueryRowContext(ctx, `
		SELECT q.id, q.text, q.status, COALESCE(a.name, ''), COALESCE(r.name, '')
		  FROM public.quotes q
		  LEFT JOIN public.authors a ON a.id = q.author_id
		  LEFT JOIN public.quote_references r ON r.id = q.reference_id
		 WHERE q.id = $1
	`, id).Scan(&q.ID, &q.Text, &q.Status, &q.AuthorName, &q.ReferenceName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// QuoteByID loads one quote projection; nil when it does not exist.
func (s Store) QuoteByID(ctx context.Context, id int64) (*models.Quote, error) {
	return s.loadQuote(ctx, id)
}

// StaleProcessing lists entries stuck in processing since before cutoff.
func (s Store) StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]models.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, platform, quote_id, updated_at
		  FROM public.social_autopost_queue
		 WHERE status = 'processing'
		   AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.QueueItem, 0)
	for rows.Next() {
		var it models.QueueItem
		var platform string
		if err := rows.Scan(&it.ID, &platform, &it.QuoteID, &it.UpdatedAt); err != nil {
			return nil, err
		}
		it.Platform = models.Platform(platform)
		it.Status = models.QueueStatusProcessing
		out = append(out, it)
	}
	return out, rows.Err()
}
