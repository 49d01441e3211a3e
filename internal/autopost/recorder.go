package autopost

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/logging"
	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish"
)

// Attempt is the resolved result of one publish attempt for a claimed queue entry.
type Attempt struct {
	Item     models.QueueItem
	PostText string
	Post     socialpublish.Post
	Err      error
}

// Recorder writes the outcome row and advances the queue entry to its terminal state.
type Recorder struct {
	DB     *sql.DB
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

// Record inserts the outcome (a no-op when the idempotency key already exists) and then moves
// the queue entry from processing to posted or failed. inserted is false for a repeated call.
func (r Recorder) Record(ctx context.Context, a Attempt) (post models.SocialPost, inserted bool, err error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	newID := uuid.NewString
	if r.NewID != nil {
		newID = r.NewID
	}
	log := logging.OrNop(r.Logger).Named("recorder")

	post = models.SocialPost{
		ID:             newID(),
		QuoteID:        a.Item.QuoteID,
		QueueID:        a.Item.ID,
		Platform:       a.Item.Platform,
		Status:         models.SocialPostSuccess,
		PostText:       a.PostText,
		PostURL:        a.Post.URL,
		IdempotencyKey: models.IdempotencyKey(a.Item.Platform, a.Item.ID),
		PostedAt:       now().UTC(),
	}
	next := models.QueueStatusPosted
	if a.Err != nil {
		msg := a.Err.Error()
		post.Status = models.SocialPostFailed
		post.ErrorMessage = &msg
		next = models.QueueStatusFailed
	} else if a.Post.ID != "" {
		id := a.Post.ID
		post.ExternalPostID = &id
	}
	if !a.Item.Status.CanTransition(next) {
		return post, false, fmt.Errorf("queue item %d is %q and cannot move to %s", a.Item.ID, a.Item.Status, next)
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO public.social_posts
		  (id, quote_id, queue_id, platform, status, post_text, post_url, external_post_id, idempotency_key, error_message, posted_at)
		VALUES
		  ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, post.ID, post.QuoteID, post.QueueID, string(post.Platform), string(post.Status), post.PostText,
		post.PostURL, post.ExternalPostID, post.IdempotencyKey, post.ErrorMessage, post.PostedAt)
	if err != nil {
		return post, false, fmt.Errorf("insert social post %s: %w", post.IdempotencyKey, err)
	}
	n, _ := res.RowsAffected()
	inserted = n > 0
	if !inserted {
		log.Info("outcome_exists", zap.String("idempotencyKey", post.IdempotencyKey))
	}

	res, err = r.DB.ExecContext(ctx, `
		UPDATE public.social_autopost_queue
		   SET status = $2,
		       updated_at = $3
		 WHERE id = $1
		   AND status = 'processing'
	`, a.Item.ID, string(next), post.PostedAt)
	if err != nil {
		return post, inserted, fmt.Errorf("advance queue item %d to %s: %w", a.Item.ID, next, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Warn("queue_not_processing", zap.Int64("queueId", a.Item.ID), zap.String("wanted", string(next)))
	}
	return post, inserted, nil
}
