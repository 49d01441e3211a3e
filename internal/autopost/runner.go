// Package autopost runs the daily quote distribution job: time gate, queue claim, formatting,
// publishing, and outcome recording.
package autopost

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/auth"
	"github.com/PortNumber53/quote-autopost/internal/logging"
	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/settings"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish/providers"
)

const (
	DefaultTriggerTime = "09:00"
	DefaultTimezone    = "UTC"
)

// Queue is the claim side of the queue store.
type Queue interface {
	ClaimNext(ctx context.Context, platforms []models.Platform, now time.Time) (*models.ClaimedItem, error)
}

// OutcomeRecorder persists attempts.
type OutcomeRecorder interface {
	Record(ctx context.Context, a Attempt) (models.SocialPost, bool, error)
}

type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusFailed  ResultStatus = "failed"
	StatusSkipped ResultStatus = "skipped"
)

// Result is the structured outcome of one invocation, returned to the manual trigger and logged
// by the scheduled entry points.
type Result struct {
	Status   ResultStatus    `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Platform models.Platform `json:"platform,omitempty"`
	QueueID  int64           `json:"queueId,omitempty"`
	QuoteID  int64           `json:"quoteId,omitempty"`
	PostID   string          `json:"postId,omitempty"`
	PostURL  string          `json:"postUrl,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Options select how one invocation behaves.
type Options struct {
	// Force bypasses the time gate.
	Force bool
	// Platform restricts the run to one network; empty means every enabled network.
	Platform string
	// BaseSiteURL overrides the public site origin used for quote links and card images.
	BaseSiteURL string
	// Now overrides the clock for this invocation.
	Now time.Time
}

// Runner wires the pipeline together. Settings is called once per invocation so configuration
// is always fresh.
type Runner struct {
	Queue       Queue
	Recorder    OutcomeRecorder
	Settings    func(ctx context.Context) (*settings.Resolver, error)
	Publisher   func(cfg auth.ResolvedAuthConfig) (socialpublish.Publisher, error)
	Deps        providers.Deps
	BaseSiteURL string
	Logger      *zap.Logger
	Now         func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) publisherFor(cfg auth.ResolvedAuthConfig) (socialpublish.Publisher, error) {
	if r.Publisher != nil {
		return r.Publisher(cfg)
	}
	return providers.For(cfg, r.Deps)
}

// Run is the scheduled entry point with no parameters.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	return r.RunWithOptions(ctx, Options{})
}

// RunWithOptions processes at most one queue entry. The returned error is reserved for
// infrastructure failures (settings or queue unavailable, recording failed); publish failures
// are reported through Result and persisted.
func (r *Runner) RunWithOptions(ctx context.Context, opts Options) (Result, error) {
	log := logging.OrNop(r.Logger).Named("autopost")
	now := opts.Now
	if now.IsZero() {
		now = r.now()
	}

	resolver, err := r.loadSettings(ctx)
	if err != nil {
		log.Error("settings_failed", zap.Error(err))
		return Result{Status: StatusFailed, Reason: "settings_unavailable", Error: err.Error()}, err
	}

	if !opts.Force {
		at := resolver.String("social_autopost_time", DefaultTriggerTime)
		tz := resolver.String("social_autopost_timezone", DefaultTimezone)
		if !IsTriggerTime(now, tz, at) {
			return Result{Status: StatusSkipped, Reason: "not_trigger_time"}, nil
		}
	}

	configs := map[models.Platform]auth.ResolvedAuthConfig{}
	var active []models.Platform
	if strings.TrimSpace(opts.Platform) != "" {
		p, err := models.ParsePlatform(opts.Platform)
		if err != nil {
			return Result{Status: StatusFailed, Reason: "unknown_platform", Error: err.Error()}, nil
		}
		cfg := auth.Resolve(resolver, p)
		if !cfg.CanPublish() {
			log.Info("platform_not_configured", zap.String("platform", string(p)), zap.String("mode", string(cfg.Mode)), zap.Bool("enabled", cfg.Enabled))
			return Result{Status: StatusSkipped, Reason: "platform_not_configured", Platform: p}, nil
		}
		configs[p] = cfg
		active = append(active, p)
	} else {
		for _, p := range models.AllPlatforms {
			cfg := auth.Resolve(resolver, p)
			if cfg.CanPublish() {
				configs[p] = cfg
				active = append(active, p)
			}
		}
		if len(active) == 0 {
			return Result{Status: StatusSkipped, Reason: "no_enabled_platforms"}, nil
		}
	}

	claimed, err := r.Queue.ClaimNext(ctx, active, now)
	switch {
	case errors.Is(err, ErrQueueEmpty):
		log.Debug("nothing_due", zap.Any("platforms", active))
		return Result{Status: StatusSkipped, Reason: "nothing_queued"}, nil
	case errors.Is(err, ErrClaimLost):
		return Result{Status: StatusSkipped, Reason: "claim_lost"}, nil
	case err != nil && claimed == nil:
		log.Error("claim_failed", zap.Error(err))
		return Result{Status: StatusFailed, Reason: "claim_failed", Error: err.Error()}, err
	}

	item := claimed.Item
	res := Result{Platform: item.Platform, QueueID: item.ID, QuoteID: item.QuoteID}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseSiteURL), "/")
	if base == "" {
		base = strings.TrimRight(resolver.String("site_base_url", r.BaseSiteURL), "/")
	}

	var text string
	var post socialpublish.Post
	if err != nil {
		// Claimed, but the quote could not be read.
		err = socialpublish.Errorf(item.Platform, socialpublish.KindPrecondition, "", "%v", err)
	} else {
		text, post, err = r.publishOne(ctx, configs[item.Platform], claimed, base)
	}

	if _, _, recErr := r.Recorder.Record(ctx, Attempt{Item: item, PostText: text, Post: post, Err: err}); recErr != nil {
		log.Error("record_failed", zap.Int64("queueId", item.ID), zap.Error(recErr))
		res.Status, res.Reason, res.Error = StatusFailed, "record_failed", recErr.Error()
		return res, recErr
	}

	if err != nil {
		log.Warn("provider_failed", zap.Int64("queueId", item.ID), zap.String("platform", string(item.Platform)),
			zap.Int64("quoteId", item.QuoteID), zap.String("kind", string(socialpublish.KindOf(err))), zap.Error(err))
		res.Status, res.Reason, res.Error = StatusFailed, "publish_failed", err.Error()
		if k := socialpublish.KindOf(err); k != "" {
			res.Reason = string(k) + "_error"
		}
		return res, nil
	}
	log.Info("publish_ok", zap.Int64("queueId", item.ID), zap.String("platform", string(item.Platform)),
		zap.Int64("quoteId", item.QuoteID), zap.String("postId", post.ID), zap.String("postUrl", post.URL))
	res.Status, res.PostID, res.PostURL = StatusSuccess, post.ID, post.URL
	return res, nil
}

// publishOne formats and publishes a claimed entry. A panic anywhere below is returned as an error.
func (r *Runner) publishOne(ctx context.Context, cfg auth.ResolvedAuthConfig, claimed *models.ClaimedItem, base string) (text string, post socialpublish.Post, err error) {
	item := claimed.Item
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: publish panicked: %v", item.Platform, rec)
		}
	}()

	q := claimed.Quote
	if q == nil {
		return "", post, socialpublish.Errorf(item.Platform, socialpublish.KindPrecondition, "", "quote %d not found", item.QuoteID)
	}
	if !q.Approved() {
		return "", post, socialpublish.Errorf(item.Platform, socialpublish.KindPrecondition, "", "quote %d is not approved (status %q)", q.ID, q.Status)
	}
	if base == "" {
		return "", post, socialpublish.Errorf(item.Platform, socialpublish.KindConfig, "", "site base url is not configured")
	}

	id := strconv.FormatInt(q.ID, 10)
	quoteURL := base + "/quotes/" + id
	imageURL := base + "/api/quote-cards/" + id + ".png"
	text = socialpublish.BuildPostText(item.Platform, q.Text, q.AuthorName, q.ReferenceName, quoteURL)

	pub, err := r.publisherFor(cfg)
	if err != nil {
		return text, post, err
	}
	post, err = pub.Publish(ctx, socialpublish.Request{Text: text, QuoteURL: quoteURL, ImageURL: imageURL})
	return text, post, err
}

func (r *Runner) loadSettings(ctx context.Context) (*settings.Resolver, error) {
	if r.Settings == nil {
		return settings.NewStaticResolver(nil, nil), nil
	}
	res, err := r.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return res, nil
}

// RunScheduled checks the time gate once and then runs each enabled platform in turn, one
// invocation per platform. Unconfigured platforms are skipped silently. baseSiteURL overrides the
// configured site origin when non-empty.
func (r *Runner) RunScheduled(ctx context.Context, now time.Time, baseSiteURL string) ([]Result, error) {
	resolver, err := r.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	at := resolver.String("social_autopost_time", DefaultTriggerTime)
	tz := resolver.String("social_autopost_timezone", DefaultTimezone)
	if !IsTriggerTime(now, tz, at) {
		return []Result{{Status: StatusSkipped, Reason: "not_trigger_time"}}, nil
	}

	var results []Result
	for _, p := range models.AllPlatforms {
		if !auth.Resolve(resolver, p).CanPublish() {
			continue
		}
		res, err := r.RunWithOptions(ctx, Options{Force: true, Platform: string(p), BaseSiteURL: baseSiteURL, Now: now})
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	if len(results) == 0 {
		results = append(results, Result{Status: StatusSkipped, Reason: "no_enabled_platforms"})
	}
	return results, nil
}
