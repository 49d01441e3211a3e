package autopost

import (
	"context"
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/config"
	"github.com/PortNumber53/quote-autopost/internal/settings"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish/providers"
)

// NewRunner wires a Runner over Postgres. Settings are re-read from public.social_settings on
// every invocation. internal, when set, serves quote-card images without a network round trip.
func NewRunner(conn *sql.DB, cfg *config.Config, log *zap.Logger, internal http.Handler) *Runner {
	// No client timeout: the container poller and the caller's context bound each run.
	client := &http.Client{}
	return &Runner{
		Queue:    Store{DB: conn, Logger: log},
		Recorder: Recorder{DB: conn, Logger: log},
		Settings: func(ctx context.Context) (*settings.Resolver, error) {
			return settings.NewResolver(ctx, settings.SQLStore{DB: conn}, cfg.Env)
		},
		Deps: providers.Deps{
			Client: client,
			Media:  socialpublish.MediaFetcher{Client: client, Internal: internal},
			Logger: log,
		},
		BaseSiteURL: cfg.SiteBaseURL,
		Logger:      log,
	}
}
