// Package providers implements the per-network publishers and the single dispatch point that
// picks one for a resolved platform configuration.
package providers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/auth"
	"github.com/PortNumber53/quote-autopost/internal/logging"
	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish"
)

const (
	GraphFacebookBase = "https://graph.facebook.com/v18.0"
	GraphThreadsBase  = "https://graph.threads.net/v1.0"
	XUploadURL        = "https://upload.twitter.com/1.1/media/upload.json"
	XTweetsURL        = "https://api.twitter.com/2/tweets"
)

// ImageFetcher resolves an image URL to bytes. socialpublish.MediaFetcher satisfies it.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (socialpublish.Image, error)
}

// Deps are the collaborators every publisher shares.
type Deps struct {
	Client *http.Client
	Media  ImageFetcher
	Logger *zap.Logger
	Now    func() time.Time
	// Signer overrides nonce/clock for OAuth1 signing; Credentials are always taken from the config.
	Signer *auth.OAuth1Signer
}

func (d Deps) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) media() ImageFetcher {
	if d.Media != nil {
		return d.Media
	}
	return socialpublish.MediaFetcher{Client: d.Client}
}

// For returns the publisher for cfg.Platform. A disabled or unconfigured platform is a config error.
func For(cfg auth.ResolvedAuthConfig, deps Deps) (socialpublish.Publisher, error) {
	if !cfg.Enabled {
		return nil, socialpublish.Errorf(cfg.Platform, socialpublish.KindConfig, "", "platform is disabled")
	}
	if cfg.Mode == auth.ModeNone {
		return nil, socialpublish.Errorf(cfg.Platform, socialpublish.KindConfig, "", "credentials are missing or incomplete")
	}
	log := logging.OrNop(deps.Logger).Named("publish." + string(cfg.Platform))

	switch cfg.Platform {
	case models.PlatformX:
		return newX(cfg, deps, log)
	case models.PlatformBluesky:
		return newBluesky(cfg, deps, log)
	case models.PlatformInstagram:
		return newInstagram(cfg, deps, log)
	case models.PlatformThreads:
		return newThreads(cfg, deps, log)
	case models.PlatformFacebook:
		return newFacebook(cfg, deps, log)
	case models.PlatformPinterest:
		return newPinterest(cfg, deps, log)
	}
	return nil, socialpublish.Errorf(cfg.Platform, socialpublish.KindConfig, "", "unsupported platform")
}

func modeError(cfg auth.ResolvedAuthConfig) error {
	return socialpublish.Errorf(cfg.Platform, socialpublish.KindConfig, "", "auth mode %s is not usable here", cfg.Mode)
}
