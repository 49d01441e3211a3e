// Package auth turns layered settings into per-platform credentials and implements the
// request-authentication schemes the publishers need.
package auth

import (
	"strings"
	"time"

	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/settings"
)

type Mode string

const (
	ModeNone    Mode = "none"
	ModeOAuth1  Mode = "oauth1"
	ModeBearer  Mode = "oauth2-bearer"
	ModeSession Mode = "session"
	ModeAPIKey  Mode = "api-key"
)

const (
	DefaultBlueskyService   = "https://bsky.social"
	DefaultPinterestAPIBase = "https://api.pinterest.com"
	DefaultPinterestVersion = "v5"
	DefaultPollInterval     = 2 * time.Second
	DefaultPollTimeout      = 60 * time.Second
)

type BearerCredentials struct {
	Token string
}

// Header returns the Authorization header value.
func (b BearerCredentials) Header() string { return "Bearer " + b.Token }

type SessionCredentials struct {
	Service    string
	Identifier string
	Password   string
}

// APIKeyCredentials is an access token scoped to one account, page, or board.
type APIKeyCredentials struct {
	AccessToken string
	AccountID   string
}

// PublishOptions carries non-secret per-platform knobs.
type PublishOptions struct {
	RequireMedia bool
	PollInterval time.Duration
	PollTimeout  time.Duration
	APIBase      string
	APIVersion   string
	BoardID      string
}

// ResolvedAuthConfig is a tagged union: exactly the credential field matching Mode is non-nil.
type ResolvedAuthConfig struct {
	Platform models.Platform
	Mode     Mode
	Enabled  bool

	OAuth1  *OAuth1Credentials
	Bearer  *BearerCredentials
	Session *SessionCredentials
	APIKey  *APIKeyCredentials

	Options PublishOptions
	// Sources records which layer each consulted key came from.
	Sources map[string]settings.Source
}

// CanPublish reports whether the platform is enabled and fully configured.
func (c ResolvedAuthConfig) CanPublish() bool {
	return c.Enabled && c.Mode != ModeNone
}

type fieldReader struct {
	r       *settings.Resolver
	sources map[string]settings.Source
}

func (f fieldReader) get(key, def string) string {
	v, src := f.r.Field(key, def)
	f.sources[key] = src
	return v
}

// Resolve builds the credentials for p from r. Missing required fields collapse Mode to none.
func Resolve(r *settings.Resolver, p models.Platform) ResolvedAuthConfig {
	f := fieldReader{r: r, sources: map[string]settings.Source{}}
	cfg := ResolvedAuthConfig{
		Platform: p,
		Mode:     ModeNone,
		Enabled:  r.Bool("social_"+string(p)+"_enabled", false),
		Sources:  f.sources,
	}

	switch p {
	case models.PlatformX:
		creds := OAuth1Credentials{
			ConsumerKey:    f.get("x_api_key", ""),
			ConsumerSecret: f.get("x_api_secret", ""),
			Token:          f.get("x_access_token", ""),
			TokenSecret:    f.get("x_access_token_secret", ""),
		}
		bearer := f.get("x_bearer_token", "")
		cfg.Options.RequireMedia = r.Bool("x_require_media", false)
		switch {
		case creds.complete():
			cfg.Mode = ModeOAuth1
			cfg.OAuth1 = &creds
		case bearer != "":
			cfg.Mode = ModeBearer
			cfg.Bearer = &BearerCredentials{Token: bearer}
		}

	case models.PlatformBluesky:
		s := SessionCredentials{
			Service:    strings.TrimRight(f.get("bluesky_service", DefaultBlueskyService), "/"),
			Identifier: f.get("bluesky_identifier", ""),
			Password:   f.get("bluesky_app_password", ""),
		}
		if s.Identifier != "" && s.Password != "" {
			cfg.Mode = ModeSession
			cfg.Session = &s
		}

	case models.PlatformInstagram, models.PlatformThreads:
		prefix := string(p) + "_"
		k := APIKeyCredentials{
			AccessToken: f.get(prefix+"access_token", ""),
			AccountID:   f.get(prefix+"user_id", ""),
		}
		cfg.Options.PollInterval = r.Millis(prefix+"poll_interval_ms", DefaultPollInterval)
		cfg.Options.PollTimeout = r.Millis(prefix+"poll_timeout_ms", DefaultPollTimeout)
		if k.AccessToken != "" && k.AccountID != "" {
			cfg.Mode = ModeAPIKey
			cfg.APIKey = &k
		}

	case models.PlatformFacebook:
		k := APIKeyCredentials{
			AccessToken: f.get("facebook_page_access_token", ""),
			AccountID:   f.get("facebook_page_id", ""),
		}
		if k.AccessToken != "" && k.AccountID != "" {
			cfg.Mode = ModeAPIKey
			cfg.APIKey = &k
		}

	case models.PlatformPinterest:
		token := f.get("pinterest_access_token", "")
		cfg.Options.BoardID = f.get("pinterest_board_id", "")
		cfg.Options.APIBase = strings.TrimRight(f.get("pinterest_api_base", DefaultPinterestAPIBase), "/")
		cfg.Options.APIVersion = strings.Trim(f.get("pinterest_api_version", DefaultPinterestVersion), "/")
		if token != "" && cfg.Options.BoardID != "" {
			cfg.Mode = ModeBearer
			cfg.Bearer = &BearerCredentials{Token: token}
		}
	}
	return cfg
}
