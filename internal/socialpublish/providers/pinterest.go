package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/auth"
	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish"
)

const (
	pinTitleMax       = 100
	pinDescriptionMax = 500
)

// PinterestPublisher creates one image pin on the configured board.
type PinterestPublisher struct {
	client  *http.Client
	log     *zap.Logger
	bearer  auth.BearerCredentials
	boardID string
	apiBase string
	version string
}

func newPinterest(cfg auth.ResolvedAuthConfig, deps Deps, log *zap.Logger) (*PinterestPublisher, error) {
	if cfg.Mode != auth.ModeBearer || cfg.Bearer == nil {
		return nil, modeError(cfg)
	}
	base := cfg.Options.APIBase
	if base == "" {
		base = auth.DefaultPinterestAPIBase
	}
	version := cfg.Options.APIVersion
	if version == "" {
		version = auth.DefaultPinterestVersion
	}
	return &PinterestPublisher{
		client:  deps.client(),
		log:     log,
		bearer:  *cfg.Bearer,
		boardID: cfg.Options.BoardID,
		apiBase: base,
		version: version,
	}, nil
}

func (p *PinterestPublisher) Platform() models.Platform { return models.PlatformPinterest }

func (p *PinterestPublisher) Publish(ctx context.Context, req socialpublish.Request) (socialpublish.Post, error) {
	if strings.TrimSpace(req.ImageURL) == "" {
		return socialpublish.Post{}, socialpublish.Errorf(models.PlatformPinterest, socialpublish.KindPrecondition, "pin", "an image url is required")
	}
	payload := map[string]any{
		"board_id":    p.boardID,
		"title":       pinTitle(req.Text),
		"description": capRunes(req.Text, pinDescriptionMax),
		"media_source": map[string]string{
			"source_type": "image_url",
			"url":         req.ImageURL,
		},
	}
	if req.QuoteURL != "" {
		payload["link"] = req.QuoteURL
	}
	b, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/"+p.version+"/pins", bytes.NewReader(b))
	if err != nil {
		return socialpublish.Post{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", p.bearer.Header())

	body, err := socialpublish.Do(p.client, models.PlatformPinterest, "pin", httpReq, socialpublish.PinterestError)
	if err != nil {
		return socialpublish.Post{}, err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return socialpublish.Post{}, socialpublish.Errorf(models.PlatformPinterest, socialpublish.KindAPI, "pin", "response missing pin id")
	}

	web := "https://www.pinterest.com"
	if strings.Contains(strings.ToLower(p.apiBase), "api-sandbox.pinterest.com") {
		web = "https://www-sandbox.pinterest.com"
	}
	p.log.Info("publish_ok", zap.String("pinId", out.ID), zap.String("boardId", p.boardID))
	return socialpublish.Post{ID: out.ID, URL: web + "/pin/" + out.ID + "/"}, nil
}

// pinTitle is the first line of the post without its quotation marks.
func pinTitle(text string) string {
	line := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	line = strings.TrimSuffix(strings.TrimPrefix(line, "“"), "”")
	return capRunes(line, pinTitleMax)
}

func capRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
