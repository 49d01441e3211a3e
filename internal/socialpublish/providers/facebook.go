package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/auth"
	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish"
)

// FacebookPublisher posts a photo (or a link post when there is no image) to a Page.
type FacebookPublisher struct {
	client *http.Client
	log    *zap.Logger
	creds  auth.APIKeyCredentials
	base   string
}

func newFacebook(cfg auth.ResolvedAuthConfig, deps Deps, log *zap.Logger) (*FacebookPublisher, error) {
	if cfg.Mode != auth.ModeAPIKey || cfg.APIKey == nil {
		return nil, modeError(cfg)
	}
	return &FacebookPublisher{client: deps.client(), log: log, creds: *cfg.APIKey, base: GraphFacebookBase}, nil
}

func (p *FacebookPublisher) Platform() models.Platform { return models.PlatformFacebook }

func (p *FacebookPublisher) Publish(ctx context.Context, req socialpublish.Request) (socialpublish.Post, error) {
	form := url.Values{}
	form.Set("access_token", p.creds.AccessToken)
	edge, op := "photos", "photo"
	if strings.TrimSpace(req.ImageURL) != "" {
		form.Set("url", req.ImageURL)
		form.Set("caption", req.Text)
		form.Set("published", "true")
	} else {
		edge, op = "feed", "feed"
		form.Set("message", req.Text)
		if req.QuoteURL != "" {
			form.Set("link", req.QuoteURL)
		}
	}

	endpoint := p.base + "/" + url.PathEscape(p.creds.AccountID) + "/" + edge
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return socialpublish.Post{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := socialpublish.Do(p.client, models.PlatformFacebook, op, httpReq, socialpublish.GraphError)
	if err != nil {
		return socialpublish.Post{}, err
	}

	var out struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	_ = json.Unmarshal(body, &out)
	postID := out.PostID
	if postID == "" {
		postID = out.ID
	}
	if postID == "" {
		return socialpublish.Post{}, socialpublish.Errorf(models.PlatformFacebook, socialpublish.KindAPI, op, "response missing id")
	}
	p.log.Info("publish_ok", zap.String("postId", postID), zap.String("pageId", p.creds.AccountID))
	return socialpublish.Post{ID: postID, URL: "https://www.facebook.com/" + postID}, nil
}
