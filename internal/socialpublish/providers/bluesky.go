package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/auth"
	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish"
)

// BlueskyPublisher logs in, uploads the image as a blob, and creates an app.bsky.feed.post record.
type BlueskyPublisher struct {
	client  *http.Client
	media   ImageFetcher
	log     *zap.Logger
	creds   auth.SessionCredentials
	now     func() time.Time
	webBase string
}

func newBluesky(cfg auth.ResolvedAuthConfig, deps Deps, log *zap.Logger) (*BlueskyPublisher, error) {
	if cfg.Mode != auth.ModeSession || cfg.Session == nil {
		return nil, modeError(cfg)
	}
	return &BlueskyPublisher{
		client:  deps.client(),
		media:   deps.media(),
		log:     log,
		creds:   *cfg.Session,
		now:     deps.now,
		webBase: "https://bsky.app",
	}, nil
}

func (p *BlueskyPublisher) Platform() models.Platform { return models.PlatformBluesky }

func (p *BlueskyPublisher) Publish(ctx context.Context, req socialpublish.Request) (socialpublish.Post, error) {
	sess, err := auth.CreateSession(ctx, p.client, p.creds)
	if err != nil {
		var le *auth.SessionLoginError
		if errors.As(err, &le) {
			return socialpublish.Post{}, loginError(le)
		}
		return socialpublish.Post{}, &socialpublish.Error{Platform: models.PlatformBluesky, Kind: socialpublish.KindNetwork, Op: "login", Message: err.Error(), Err: err}
	}

	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      req.Text,
		"createdAt": p.now().UTC().Format(time.RFC3339),
	}
	if facets := linkFacets(req.Text, req.QuoteURL); len(facets) > 0 {
		record["facets"] = facets
	}

	if strings.TrimSpace(req.ImageURL) != "" {
		blob, err := p.uploadBlob(ctx, sess, req.ImageURL)
		if err != nil {
			return socialpublish.Post{}, err
		}
		record["embed"] = map[string]any{
			"$type": "app.bsky.embed.images",
			"images": []map[string]any{{
				"alt":   altText(req.Text),
				"image": blob,
			}},
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"repo":       sess.DID,
		"collection": "app.bsky.feed.post",
		"record":     record,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.creds.Service+"/xrpc/com.atproto.repo.createRecord", bytes.NewReader(payload))
	if err != nil {
		return socialpublish.Post{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+sess.AccessJWT)
	body, err := socialpublish.Do(p.client, models.PlatformBluesky, "create record", httpReq, socialpublish.XRPCError)
	if err != nil {
		return socialpublish.Post{}, err
	}
	var out struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.URI == "" {
		return socialpublish.Post{}, socialpublish.Errorf(models.PlatformBluesky, socialpublish.KindAPI, "create record", "response missing uri")
	}

	rkey := out.URI[strings.LastIndex(out.URI, "/")+1:]
	actor := sess.Handle
	if actor == "" {
		actor = sess.DID
	}
	postURL := p.webBase + "/profile/" + actor + "/post/" + rkey
	p.log.Info("publish_ok", zap.String("uri", out.URI), zap.String("handle", actor))
	return socialpublish.Post{ID: out.URI, URL: postURL}, nil
}

func (p *BlueskyPublisher) uploadBlob(ctx context.Context, sess auth.Session, imageURL string) (json.RawMessage, error) {
	img, err := p.media.Fetch(ctx, imageURL)
	if err != nil {
		return nil, &socialpublish.Error{Platform: models.PlatformBluesky, Kind: socialpublish.KindMedia, Op: "upload blob", Message: err.Error(), Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.creds.Service+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(img.Bytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", img.ContentType)
	req.Header.Set("Authorization", "Bearer "+sess.AccessJWT)
	body, err := socialpublish.Do(p.client, models.PlatformBluesky, "upload blob", req, socialpublish.XRPCError)
	if err != nil {
		return nil, err
	}
	var out struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := json.Unmarshal(body, &out); err != nil || len(out.Blob) == 0 || string(out.Blob) == "null" {
		return nil, socialpublish.Errorf(models.PlatformBluesky, socialpublish.KindAPI, "upload blob", "response missing blob reference")
	}
	return out.Blob, nil
}

// loginError classifies a login answer: an XRPC error object or an unreadable success body is
// an API error, any other non-2xx is a transport error.
func loginError(le *auth.SessionLoginError) *socialpublish.Error {
	e := &socialpublish.Error{Platform: models.PlatformBluesky, Kind: socialpublish.KindTransport, Op: "login", Status: le.Status, Message: le.Message, Err: le}
	switch {
	case le.Code != "":
		e.Kind = socialpublish.KindAPI
		e.Message = le.Code
		if le.Message != "" {
			e.Message += ": " + le.Message
		}
	case le.Malformed:
		e.Kind = socialpublish.KindAPI
		e.Message = "malformed session response: " + le.Message
	}
	return e
}

// linkFacets marks link inside text as a clickable link. Offsets are UTF-8 byte positions.
func linkFacets(text, link string) []map[string]any {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil
	}
	start := strings.LastIndex(text, link)
	if start < 0 {
		return nil
	}
	return []map[string]any{{
		"index": map[string]int{"byteStart": start, "byteEnd": start + len(link)},
		"features": []map[string]string{{
			"$type": "app.bsky.richtext.facet#link",
			"uri":   link,
		}},
	}}
}

// altText is the first line of the post, capped for screen readers.
func altText(text string) string {
	line := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if utf8.RuneCountInString(line) > 300 {
		line = string([]rune(line)[:299]) + "…"
	}
	return line
}
