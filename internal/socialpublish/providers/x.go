package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/auth"
	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish"
)

// XPublisher posts a tweet, attaching an uploaded image when the upload succeeds.
type XPublisher struct {
	client       *http.Client
	media        ImageFetcher
	log          *zap.Logger
	signer       *auth.OAuth1Signer
	bearer       *auth.BearerCredentials
	requireMedia bool
	uploadURL    string
	tweetsURL    string
}

func newX(cfg auth.ResolvedAuthConfig, deps Deps, log *zap.Logger) (*XPublisher, error) {
	p := &XPublisher{
		client:       deps.client(),
		media:        deps.media(),
		log:          log,
		requireMedia: cfg.Options.RequireMedia,
		uploadURL:    XUploadURL,
		tweetsURL:    XTweetsURL,
	}
	switch cfg.Mode {
	case auth.ModeOAuth1:
		s := auth.OAuth1Signer{Credentials: *cfg.OAuth1}
		if deps.Signer != nil {
			s.Nonce, s.Now = deps.Signer.Nonce, deps.Signer.Now
		}
		p.signer = &s
	case auth.ModeBearer:
		p.bearer = cfg.Bearer
	default:
		return nil, modeError(cfg)
	}
	return p, nil
}

func (p *XPublisher) Platform() models.Platform { return models.PlatformX }

func (p *XPublisher) Publish(ctx context.Context, req socialpublish.Request) (socialpublish.Post, error) {
	var mediaIDs []string
	if strings.TrimSpace(req.ImageURL) != "" {
		id, err := p.uploadMedia(ctx, req.ImageURL)
		switch {
		case err == nil:
			mediaIDs = append(mediaIDs, id)
		case p.requireMedia:
			return socialpublish.Post{}, err
		default:
			p.log.Warn("media_upload_failed_text_only", zap.Error(err))
		}
	} else if p.requireMedia {
		return socialpublish.Post{}, socialpublish.Errorf(models.PlatformX, socialpublish.KindMedia, "media", "an image is required but none was provided")
	}

	payload := map[string]any{"text": req.Text}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": mediaIDs}
	}
	b, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tweetsURL, bytes.NewReader(b))
	if err != nil {
		return socialpublish.Post{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := p.authorize(httpReq); err != nil {
		return socialpublish.Post{}, err
	}

	body, err := socialpublish.Do(p.client, models.PlatformX, "tweet", httpReq, socialpublish.XError)
	if err != nil {
		return socialpublish.Post{}, err
	}
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Data.ID == "" {
		return socialpublish.Post{}, socialpublish.Errorf(models.PlatformX, socialpublish.KindAPI, "tweet", "response missing tweet id")
	}
	p.log.Info("publish_ok", zap.String("postId", out.Data.ID), zap.Int("mediaCount", len(mediaIDs)))
	return socialpublish.Post{ID: out.Data.ID, URL: "https://x.com/i/web/status/" + out.Data.ID}, nil
}

func (p *XPublisher) authorize(req *http.Request) error {
	if p.signer != nil {
		// Multipart and JSON bodies are not part of the signature base.
		h, err := p.signer.Header(req.Method, req.URL.String(), nil)
		if err != nil {
			return socialpublish.Errorf(models.PlatformX, socialpublish.KindConfig, "sign", "%v", err)
		}
		req.Header.Set("Authorization", h)
		return nil
	}
	req.Header.Set("Authorization", p.bearer.Header())
	return nil
}

func (p *XPublisher) uploadMedia(ctx context.Context, imageURL string) (string, error) {
	if p.signer == nil {
		return "", socialpublish.Errorf(models.PlatformX, socialpublish.KindMedia, "media upload", "media upload requires OAuth 1.0a user credentials")
	}
	img, err := p.media.Fetch(ctx, imageURL)
	if err != nil {
		return "", &socialpublish.Error{Platform: models.PlatformX, Kind: socialpublish.KindMedia, Op: "media upload", Message: err.Error(), Err: err}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="media"; filename="quote-card"`)
	hdr.Set("Content-Type", img.ContentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(img.Bytes); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := p.authorize(req); err != nil {
		return "", err
	}
	body, err := socialpublish.Do(p.client, models.PlatformX, "media upload", req, socialpublish.XError)
	if err != nil {
		return "", asMediaError(err)
	}
	var out struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.MediaIDString == "" {
		return "", socialpublish.Errorf(models.PlatformX, socialpublish.KindMedia, "media upload", "response missing media_id_string")
	}
	return out.MediaIDString, nil
}

// asMediaError keeps the message but reclassifies an upload failure as a media failure.
func asMediaError(err error) error {
	var pe *socialpublish.Error
	if errors.As(err, &pe) {
		cp := *pe
		cp.Kind = socialpublish.KindMedia
		cp.Message = string(pe.Kind) + ": " + pe.Message
		if pe.Status != 0 {
			cp.Message = fmt.Sprintf("%s (status %d): %s", pe.Kind, pe.Status, pe.Message)
		}
		return &cp
	}
	return err
}
