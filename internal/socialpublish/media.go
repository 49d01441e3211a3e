package socialpublish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
)

// QuoteCardRoute matches the in-process quote-card image path.
var QuoteCardRoute = regexp.MustCompile(`^/api/quote-cards/[0-9]+\.png$`)

// Image is fetched media.
type Image struct {
	Bytes       []byte
	ContentType string
}

// MediaFetcher resolves an image URL to bytes. URLs whose path matches Route are served by
// Internal directly instead of going over the network.
type MediaFetcher struct {
	Client   *http.Client
	Internal http.Handler
	Route    *regexp.Regexp
	MaxBytes int64
}

func (f MediaFetcher) Fetch(ctx context.Context, rawURL string) (Image, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Image{}, fmt.Errorf("media: parse url: %w", err)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = 20 << 20
	}
	route := f.Route
	if route == nil {
		route = QuoteCardRoute
	}

	if f.Internal != nil && route.MatchString(u.Path) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.RequestURI(), nil)
		if err != nil {
			return Image{}, err
		}
		req.Host = u.Host
		rec := httptest.NewRecorder()
		f.Internal.ServeHTTP(rec, req)
		res := rec.Result()
		defer res.Body.Close()
		return readImage(res, u.Path, limit)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return Image{}, fmt.Errorf("media: unsupported url %q", rawURL)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Image{}, err
	}
	res, err := client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("media: fetch %s: %w", u.Redacted(), err)
	}
	defer res.Body.Close()
	return readImage(res, u.Redacted(), limit)
}

func readImage(res *http.Response, label string, limit int64) (Image, error) {
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Image{}, fmt.Errorf("media: fetch %s: http %d", label, res.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return Image{}, fmt.Errorf("media: read %s: %w", label, err)
	}
	if int64(len(b)) > limit {
		return Image{}, fmt.Errorf("media: %s exceeds %d bytes", label, limit)
	}
	if len(b) == 0 {
		return Image{}, fmt.Errorf("media: %s returned an empty body", label)
	}
	ct := strings.TrimSpace(strings.Split(res.Header.Get("Content-Type"), ";")[0])
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(b)
	}
	return Image{Bytes: b, ContentType: ct}, nil
}
