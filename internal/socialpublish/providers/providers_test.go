package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PortNumber53/quote-autopost/internal/auth"
	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish"
)

type stubTransport struct {
	fn func(*http.Request) (*http.Response, error)
}

func (t stubTransport) RoundTrip(r *http.Request) (*http.Response, error) { return t.fn(r) }

func httpJSON(status int, body string, headers map[string]string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type stubFetcher struct {
	img   socialpublish.Image
	err   error
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, u string) (socialpublish.Image, error) {
	f.calls++
	return f.img, f.err
}

var testImage = socialpublish.Image{Bytes: []byte("\x89PNG\r\n\x1a\nabc"), ContentType: "image/png"}

func readForm(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	b, _ := io.ReadAll(r.Body)
	v, err := url.ParseQuery(string(b))
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	return v
}

func xOAuthConfig(requireMedia bool) auth.ResolvedAuthConfig {
	return auth.ResolvedAuthConfig{
		Platform: models.PlatformX,
		Mode:     auth.ModeOAuth1,
		Enabled:  true,
		OAuth1:   &auth.OAuth1Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", Token: "at", TokenSecret: "ats"},
		Options:  auth.PublishOptions{RequireMedia: requireMedia},
	}
}

func fixedSigner() *auth.OAuth1Signer {
	return &auth.OAuth1Signer{
		Nonce: func() string { return "fixednonce" },
		Now:   func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func TestFor_RejectsDisabledAndUnconfigured(t *testing.T) {
	_, err := For(auth.ResolvedAuthConfig{Platform: models.PlatformX, Mode: auth.ModeBearer, Bearer: &auth.BearerCredentials{Token: "t"}}, Deps{})
	if socialpublish.KindOf(err) != socialpublish.KindConfig || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected disabled config error, got %v", err)
	}
	_, err = For(auth.ResolvedAuthConfig{Platform: models.PlatformBluesky, Mode: auth.ModeNone, Enabled: true}, Deps{})
	if socialpublish.KindOf(err) != socialpublish.KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
	// Mode does not match what the adapter needs.
	_, err = For(auth.ResolvedAuthConfig{Platform: models.PlatformFacebook, Mode: auth.ModeBearer, Enabled: true, Bearer: &auth.BearerCredentials{Token: "t"}}, Deps{})
	if socialpublish.KindOf(err) != socialpublish.KindConfig {
		t.Fatalf("expected config error for mismatched mode, got %v", err)
	}
}

func TestFor_DispatchesEveryPlatform(t *testing.T) {
	key := &auth.APIKeyCredentials{AccessToken: "t", AccountID: "a"}
	cfgs := []auth.ResolvedAuthConfig{
		xOAuthConfig(false),
		{Platform: models.PlatformBluesky, Mode: auth.ModeSession, Enabled: true, Session: &auth.SessionCredentials{Service: "https://bsky.social", Identifier: "a", Password: "p"}},
		{Platform: models.PlatformInstagram, Mode: auth.ModeAPIKey, Enabled: true, APIKey: key},
		{Platform: models.PlatformThreads, Mode: auth.ModeAPIKey, Enabled: true, APIKey: key},
		{Platform: models.PlatformFacebook, Mode: auth.ModeAPIKey, Enabled: true, APIKey: key},
		{Platform: models.PlatformPinterest, Mode: auth.ModeBearer, Enabled: true, Bearer: &auth.BearerCredentials{Token: "t"}, Options: auth.PublishOptions{BoardID: "b"}},
	}
	if len(cfgs) != len(models.AllPlatforms) {
		t.Fatalf("test table is missing a platform")
	}
	for _, cfg := range cfgs {
		pub, err := For(cfg, Deps{})
		if err != nil {
			t.Fatalf("%s: %v", cfg.Platform, err)
		}
		if pub.Platform() != cfg.Platform {
			t.Fatalf("%s: got publisher for %s", cfg.Platform, pub.Platform())
		}
	}
}

func TestX_UploadsMediaAndPostsWithSignedRequests(t *testing.T) {
	var tweet map[string]any
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "OAuth ") || !strings.Contains(authz, `oauth_nonce="fixednonce"`) || !strings.Contains(authz, `oauth_timestamp="1700000000"`) {
			t.Fatalf("unsigned request to %s: %q", r.URL, authz)
		}
		switch r.URL.Host + r.URL.Path {
		case "upload.twitter.com/1.1/media/upload.json":
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				t.Fatalf("upload should be multipart, got %q", r.Header.Get("Content-Type"))
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("ParseMultipartForm: %v", err)
			}
			if fh := r.MultipartForm.File["media"]; len(fh) != 1 {
				t.Fatalf("expected one media part")
			}
			return httpJSON(200, `{"media_id":1,"media_id_string":"m1"}`, nil), nil
		case "api.twitter.com/2/tweets":
			_ = json.NewDecoder(r.Body).Decode(&tweet)
			return httpJSON(201, `{"data":{"id":"123","text":"hi"}}`, nil), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL)
		return nil, nil
	}}}

	pub, err := For(xOAuthConfig(false), Deps{Client: client, Media: &stubFetcher{img: testImage}, Signer: fixedSigner()})
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	post, err := pub.Publish(context.Background(), socialpublish.Request{Text: "hi", ImageURL: "https://site/api/quote-cards/1.png"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if post.ID != "123" || post.URL != "https://x.com/i/web/status/123" {
		t.Fatalf("unexpected post %+v", post)
	}
	media, _ := tweet["media"].(map[string]any)
	ids, _ := media["media_ids"].([]any)
	if len(ids) != 1 || ids[0] != "m1" || tweet["text"] != "hi" {
		t.Fatalf("unexpected tweet payload %v", tweet)
	}
}

func TestX_UploadFailureFallsBackToText(t *testing.T) {
	var tweet map[string]any
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		if r.URL.Host == "upload.twitter.com" {
			return httpJSON(500, ``, nil), nil
		}
		_ = json.NewDecoder(r.Body).Decode(&tweet)
		return httpJSON(201, `{"data":{"id":"9"}}`, nil), nil
	}}}
	pub, _ := For(xOAuthConfig(false), Deps{Client: client, Media: &stubFetcher{img: testImage}})
	post, err := pub.Publish(context.Background(), socialpublish.Request{Text: "hi", ImageURL: "https://img/1.png"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if post.ID != "9" {
		t.Fatalf("unexpected post %+v", post)
	}
	if _, ok := tweet["media"]; ok {
		t.Fatalf("text-only fallback should not attach media: %v", tweet)
	}
}

func TestX_RequireMediaFailsWholePublish(t *testing.T) {
	tweeted := false
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		if r.URL.Host == "upload.twitter.com" {
			return httpJSON(400, `{"errors":[{"message":"media type unrecognized"}]}`, nil), nil
		}
		tweeted = true
		return httpJSON(201, `{"data":{"id":"9"}}`, nil), nil
	}}}
	pub, _ := For(xOAuthConfig(true), Deps{Client: client, Media: &stubFetcher{img: testImage}})
	_, err := pub.Publish(context.Background(), socialpublish.Request{Text: "hi", ImageURL: "https://img/1.png"})
	if socialpublish.KindOf(err) != socialpublish.KindMedia {
		t.Fatalf("expected media error, got %v", err)
	}
	if !strings.Contains(err.Error(), "media type unrecognized") {
		t.Fatalf("error should carry the api message: %v", err)
	}
	if tweeted {
		t.Fatalf("tweet must not be sent when media is required")
	}

	// A fetch failure is also fatal when media is required.
	pub, _ = For(xOAuthConfig(true), Deps{Client: client, Media: &stubFetcher{err: errors.New("media: fetch: http 404")}})
	if _, err := pub.Publish(context.Background(), socialpublish.Request{Text: "hi", ImageURL: "https://img/1.png"}); socialpublish.KindOf(err) != socialpublish.KindMedia {
		t.Fatalf("expected media error, got %v", err)
	}
}

func TestX_BearerSkipsUploadAndReportsAPIError(t *testing.T) {
	fetcher := &stubFetcher{img: testImage}
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		if r.URL.Host == "upload.twitter.com" {
			t.Fatalf("bearer mode must not attempt media upload")
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("unexpected auth %q", r.Header.Get("Authorization"))
		}
		return httpJSON(403, `{"title":"Forbidden","detail":"You are not permitted to perform this action.","type":"about:blank","status":403}`, nil), nil
	}}}
	cfg := auth.ResolvedAuthConfig{Platform: models.PlatformX, Mode: auth.ModeBearer, Enabled: true, Bearer: &auth.BearerCredentials{Token: "tok"}}
	pub, _ := For(cfg, Deps{Client: client, Media: fetcher})
	_, err := pub.Publish(context.Background(), socialpublish.Request{Text: "hi", ImageURL: "https://img/1.png"})
	if err == nil || err.Error() != "x tweet: api error (status 403): You are not permitted to perform this action." {
		t.Fatalf("unexpected error %v", err)
	}
	if fetcher.calls != 0 {
		t.Fatalf("image should not be fetched without oauth1")
	}
}

func newBlueskyServer(t *testing.T, record *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/xrpc/com.atproto.server.createSession":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["identifier"] != "alice.bsky.social" || body["password"] != "app-pass" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`)
				return
			}
			_, _ = io.WriteString(w, `{"accessJwt":"jwt1","did":"did:plc:abc","handle":"alice.bsky.social"}`)
		case "/xrpc/com.atproto.repo.uploadBlob":
			if r.Header.Get("Authorization") != "Bearer jwt1" || r.Header.Get("Content-Type") != "image/png" {
				t.Fatalf("unexpected upload headers %v", r.Header)
			}
			_, _ = io.WriteString(w, `{"blob":{"$type":"blob","ref":{"$link":"bafk"},"mimeType":"image/png","size":12}}`)
		case "/xrpc/com.atproto.repo.createRecord":
			_ = json.NewDecoder(r.Body).Decode(record)
			_, _ = io.WriteString(w, `{"uri":"at://did:plc:abc/app.bsky.feed.post/3kabc","cid":"bafy"}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestBluesky_SessionBlobRecord(t *testing.T) {
	var created map[string]any
	srv := newBlueskyServer(t, &created)
	defer srv.Close()

	cfg := auth.ResolvedAuthConfig{Platform: models.PlatformBluesky, Mode: auth.ModeSession, Enabled: true,
		Session: &auth.SessionCredentials{Service: srv.URL, Identifier: "alice.bsky.social", Password: "app-pass"}}
	now := func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	pub, _ := For(cfg, Deps{Client: srv.Client(), Media: &stubFetcher{img: testImage}, Now: now})

	text := "“Be yourself.”\n— Oscar Wilde\nhttps://site/quotes/42"
	post, err := pub.Publish(context.Background(), socialpublish.Request{Text: text, QuoteURL: "https://site/quotes/42", ImageURL: "https://site/api/quote-cards/42.png"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if post.URL != "https://bsky.app/profile/alice.bsky.social/post/3kabc" || post.ID != "at://did:plc:abc/app.bsky.feed.post/3kabc" {
		t.Fatalf("unexpected post %+v", post)
	}
	if created["repo"] != "did:plc:abc" || created["collection"] != "app.bsky.feed.post" {
		t.Fatalf("unexpected createRecord payload %v", created)
	}
	rec := created["record"].(map[string]any)
	if rec["text"] != text || rec["createdAt"] != "2024-05-01T09:00:00Z" {
		t.Fatalf("unexpected record %v", rec)
	}
	embed := rec["embed"].(map[string]any)
	if embed["$type"] != "app.bsky.embed.images" {
		t.Fatalf("unexpected embed %v", embed)
	}
	img := embed["images"].([]any)[0].(map[string]any)
	if img["alt"] != "“Be yourself.”" {
		t.Fatalf("unexpected alt %v", img["alt"])
	}
	if ref := img["image"].(map[string]any)["ref"].(map[string]any)["$link"]; ref != "bafk" {
		t.Fatalf("blob reference not embedded: %v", img["image"])
	}
	facet := rec["facets"].([]any)[0].(map[string]any)
	idx := facet["index"].(map[string]any)
	start := strings.Index(text, "https://")
	if int(idx["byteStart"].(float64)) != start || int(idx["byteEnd"].(float64)) != len(text) {
		t.Fatalf("unexpected facet index %v", idx)
	}
}

func TestBluesky_LoginRejected(t *testing.T) {
	var created map[string]any
	srv := newBlueskyServer(t, &created)
	defer srv.Close()
	cfg := auth.ResolvedAuthConfig{Platform: models.PlatformBluesky, Mode: auth.ModeSession, Enabled: true,
		Session: &auth.SessionCredentials{Service: srv.URL, Identifier: "alice.bsky.social", Password: "wrong"}}
	pub, _ := For(cfg, Deps{Client: srv.Client()})
	_, err := pub.Publish(context.Background(), socialpublish.Request{Text: "hi"})
	if socialpublish.KindOf(err) != socialpublish.KindAPI || !strings.Contains(err.Error(), "AuthenticationRequired") {
		t.Fatalf("expected api login error, got %v", err)
	}
	if created != nil {
		t.Fatalf("no record should be created")
	}
}

func TestBluesky_LoginErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		netErr error
		want   socialpublish.ErrorKind
		substr string
	}{
		{name: "structured rejection", status: 401, body: `{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`, want: socialpublish.KindAPI, substr: "AuthenticationRequired"},
		{name: "html gateway error", status: 502, body: `<html>Bad Gateway</html>`, want: socialpublish.KindTransport, substr: "http 502"},
		{name: "empty 503", status: 503, body: ``, want: socialpublish.KindTransport, substr: "Service Unavailable"},
		{name: "undecodable success", status: 200, body: `not json`, want: socialpublish.KindAPI, substr: "malformed session response"},
		{name: "success without did", status: 200, body: `{"accessJwt":"jwt"}`, want: socialpublish.KindAPI, substr: "missing accessJwt or did"},
		{name: "connection refused", netErr: errors.New("dial tcp: connection refused"), want: socialpublish.KindNetwork, substr: "connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
				calls++
				if r.URL.Path != "/xrpc/com.atproto.server.createSession" {
					t.Fatalf("unexpected call after failed login: %s", r.URL.Path)
				}
				if tc.netErr != nil {
					return nil, tc.netErr
				}
				return httpJSON(tc.status, tc.body, nil), nil
			}}}
			cfg := auth.ResolvedAuthConfig{Platform: models.PlatformBluesky, Mode: auth.ModeSession, Enabled: true,
				Session: &auth.SessionCredentials{Service: "https://pds.example", Identifier: "alice", Password: "pw"}}
			pub, err := For(cfg, Deps{Client: client})
			if err != nil {
				t.Fatalf("For: %v", err)
			}
			_, err = pub.Publish(context.Background(), socialpublish.Request{Text: "hi"})
			if got := socialpublish.KindOf(err); got != tc.want {
				t.Fatalf("kind = %q, want %q (err=%v)", got, tc.want, err)
			}
			if !strings.Contains(err.Error(), tc.substr) {
				t.Fatalf("expected %q in %v", tc.substr, err)
			}
			if calls != 1 {
				t.Fatalf("expected exactly one login call, got %d", calls)
			}
		})
	}
}

func containerConfig(p models.Platform, timeout time.Duration) auth.ResolvedAuthConfig {
	return auth.ResolvedAuthConfig{
		Platform: p,
		Mode:     auth.ModeAPIKey,
		Enabled:  true,
		APIKey:   &auth.APIKeyCredentials{AccessToken: "tok", AccountID: "acct1"},
		Options:  auth.PublishOptions{PollInterval: time.Millisecond, PollTimeout: timeout},
	}
}

func TestInstagram_CreatePollPublishPermalink(t *testing.T) {
	polls := 0
	var caption string
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		if r.URL.Host != "graph.facebook.com" {
			return httpJSON(500, `{"error":{"message":"unexpected_host"}}`, nil), nil
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v18.0/acct1/media":
			form := readForm(t, r)
			caption = form.Get("caption")
			if form.Get("image_url") != "https://site/api/quote-cards/42.png" || form.Get("access_token") != "tok" {
				t.Fatalf("unexpected container form %v", form)
			}
			return httpJSON(200, `{"id":"c1"}`, nil), nil
		case r.Method == http.MethodGet && r.URL.Path == "/v18.0/c1":
			polls++
			if polls < 2 {
				return httpJSON(200, `{"id":"c1","status_code":"IN_PROGRESS"}`, nil), nil
			}
			return httpJSON(200, `{"id":"c1","status_code":"FINISHED"}`, nil), nil
		case r.Method == http.MethodPost && r.URL.Path == "/v18.0/acct1/media_publish":
			if readForm(t, r).Get("creation_id") != "c1" {
				t.Fatalf("publish must reference the container")
			}
			return httpJSON(200, `{"id":"m1"}`, nil), nil
		case r.Method == http.MethodGet && r.URL.Path == "/v18.0/m1":
			return httpJSON(200, `{"permalink":"https://www.instagram.com/p/XYZ/","id":"m1"}`, nil), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		return nil, nil
	}}}

	pub, _ := For(containerConfig(models.PlatformInstagram, time.Minute), Deps{Client: client})
	post, err := pub.Publish(context.Background(), socialpublish.Request{Text: "caption text", ImageURL: "https://site/api/quote-cards/42.png"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if post.ID != "m1" || post.URL != "https://www.instagram.com/p/XYZ/" {
		t.Fatalf("unexpected post %+v", post)
	}
	if polls != 2 || caption != "caption text" {
		t.Fatalf("polls=%d caption=%q", polls, caption)
	}
}

func TestInstagram_PollTimeoutNeverPublishes(t *testing.T) {
	published := false
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/media"):
			return httpJSON(200, `{"id":"c1"}`, nil), nil
		case strings.HasSuffix(r.URL.Path, "/media_publish"):
			published = true
			return httpJSON(200, `{"id":"m1"}`, nil), nil
		}
		return httpJSON(200, `{"status_code":"IN_PROGRESS"}`, nil), nil
	}}}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(500 * time.Millisecond)
		return clock
	}
	pub, _ := For(containerConfig(models.PlatformInstagram, 2*time.Second), Deps{Client: client, Now: now})
	_, err := pub.Publish(context.Background(), socialpublish.Request{Text: "t", ImageURL: "https://img/1.png"})
	if socialpublish.KindOf(err) != socialpublish.KindTimeout || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout, got %v", err)
	}
	if published {
		t.Fatalf("must not publish an unfinished container")
	}
}

func TestInstagram_RequiresImageAndSurfacesContainerError(t *testing.T) {
	pub, _ := For(containerConfig(models.PlatformInstagram, time.Minute), Deps{})
	if _, err := pub.Publish(context.Background(), socialpublish.Request{Text: "t"}); socialpublish.KindOf(err) != socialpublish.KindPrecondition {
		t.Fatalf("expected precondition error, got %v", err)
	}

	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		if r.Method == http.MethodPost {
			return httpJSON(200, `{"id":"c1"}`, nil), nil
		}
		return httpJSON(200, `{"status_code":"ERROR","error_message":"2207003: media download timed out"}`, nil), nil
	}}}
	pub, _ = For(containerConfig(models.PlatformInstagram, time.Minute), Deps{Client: client})
	_, err := pub.Publish(context.Background(), socialpublish.Request{Text: "t", ImageURL: "https://img/1.png"})
	if socialpublish.KindOf(err) != socialpublish.KindContainer || !strings.Contains(err.Error(), "ERROR") {
		t.Fatalf("expected container error, got %v", err)
	}
}

func TestThreads_ContainerFlowAndPermalinkBestEffort(t *testing.T) {
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		if r.URL.Host != "graph.threads.net" {
			t.Fatalf("unexpected host %s", r.URL.Host)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1.0/acct1/threads":
			form := readForm(t, r)
			if form.Get("media_type") != "IMAGE" || form.Get("text") != "hello" || form.Get("image_url") == "" {
				t.Fatalf("unexpected threads form %v", form)
			}
			return httpJSON(200, `{"id":"tc1"}`, nil), nil
		case r.Method == http.MethodGet && r.URL.Path == "/v1.0/tc1":
			if !strings.Contains(r.URL.RawQuery, "fields=status") {
				t.Fatalf("threads polls the status field, got %q", r.URL.RawQuery)
			}
			return httpJSON(200, `{"status":"FINISHED"}`, nil), nil
		case r.Method == http.MethodPost && r.URL.Path == "/v1.0/acct1/threads_publish":
			return httpJSON(200, `{"id":"t99"}`, nil), nil
		case r.Method == http.MethodGet && r.URL.Path == "/v1.0/t99":
			return httpJSON(500, `{"error":{"message":"temporarily unavailable"}}`, nil), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		return nil, nil
	}}}
	pub, _ := For(containerConfig(models.PlatformThreads, time.Minute), Deps{Client: client})
	post, err := pub.Publish(context.Background(), socialpublish.Request{Text: "hello", ImageURL: "https://img/1.png"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if post.ID != "t99" || post.URL != "" {
		t.Fatalf("unexpected post %+v", post)
	}
}

func TestFacebook_PhotoAndFeed(t *testing.T) {
	var lastPath string
	var lastForm url.Values
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		lastPath = r.URL.Path
		lastForm = readForm(t, r)
		if r.URL.Path == "/v18.0/acct1/photos" {
			return httpJSON(200, `{"id":"photo1","post_id":"acct1_555"}`, nil), nil
		}
		return httpJSON(200, `{"id":"acct1_777"}`, nil), nil
	}}}
	cfg := auth.ResolvedAuthConfig{Platform: models.PlatformFacebook, Mode: auth.ModeAPIKey, Enabled: true, APIKey: &auth.APIKeyCredentials{AccessToken: "ptok", AccountID: "acct1"}}
	pub, _ := For(cfg, Deps{Client: client})

	post, err := pub.Publish(context.Background(), socialpublish.Request{Text: "cap", ImageURL: "https://img/1.png"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if post.ID != "acct1_555" || post.URL != "https://www.facebook.com/acct1_555" {
		t.Fatalf("unexpected post %+v", post)
	}
	if lastForm.Get("url") != "https://img/1.png" || lastForm.Get("caption") != "cap" || lastForm.Get("access_token") != "ptok" {
		t.Fatalf("unexpected photo form %v", lastForm)
	}

	post, err = pub.Publish(context.Background(), socialpublish.Request{Text: "cap", QuoteURL: "https://site/quotes/1"})
	if err != nil {
		t.Fatalf("Publish feed: %v", err)
	}
	if lastPath != "/v18.0/acct1/feed" || lastForm.Get("link") != "https://site/quotes/1" || post.ID != "acct1_777" {
		t.Fatalf("unexpected feed call path=%s form=%v post=%+v", lastPath, lastForm, post)
	}
}

func TestFacebook_NetworkError(t *testing.T) {
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}}}
	cfg := auth.ResolvedAuthConfig{Platform: models.PlatformFacebook, Mode: auth.ModeAPIKey, Enabled: true, APIKey: &auth.APIKeyCredentials{AccessToken: "ptok", AccountID: "acct1"}}
	pub, _ := For(cfg, Deps{Client: client})
	_, err := pub.Publish(context.Background(), socialpublish.Request{Text: "cap", ImageURL: "https://img/1.png"})
	if socialpublish.KindOf(err) != socialpublish.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestPinterest_CreatesPin(t *testing.T) {
	var payload map[string]any
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		if r.URL.String() != "https://api-sandbox.pinterest.com/v5/pins" {
			t.Fatalf("unexpected url %s", r.URL)
		}
		if r.Header.Get("Authorization") != "Bearer ptok" {
			t.Fatalf("unexpected auth %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		return httpJSON(201, `{"id":"pin42"}`, nil), nil
	}}}
	cfg := auth.ResolvedAuthConfig{Platform: models.PlatformPinterest, Mode: auth.ModeBearer, Enabled: true,
		Bearer:  &auth.BearerCredentials{Token: "ptok"},
		Options: auth.PublishOptions{BoardID: "board1", APIBase: "https://api-sandbox.pinterest.com", APIVersion: "v5"}}
	pub, _ := For(cfg, Deps{Client: client})
	post, err := pub.Publish(context.Background(), socialpublish.Request{Text: "“Be yourself.”\n— Oscar Wilde", QuoteURL: "https://site/quotes/42", ImageURL: "https://img/42.png"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if post.ID != "pin42" || post.URL != "https://www-sandbox.pinterest.com/pin/pin42/" {
		t.Fatalf("unexpected post %+v", post)
	}
	if payload["board_id"] != "board1" || payload["title"] != "Be yourself." || payload["link"] != "https://site/quotes/42" {
		t.Fatalf("unexpected payload %v", payload)
	}
	src := payload["media_source"].(map[string]any)
	if src["source_type"] != "image_url" || src["url"] != "https://img/42.png" {
		t.Fatalf("unexpected media_source %v", src)
	}
}

func TestPinterest_APIError(t *testing.T) {
	client := &http.Client{Transport: stubTransport{fn: func(r *http.Request) (*http.Response, error) {
		return httpJSON(404, `{"code":2,"message":"Board not found."}`, nil), nil
	}}}
	cfg := auth.ResolvedAuthConfig{Platform: models.PlatformPinterest, Mode: auth.ModeBearer, Enabled: true,
		Bearer: &auth.BearerCredentials{Token: "ptok"}, Options: auth.PublishOptions{BoardID: "nope"}}
	pub, _ := For(cfg, Deps{Client: client})
	_, err := pub.Publish(context.Background(), socialpublish.Request{Text: "t", ImageURL: "https://img/1.png"})
	if err == nil || err.Error() != "pinterest pin: api error (status 404): Board not found." {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := pub.Publish(context.Background(), socialpublish.Request{Text: "t"}); socialpublish.KindOf(err) != socialpublish.KindPrecondition {
		t.Fatalf("expected precondition error without image, got %v", err)
	}
}
