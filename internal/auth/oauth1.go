package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OAuth1Credentials are the four secrets of an OAuth 1.0a user-context grant.
type OAuth1Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
}

func (c OAuth1Credentials) complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.Token != "" && c.TokenSecret != ""
}

// OAuth1Signer produces Authorization headers. Nonce and Now are replaceable for tests.
type OAuth1Signer struct {
	Credentials OAuth1Credentials
	Nonce       func() string
	Now         func() time.Time
}

// Header signs a request. extra carries form-encoded body parameters (nil for JSON or multipart bodies).
func (s OAuth1Signer) Header(method, rawURL string, extra url.Values) (string, error) {
	nonce := ""
	if s.Nonce != nil {
		nonce = s.Nonce()
	} else {
		nonce = randomNonce()
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	h, _, err := SignOAuth1(method, rawURL, extra, s.Credentials, nonce, now().Unix())
	return h, err
}

// SignOAuth1 is the pure HMAC-SHA1 signing routine. It returns the Authorization header and the raw signature.
func SignOAuth1(method, rawURL string, extra url.Values, creds OAuth1Credentials, nonce string, timestamp int64) (header string, signature string, err error) {
	oauthParams := map[string]string{
		"oauth_consumer_key":     creds.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(timestamp, 10),
		"oauth_token":            creds.Token,
		"oauth_version":          "1.0",
	}

	base, err := oauth1BaseString(method, rawURL, extra, oauthParams)
	if err != nil {
		return "", "", err
	}
	key := percentEncode(creds.ConsumerSecret) + "&" + percentEncode(creds.TokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	_, _ = mac.Write([]byte(base))
	signature = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	oauthParams["oauth_signature"] = signature
	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, percentEncode(k), percentEncode(oauthParams[k])))
	}
	return "OAuth " + strings.Join(pairs, ", "), signature, nil
}

type encodedParam struct{ k, v string }

func oauth1BaseString(method, rawURL string, extra url.Values, oauthParams map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("oauth1: parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("oauth1: url %q must be absolute", rawURL)
	}

	params := make([]encodedParam, 0, len(oauthParams)+len(extra))
	for k, v := range oauthParams {
		params = append(params, encodedParam{percentEncode(k), percentEncode(v)})
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			params = append(params, encodedParam{percentEncode(k), percentEncode(v)})
		}
	}
	for k, vs := range extra {
		for _, v := range vs {
			params = append(params, encodedParam{percentEncode(k), percentEncode(v)})
		}
	}
	sort.Slice(params, func(i, j int) bool {
		if params[i].k != params[j].k {
			return params[i].k < params[j].k
		}
		return params[i].v < params[j].v
	})
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, p.k+"="+p.v)
	}

	return strings.ToUpper(method) + "&" + percentEncode(normalizeBaseURL(u)) + "&" + percentEncode(strings.Join(pairs, "&")), nil
}

// normalizeBaseURL lowercases scheme and host, drops default ports, and strips query and fragment.
func normalizeBaseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" {
		if !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
			host += ":" + port
		}
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// percentEncode implements RFC 3986 encoding: only ALPHA / DIGIT / "-" / "." / "_" / "~" pass through.
func percentEncode(s string) string {
	const hexUpper = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexUpper[c>>4])
		b.WriteByte(hexUpper[c&0x0f])
	}
	return b.String()
}

func randomNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}
