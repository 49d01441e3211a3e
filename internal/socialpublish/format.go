package socialpublish

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PortNumber53/quote-autopost/internal/models"
)

const (
	ellipsis        = "…"
	maxHashtags     = 30
	urlMinFloor     = 30
	hashtagMinFloor = 60
)

var defaultHashtags = []string{"quotes", "quoteoftheday", "inspiration", "wisdom"}

// MaxLength is the character budget for a post on p.
func MaxLength(p models.Platform) int {
	switch p {
	case models.PlatformX:
		return 280
	case models.PlatformThreads:
		return 500
	case models.PlatformFacebook:
		return 5000
	case models.PlatformInstagram:
		return 2200
	default:
		return 300
	}
}

// Attribution joins the non-empty names with " · " behind an em-dash. Both empty yields "".
func Attribution(authorName, referenceName string) string {
	names := make([]string, 0, 2)
	for _, n := range []string{authorName, referenceName} {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "— " + strings.Join(names, " · ")
}

// Hashtags lowercases, strips non-alphanumerics, dedupes, and caps the list at 30.
func Hashtags(words ...string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(words))
	for _, w := range words {
		var b strings.Builder
		for _, r := range strings.ToLower(w) {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		tag := b.String()
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, "#"+tag)
		if len(out) == maxHashtags {
			break
		}
	}
	return out
}

// BuildPostText composes the quote, attribution and either the quote URL or, on Instagram,
// a hashtag block, truncating only the quote text to fit MaxLength(p).
func BuildPostText(p models.Platform, quoteText, authorName, referenceName, quoteURL string) string {
	quote := stripQuoteMarks(quoteText)
	attribution := Attribution(authorName, referenceName)

	if p == models.PlatformInstagram {
		suffix := ""
		if attribution != "" {
			suffix = "\n" + attribution
		}
		words := append([]string{authorName, referenceName}, defaultHashtags...)
		if tags := Hashtags(words...); len(tags) > 0 {
			suffix += "\n\n" + strings.Join(tags, " ")
		}
		return fit(quote, suffix, MaxLength(p), hashtagMinFloor, true)
	}

	tail := make([]string, 0, 2)
	if attribution != "" {
		tail = append(tail, attribution)
	}
	if u := strings.TrimSpace(quoteURL); u != "" {
		tail = append(tail, u)
	}
	suffix := ""
	if len(tail) > 0 {
		suffix = "\n" + strings.Join(tail, "\n")
	}
	return fit(quote, suffix, MaxLength(p), urlMinFloor, false)
}

func wrapQuote(s string) string { return "“" + s + "”" }

// fit keeps suffix verbatim and shortens quote. The floor keeps very short budgets readable,
// but never at the cost of exceeding max.
func fit(quote, suffix string, max, floor int, wordWrap bool) string {
	full := wrapQuote(quote) + suffix
	if runeLen(full) <= max {
		return full
	}
	reserved := runeLen(suffix)
	budget := max - reserved - 4
	if budget < floor {
		budget = floor
	}
	out := wrapQuote(cutRunes(quote, budget, wordWrap)+ellipsis) + suffix
	if runeLen(out) <= max {
		return out
	}

	budget = max - reserved - 4
	if budget > 0 {
		return wrapQuote(cutRunes(quote, budget, wordWrap)+ellipsis) + suffix
	}
	// The fixed parts alone do not fit; hard-cut the whole post.
	return cutRunes(full, max-1, false) + ellipsis
}

func cutRunes(s string, n int, wordWrap bool) string {
	if n <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	cut := rs[:n]
	if wordWrap {
		for i := len(cut) - 1; i > n/2; i-- {
			if unicode.IsSpace(cut[i]) {
				cut = cut[:i]
				break
			}
		}
	}
	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':'
	})
}

func stripQuoteMarks(s string) string {
	s = strings.TrimSpace(s)
	for _, pair := range [][2]string{{"“", "”"}, {`"`, `"`}, {"«", "»"}} {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			s = strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
			break
		}
	}
	return s
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
