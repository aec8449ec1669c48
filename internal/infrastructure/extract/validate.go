package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/shoplens/backend/internal/domain"
)

// Navigational and marketing phrases that never name a product
var skipPhrases = []string{
	"sign in", "cart", "menu", "home", "account", "search", "filter",
	"login", "register", "wishlist", "help", "contact", "about",
	"shipping", "returns", "privacy", "terms", "newsletter", "subscribe",
	"shop all", "view all", "see more", "load more", "next", "previous",
	"image", "logo", "icon", "banner", "header", "footer", "nav",
	"disclaimer", "modal", "popup",
	"buy more", "save more", "new arrivals", "what's hot",
	"shop by", "best sellers", "trending", "sale shop",
	"you searched for", "search results", "no results", "top rated",
	"best seller", "most popular", "recently viewed", "recommended",
	"quick view", "add to cart", "add to bag", "size guide",
	"free shipping", "free returns", "customer reviews",
}

var skipPattern = buildPhrasePattern(skipPhrases)

// Titles that name a page or category rather than a product
var categoryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(men|women|kids|sale|new|clearance|featured|shop)$`),
	regexp.MustCompile(`^\w+\s+(clothing|shoes|accessories|collection)$`),
	regexp.MustCompile(`^(all|view all|see all|shop now|browse)\b`),
}

const (
	minTitleWords       = 2
	maxTitleWords       = 15
	minFingerprintChars = 10
)

func buildPhrasePattern(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
}

// validTitle applies the shared product-title rules
func validTitle(title string) bool {
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "" {
		return false
	}
	if skipPattern.MatchString(lower) {
		return false
	}
	for _, p := range categoryPatterns {
		if p.MatchString(lower) {
			return false
		}
	}
	// URL- or code-like text
	if strings.Contains(lower, "http") || strings.ContainsAny(title, "%=") || strings.Contains(lower, "nlid") {
		return false
	}
	words := len(strings.Fields(title))
	if words < minTitleWords || words > maxTitleWords {
		return false
	}
	return len(domain.Fingerprint(title)) >= minFingerprintChars
}

// resolveURL makes ref absolute against the source origin, returning "" for
// anything that is not an http(s) URL.
func resolveURL(ref string, src domain.SourceDescriptor) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(strings.ToLower(ref), "javascript:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		base, err := url.Parse(src.BaseURL())
		if err != nil {
			return ""
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	return u.String()
}

// onSourceDomain reports whether rawURL belongs to the source's domain
func onSourceDomain(rawURL string, src domain.SourceDescriptor) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	dom := strings.ToLower(strings.TrimPrefix(src.Domain, "www."))
	return host == dom || strings.HasSuffix(host, "."+dom)
}

// IsAbsoluteHTTPURL reports whether s is an absolute http or https URL
func IsAbsoluteHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
