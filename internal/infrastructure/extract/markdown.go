package extract

import (
	"regexp"
	"strconv"

	"github.com/shoplens/backend/internal/domain"
)

var (
	markdownLinkPattern  = regexp.MustCompile(`\[([^\]]{15,100})\]\((https?://[^\s\)]+)\)`)
	markdownImagePattern = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^\s\)]+)\)`)
	markdownPricePattern = regexp.MustCompile(`\$(\d{2,4}(?:\.\d{2})?)`)
)

// Price search windows around a product link
const (
	priceWindowAfter  = 300
	priceWindowBefore = 100
	imageWindowBefore = 300
)

// extractMarkdown scans reader-proxy markdown for `[title](url)` spans with a
// dollar price nearby.
func extractMarkdown(content string, src domain.SourceDescriptor) []domain.RawListing {
	var out []domain.RawListing

	for _, m := range markdownLinkPattern.FindAllStringSubmatchIndex(content, -1) {
		start, end := m[0], m[1]
		// image embeds share the link syntax
		if start > 0 && content[start-1] == '!' {
			continue
		}

		title := content[m[2]:m[3]]
		link := content[m[4]:m[5]]

		price, ok := markdownPrice(content[end:min(len(content), end+priceWindowAfter)])
		if !ok {
			price, ok = markdownPrice(content[max(0, start-priceWindowBefore):start])
		}
		if !ok {
			continue
		}

		out = append(out, domain.RawListing{
			Title:      title,
			Price:      price,
			ProductURL: link,
			ImageURL:   nearestImage(content[max(0, start-imageWindowBefore):start]),
		})
	}

	return out
}

func markdownPrice(window string) (float64, bool) {
	m := markdownPricePattern.FindStringSubmatch(window)
	if m == nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// nearestImage returns the last image embed in window
func nearestImage(window string) string {
	all := markdownImagePattern.FindAllStringSubmatch(window, -1)
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1][1]
}
