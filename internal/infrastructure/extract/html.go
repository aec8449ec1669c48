package extract

import (
	"strings"

	"github.com/shoplens/backend/internal/domain"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// matcher is a predicate over element nodes
type matcher func(n *html.Node) bool

func tagIs(tags ...atom.Atom) matcher {
	return func(n *html.Node) bool {
		for _, t := range tags {
			if n.DataAtom == t {
				return true
			}
		}
		return false
	}
}

func classContains(parts ...string) matcher {
	return func(n *html.Node) bool {
		class := strings.ToLower(attr(n, "class"))
		if class == "" {
			return false
		}
		for _, p := range parts {
			if strings.Contains(class, p) {
				return true
			}
		}
		return false
	}
}

func hasAttr(key string) matcher {
	return func(n *html.Node) bool {
		_, ok := lookupAttr(n, key)
		return ok
	}
}

func anyOf(ms ...matcher) matcher {
	return func(n *html.Node) bool {
		for _, m := range ms {
			if m(n) {
				return true
			}
		}
		return false
	}
}

var (
	containerMatcher = anyOf(
		classContains("product-card", "product-item", "product-tile", "product"),
		tagIs(atom.Article),
		hasAttr("data-product-id"),
	)
	fallbackContainerMatcher = tagIs(atom.Li)

	titleMatchers = []matcher{
		tagIs(atom.H2, atom.H3, atom.H4),
		classContains("title"),
		classContains("name", "pdp-link"),
	}

	// tried in order; the first element that yields a positive price wins
	priceMatchers = []matcher{
		hasAttr("data-price"),
		classContains("price"),
		classContains("amount"),
		classContains("money"),
	}

	descriptionMatchers = []matcher{
		classContains("description"),
		classContains("desc"),
		classContains("subtitle"),
		classContains("detail"),
		classContains("info"),
		tagIs(atom.P),
	}

	brandMatcher  = classContains("brand", "designer")
	ratingMatcher = anyOf(hasAttr("data-rating"), classContains("rating", "stars"))
	reviewMatcher = anyOf(hasAttr("data-review-count"), classContains("review-count", "reviews", "ratings-count"))
)

// extractHTML walks the DOM for product containers and reads each one
// through ordered field selectors.
func extractHTML(content string, src domain.SourceDescriptor) []domain.RawListing {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil
	}

	containers := findAll(doc, containerMatcher)
	if len(containers) == 0 {
		containers = findAll(doc, fallbackContainerMatcher)
	}

	var out []domain.RawListing
	for _, c := range containers {
		if l, ok := readContainer(c); ok {
			out = append(out, l)
		}
	}
	return out
}

func readContainer(c *html.Node) (domain.RawListing, bool) {
	var titleEl *html.Node
	var title string
	for _, m := range titleMatchers {
		if el := findFirst(c, m); el != nil {
			if text := textContent(el); text != "" {
				titleEl, title = el, text
				break
			}
		}
	}
	if titleEl == nil {
		return domain.RawListing{}, false
	}

	var price float64
	for _, m := range priceMatchers {
		el := findFirst(c, m)
		if el == nil {
			continue
		}
		text := attr(el, "data-price")
		if text == "" {
			text = attr(el, "content")
		}
		if text == "" {
			text = textContent(el)
		}
		if price = ParsePrice(text); price > 0 {
			break
		}
	}
	if price <= 0 {
		return domain.RawListing{}, false
	}

	link := productLink(c)
	if link == "" {
		return domain.RawListing{}, false
	}

	l := domain.RawListing{
		Title:      title,
		Price:      price,
		ProductURL: link,
		ImageURL:   imageSource(c),
	}

	for _, m := range descriptionMatchers {
		el := findFirst(c, m)
		if el == nil || el == titleEl {
			continue
		}
		text := textContent(el)
		if len(text) > 10 && !strings.EqualFold(text, title) {
			l.Description = text
			break
		}
	}

	if el := findFirst(c, brandMatcher); el != nil {
		l.Brand = textContent(el)
	}
	if el := findFirst(c, ratingMatcher); el != nil {
		l.Rating = ratingValue(el)
	}
	if el := findFirst(c, reviewMatcher); el != nil {
		l.ReviewCount = reviewValue(el)
	}

	return l, true
}

// productLink returns the first usable anchor href in the container
func productLink(c *html.Node) string {
	first := findFirst(c, func(n *html.Node) bool {
		return n.DataAtom == atom.A && attr(n, "href") != ""
	})
	if first != nil {
		href := attr(first, "href")
		if !strings.HasPrefix(href, "#") && !strings.Contains(strings.ToLower(href), "javascript") {
			return href
		}
	}
	alt := findFirst(c, func(n *html.Node) bool {
		return n.DataAtom == atom.A && strings.Contains(attr(n, "href"), "/")
	})
	if alt == nil {
		return ""
	}
	return attr(alt, "href")
}

func imageSource(c *html.Node) string {
	img := findFirst(c, tagIs(atom.Img))
	if img == nil {
		return ""
	}
	for _, key := range []string{"src", "data-src", "data-lazy-src"} {
		if v := strings.TrimSpace(attr(img, key)); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

func ratingValue(el *html.Node) *float64 {
	for _, text := range []string{attr(el, "data-rating"), attr(el, "aria-label"), attr(el, "content"), textContent(el)} {
		if v, ok := parseNumber(text); ok && v > 0 && v <= 5 {
			return &v
		}
	}
	return nil
}

// reviewValue reads the last integer of the text, so "4.5 (120)" yields 120
func reviewValue(el *html.Node) *int {
	for _, text := range []string{attr(el, "data-review-count"), attr(el, "aria-label"), textContent(el)} {
		if n, ok := lastInteger(text); ok {
			return &n
		}
	}
	return nil
}

// findAll returns every element below root matching m, in document order
func findAll(root *html.Node, m matcher) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && m(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

// findFirst returns the first descendant of root matching m
func findFirst(root *html.Node, m matcher) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && m(c) {
			return c
		}
		if found := findFirst(c, m); found != nil {
			return found
		}
	}
	return nil
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

// textContent joins the visible text below n, skipping script and style
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpace(b.String())
}
