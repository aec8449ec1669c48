package usecase

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
	"github.com/shoplens/backend/internal/infrastructure/extract"
)

// Safety valve thresholds. When filtering leaves fewer than
// MinFilteredResults of more than MinFilteredResults linked inputs, the
// filter is abandoned and the first LoosenedPrefix linked inputs are
// returned instead. Linked inputs are those with an absolute product URL;
// the rest are dropped before the valve counts anything.
const (
	MinFilteredResults = 5
	LoosenedPrefix     = 30
)

// categorySynonyms maps a category to the keywords that identify it in a
// listing title or description
var categorySynonyms = map[string][]string{
	"jeans":       {"jeans", "jean", "denim", "pants", "trousers"},
	"t-shirts":    {"t-shirt", "t-shirts", "tshirt", "tee", "tees", "shirt", "top"},
	"dresses":     {"dress", "dresses", "gown", "sundress", "frock"},
	"shoes":       {"shoes", "shoe", "sneakers", "sneaker", "boots", "boot", "sandals", "heels", "loafers", "trainers", "footwear"},
	"jackets":     {"jacket", "jackets", "coat", "coats", "blazer", "parka", "windbreaker", "puffer", "outerwear"},
	"sweaters":    {"sweater", "sweaters", "hoodie", "cardigan", "pullover", "sweatshirt", "jumper", "knit"},
	"shorts":      {"shorts", "short"},
	"skirts":      {"skirt", "skirts"},
	"activewear":  {"activewear", "leggings", "joggers", "sweatpants", "sports bra", "athletic", "workout", "yoga", "running", "training"},
	"accessories": {"accessory", "accessories", "sunglasses", "belt", "hat", "cap", "scarf", "jewelry", "necklace", "bracelet", "earrings", "handbag", "bag", "wallet", "watch"},
	"earbuds":     {"earbuds", "earphones", "in-ear", "buds"},
	"headphones":  {"headphones", "headphone", "headset", "over-ear", "on-ear"},
	"laptops":     {"laptop", "notebook", "macbook", "chromebook"},
	"phones":      {"phone", "smartphone", "iphone", "galaxy", "pixel"},
	"tablets":     {"tablet", "ipad"},
	"monitors":    {"monitor", "display"},
	"keyboards":   {"keyboard"},
	"mice":        {"mouse", "mice"},
	"cameras":     {"camera", "dslr", "mirrorless", "webcam"},
	"speakers":    {"speaker", "speakers", "soundbar"},
}

// accessoryTerms mark listings that are accessories rather than garments
var accessoryTerms = []string{
	"sunglasses", "belt", "belts", "jewelry", "necklace", "bracelet", "earrings", "ring", "rings",
	"watch", "wallet", "keychain", "handbag", "purse", "tote", "socks", "hat", "beanie", "scarf",
	"gift card", "phone case",
}

// queryStopWords are ignored when deriving keywords from the raw query
var queryStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "for": true, "with": true,
	"in": true, "on": true, "of": true, "to": true, "my": true, "me": true, "i": true,
	"under": true, "below": true, "over": true, "above": true, "less": true, "more": true,
	"than": true, "up": true, "at": true, "least": true, "best": true, "good": true,
	"cheap": true, "new": true, "buy": true, "want": true, "need": true, "looking": true,
	"show": true, "find": true, "some": true, "something": true,
}

// RelevanceFilter drops candidates that contradict the query's category,
// gender or accessory constraints
type RelevanceFilter struct {
	logger zerolog.Logger
}

// NewRelevanceFilter creates a new relevance filter
func NewRelevanceFilter(logger zerolog.Logger) *RelevanceFilter {
	return &RelevanceFilter{logger: logger}
}

// Filter keeps candidates that match the intent. Listings without an
// absolute http(s) product URL are never kept, not even when the safety
// valve loosens the result, so the valve's N is the linked count.
func (f *RelevanceFilter) Filter(candidates []domain.RawListing, intent domain.QueryIntent) []domain.RawListing {
	linked := make([]domain.RawListing, 0, len(candidates))
	for _, c := range candidates {
		if extract.IsAbsoluteHTTPURL(c.ProductURL) {
			linked = append(linked, c)
		}
	}
	if len(linked) == 0 {
		return nil
	}

	keywords := targetKeywords(intent)
	excluded := excludedGenderTerms(intent.Gender)
	blockAccessories := !wantsAccessories(intent)

	kept := make([]domain.RawListing, 0, len(linked))
	for _, c := range linked {
		text := normalizeTerms(c.Title + " " + c.Description)
		if len(keywords) > 0 && !hasAnyTerm(text, keywords) {
			continue
		}
		if len(excluded) > 0 && hasAnyTerm(text, excluded) {
			continue
		}
		if blockAccessories && hasAnyTerm(normalizeTerms(c.Title), accessoryTerms) {
			continue
		}
		kept = append(kept, c)
	}

	if len(kept) < MinFilteredResults && len(linked) > MinFilteredResults {
		n := len(linked)
		if n > LoosenedPrefix {
			n = LoosenedPrefix
		}
		f.logger.Debug().
			Int("input", len(candidates)).
			Int("linked", len(linked)).
			Int("kept", len(kept)).
			Int("returned", n).
			Msg("Relevance filter too strict, loosening")
		return linked[:n]
	}

	f.logger.Debug().Int("input", len(linked)).Int("kept", len(kept)).Msg("Relevance filter applied")
	return kept
}

// targetKeywords derives the category keywords, or the meaningful words of
// the raw query when no category was recognized
func targetKeywords(intent domain.QueryIntent) []string {
	if intent.Category != "" {
		if synonyms, ok := categorySynonyms[intent.Category]; ok {
			return synonyms
		}
		return []string{intent.Category}
	}

	var keywords []string
	for _, word := range strings.Fields(normalizeTerms(intent.RawText)) {
		word = strings.Trim(word, "'-")
		if len(word) < 3 || queryStopWords[word] || isGenderTerm(word) || strings.IndexFunc(word, isDigit) >= 0 {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}

// excludedGenderTerms returns the keywords of the opposite adult gender.
// Kids listings are never excluded by an adult constraint.
func excludedGenderTerms(g domain.Gender) []string {
	switch g {
	case domain.GenderMen:
		return genderTerms[domain.GenderWomen]
	case domain.GenderWomen:
		return genderTerms[domain.GenderMen]
	}
	return nil
}

func wantsAccessories(intent domain.QueryIntent) bool {
	if intent.Category == "accessories" {
		return true
	}
	return hasAnyTerm(normalizeTerms(intent.RawText), accessoryTerms)
}

func isGenderTerm(word string) bool {
	for _, terms := range genderTerms {
		for _, t := range terms {
			if t == word {
				return true
			}
		}
	}
	return false
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
