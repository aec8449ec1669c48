package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
)

// Compiled budget patterns
var (
	// Matches "under $50", "below 80", "less than $1,200", "up to 99.99"
	budgetUnderPattern = regexp.MustCompile(`(?:under|below|less than|up to)\s*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`)

	// Matches "over $30", "above 20", "more than $100", "at least 40"
	budgetOverPattern = regexp.MustCompile(`(?:over|above|more than|at least)\s*\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`)

	// Matches "$20 to $40" and "20-40", capturing a preceding size or age
	// word and whether either side carries a dollar sign
	budgetRangePattern = regexp.MustCompile(`(?:\b(sizes?|ages?|aged|waist|inseam|length|years?)\s+)?(\$)?(\d+(?:,\d{3})*(?:\.\d{2})?)\s*(?:to|-)\s*(\$)?(\d+(?:,\d{3})*(?:\.\d{2})?)`)
)

type categoryKeywords struct {
	category string
	keywords []string
}

// categoryTable is checked in order; the first category with a matching
// keyword wins, so narrower garments come before broader ones.
var categoryTable = []categoryKeywords{
	{"activewear", []string{"activewear", "leggings", "yoga pants", "sports bra", "joggers", "sweatpants", "workout", "athletic wear", "gym wear"}},
	{"dresses", []string{"dress", "dresses", "gown", "sundress", "maxi dress"}},
	{"skirts", []string{"skirt", "skirts"}},
	{"shorts", []string{"shorts"}},
	{"jeans", []string{"jeans", "jean"}},
	{"t-shirts", []string{"t-shirt", "t-shirts", "tshirt", "tshirts", "tee", "tees"}},
	{"sweaters", []string{"sweater", "sweaters", "hoodie", "hoodies", "cardigan", "pullover", "sweatshirt", "jumper"}},
	{"jackets", []string{"jacket", "jackets", "coat", "coats", "blazer", "parka", "windbreaker", "puffer"}},
	{"shoes", []string{"shoes", "shoe", "sneakers", "sneaker", "boots", "boot", "sandals", "heels", "loafers", "trainers"}},
	{"accessories", []string{"accessories", "accessory", "sunglasses", "belt", "belts", "hat", "hats", "scarf", "jewelry", "necklace", "bracelet", "earrings", "handbag", "wallet"}},

	{"earbuds", []string{"earbuds", "earphones", "in-ear", "wireless earbuds", "tws"}},
	{"headphones", []string{"headphones", "over-ear", "on-ear"}},
	{"laptops", []string{"laptop", "notebook", "macbook", "chromebook"}},
	{"phones", []string{"phone", "smartphone", "iphone", "android"}},
	{"tablets", []string{"tablet", "ipad"}},
	{"monitors", []string{"monitor", "display"}},
	{"keyboards", []string{"keyboard", "mechanical keyboard"}},
	{"mice", []string{"mouse", "gaming mouse"}},
	{"cameras", []string{"camera", "dslr", "mirrorless", "webcam"}},
	{"speakers", []string{"speaker", "bluetooth speaker", "soundbar"}},
}

var featureKeywords = []string{
	// fit and cut
	"slim fit", "skinny", "straight leg", "relaxed fit", "bootcut", "high waisted", "high-rise", "oversized", "cropped", "stretch",
	// materials
	"cotton", "organic cotton", "linen", "wool", "cashmere", "leather", "vegan leather", "denim", "recycled",
	// properties
	"waterproof", "water resistant", "breathable", "lightweight", "insulated", "vintage",
	// electronics
	"wireless", "bluetooth", "noise cancelling", "anc", "long battery", "fast charging", "usb-c", "portable", "gaming",
	"professional", "studio", "compact",
	// price sentiment
	"premium", "budget", "affordable", "high-end",
}

type brandKeyword struct {
	term string
	name string
}

var brandKeywords = []brandKeyword{
	{"levi's", "Levi's"}, {"levis", "Levi's"}, {"levi", "Levi's"},
	{"wrangler", "Wrangler"}, {"nike", "Nike"}, {"adidas", "Adidas"}, {"puma", "Puma"},
	{"under armour", "Under Armour"}, {"lululemon", "Lululemon"}, {"gap", "Gap"},
	{"uniqlo", "Uniqlo"}, {"zara", "Zara"}, {"h&m", "H&M"}, {"patagonia", "Patagonia"},
	{"north face", "North Face"}, {"columbia", "Columbia"}, {"ralph lauren", "Ralph Lauren"},
	{"tommy hilfiger", "Tommy Hilfiger"}, {"calvin klein", "Calvin Klein"}, {"madewell", "Madewell"},
	{"everlane", "Everlane"}, {"reformation", "Reformation"}, {"new balance", "New Balance"},
	{"converse", "Converse"}, {"vans", "Vans"},

	{"apple", "Apple"}, {"sony", "Sony"}, {"samsung", "Samsung"}, {"bose", "Bose"},
	{"sennheiser", "Sennheiser"}, {"jabra", "Jabra"}, {"anker", "Anker"}, {"jbl", "JBL"},
	{"beats", "Beats"}, {"audio-technica", "Audio-Technica"}, {"logitech", "Logitech"},
	{"razer", "Razer"}, {"corsair", "Corsair"}, {"dell", "Dell"}, {"hp", "HP"},
	{"lenovo", "Lenovo"}, {"asus", "Asus"}, {"acer", "Acer"}, {"microsoft", "Microsoft"},
	{"google", "Google"}, {"oneplus", "OnePlus"},
}

var genderTerms = map[domain.Gender][]string{
	domain.GenderMen:    {"men", "men's", "mens", "man", "man's", "male", "guys", "for him"},
	domain.GenderWomen:  {"women", "women's", "womens", "woman", "woman's", "female", "ladies", "lady", "for her"},
	domain.GenderKids:   {"kids", "kid", "kid's", "kids'", "children", "children's", "child", "boys", "girls", "toddler", "baby", "youth"},
	domain.GenderUnisex: {"unisex", "gender neutral", "all genders"},
}

// IntentParser turns free-text queries into structured intents
type IntentParser struct {
	logger zerolog.Logger
}

// NewIntentParser creates a new intent parser
func NewIntentParser(logger zerolog.Logger) *IntentParser {
	return &IntentParser{logger: logger}
}

// Parse extracts category, budget, features, brands and gender from query.
// The result is normalized, so contradictory budgets are dropped.
func (p *IntentParser) Parse(query string) domain.QueryIntent {
	raw := strings.TrimSpace(query)
	lower := strings.ToLower(raw)
	terms := normalizeTerms(raw)

	intent := domain.QueryIntent{
		RawText:          raw,
		Category:         parseCategory(terms),
		Features:         parseFeatures(terms),
		BrandPreferences: parseBrands(terms),
		Gender:           parseGender(terms),
	}
	intent.BudgetMin, intent.BudgetMax = parseBudget(lower)
	intent = intent.Normalize()

	p.logger.Debug().
		Str("query", raw).
		Str("category", intent.Category).
		Str("gender", string(intent.Gender)).
		Strs("features", intent.Features).
		Strs("brands", intent.BrandPreferences).
		Msg("Parsed query intent")

	return intent
}

func parseCategory(terms string) string {
	for _, entry := range categoryTable {
		if hasAnyTerm(terms, entry.keywords) {
			return entry.category
		}
	}
	return ""
}

// parseBudget applies the under and over patterns, then lets the first
// price range override both. A range with a dollar sign is always a price.
// A bare range like "8-10" is skipped after a size or age word, or when an
// under or over amount was given.
func parseBudget(lower string) (lo, hi *float64) {
	explicit := false
	if m := budgetUnderPattern.FindStringSubmatch(lower); m != nil {
		hi = parseAmount(m[1])
		explicit = true
	}
	if m := budgetOverPattern.FindStringSubmatch(lower); m != nil {
		lo = parseAmount(m[1])
		explicit = true
	}
	for _, m := range budgetRangePattern.FindAllStringSubmatch(lower, -1) {
		dollar := m[2] != "" || m[4] != ""
		if !dollar && (m[1] != "" || explicit) {
			continue
		}
		if from, to := parseAmount(m[3]), parseAmount(m[5]); from != nil && to != nil {
			lo, hi = from, to
		}
		break
	}
	return lo, hi
}

func parseAmount(s string) *float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseFeatures(terms string) []string {
	var features []string
	for _, f := range featureKeywords {
		if hasTerm(terms, f) {
			features = append(features, f)
		}
	}
	return features
}

func parseBrands(terms string) []string {
	var brands []string
	for _, b := range brandKeywords {
		if hasTerm(terms, b.term) {
			brands = append(brands, b.name)
		}
	}
	return brands
}

func parseGender(terms string) domain.Gender {
	if hasAnyTerm(terms, genderTerms[domain.GenderUnisex]) {
		return domain.GenderUnisex
	}
	if hasAnyTerm(terms, genderTerms[domain.GenderKids]) {
		return domain.GenderKids
	}
	men := hasAnyTerm(terms, genderTerms[domain.GenderMen])
	women := hasAnyTerm(terms, genderTerms[domain.GenderWomen])
	switch {
	case men && women:
		return domain.GenderUnisex
	case women:
		return domain.GenderWomen
	case men:
		return domain.GenderMen
	}
	return domain.GenderNone
}
