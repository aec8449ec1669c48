package usecase

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
)

// Factor weights of the final score
const (
	weightPrice        = 0.30
	weightRating       = 0.25
	weightReviewVolume = 0.15
	weightSpecMatch    = 0.30
)

// Neutral scores for missing data
const (
	neutralPriceScore  = 50.0
	neutralRatingScore = 50.0
	missingReviewScore = 30.0
	unconstrainedSpec  = 70.0
	defaultMedianPrice = 100.0
)

// ScoringService ranks listings with a deterministic weighted score
type ScoringService struct {
	logger zerolog.Logger
}

// NewScoringService creates a new scoring service
func NewScoringService(logger zerolog.Logger) *ScoringService {
	return &ScoringService{logger: logger}
}

// Score computes every factor for each listing, sorts by final score
// descending (ties keep input order) and assigns ranks starting at 1.
func (s *ScoringService) Score(listings []domain.RawListing, intent domain.QueryIntent) []domain.ScoredListing {
	if len(listings) == 0 {
		return []domain.ScoredListing{}
	}

	median := medianPrice(listings)
	maxReviews := 0
	for _, l := range listings {
		if l.ReviewCount != nil && *l.ReviewCount > maxReviews {
			maxReviews = *l.ReviewCount
		}
	}

	scored := make([]domain.ScoredListing, len(listings))
	for i, l := range listings {
		scored[i] = domain.ScoredListing{
			RawListing: l,
			Scores:     scoreListing(l, intent, median, maxReviews),
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Scores.FinalScore > scored[b].Scores.FinalScore
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}

	s.logger.Debug().
		Int("listings", len(scored)).
		Float64("median_price", median).
		Float64("top_score", scored[0].Scores.FinalScore).
		Msg("Scored listings")

	return scored
}

func scoreListing(l domain.RawListing, intent domain.QueryIntent, median float64, maxReviews int) domain.ScoreBreakdown {
	var budget float64
	if intent.HasBudget() {
		budget = *intent.BudgetMax
	}

	price := priceScore(l.Price, budget, median)
	rating := ratingScore(l.Rating)
	reviews := reviewVolumeScore(l.ReviewCount, maxReviews)
	spec := specMatchScore(l, intent)

	final := price*weightPrice + rating*weightRating + reviews*weightReviewVolume + spec*weightSpecMatch

	return domain.ScoreBreakdown{
		PriceScore:        round1(price),
		RatingScore:       round1(rating),
		ReviewVolumeScore: round1(reviews),
		SpecMatchScore:    round1(spec),
		FinalScore:        round1(clamp(final)),
	}
}

// priceScore rewards cheaper listings, relative to the budget when one is
// set and to the median price of the set otherwise
func priceScore(price, budget, median float64) float64 {
	if price <= 0 {
		return neutralPriceScore
	}
	if budget > 0 {
		if price > budget {
			return clamp(100 - (price-budget)/budget*100)
		}
		return clamp(60 + (budget-price)/budget*40)
	}
	if median <= 0 {
		median = defaultMedianPrice
	}
	if price <= median {
		return clamp(70 + (median-price)/median*30)
	}
	return clamp(math.Max(30, 70-(price-median)/median*40))
}

// ratingScore maps 4..5 onto 70..100, 3..4 onto 50..70 and 0..3 onto 0..50
func ratingScore(rating *float64) float64 {
	if rating == nil || *rating <= 0 {
		return neutralRatingScore
	}
	r := *rating
	switch {
	case r >= 4:
		return clamp(70 + (r-4)*30)
	case r >= 3:
		return clamp(50 + (r-3)*20)
	default:
		return clamp(r * 50 / 3)
	}
}

// reviewVolumeScore is log scaled against the largest review count in the set
func reviewVolumeScore(count *int, maxReviews int) float64 {
	if count == nil || *count <= 0 {
		return missingReviewScore
	}
	logMax := 1.0
	if maxReviews > 0 {
		logMax = math.Log10(float64(maxReviews) + 1)
	}
	return clamp(100 * math.Log10(float64(*count)+1) / logMax)
}

// specMatchScore is the share of requested features and brands the listing
// mentions, mapped onto 50..100
func specMatchScore(l domain.RawListing, intent domain.QueryIntent) float64 {
	requested := len(intent.Features) + len(intent.BrandPreferences)
	if requested == 0 {
		return unconstrainedSpec
	}

	text := l.SearchText()
	brand := normalizeTerms(l.Brand)
	normalizedText := normalizeTerms(text)

	matched := 0
	for _, f := range intent.Features {
		if hasTerm(normalizedText, f) {
			matched++
		}
	}
	for _, b := range intent.BrandPreferences {
		if hasTerm(brand, b) || hasTerm(normalizedText, b) {
			matched++
		}
	}
	return clamp(50 + 50*float64(matched)/float64(requested))
}

func medianPrice(listings []domain.RawListing) float64 {
	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		if l.Price > 0 {
			prices = append(prices, l.Price)
		}
	}
	if len(prices) == 0 {
		return defaultMedianPrice
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return (prices[mid-1] + prices[mid]) / 2
	}
	return prices[mid]
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
