package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// RawListing is a product listing as extracted from a single source
type RawListing struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	SourceName  string    `json:"source_name"`
	Title       string    `json:"title"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"image_url,omitempty"`
	ProductURL  string    `json:"product_url"`
	Rating      *float64  `json:"rating,omitempty"`
	ReviewCount *int      `json:"review_count,omitempty"`
	Description string    `json:"description,omitempty"`
	Brand       string    `json:"brand,omitempty"`
	Category    string    `json:"category,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// ListingID derives a stable identifier from a product URL so repeated
// indexing of the same product overwrites the previous entry.
func ListingID(productURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(productURL)).String()
}

// Fingerprint returns the deduplication key for the listing title:
// lowercase with every non-word character removed.
func (l RawListing) Fingerprint() string {
	return Fingerprint(l.Title)
}

// Fingerprint normalizes a title into its deduplication key
func Fingerprint(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SearchText is the lowercased text used for keyword matching
func (l RawListing) SearchText() string {
	return strings.ToLower(l.Title + " " + l.Description)
}

// EmbeddingText is the text sent to the embedding capability when indexing
func (l RawListing) EmbeddingText() string {
	parts := []string{l.Title}
	if l.Brand != "" {
		parts = append(parts, l.Brand)
	}
	if l.Category != "" {
		parts = append(parts, l.Category)
	}
	if l.Description != "" {
		parts = append(parts, l.Description)
	}
	return strings.Join(parts, " ")
}

// ScoreBreakdown holds the per-factor scores of a listing, each in [0, 100]
type ScoreBreakdown struct {
	PriceScore        float64 `json:"price_score"`
	RatingScore       float64 `json:"rating_score"`
	ReviewVolumeScore float64 `json:"review_volume_score"`
	SpecMatchScore    float64 `json:"spec_match_score"`
	FinalScore        float64 `json:"final_score"`
}

// ScoredListing is a listing annotated with its score and rank
type ScoredListing struct {
	RawListing
	Scores ScoreBreakdown `json:"scores"`
	Rank   int            `json:"rank"`
}

// Float64Ptr returns a pointer to v
func Float64Ptr(v float64) *float64 { return &v }

// IntPtr returns a pointer to v
func IntPtr(v int) *int { return &v }
