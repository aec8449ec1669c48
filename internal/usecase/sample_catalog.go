package usecase

import (
	"strings"

	"github.com/shoplens/backend/internal/domain"
)

// SampleSourceID marks listings served from the built-in sample catalog
const SampleSourceID = "demo"

func sample(category, title, brand, description string, price, rating float64, reviews int) domain.RawListing {
	slug := strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(normalizeTerms(title)), "'", ""), " ", "-")
	url := "https://example.com/samples/" + slug
	return domain.RawListing{
		ID:          domain.ListingID(url),
		SourceID:    SampleSourceID,
		SourceName:  "Sample catalog",
		Title:       title,
		Price:       price,
		ImageURL:    "https://placehold.co/400x400?text=" + strings.ReplaceAll(title, " ", "+"),
		ProductURL:  url,
		Rating:      domain.Float64Ptr(rating),
		ReviewCount: domain.IntPtr(reviews),
		Description: description,
		Brand:       brand,
		Category:    category,
	}
}

var sampleCatalog = []domain.RawListing{
	sample("jeans", "Levi's 511 Slim Fit Men's Jeans", "Levi's", "Classic slim fit denim with stretch", 59.50, 4.6, 12400),
	sample("jeans", "Wrangler Relaxed Fit Men's Jeans", "Wrangler", "Durable cotton denim, relaxed through seat and thigh", 34.99, 4.5, 8800),
	sample("jeans", "Madewell High Rise Skinny Women's Jeans", "Madewell", "High-rise skinny jeans in stretch denim", 128.00, 4.4, 3100),
	sample("t-shirts", "Uniqlo Supima Cotton Crew Neck T-Shirt", "Uniqlo", "Soft supima cotton tee", 19.90, 4.7, 5400),
	sample("t-shirts", "Everlane Organic Cotton Box-Cut Tee", "Everlane", "Relaxed organic cotton t-shirt", 30.00, 4.3, 1200),
	sample("dresses", "Reformation Linen Midi Dress", "Reformation", "Breathable linen midi dress with tie straps", 218.00, 4.5, 640),
	sample("dresses", "Gap Tiered Cotton Maxi Dress", "Gap", "Lightweight tiered cotton maxi dress", 69.95, 4.2, 980),
	sample("shoes", "Nike Air Force 1 Sneakers", "Nike", "Leather low-top sneakers", 115.00, 4.8, 22000),
	sample("shoes", "New Balance 574 Core Sneakers", "New Balance", "Suede and mesh everyday sneakers", 89.99, 4.6, 7300),
	sample("jackets", "Patagonia Better Sweater Fleece Jacket", "Patagonia", "Recycled polyester fleece jacket", 139.00, 4.7, 4100),
	sample("jackets", "Columbia Watertight II Rain Jacket", "Columbia", "Waterproof breathable packable shell", 64.99, 4.5, 15200),
	sample("sweaters", "J.Crew Cotton Crewneck Sweater", "J.Crew", "Midweight cotton knit sweater", 79.50, 4.3, 860),
	sample("activewear", "Lululemon Align High-Rise Leggings", "Lululemon", "Buttery soft yoga leggings", 98.00, 4.6, 9800),
	sample("earbuds", "Sony WF-1000XM5 Wireless Earbuds", "Sony", "Industry-leading noise cancellation with exceptional sound quality", 279.99, 4.7, 2500),
	sample("earbuds", "Anker Soundcore Liberty 4 Earbuds", "Anker", "Wireless earbuds with ANC and heart rate sensor", 99.99, 4.3, 5600),
}

// SampleListings returns sample listings for the intent's category (or the
// whole catalog when the category has none) within the intent's budget
func SampleListings(intent domain.QueryIntent) []domain.RawListing {
	var pool []domain.RawListing
	if intent.Category != "" {
		for _, l := range sampleCatalog {
			if l.Category == intent.Category {
				pool = append(pool, l)
			}
		}
	}
	if len(pool) == 0 {
		pool = sampleCatalog
	}

	out := make([]domain.RawListing, 0, len(pool))
	for _, l := range pool {
		if intent.HasBudget() && l.Price > *intent.BudgetMax {
			continue
		}
		out = append(out, l)
	}
	return out
}
