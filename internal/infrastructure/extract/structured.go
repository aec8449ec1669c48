package extract

import (
	"encoding/json"
	"strings"

	"github.com/shoplens/backend/internal/domain"
)

// Keys under which JSON search payloads carry their result arrays
var resultKeys = []string{"shopping_results", "products", "results", "items"}

// extractStructured maps JSON search results onto listings. It accepts either
// an object holding one of resultKeys or a top-level array of records.
func extractStructured(content string, src domain.SourceDescriptor) []domain.RawListing {
	var payload interface{}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil
	}

	var records []interface{}
	switch p := payload.(type) {
	case []interface{}:
		records = p
	case map[string]interface{}:
		for _, key := range resultKeys {
			if arr, ok := p[key].([]interface{}); ok {
				records = arr
				break
			}
		}
	}

	out := make([]domain.RawListing, 0, len(records))
	for _, r := range records {
		rec, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, mapRecord(rec))
	}
	return out
}

func mapRecord(rec map[string]interface{}) domain.RawListing {
	price := ParsePrice(first(rec, "extracted_price", "price", "sale_price"))
	l := domain.RawListing{
		Title:       stringField(rec, "title", "name"),
		Price:       price,
		ProductURL:  stringField(rec, "link", "product_link", "url"),
		ImageURL:    stringField(rec, "thumbnail", "image", "image_url"),
		Description: stringField(rec, "snippet", "description"),
		Brand:       stringField(rec, "brand"),
		SourceName:  stringField(rec, "source", "merchant"),
	}
	if v, ok := numberField(rec, "rating"); ok {
		l.Rating = &v
	}
	if v, ok := numberField(rec, "reviews", "review_count", "ratings_total"); ok {
		n := int(v)
		l.ReviewCount = &n
	}
	return l
}

func first(rec map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(rec map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := rec[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func numberField(rec map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case float64:
			return v, true
		case string:
			if n, ok := parseNumber(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}
