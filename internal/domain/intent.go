package domain

// Gender constrains listings to a target audience
type Gender string

const (
	GenderNone   Gender = ""
	GenderMen    Gender = "men"
	GenderWomen  Gender = "women"
	GenderKids   Gender = "kids"
	GenderUnisex Gender = "unisex"
)

// QueryIntent is the structured interpretation of a free-text shopping query
type QueryIntent struct {
	RawText          string   `json:"raw_text"`
	Category         string   `json:"category,omitempty"`
	BudgetMin        *float64 `json:"budget_min,omitempty"`
	BudgetMax        *float64 `json:"budget_max,omitempty"`
	Features         []string `json:"features,omitempty"`
	BrandPreferences []string `json:"brand_preferences,omitempty"`
	Gender           Gender   `json:"gender,omitempty"`
}

// HasBudget reports whether an upper budget bound is set
func (q QueryIntent) HasBudget() bool {
	return q.BudgetMax != nil && *q.BudgetMax > 0
}

// Normalize drops both budget bounds when they contradict each other or are
// not positive, and removes duplicate features and brands.
func (q QueryIntent) Normalize() QueryIntent {
	if q.BudgetMin != nil && *q.BudgetMin < 0 {
		q.BudgetMin = nil
	}
	if q.BudgetMax != nil && *q.BudgetMax <= 0 {
		q.BudgetMax = nil
	}
	if q.BudgetMin != nil && q.BudgetMax != nil && *q.BudgetMin > *q.BudgetMax {
		q.BudgetMin = nil
		q.BudgetMax = nil
	}
	q.Features = uniqueStrings(q.Features)
	q.BrandPreferences = uniqueStrings(q.BrandPreferences)
	return q
}

func uniqueStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
