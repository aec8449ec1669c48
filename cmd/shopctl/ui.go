package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shoplens/backend/internal/domain"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	titleColor   = color.New(color.Bold)
	priceColor   = color.New(color.FgGreen)
	mutedColor   = color.New(color.FgHiBlack)
	warningColor = color.New(color.FgYellow)
)

// printer renders command output either as formatted text or as JSON
type printer struct {
	out      io.Writer
	jsonMode bool
}

func newPrinter(out io.Writer, jsonMode bool) *printer {
	return &printer{out: out, jsonMode: jsonMode}
}

func (p *printer) writeJSON(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result prints a ranked discovery result
func (p *printer) Result(r *domain.DiscoverResult) error {
	if p.jsonMode {
		return p.writeJSON(r)
	}

	headerColor.Fprintf(p.out, "%q", r.Query)
	fmt.Fprintf(p.out, "  %d of %d listings  source=%s confidence=%s  %dms\n",
		len(r.Listings), r.TotalConsidered, r.SourceLabel, r.ConfidenceLevel, r.ElapsedMS)
	if summary := intentSummary(r.Intent); summary != "" {
		mutedColor.Fprintf(p.out, "  intent: %s\n", summary)
	}
	if r.Disclaimer != "" {
		warningColor.Fprintf(p.out, "  ! %s\n", r.Disclaimer)
	}
	fmt.Fprintln(p.out)

	for _, l := range r.Listings {
		fmt.Fprintf(p.out, "%2d. ", l.Rank)
		titleColor.Fprint(p.out, l.Title)
		fmt.Fprint(p.out, "  ")
		priceColor.Fprintf(p.out, "$%.2f", l.Price)
		fmt.Fprintf(p.out, "  score %.1f\n", l.Scores.FinalScore)

		details := []string{l.SourceName}
		if details[0] == "" {
			details[0] = l.SourceID
		}
		if l.Rating != nil {
			details = append(details, fmt.Sprintf("%.1f★", *l.Rating))
		}
		if l.ReviewCount != nil {
			details = append(details, fmt.Sprintf("%d reviews", *l.ReviewCount))
		}
		mutedColor.Fprintf(p.out, "    %s\n", strings.Join(details, " · "))
		mutedColor.Fprintf(p.out, "    price %.1f  rating %.1f  reviews %.1f  match %.1f\n",
			l.Scores.PriceScore, l.Scores.RatingScore, l.Scores.ReviewVolumeScore, l.Scores.SpecMatchScore)
		fmt.Fprintf(p.out, "    %s\n", l.ProductURL)
	}
	return nil
}

func intentSummary(q domain.QueryIntent) string {
	var parts []string
	if q.Category != "" {
		parts = append(parts, "category="+q.Category)
	}
	if q.Gender != "" {
		parts = append(parts, "gender="+string(q.Gender))
	}
	if q.BudgetMin != nil {
		parts = append(parts, fmt.Sprintf("min=$%.2f", *q.BudgetMin))
	}
	if q.BudgetMax != nil {
		parts = append(parts, fmt.Sprintf("max=$%.2f", *q.BudgetMax))
	}
	if len(q.Features) > 0 {
		parts = append(parts, "features="+strings.Join(q.Features, ","))
	}
	if len(q.BrandPreferences) > 0 {
		parts = append(parts, "brands="+strings.Join(q.BrandPreferences, ","))
	}
	return strings.Join(parts, " ")
}

// Sources prints the source catalog
func (p *printer) Sources(sources []domain.SourceDescriptor) error {
	if p.jsonMode {
		return p.writeJSON(sources)
	}
	headerColor.Fprintf(p.out, "%d sources\n", len(sources))
	for _, s := range sources {
		fmt.Fprintf(p.out, "  %-16s ", s.ID)
		titleColor.Fprintf(p.out, "%-24s", s.DisplayName)
		mutedColor.Fprintf(p.out, " %-18s %s\n", s.ExtractionStrategy, s.Domain)
	}
	return nil
}

// Refresh prints an inventory refresh summary
func (p *printer) Refresh(s *domain.RefreshSummary, indexed int) error {
	if p.jsonMode {
		return p.writeJSON(struct {
			*domain.RefreshSummary
			Indexed int `json:"indexed"`
		}{s, indexed})
	}
	headerColor.Fprintf(p.out, "Refreshed %d queries", len(s.Queries))
	fmt.Fprintf(p.out, " in %s\n", s.CompletedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(p.out, "  scraped %d, unique %d, indexed %d\n", s.Scraped, s.Unique, indexed)
	if !s.Enqueued && s.Unique > 0 {
		warningColor.Fprintln(p.out, "  ! indexer rejected the batch")
	}
	return nil
}
