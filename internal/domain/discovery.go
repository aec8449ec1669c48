package domain

import "time"

// SourceLabel names the tier that produced a discovery result
type SourceLabel string

const (
	LabelIndexed     SourceLabel = "indexed"
	LabelScraped     SourceLabel = "scraped"
	LabelHybrid      SourceLabel = "hybrid"
	LabelExternalAPI SourceLabel = "external_api"
	LabelDemo        SourceLabel = "demo"
)

// ConfidenceLevel reflects how much the result can be trusted
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Disclaimers attached to results from weaker tiers
const (
	DisclaimerExternal = "Results from external sources. Prices may vary."
	DisclaimerDemo     = "Showing sample results; live sources returned nothing."
	DisclaimerEmpty    = "No listings could be found for this query right now."
)

// ChatTurn is one prior exchange used to refine a follow-up query
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DiscoverRequest is the input of a discovery call
type DiscoverRequest struct {
	Query      string       `json:"query"`
	History    []ChatTurn   `json:"history,omitempty"`
	Intent     *QueryIntent `json:"intent,omitempty"`
	MaxResults int          `json:"max_results,omitempty"`
	Offset     int          `json:"offset,omitempty"`
}

// DiscoverResult is the ranked output of a discovery call
type DiscoverResult struct {
	Query           string          `json:"query"`
	Intent          QueryIntent     `json:"intent"`
	Listings        []ScoredListing `json:"listings"`
	TotalConsidered int             `json:"total_considered"`
	SourceLabel     SourceLabel     `json:"source_label"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	Disclaimer      string          `json:"disclaimer,omitempty"`
	ElapsedMS       int64           `json:"elapsed_ms"`
}

// SourceResult is the outcome of scraping one source
type SourceResult struct {
	SourceID string        `json:"source_id"`
	Listings []RawListing  `json:"-"`
	Count    int           `json:"count"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// ScrapeRun summarizes a single orchestrated scrape
type ScrapeRun struct {
	Query             string     `json:"query"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	TotalSources      int        `json:"total_sources"`
	SuccessfulSources int        `json:"successful_sources"`
	FailedSources     int        `json:"failed_sources"`
	AbandonedSources  int        `json:"abandoned_sources"`
	Listings          int        `json:"listings"`
	Errors            []string   `json:"errors,omitempty"`
}

// ScrapeStatus is a read-only snapshot of scrape activity
type ScrapeStatus struct {
	Running    bool       `json:"running"`
	ActiveRuns int        `json:"active_runs"`
	Refreshing bool       `json:"refreshing"`
	Current    *ScrapeRun `json:"current,omitempty"`
	Last       *ScrapeRun `json:"last,omitempty"`
	TotalRuns  int        `json:"total_runs"`
}

// RefreshSummary reports the outcome of an inventory refresh
type RefreshSummary struct {
	Queries     []string  `json:"queries"`
	Scraped     int       `json:"scraped"`
	Unique      int       `json:"unique"`
	Enqueued    bool      `json:"enqueued"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}
