package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// ExtractionStrategy selects how listings are pulled out of fetched content
type ExtractionStrategy string

const (
	StrategyMarkdownPattern ExtractionStrategy = "markdown-pattern"
	StrategyHTMLSelector    ExtractionStrategy = "html-selector"
	StrategyStructuredAPI   ExtractionStrategy = "structured-api"
)

// Valid reports whether s is a known extraction strategy
func (s ExtractionStrategy) Valid() bool {
	switch s {
	case StrategyMarkdownPattern, StrategyHTMLSelector, StrategyStructuredAPI:
		return true
	}
	return false
}

// QueryPlaceholder is substituted with the escaped query in a source URL template
const QueryPlaceholder = "{query}"

// SourceDescriptor describes one retail source
type SourceDescriptor struct {
	ID                 string             `json:"id" yaml:"id"`
	DisplayName        string             `json:"name" yaml:"name"`
	Domain             string             `json:"domain" yaml:"domain"`
	QueryURLTemplate   string             `json:"query_url" yaml:"query_url"`
	ExtractionStrategy ExtractionStrategy `json:"strategy" yaml:"strategy"`
}

// SearchURL renders the source's search URL for query
func (s SourceDescriptor) SearchURL(query string) string {
	return strings.ReplaceAll(s.QueryURLTemplate, QueryPlaceholder, url.QueryEscape(query))
}

// BaseURL is the origin used to resolve relative product links
func (s SourceDescriptor) BaseURL() string {
	return "https://" + strings.TrimPrefix(s.Domain, "www.")
}

// Validate checks the descriptor is usable
func (s SourceDescriptor) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: source id is empty", ErrInvalidSource)
	}
	if s.Domain == "" {
		return fmt.Errorf("%w: source %s has no domain", ErrInvalidSource, s.ID)
	}
	if !strings.Contains(s.QueryURLTemplate, QueryPlaceholder) {
		return fmt.Errorf("%w: source %s query_url lacks %s", ErrInvalidSource, s.ID, QueryPlaceholder)
	}
	if !s.ExtractionStrategy.Valid() {
		return fmt.Errorf("%w: source %s has unknown strategy %q", ErrInvalidSource, s.ID, s.ExtractionStrategy)
	}
	return nil
}
