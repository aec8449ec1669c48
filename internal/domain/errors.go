package domain

import "errors"

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrInvalidSource is returned when a source descriptor fails validation
	ErrInvalidSource = errors.New("invalid source descriptor")

	// ErrSourceNotFound is returned when a source id is not registered
	ErrSourceNotFound = errors.New("source not found")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrAggregatorFailure is returned when the shopping aggregator API request fails
	ErrAggregatorFailure = errors.New("aggregator API request failed")

	// ErrNoResults is returned when an upstream answered but had nothing usable
	ErrNoResults = errors.New("no results")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrScrapeInProgress is returned when an inventory refresh is already running
	ErrScrapeInProgress = errors.New("scrape already in progress")

	// ErrIndexUnavailable is returned when the similarity index cannot be reached
	ErrIndexUnavailable = errors.New("similarity index unavailable")

	// ErrDimensionMismatch is returned when vectors do not match the collection dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmbeddingFailure is returned when texts cannot be embedded
	ErrEmbeddingFailure = errors.New("embedding request failed")

	// ErrRefinerFailure is returned when query refinement fails
	ErrRefinerFailure = errors.New("query refinement failed")
)
