package usecase

import (
	"cmp"
	"sort"

	"github.com/shoplens/backend/internal/domain"
)

// Deduplicate merges listings that share a title fingerprint. For each
// fingerprint the surviving record is the least under compareListings, so
// the result does not depend on the order in which sources reported; later
// duplicates only fill fields the survivor lacks. Output follows the first
// appearance of each fingerprint in the input. Listings with an empty
// fingerprint are dropped.
func Deduplicate(listings []domain.RawListing) []domain.RawListing {
	if len(listings) == 0 {
		return nil
	}

	type keyed struct {
		fingerprint string
		position    int
	}

	ordered := make([]keyed, 0, len(listings))
	firstSeen := make(map[string]int, len(listings))
	for i, l := range listings {
		fp := l.Fingerprint()
		if fp == "" {
			continue
		}
		ordered = append(ordered, keyed{fingerprint: fp, position: i})
		if _, ok := firstSeen[fp]; !ok {
			firstSeen[fp] = i
		}
	}

	sort.SliceStable(ordered, func(a, b int) bool {
		if ordered[a].fingerprint != ordered[b].fingerprint {
			return ordered[a].fingerprint < ordered[b].fingerprint
		}
		return compareListings(listings[ordered[a].position], listings[ordered[b].position]) < 0
	})

	merged := make(map[string]domain.RawListing, len(firstSeen))
	for _, k := range ordered {
		l := listings[k.position]
		survivor, ok := merged[k.fingerprint]
		if !ok {
			merged[k.fingerprint] = l
			continue
		}
		merged[k.fingerprint] = mergeListing(survivor, l)
	}

	fingerprints := make([]string, 0, len(firstSeen))
	for fp := range firstSeen {
		fingerprints = append(fingerprints, fp)
	}
	sort.Slice(fingerprints, func(a, b int) bool {
		return firstSeen[fingerprints[a]] < firstSeen[fingerprints[b]]
	})

	out := make([]domain.RawListing, 0, len(fingerprints))
	for _, fp := range fingerprints {
		out = append(out, merged[fp])
	}
	return out
}

// compareListings orders listings by every field, source and URL first.
// Only identical listings compare equal.
func compareListings(a, b domain.RawListing) int {
	return cmp.Or(
		cmp.Compare(a.SourceID, b.SourceID),
		cmp.Compare(a.ProductURL, b.ProductURL),
		cmp.Compare(a.Title, b.Title),
		cmp.Compare(a.Price, b.Price),
		cmp.Compare(a.ImageURL, b.ImageURL),
		cmp.Compare(a.Description, b.Description),
		cmp.Compare(a.Brand, b.Brand),
		compareOptional(a.Rating, b.Rating),
		compareOptional(a.ReviewCount, b.ReviewCount),
		cmp.Compare(a.SourceName, b.SourceName),
		cmp.Compare(a.Category, b.Category),
		cmp.Compare(a.ID, b.ID),
		a.FetchedAt.Compare(b.FetchedAt),
	)
}

// compareOptional puts present values before missing ones
func compareOptional[T cmp.Ordered](a, b *T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*a, *b)
}

// mergeListing fills the optional fields base is missing from extra
func mergeListing(base, extra domain.RawListing) domain.RawListing {
	if base.ImageURL == "" {
		base.ImageURL = extra.ImageURL
	}
	if base.Description == "" {
		base.Description = extra.Description
	}
	if base.Rating == nil && extra.Rating != nil {
		r := *extra.Rating
		base.Rating = &r
	}
	if base.ReviewCount == nil && extra.ReviewCount != nil {
		c := *extra.ReviewCount
		base.ReviewCount = &c
	}
	if base.Brand == "" {
		base.Brand = extra.Brand
	}
	return base
}
