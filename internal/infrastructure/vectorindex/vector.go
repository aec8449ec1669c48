// Package vectorindex stores accepted listings with their embeddings and
// answers cosine-similarity queries over them.
package vectorindex

import (
	"math"
	"strconv"
	"strings"

	"github.com/shoplens/backend/internal/domain"
)

// normalize returns a unit-length copy of v
func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// cosine computes similarity between two unit vectors, clamped to [-1, 1]
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return math.Max(-1, math.Min(1, dot))
}

// matches reports whether a listing satisfies the query filter
func matches(l domain.RawListing, f domain.IndexFilter) bool {
	if f.Category != "" && !strings.EqualFold(l.Category, f.Category) {
		return false
	}
	if f.MaxPrice != nil && l.Price > *f.MaxPrice {
		return false
	}
	return true
}

// formatVector renders v in pgvector's text input format
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
