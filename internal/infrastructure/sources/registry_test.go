package sources

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shoplens/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultRegistry(t *testing.T) {
	reg, err := NewDefaultRegistry()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, reg.Len(), 30)

	asos, ok := reg.Get("asos")
	require.True(t, ok)
	assert.Equal(t, "ASOS", asos.DisplayName)
	assert.Equal(t, "asos.com", asos.Domain)
	assert.Equal(t, domain.StrategyMarkdownPattern, asos.ExtractionStrategy)
	assert.Equal(t, "https://www.asos.com/us/search/?q=blue+jeans", asos.SearchURL("blue jeans"))

	strategies := map[domain.ExtractionStrategy]int{}
	for _, s := range reg.List() {
		strategies[s.ExtractionStrategy]++
	}
	assert.Positive(t, strategies[domain.StrategyMarkdownPattern])
	assert.Positive(t, strategies[domain.StrategyHTMLSelector])
}

func TestRegistry_ListIsACopy(t *testing.T) {
	reg, err := NewDefaultRegistry()
	require.NoError(t, err)

	list := reg.List()
	list[0].ID = "mutated"

	assert.NotEqual(t, "mutated", reg.List()[0].ID)
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg, err := NewDefaultRegistry()
	require.NoError(t, err)

	_, ok := reg.Get("does-not-exist")
	assert.False(t, ok)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing placeholder",
			yaml: `
sources:
  - id: shop
    name: Shop
    domain: shop.com
    query_url: "https://shop.com/search"
    strategy: html-selector
`,
		},
		{
			name: "unknown strategy",
			yaml: `
sources:
  - id: shop
    name: Shop
    domain: shop.com
    query_url: "https://shop.com/search?q={query}"
    strategy: telepathy
`,
		},
		{
			name: "duplicate id",
			yaml: `
sources:
  - id: shop
    name: Shop
    domain: shop.com
    query_url: "https://shop.com/search?q={query}"
    strategy: html-selector
  - id: shop
    name: Shop Again
    domain: shop.com
    query_url: "https://shop.com/s?q={query}"
    strategy: markdown-pattern
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidSource))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `
sources:
  - id: local
    name: Local Shop
    domain: local.test
    query_url: "https://local.test/api/search?q={query}"
    strategy: structured-api
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	src, ok := reg.Get("local")
	require.True(t, ok)
	assert.Equal(t, domain.StrategyStructuredAPI, src.ExtractionStrategy)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
