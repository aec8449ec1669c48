// Package sources holds the catalog of retail sources scraped for every query.
package sources

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shoplens/backend/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed sources.yaml
var defaultCatalog []byte

type catalogFile struct {
	Sources []domain.SourceDescriptor `yaml:"sources"`
}

// Registry is an immutable, ordered set of source descriptors
type Registry struct {
	sources []domain.SourceDescriptor
	byID    map[string]int
}

// NewDefaultRegistry loads the built-in catalog
func NewDefaultRegistry() (*Registry, error) {
	return Parse(defaultCatalog)
}

// LoadFile loads a catalog from path, falling back to the built-in one when path is empty
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return NewDefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog
func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode source catalog: %w", err)
	}
	return New(file.Sources)
}

// New builds a registry from descriptors, rejecting invalid or duplicate entries
func New(descriptors []domain.SourceDescriptor) (*Registry, error) {
	r := &Registry{
		sources: make([]domain.SourceDescriptor, 0, len(descriptors)),
		byID:    make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate source id %q", domain.ErrInvalidSource, d.ID)
		}
		r.byID[d.ID] = len(r.sources)
		r.sources = append(r.sources, d)
	}
	return r, nil
}

// List returns a copy of all descriptors in catalog order
func (r *Registry) List() []domain.SourceDescriptor {
	out := make([]domain.SourceDescriptor, len(r.sources))
	copy(out, r.sources)
	return out
}

// Get looks up a descriptor by id
func (r *Registry) Get(id string) (domain.SourceDescriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return domain.SourceDescriptor{}, false
	}
	return r.sources[i], true
}

// Len returns the number of registered sources
func (r *Registry) Len() int {
	return len(r.sources)
}
