package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store supplies provider specifications by key
type Store interface {
	GetSpec(ctx context.Context, providerKey string) (*Specification, error)
	List(ctx context.Context) ([]Specification, error)
}

// Registry is an in-memory Store populated from JSON spec files or
// registered programmatically
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Specification
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{specs: map[string]Specification{}}
}

// Register adds or replaces a provider specification
func (r *Registry) Register(spec Specification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.UniqueKey] = spec
}

// LoadDir reads every *.json file in dir as a provider specification
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading provider spec dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading provider spec %s: %w", entry.Name(), err)
		}

		var spec Specification
		if err := json.Unmarshal(data, &spec); err != nil {
			return fmt.Errorf("parsing provider spec %s: %w", entry.Name(), err)
		}

		if spec.UniqueKey == "" {
			return fmt.Errorf("provider spec %s is missing unique_key", entry.Name())
		}

		r.Register(spec)
	}

	return nil
}

// GetSpec returns the specification for the given provider key, or nil if
// the provider is unknown
func (r *Registry) GetSpec(_ context.Context, providerKey string) (*Specification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[providerKey]
	if !ok {
		return nil, nil
	}
	return &spec, nil
}

// List returns all registered specifications
func (r *Registry) List(_ context.Context) ([]Specification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Specification, 0, len(r.specs))
	for _, spec := range r.specs {
		specs = append(specs, spec)
	}
	return specs, nil
}
