package sources

import (
	"fmt"
	"sort"
	"sync"

	"dashguard/pkg/logger"
)

// Registry manages the available feed loaders
type Registry struct {
	loaders map[string]Loader
	mu      sync.RWMutex
	logger  *logger.Logger
}

// NewRegistry creates a new loader registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		loaders: make(map[string]Loader),
		logger:  log.WithComponent("source-registry"),
	}
}

// NewDefaultRegistry registers the mock, file and Feodo Tracker loaders
func NewDefaultRegistry(cfg Config, log *logger.Logger) *Registry {
	r := NewRegistry(log)
	// slugs are distinct, registration cannot fail
	_ = r.Register(NewMockLoader(cfg))
	_ = r.Register(NewFileLoader(cfg.Path))
	_ = r.Register(NewFeodoLoader(cfg.FeodoURL, log))
	return r
}

// Register registers a loader
func (r *Registry) Register(loader Loader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slug := loader.Slug()
	if _, exists := r.loaders[slug]; exists {
		return fmt.Errorf("loader already registered: %s", slug)
	}

	r.loaders[slug] = loader
	r.logger.Info().
		Str("slug", slug).
		Str("name", loader.Name()).
		Msg("registered loader")

	return nil
}

// Get returns a loader by slug
func (r *Registry) Get(slug string) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loader, ok := r.loaders[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLoader, slug)
	}
	return loader, nil
}

// Slugs returns the registered slugs in lexical order
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slugs := make([]string, 0, len(r.loaders))
	for slug := range r.loaders {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Count returns the number of registered loaders
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loaders)
}
