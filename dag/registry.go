package dag

import (
	"sort"
	"sync"
)

// DefaultTemplate names DefaultPipeline in NewRegistry.
const DefaultTemplate = "ml-default"

// Registry holds named graph templates.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]func() Definition
}

// NewRegistry returns a registry seeded with DefaultPipeline.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]func() Definition)}
	r.Register(DefaultTemplate, DefaultPipeline)
	return r
}

// Register adds or replaces a template. fn is called on every Get so each
// caller receives its own copy.
func (r *Registry) Register(name string, fn func() Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = fn
}

func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	fn, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return Definition{}, false
	}
	return fn(), true
}

// List returns template names sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
