package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Registry selects a provider per call. It can be swapped at runtime on
// config reload.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	def       string
}

// NewRegistry creates a registry; def is the default provider ID
// (empty means the first provider).
func NewRegistry(def string, providers ...Provider) *Registry {
	r := &Registry{}
	r.Replace(def, providers...)
	return r
}

// Replace swaps the provider set.
func (r *Registry) Replace(def string, providers ...Provider) {
	r.mu.Lock()
	r.def = strings.TrimSpace(def)
	r.providers = append([]Provider(nil), providers...)
	r.mu.Unlock()
}

// Select resolves selector, then the default ID, then the first provider.
func (r *Registry) Select(selector string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return nil, ErrNoProvider
	}
	for _, id := range []string{strings.TrimSpace(selector), r.def} {
		if id == "" {
			continue
		}
		for _, p := range r.providers {
			if p.ID() == id {
				return p, nil
			}
		}
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProvider, id)
	}
	return r.providers[0], nil
}

// Invoke calls the selected provider.
func (r *Registry) Invoke(ctx context.Context, p Prompt, selector string) ([]byte, error) {
	prov, err := r.Select(selector)
	if err != nil {
		return nil, err
	}
	return prov.Invoke(ctx, p)
}

// Len reports how many providers are configured.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
