package supervisor

import (
	"sort"
	"sync"
)

// Registry is a thread-safe name -> Supervisor map so status surfaces can
// report subsystem goroutines (adapter, router) without owning them.
type Registry struct {
	mu sync.RWMutex
	m  map[string]*Supervisor
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]*Supervisor{}}
}

// Set registers (or replaces) a supervisor under name. A nil sup deletes.
func (r *Registry) Set(name string, sup *Supervisor) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sup == nil {
		delete(r.m, name)
		return
	}
	r.m[name] = sup
}

func (r *Registry) Delete(name string) { r.Set(name, nil) }

// Snapshots returns the current stats of every registered supervisor.
func (r *Registry) Snapshots() map[string]Snapshot {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.m))
	sups := make(map[string]*Supervisor, len(r.m))
	for k, v := range r.m {
		names = append(names, k)
		sups[k] = v
	}
	r.mu.RUnlock()

	sort.Strings(names)
	out := make(map[string]Snapshot, len(names))
	for _, n := range names {
		out[n] = sups[n].Snapshot()
	}
	return out
}
