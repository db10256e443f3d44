package artifact

import (
	"fmt"
	"sort"
	"sync"
)

// Pool is the shared collection of artifacts produced during a pipeline run:
// pipeline inputs plus every step output bound so far. Writes are
// append-only and keyed by a unique name; key uniqueness is guaranteed by
// graph validation, so a duplicate write here is a programming error.
// All operations are concurrency-safe.
type Pool struct {
	mu    sync.RWMutex
	items map[string]Artifact
}

// NewPool creates an empty artifact pool.
func NewPool() *Pool {
	return &Pool{items: make(map[string]Artifact)}
}

// Put stores an artifact under the given key. It returns an error if the key
// is already present; artifacts are never overwritten.
func (p *Pool) Put(key string, a Artifact) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.items[key]; exists {
		return fmt.Errorf("artifact pool: duplicate key %q", key)
	}
	p.items[key] = a
	return nil
}

// Get returns the artifact stored under key, if any.
func (p *Pool) Get(key string) (Artifact, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	a, ok := p.items[key]
	return a, ok
}

// Keys returns all keys currently in the pool, sorted.
func (p *Pool) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, 0, len(p.items))
	for k := range p.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of artifacts in the pool.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}
