package fingerprint

import (
	"context"
	"sync"
)

// Entry is the payload last registered for a digest.
type Entry struct {
	Payload  string `json:"payload"`
	EntityID string `json:"entity_id,omitempty"`
}

// Registry maps digests to the canonical payload last seen for them. It is
// the collision guard's memory: a digest registered with a different payload
// signals a true hash collision. Implementations must be safe for concurrent
// use and resettable so tests can restore a known prior state.
type Registry interface {
	Lookup(ctx context.Context, digest string) (*Entry, error)
	Register(ctx context.Context, digest string, entry Entry) error
	Reset(ctx context.Context) error
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryRegistry creates an empty in-process registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]Entry)}
}

// Lookup returns the entry registered for digest, or nil when unregistered.
func (r *MemoryRegistry) Lookup(_ context.Context, digest string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[digest]
	if !ok {
		return nil, nil
	}

	return &entry, nil
}

// Register records the payload for digest, replacing any previous entry.
func (r *MemoryRegistry) Register(_ context.Context, digest string, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[digest] = entry

	return nil
}

// Reset discards all registered entries.
func (r *MemoryRegistry) Reset(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]Entry)

	return nil
}
