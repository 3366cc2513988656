package processor

import (
	"sort"
	"sync"
	"time"

	"github.com/aliskhannn/pixelkit/internal/model"
)

// Entry describes one in-flight invocation.
type Entry struct {
	ID        string        `json:"id"`
	StartTime time.Time     `json:"startTime"`
	FileHash  string        `json:"fileHash"`
	Options   model.Options `json:"options"`
}

// Registry tracks in-flight invocations by id. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Add registers e, replacing any entry with the same id.
func (r *Registry) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[e.ID] = e
}

// Remove deletes the entry for id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, id)
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	return e, ok
}

// Len returns the number of registered invocations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// List returns all entries ordered by start time.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Clear removes every entry and returns how many there were.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	clear(r.entries)
	return n
}
