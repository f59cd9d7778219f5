package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/colthorp/planning-cli-go/internal/model"
)

// MemoryDetails is the default unbounded detail store.
type MemoryDetails struct {
	entries map[string]model.EventDetail
	mu      sync.RWMutex
}

// NewMemoryDetails creates an empty unbounded detail store.
func NewMemoryDetails() *MemoryDetails {
	return &MemoryDetails{
		entries: make(map[string]model.EventDetail),
	}
}

// Get returns the detail for id.
func (d *MemoryDetails) Get(id string) (model.EventDetail, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	detail, ok := d.entries[id]
	return detail, ok
}

// Add stores detail for id unless already present.
func (d *MemoryDetails) Add(id string, detail model.EventDetail) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[id]; ok {
		return false
	}
	d.entries[id] = detail
	return true
}

// Len returns the number of stored details.
func (d *MemoryDetails) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Reset clears all entries (for testing).
func (d *MemoryDetails) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[string]model.EventDetail)
}

// LRUDetails is a bounded detail store evicting the least recently used id.
type LRUDetails struct {
	cache *lru.Cache[string, model.EventDetail]
}

// NewLRUDetails creates a detail store holding at most size entries.
func NewLRUDetails(size int) (*LRUDetails, error) {
	c, err := lru.New[string, model.EventDetail](size)
	if err != nil {
		return nil, err
	}
	return &LRUDetails{cache: c}, nil
}

// Get returns the detail for id and marks it recently used.
func (d *LRUDetails) Get(id string) (model.EventDetail, bool) {
	return d.cache.Get(id)
}

// Add stores detail for id unless already present.
func (d *LRUDetails) Add(id string, detail model.EventDetail) bool {
	found, _ := d.cache.ContainsOrAdd(id, detail)
	return !found
}

// Len returns the number of stored details.
func (d *LRUDetails) Len() int {
	return d.cache.Len()
}
