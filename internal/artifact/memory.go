package artifact

import (
	"context"
	"sync"

	"github.com/colthorp/planning-cli-go/internal/core"
)

// MemoryBackend is an in-memory artifact backend for testing.
type MemoryBackend struct {
	entries map[string][]byte
	writes  int
	mu      sync.RWMutex
}

// NewMemoryBackend creates a new in-memory artifact backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string][]byte),
	}
}

// Location returns a dummy address for the given key.
func (b *MemoryBackend) Location(key string) string {
	return "memory://" + core.ArtifactName(key)
}

// Read returns a copy of the artifact bytes for key.
func (b *MemoryBackend) Read(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Exists reports whether key has an artifact.
func (b *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[key]
	return ok, nil
}

// Write stores a copy of data for key.
func (b *MemoryBackend) Write(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = append([]byte(nil), data...)
	b.writes++
	return nil
}

// Writes returns the number of Write calls (for testing).
func (b *MemoryBackend) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}

// Seed adds an artifact directly (for testing).
func (b *MemoryBackend) Seed(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = append([]byte(nil), data...)
}
