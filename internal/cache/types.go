// Package cache provides the in-process Cache Store for planning artifacts,
// the portal session and per-event enrichment details.
//
// # Overview
//
// The store keeps three independent maps:
//
//   - freshness: cache key (DD/MM/YYYY) -> time the artifact for that key was
//     last captured
//   - session: the single authenticated cookie set, if any
//   - details: event identifier -> teacher/room enrichment
//
// Nothing here survives a restart. The artifact bytes themselves live in the
// artifact package; this store only records when they were produced.
//
// # Freshness Rules
//
// A key is fresh iff it has a recorded capture time t and now - t <= TTL.
// The boundary is inclusive: an artifact captured exactly TTL ago is still
// served from cache. A key that was never captured is never fresh.
//
// # Detail Cache
//
// Details are treated as immutable once fetched: the first write for an id
// wins and later writes are ignored. By default the detail map is unbounded.
// WithDetailCapacity switches it to an LRU so long-running processes do not
// grow without limit.
package cache

import (
	"time"

	"github.com/colthorp/planning-cli-go/internal/model"
)

// DetailStore holds event details keyed by event identifier.
// Implementations must be safe for concurrent use.
type DetailStore interface {
	// Get returns the detail for id and whether it was present.
	Get(id string) (model.EventDetail, bool)

	// Add stores detail for id unless id is already present.
	// Returns true if the value was stored.
	Add(id string, detail model.EventDetail) bool

	// Len returns the number of stored details.
	Len() int
}

// Clock returns the current time. Injected so TTL boundaries can be tested
// without sleeping.
type Clock func() time.Time

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store's time source.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithDetailCapacity bounds the detail map to n entries with LRU eviction.
// n <= 0 keeps the default unbounded map.
func WithDetailCapacity(n int) Option {
	return func(s *Store) {
		s.detailCapacity = n
	}
}

// WithDetailStore installs a custom detail store.
func WithDetailStore(d DetailStore) Option {
	return func(s *Store) {
		s.details = d
	}
}
