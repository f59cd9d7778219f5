package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/colthorp/planning-cli-go/internal/model"
)

// Store is the in-process Cache Store.
//
// Freshness, session and detail state are guarded separately so a slow
// detail lookup never blocks a freshness check.
type Store struct {
	ttl            time.Duration
	now            Clock
	detailCapacity int

	fetched   map[string]time.Time // key -> last capture time
	fetchedMu sync.RWMutex

	session   *model.SessionState
	sessionMu sync.RWMutex

	details DetailStore
}

// NewStore creates a store with the given artifact TTL.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		ttl:     ttl,
		now:     time.Now,
		fetched: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.details == nil {
		s.details = newDetailStore(s.detailCapacity)
	}
	return s
}

func newDetailStore(capacity int) DetailStore {
	if capacity > 0 {
		if d, err := NewLRUDetails(capacity); err == nil {
			return d
		}
	}
	return NewMemoryDetails()
}

// TTL returns the configured artifact time-to-live.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// IsFresh reports whether key was captured within the TTL.
func (s *Store) IsFresh(key string) bool {
	s.fetchedMu.RLock()
	ts, ok := s.fetched[key]
	s.fetchedMu.RUnlock()
	if !ok {
		return false
	}
	return s.now().Sub(ts) <= s.ttl
}

// MarkFresh records that the artifact for key was just captured.
func (s *Store) MarkFresh(key string) time.Time {
	ts := s.now()
	s.fetchedMu.Lock()
	s.fetched[key] = ts
	s.fetchedMu.Unlock()
	return ts
}

// LastFetchTime returns when key was last captured.
func (s *Store) LastFetchTime(key string) (time.Time, bool) {
	s.fetchedMu.RLock()
	defer s.fetchedMu.RUnlock()
	ts, ok := s.fetched[key]
	return ts, ok
}

// Keys returns every key with a recorded capture time, sorted.
func (s *Store) Keys() []string {
	s.fetchedMu.RLock()
	keys := make([]string, 0, len(s.fetched))
	for k := range s.fetched {
		keys = append(keys, k)
	}
	s.fetchedMu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Session returns a copy of the cached session, or nil.
func (s *Store) Session() *model.SessionState {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.session.Clone()
}

// SetSession replaces the cached session.
func (s *Store) SetSession(state *model.SessionState) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.session = state.Clone()
}

// ClearSession drops the cached session.
func (s *Store) ClearSession() {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.session = nil
}

// Detail returns the cached detail for an event id.
func (s *Store) Detail(id string) (model.EventDetail, bool) {
	return s.details.Get(id)
}

// PutDetail caches detail for id. The first write wins.
func (s *Store) PutDetail(id string, detail model.EventDetail) bool {
	return s.details.Add(id, detail)
}

// DetailCount returns the number of cached details.
func (s *Store) DetailCount() int {
	return s.details.Len()
}
