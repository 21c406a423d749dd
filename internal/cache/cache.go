// Package cache provides the in-memory LRU caches used across the RAG
// pipeline, plus the disk-backed embedding cache and the short-lived query
// cache built on top of them. All caches are safe for concurrent use.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry is the bookkeeping record stored per cache key.
type entry struct {
	key          string
	value        any
	createdAt    time.Time
	lastAccessed time.Time
	accessCount  int64
	sizeBytes    int
}

// Stats is a point-in-time snapshot of a cache's counters.
type Stats struct {
	// Entries is the current number of live entries.
	Entries int `json:"entries"`
	// MaxSize is the configured capacity.
	MaxSize int `json:"max_size"`
	// Hits counts successful Get calls.
	Hits int64 `json:"hits"`
	// Misses counts Get calls that found nothing (including expired entries).
	Misses int64 `json:"misses"`
	// Evictions counts entries removed to enforce MaxSize.
	Evictions int64 `json:"evictions"`
	// Expirations counts entries removed lazily because their TTL elapsed.
	Expirations int64 `json:"expirations"`
	// SizeBytes is the approximate memory held by cached values.
	SizeBytes int64 `json:"size_bytes"`
	// HitRate is Hits / (Hits + Misses), or 0 when no lookups happened.
	HitRate float64 `json:"hit_rate"`
}

// Store is a fixed-capacity LRU cache with lazy TTL expiry.
//
// A single mutex serializes all operations; the recency list and the index
// map are always mutated together under it. Expired entries are not reaped
// in the background: they are removed when a Get finds them, and count as
// misses.
type Store struct {
	mu sync.Mutex

	maxSize int
	ttl     time.Duration

	ll    *list.List               // front = most recently used
	index map[string]*list.Element // digest key -> element holding *entry

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
	sizeBytes   int64

	// now is the clock; replaced in tests to exercise TTL expiry.
	now func() time.Time
}

// NewStore constructs a Store with the given capacity and TTL.
// A non-positive maxSize falls back to 1; a non-positive ttl means
// entries never expire.
func NewStore(maxSize int, ttl time.Duration) *Store {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Store{
		maxSize: maxSize,
		ttl:     ttl,
		ll:      list.New(),
		index:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get returns the value stored under key and true on a hit.
// A hit promotes the entry to most recently used and bumps its access
// count. An entry whose TTL elapsed is removed and reported as a miss.
func (s *Store) Get(key string) (any, bool) {
	k := DigestKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[k]
	if !ok {
		s.misses++
		return nil, false
	}

	e := el.Value.(*entry)
	if s.expired(e) {
		s.removeLocked(el)
		s.expirations++
		s.misses++
		return nil, false
	}

	e.lastAccessed = s.now()
	e.accessCount++
	s.ll.MoveToFront(el)
	s.hits++
	return e.value, true
}

// Set stores value under key, replacing any previous value. When the
// insertion pushes the cache over capacity, entries are evicted from the
// least recently used end until the capacity holds.
func (s *Store) Set(key string, value any) {
	k := DigestKey(key)
	size := approxSize(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.index[k]; ok {
		e := el.Value.(*entry)
		s.sizeBytes += int64(size - e.sizeBytes)
		e.value = value
		e.sizeBytes = size
		e.createdAt = s.now()
		e.lastAccessed = e.createdAt
		s.ll.MoveToFront(el)
		return
	}

	now := s.now()
	e := &entry{
		key:          k,
		value:        value,
		createdAt:    now,
		lastAccessed: now,
		sizeBytes:    size,
	}
	s.index[k] = s.ll.PushFront(e)
	s.sizeBytes += int64(size)

	for s.ll.Len() > s.maxSize {
		oldest := s.ll.Back()
		if oldest == nil {
			break
		}
		s.removeLocked(oldest)
		s.evictions++
	}
}

// Delete removes key from the cache if present.
func (s *Store) Delete(key string) {
	k := DigestKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.index[k]; ok {
		s.removeLocked(el)
	}
}

// Clear removes every entry. Hit and miss counters are preserved so
// long-running processes keep meaningful ratios across clears.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ll.Init()
	s.index = make(map[string]*list.Element)
	s.sizeBytes = 0
}

// Len returns the number of live entries. Entries past their TTL that
// have not yet been touched by Get still count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Keys returns the digest keys of all live, non-expired entries, most
// recently used first. Expired entries found during the walk are removed.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, s.ll.Len())
	for el := s.ll.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if s.expired(e) {
			s.removeLocked(el)
			s.expirations++
		} else {
			keys = append(keys, e.key)
		}
		el = next
	}
	return keys
}

// Stats returns a snapshot of the cache counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Entries:     s.ll.Len(),
		MaxSize:     s.maxSize,
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Expirations: s.expirations,
		SizeBytes:   s.sizeBytes,
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}

// expired reports whether e is past its TTL. Callers must hold s.mu.
func (s *Store) expired(e *entry) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(e.createdAt) >= s.ttl
}

// removeLocked unlinks el from both the list and the index.
// Callers must hold s.mu.
func (s *Store) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	s.ll.Remove(el)
	delete(s.index, e.key)
	s.sizeBytes -= int64(e.sizeBytes)
}

// approxSize estimates the memory footprint of a cached value in bytes.
// It only needs to be proportional, not exact; Stats consumers use it to
// spot runaway caches, not to account memory precisely.
func approxSize(v any) int {
	switch val := v.(type) {
	case string:
		return len(val)
	case []byte:
		return len(val)
	case []float32:
		return 4 * len(val)
	case []float64:
		return 8 * len(val)
	default:
		return 64
	}
}
