package resultcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/plant"
)

// MemoryConfig sizes the in-process cache.
type MemoryConfig struct {
	MaxEntries int
	// CleanupInterval runs the go-cache janitor; zero disables it and
	// expired entries are dropped lazily on read.
	CleanupInterval time.Duration
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// MemoryStore is a process-local Store capped by entry count. When full the
// oldest inserted entry is evicted first.
type MemoryStore struct {
	items      *cache.Cache
	maxEntries int
	now        func() time.Time
	log        logger.Logger

	mu    sync.Mutex
	order *list.List               // keys, oldest first
	index map[string]*list.Element // key -> position in order
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(cfg MemoryConfig, log logger.Logger) *MemoryStore {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Global().Module("resultcache")
	}
	return &MemoryStore{
		items:      cache.New(cache.NoExpiration, cfg.CleanupInterval),
		maxEntries: cfg.MaxEntries,
		now:        cfg.Now,
		log:        log,
		order:      list.New(),
		index:      make(map[string]*list.Element),
	}
}

// Get returns a copy of the live entry for key.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, found := s.items.Get(key)
	if !found {
		s.forgetLocked(key)
		return nil, false
	}

	entry := v.(*Entry)
	if entry.Expired(s.now()) {
		s.items.Delete(key)
		s.forgetLocked(key)
		return nil, false
	}

	return &Entry{Result: entry.Result.Clone(), ExpiresAt: entry.ExpiresAt}, true
}

// Set stores a copy of result for ttl. A later Set for the same key wins.
func (s *MemoryStore) Set(_ context.Context, key string, result *plant.Result, ttl time.Duration) error {
	entry := &Entry{Result: result.Clone(), ExpiresAt: s.now().Add(ttl)}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Set(key, entry, ttl)
	if el, ok := s.index[key]; ok {
		s.order.MoveToBack(el)
	} else {
		s.index[key] = s.order.PushBack(key)
	}
	s.trimLocked()
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Delete(key)
	s.forgetLocked(key)
	return nil
}

// Len returns the number of tracked entries, including expired ones not yet
// dropped.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Close drops every entry. The go-cache janitor, when enabled, stops once the
// store is garbage collected.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Flush()
	s.order.Init()
	clear(s.index)
	return nil
}

func (s *MemoryStore) forgetLocked(key string) {
	if el, ok := s.index[key]; ok {
		s.order.Remove(el)
		delete(s.index, key)
	}
}

// trimLocked evicts oldest entries until the cap holds. Keys the janitor
// already removed are pruned first so they do not use up capacity.
func (s *MemoryStore) trimLocked() {
	if s.order.Len() <= s.maxEntries {
		return
	}

	now := s.now()
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		key := el.Value.(string)
		if v, found := s.items.Get(key); !found || v.(*Entry).Expired(now) {
			s.items.Delete(key)
			s.order.Remove(el)
			delete(s.index, key)
		}
		el = next
	}

	evicted := 0
	for s.order.Len() > s.maxEntries {
		front := s.order.Front()
		key := front.Value.(string)
		s.order.Remove(front)
		delete(s.index, key)
		s.items.Delete(key)
		evicted++
	}

	if evicted > 0 {
		s.log.Debug("evicted oldest cache entries",
			logger.Int("evicted", evicted),
			logger.Int("max_entries", s.maxEntries))
	}
}
