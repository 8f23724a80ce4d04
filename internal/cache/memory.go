package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

// MemoryStore is the default in-process backend. Keys are sharded so
// unrelated events never contend on one lock; expired entries are discarded
// lazily on read, not actively evicted.
type MemoryStore struct {
	shards [shardCount]memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]memoryEntry)
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	sh := s.shard(key)

	sh.mu.RLock()
	stored, ok := sh.entries[key]
	sh.mu.RUnlock()

	if !ok {
		return Entry{}, false, nil
	}
	if s.now().After(stored.expiresAt) {
		sh.mu.Lock()
		// Re-check under the write lock; a refresh may have replaced it.
		if cur, still := sh.entries[key]; still && s.now().After(cur.expiresAt) {
			delete(sh.entries, key)
		}
		sh.mu.Unlock()
		return Entry{}, false, nil
	}
	return stored.entry, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	sh := s.shard(key)

	sh.mu.Lock()
	sh.entries[key] = memoryEntry{entry: entry, expiresAt: s.now().Add(ttl)}
	sh.mu.Unlock()
	return nil
}
