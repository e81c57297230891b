package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/jward/finegrain/internal/build"
)

// BatchedStore buffers cache writes in memory and commits them in one
// transaction on Flush. It implements build.Cache so a build can write
// entries without paying a transaction per module.
//
// Reads look at the buffer first and fall through to the underlying Store.
type BatchedStore struct {
	store *Store
	mu    sync.Mutex

	entries map[string]*build.CacheEntry
	deleted map[string]bool
	now     func() time.Time
}

// Compile-time check: *BatchedStore satisfies build.Cache.
var _ build.Cache = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by s.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:   s,
		entries: make(map[string]*build.CacheEntry),
		deleted: make(map[string]bool),
		now:     time.Now,
	}
}

func (b *BatchedStore) Valid(id, path string, mtime time.Time, hash string) (bool, error) {
	b.mu.Lock()
	e, buffered := b.entries[id]
	deleted := b.deleted[id]
	b.mu.Unlock()
	if buffered {
		return e.Path == path && e.Hash == hash, nil
	}
	if deleted {
		return false, nil
	}
	return b.store.Valid(id, path, mtime, hash)
}

func (b *BatchedStore) Load(id string) (*build.CacheEntry, error) {
	b.mu.Lock()
	e, buffered := b.entries[id]
	deleted := b.deleted[id]
	b.mu.Unlock()
	if buffered {
		return e, nil
	}
	if deleted {
		return nil, fmt.Errorf("load %s: no cache entry", id)
	}
	return b.store.Load(id)
}

func (b *BatchedStore) Write(e *build.CacheEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[e.ID] = e
	return nil
}

func (b *BatchedStore) Delete(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, id)
	b.deleted[id] = true
	return nil
}

// Pending returns the number of buffered writes and deletions.
func (b *BatchedStore) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries) + len(b.deleted)
}

// Flush commits the buffer to the underlying Store.
func (b *BatchedStore) Flush() error {
	return b.store.CommitBatch(b)
}
