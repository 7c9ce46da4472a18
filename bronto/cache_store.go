package bronto

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// ICacheStore is a key-value store whose entries expire after a TTL.
// Get reports found == false for missing and expired entries alike.
type ICacheStore interface {
	Get(ctx context.Context, key string, value any) (found bool, err error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Clock func() time.Time

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

type memoryCacheStore struct {
	lock    sync.RWMutex
	entries map[string]*memoryEntry
	now     Clock
}

// NewMemoryCacheStore creates a process-local ICacheStore.
// A nil clock defaults to time.Now.
func NewMemoryCacheStore(now Clock) ICacheStore {
	if now == nil {
		now = time.Now
	}
	return &memoryCacheStore{
		entries: make(map[string]*memoryEntry),
		now:     now,
	}
}

func (m *memoryCacheStore) Get(_ context.Context, key string, value any) (found bool, err error) {
	m.lock.RLock()
	var entry, ok = m.entries[key]
	m.lock.RUnlock()
	if !ok {
		return
	}
	if !m.now().Before(entry.expiresAt) {
		m.lock.Lock()
		if m.entries[key] == entry {
			delete(m.entries, key)
		}
		m.lock.Unlock()
		return
	}
	if err = json.Unmarshal(entry.data, value); err == nil {
		found = true
	}
	return
}

func (m *memoryCacheStore) Set(_ context.Context, key string, value any, ttl time.Duration) (err error) {
	var data []byte
	if data, err = json.Marshal(value); err != nil {
		return
	}
	m.lock.Lock()
	m.entries[key] = &memoryEntry{
		data:      data,
		expiresAt: m.now().Add(ttl),
	}
	m.lock.Unlock()
	return
}
