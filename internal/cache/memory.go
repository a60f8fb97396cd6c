package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process LRU cache with per-entry TTL. Both bounds are
// explicit: entries expire after ttl, and the least recently used entry is
// evicted once maxEntries is reached.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	key     string
	value   string
	expires time.Time
}

// NewMemory creates a memory cache bounded by maxEntries and ttl.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Memory{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[key]
	if !ok {
		return "", false
	}
	entry := el.Value.(*memoryEntry)
	if m.now().After(entry.expires) {
		m.order.Remove(el)
		delete(m.entries, key)
		return "", false
	}
	m.order.MoveToFront(el)
	return entry.value, true
}

func (m *Memory) Set(_ context.Context, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expires = m.now().Add(m.ttl)
		m.order.MoveToFront(el)
		return
	}
	if len(m.entries) >= m.maxEntries {
		oldest := m.order.Back()
		if oldest != nil {
			m.order.Remove(oldest)
			delete(m.entries, oldest.Value.(*memoryEntry).key)
		}
	}
	el := m.order.PushFront(&memoryEntry{key: key, value: value, expires: m.now().Add(m.ttl)})
	m.entries[key] = el
}
