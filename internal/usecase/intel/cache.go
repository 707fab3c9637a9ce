package intel

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache хранит значения в памяти процесса ограниченное время.
// Записи разложены по каналам, поэтому сброс канала не задевает каналы с похожими id.
// Просроченные записи не удаляются, а перезаписываются следующим Set.
type TTLCache[V any] struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	channels map[string]map[string]cacheEntry[V]
}

// NewTTLCache создаёт кэш с указанными TTL и часами.
func NewTTLCache[V any](ttl time.Duration, now func() time.Time) *TTLCache[V] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[V]{ttl: ttl, now: now, channels: make(map[string]map[string]cacheEntry[V])}
}

// Get возвращает значение канала по ключу, если запись моложе TTL.
func (c *TTLCache[V]) Get(channelID, key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.channels[channelID][key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(entry.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set записывает значение целиком, заменяя предыдущее.
func (c *TTLCache[V]) Set(channelID, key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.channels[channelID]
	if !ok {
		entries = make(map[string]cacheEntry[V])
		c.channels[channelID] = entries
	}
	entries[key] = cacheEntry[V]{value: value, storedAt: c.now()}
}

// DeleteChannel удаляет все записи канала и возвращает их число.
func (c *TTLCache[V]) DeleteChannel(channelID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := len(c.channels[channelID])
	delete(c.channels, channelID)
	return removed
}

// Clear удаляет все записи.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	c.channels = make(map[string]map[string]cacheEntry[V])
	c.mu.Unlock()
}

// Len возвращает число записей, включая просроченные.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, entries := range c.channels {
		n += len(entries)
	}
	return n
}
