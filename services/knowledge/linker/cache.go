// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package linker

import (
	"container/list"
	"sync"
)

// DefaultCacheSize is the transferability cache capacity.
const DefaultCacheSize = 1024

// allSubjects is the cache key subject for "every other subject".
const allSubjects = "*"

type cacheKey struct {
	conceptID string
	subject   string
}

type cacheEntry struct {
	key   cacheKey
	value []TransferableConcept
}

// CacheStats reports transferability cache usage.
type CacheStats struct {
	Entries    int    `json:"entries"`
	Capacity   int    `json:"capacity"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	Evictions  int64  `json:"evictions"`
	Purges     int64  `json:"purges"`
	Generation uint64 `json:"generation"`
}

// resultCache is an LRU of unfiltered transfer lists, tagged with the store
// generation they were computed at.
//
// Thread Safety: Safe for concurrent use.
type resultCache struct {
	mu       sync.Mutex
	capacity int
	items    map[cacheKey]*list.Element
	order    *list.List // front = most recent
	gen      uint64

	hits, misses, evictions, purges int64
}

func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &resultCache{
		capacity: capacity,
		items:    make(map[cacheKey]*list.Element, capacity),
		order:    list.New(),
	}
}

// get returns the cached list for key if it was computed at generation gen.
// A generation change purges the whole cache.
func (c *resultCache) get(key cacheKey, gen uint64) ([]TransferableConcept, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.syncGeneration(gen)
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits++
		return elem.Value.(*cacheEntry).value, true
	}
	c.misses++
	return nil, false
}

func (c *resultCache) set(key cacheKey, gen uint64, value []TransferableConcept) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.syncGeneration(gen)
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
			c.evictions++
		}
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, value: value})
}

func (c *resultCache) syncGeneration(gen uint64) {
	if gen != c.gen {
		c.purgeLocked()
		c.gen = gen
	}
}

func (c *resultCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
}

func (c *resultCache) purgeLocked() {
	if c.order.Len() > 0 {
		c.purges++
	}
	c.items = make(map[cacheKey]*list.Element, c.capacity)
	c.order.Init()
}

// dropConcepts removes every entry for the given concept ids.
func (c *resultCache) dropConcepts(ids map[string]bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, elem := range c.items {
		if ids[key.conceptID] {
			c.remove(elem)
			dropped++
		}
	}
	return dropped
}

func (c *resultCache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}

func (c *resultCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:    c.order.Len(),
		Capacity:   c.capacity,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		Purges:     c.purges,
		Generation: c.gen,
	}
}
