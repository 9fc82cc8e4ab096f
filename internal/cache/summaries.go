// Package cache holds the in-process tier of the summary cache: an LRU with
// the same freshness window as the persisted cached-summary table, so a hit
// here is always at least as fresh as a persisted hit.
package cache

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finsight/internal/core"
)

// SummaryCache is an LRU of transaction summaries with TTL and size-based
// eviction, keyed by (user, start date, end date).
type SummaryCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type entry struct {
	key       string
	summary   core.TransactionSummary
	expiresAt time.Time
}

func NewSummaryCache(maxSize int, ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Key builds the cache key for a user and date range.
func Key(userID string, rng core.DateRange) string {
	return fmt.Sprintf("%s|%s|%s", userID, rng.StartDate, rng.EndDate)
}

// Get returns the cached summary for the key if present and unexpired.
func (c *SummaryCache) Get(key string) (core.TransactionSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return core.TransactionSummary{}, false
	}

	e := elem.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeElement(elem)
		return core.TransactionSummary{}, false
	}

	c.lru.MoveToFront(elem)
	return e.summary, true
}

// Set stores a summary, overwriting any prior entry for the key and resetting
// its TTL. The oldest entry is evicted when the cache is over capacity.
func (c *SummaryCache) Set(key string, summary core.TransactionSummary) {
	c.SetWithExpiry(key, summary, time.Now().Add(c.ttl))
}

// SetWithExpiry stores a summary with an explicit expiry instead of the
// default TTL, so an entry warmed from an older tier keeps that tier's
// remaining lifetime. Already-expired summaries are not stored.
func (c *SummaryCache) SetWithExpiry(key string, summary core.TransactionSummary, expiresAt time.Time) {
	if !expiresAt.After(time.Now()) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{
		key:       key,
		summary:   summary,
		expiresAt: expiresAt,
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = e
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(e)
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Delete removes a key.
func (c *SummaryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

func (c *SummaryCache) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.items, e.key)
	c.lru.Remove(elem)
}

// CleanExpired removes every expired entry and returns how many were removed.
func (c *SummaryCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*entry).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

// Size returns the current number of entries.
func (c *SummaryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// StartCleanup runs periodic expiry sweeps until the stop channel closes.
func (c *SummaryCache) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.CleanExpired(); n > 0 {
					slog.Info("Cleaned expired summary cache entries", "removed", n, "remaining", c.Size())
				}
			case <-stop:
				return
			}
		}
	}()
}
