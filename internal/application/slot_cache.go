package application

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// slotCache keeps recent ranker responses so that the slots a viewer was shown
// stay stable between resolving a link and confirming one of them.
// The LRU bounds the entry count and sweeps stale entries in the background;
// freshness on read is judged by the injected clock.
type slotCache struct {
	now     func() time.Time
	ttl     time.Duration
	entries *expirable.LRU[string, slotCacheEntry]
}

type slotCacheEntry struct {
	ranking   SlotRanking
	expiresAt time.Time
}

func newSlotCache(ttl time.Duration, maxEntries int, now func() time.Time) *slotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &slotCache{
		now:     now,
		ttl:     ttl,
		entries: expirable.NewLRU[string, slotCacheEntry](maxEntries, nil, ttl),
	}
}

func (c *slotCache) Get(key string) (SlotRanking, bool) {
	if c == nil {
		return SlotRanking{}, false
	}
	entry, ok := c.entries.Get(key)
	if !ok {
		return SlotRanking{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return SlotRanking{}, false
	}
	return cloneRanking(entry.ranking), true
}

func (c *slotCache) Store(key string, ranking SlotRanking) {
	if c == nil {
		return
	}
	c.entries.Add(key, slotCacheEntry{ranking: cloneRanking(ranking), expiresAt: c.now().Add(c.ttl)})
}

// InvalidateOwner drops every cached ranking for the owner's calendar.
func (c *slotCache) InvalidateOwner(ownerID string) {
	if c == nil {
		return
	}
	prefix := ownerID + "|"
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

func cloneRanking(ranking SlotRanking) SlotRanking {
	out := ranking
	if len(ranking.Slots) > 0 {
		out.Slots = make([]Slot, len(ranking.Slots))
		copy(out.Slots, ranking.Slots)
	}
	return out
}

func slotCacheKey(query SlotQuery) string {
	viewer := query.ViewerID
	if viewer == "" {
		viewer = "anonymous"
	}
	return query.OwnerID + "|" + viewer
}
