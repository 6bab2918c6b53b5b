package application

import (
	"testing"
	"time"
)

func TestSlotCacheStoresAndReturnsCopies(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newSlotCache(time.Minute, 4, func() time.Time { return current })

	original := SlotRanking{Slots: []Slot{{Label: "Mon 10:00"}}}
	cache.Store("owner|anonymous", original)
	original.Slots[0].Label = "mutated"

	cached, ok := cache.Get("owner|anonymous")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached.Slots[0].Label != "Mon 10:00" {
		t.Fatalf("expected cached slot to remain unchanged, got %s", cached.Slots[0].Label)
	}

	cached.Slots[0].Label = "changed"
	again, _ := cache.Get("owner|anonymous")
	if again.Slots[0].Label != "Mon 10:00" {
		t.Fatalf("expected independent copy, got %s", again.Slots[0].Label)
	}
}

func TestSlotCacheExpiresEntries(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newSlotCache(time.Second, 4, func() time.Time { return current })

	cache.Store("key", SlotRanking{})
	if _, ok := cache.Get("key"); !ok {
		t.Fatalf("expected cache hit before expiry")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.Get("key"); ok {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestSlotCacheInvalidateOwner(t *testing.T) {
	cache := newSlotCache(time.Minute, 8, time.Now)
	cache.Store(slotCacheKey(SlotQuery{OwnerID: "o1"}), SlotRanking{})
	cache.Store(slotCacheKey(SlotQuery{OwnerID: "o1", ViewerID: "v"}), SlotRanking{})
	cache.Store(slotCacheKey(SlotQuery{OwnerID: "o2"}), SlotRanking{})

	cache.InvalidateOwner("o1")

	if _, ok := cache.Get("o1|anonymous"); ok {
		t.Fatalf("expected o1 anonymous entry to be dropped")
	}
	if _, ok := cache.Get("o1|v"); ok {
		t.Fatalf("expected o1 viewer entry to be dropped")
	}
	if _, ok := cache.Get("o2|anonymous"); !ok {
		t.Fatalf("expected o2 entry to survive")
	}
}

func TestSlotCacheBoundsEntries(t *testing.T) {
	cache := newSlotCache(time.Minute, 2, time.Now)
	cache.Store("o1|a", SlotRanking{})
	cache.Store("o1|b", SlotRanking{})
	cache.Store("o1|c", SlotRanking{})

	if _, ok := cache.Get("o1|a"); ok {
		t.Fatalf("expected least recently used entry to be evicted")
	}
	if _, ok := cache.Get("o1|c"); !ok {
		t.Fatalf("expected newest entry to be cached")
	}
}
