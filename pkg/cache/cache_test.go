package cache

import (
	"testing"
	"time"
)

func TestGetReturnsFreshValue(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	c := NewTTL[string](5*time.Minute, func() time.Time { return now })
	c.Set("plan:shop-1", "sp_123")

	got, ok := c.Get("plan:shop-1")
	if !ok || got != "sp_123" {
		t.Fatalf("expected cached value, got %q ok=%t", got, ok)
	}
}

func TestGetEvictsExpiredValue(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	c := NewTTL[string](5*time.Minute, func() time.Time { return now })
	c.Set("plan:shop-1", "sp_123")

	now = now.Add(6 * time.Minute)
	if _, ok := c.Get("plan:shop-1"); ok {
		t.Fatalf("expected expiry after ttl elapsed")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be evicted")
	}
}

func TestSetRefreshesExpiry(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	c := NewTTL[int](5*time.Minute, func() time.Time { return now })
	c.Set("k", 1)

	now = now.Add(4 * time.Minute)
	c.Set("k", 2)

	now = now.Add(4 * time.Minute)
	got, ok := c.Get("k")
	if !ok || got != 2 {
		t.Fatalf("expected refreshed entry, got %d ok=%t", got, ok)
	}
}
