package relay

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPendingStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	store := NewMemoryPendingStore(time.Hour)
	store.now = func() time.Time { return now }

	if err := store.Put(ctx, 1, "10.01.2026 20:00"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, 2, "11.01.2026 21:00"); err != nil {
		t.Fatal(err)
	}

	now = now.Add(30 * time.Minute)
	if v, found, err := store.Pop(ctx, 1); err != nil || !found || v != "10.01.2026 20:00" {
		t.Fatalf("Pop before expiry = %q, %v, %v", v, found, err)
	}

	now = now.Add(time.Hour)
	if v, found, err := store.Pop(ctx, 2); err != nil || found || v != "" {
		t.Errorf("Pop after expiry = %q, %v, %v", v, found, err)
	}
}

func TestMemoryPendingStoreEvictExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	store := NewMemoryPendingStore(time.Hour)
	store.now = func() time.Time { return now }

	for id := int64(1); id <= 3; id++ {
		if err := store.Put(ctx, id, "x"); err != nil {
			t.Fatal(err)
		}
	}
	now = now.Add(2 * time.Hour)
	if err := store.Put(ctx, 4, "fresh"); err != nil {
		t.Fatal(err)
	}

	if n := store.EvictExpired(); n != 3 {
		t.Errorf("EvictExpired = %d, want 3", n)
	}
	if v, found, _ := store.Pop(ctx, 4); !found || v != "fresh" {
		t.Errorf("fresh value lost: %q, %v", v, found)
	}
}

func TestMemoryPendingStoreNoTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	store := NewMemoryPendingStore(0)
	store.now = func() time.Time { return now }

	if err := store.Put(ctx, 1, "x"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(24 * 365 * time.Hour)
	if n := store.EvictExpired(); n != 0 {
		t.Errorf("EvictExpired without ttl = %d", n)
	}
	if _, found, _ := store.Pop(ctx, 1); !found {
		t.Error("value without ttl expired")
	}
}
