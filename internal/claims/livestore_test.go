package claims

import (
	"context"
	"testing"
	"time"

	"github.com/splittab/splittab-backend/pkg/config"
)

type fakeClaimRedis struct {
	hashes      map[string]map[string]string
	expireCalls int
}

func newFakeClaimRedis() *fakeClaimRedis {
	return &fakeClaimRedis{hashes: make(map[string]map[string]string)}
}

func (f *fakeClaimRedis) LiveClaimKey(billID string) string {
	return "st:lc:" + billID
}

func (f *fakeClaimRedis) HSetWithTTL(_ context.Context, key, field string, value any, _ time.Duration) error {
	hash, ok := f.hashes[key]
	if !ok {
		hash = make(map[string]string)
		f.hashes[key] = hash
	}
	switch v := value.(type) {
	case []byte:
		hash[field] = string(v)
	case string:
		hash[field] = v
	}
	f.expireCalls++
	return nil
}

func (f *fakeClaimRedis) HGetAll(_ context.Context, key string) (map[string]string, error) {
	out := make(map[string]string)
	for field, value := range f.hashes[key] {
		out[field] = value
	}
	return out, nil
}

func (f *fakeClaimRedis) HDel(_ context.Context, key string, fields ...string) error {
	for _, field := range fields {
		delete(f.hashes[key], field)
	}
	return nil
}

func newLiveStore(t *testing.T) (*RedisLiveClaimStore, *fakeClaimRedis) {
	t.Helper()
	conn := newFakeClaimRedis()
	store, err := NewRedisLiveClaimStore(conn, config.ClaimsConfig{LiveClaimTTL: 2 * time.Minute})
	if err != nil {
		t.Fatalf("NewRedisLiveClaimStore failed: %v", err)
	}
	return store, conn
}

func TestLiveClaimStoreUpsertAndList(t *testing.T) {
	store, conn := newLiveStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "bill-1", "item-1", "sess-1", "Ana", 2); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, "bill-1", "item-1", "sess-2", "Ben", 1); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	claims, err := store.ListByBill(ctx, "bill-1")
	if err != nil {
		t.Fatalf("ListByBill failed: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("got %d claims, want 2", len(claims))
	}
	for _, claim := range claims {
		if claim.ExpiresAt.IsZero() {
			t.Fatal("claim missing expiry")
		}
	}
	// Each write refreshes the hash TTL.
	if conn.expireCalls != 2 {
		t.Fatalf("expire called %d times, want 2", conn.expireCalls)
	}
}

func TestLiveClaimStoreUpsertReplacesSameField(t *testing.T) {
	store, _ := newLiveStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "bill-1", "item-1", "sess-1", "Ana", 2); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, "bill-1", "item-1", "sess-1", "Ana", 3); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	claims, err := store.ListByBill(ctx, "bill-1")
	if err != nil {
		t.Fatalf("ListByBill failed: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("got %d claims, want 1", len(claims))
	}
	if claims[0].Quantity != 3 {
		t.Fatalf("quantity = %v, want 3", claims[0].Quantity)
	}
}

func TestLiveClaimStoreZeroQuantityReleases(t *testing.T) {
	store, _ := newLiveStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "bill-1", "item-1", "sess-1", "Ana", 2); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, "bill-1", "item-1", "sess-1", "Ana", 0); err != nil {
		t.Fatalf("zero-quantity upsert failed: %v", err)
	}

	claims, err := store.ListByBill(ctx, "bill-1")
	if err != nil {
		t.Fatalf("ListByBill failed: %v", err)
	}
	if len(claims) != 0 {
		t.Fatalf("got %d claims, want 0", len(claims))
	}
}

func TestLiveClaimStoreFiltersExpired(t *testing.T) {
	store, _ := newLiveStore(t)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }
	if err := store.Upsert(ctx, "bill-1", "item-1", "sess-1", "Ana", 2); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, "bill-1", "item-2", "sess-2", "Ben", 1); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Jump past the TTL for the first claim only by refreshing the second.
	store.now = func() time.Time { return now.Add(90 * time.Second) }
	if err := store.Upsert(ctx, "bill-1", "item-2", "sess-2", "Ben", 1); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	store.now = func() time.Time { return now.Add(3 * time.Minute) }
	claims, err := store.ListByBill(ctx, "bill-1")
	if err != nil {
		t.Fatalf("ListByBill failed: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("got %d claims, want the refreshed one only", len(claims))
	}
	if claims[0].ItemID != "item-2" {
		t.Fatalf("surviving claim = %+v", claims[0])
	}
}

func TestLiveClaimStoreReleaseSession(t *testing.T) {
	store, _ := newLiveStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "bill-1", "item-1", "sess-1", "Ana", 2); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, "bill-1", "item-2", "sess-1", "Ana", 1); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, "bill-1", "item-1", "sess-2", "Ben", 1); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Every hold the session has on the bill goes, submitted or not.
	if err := store.ReleaseSession(ctx, "bill-1", "sess-1"); err != nil {
		t.Fatalf("ReleaseSession failed: %v", err)
	}

	claims, err := store.ListByBill(ctx, "bill-1")
	if err != nil {
		t.Fatalf("ListByBill failed: %v", err)
	}
	if len(claims) != 1 || claims[0].SessionID != "sess-2" {
		t.Fatalf("unexpected claims %v", claims)
	}

	// Releasing a session with no holds is a no-op, not an error.
	if err := store.ReleaseSession(ctx, "bill-1", "sess-9"); err != nil {
		t.Fatalf("ReleaseSession for absent session failed: %v", err)
	}
}
