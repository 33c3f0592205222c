package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockCmdable struct {
	hashes      map[string]map[string]string
	expireCalls []string
	published   map[string][]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		hashes:    map[string]map[string]string{},
		published: map[string][]string{},
	}
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (m *mockCmdable) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if m.hashes[key] == nil {
		m.hashes[key] = map[string]string{}
	}
	for i := 0; i+1 < len(values); i += 2 {
		field, _ := values[i].(string)
		switch v := values[i+1].(type) {
		case string:
			m.hashes[key][field] = v
		case []byte:
			m.hashes[key][field] = string(v)
		}
	}
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (m *mockCmdable) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	cmd.SetVal(m.hashes[key])
	return cmd
}

func (m *mockCmdable) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var removed int64
	for _, f := range fields {
		if _, ok := m.hashes[key][f]; ok {
			delete(m.hashes[key], f)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func (m *mockCmdable) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	m.expireCalls = append(m.expireCalls, key)
	cmd.SetVal(true)
	return cmd
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var removed int64
	for _, k := range keys {
		if _, ok := m.hashes[k]; ok {
			delete(m.hashes, k)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func (m *mockCmdable) Publish(ctx context.Context, channel string, payload any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if s, ok := payload.(string); ok {
		m.published[channel] = append(m.published[channel], s)
	}
	cmd.SetVal(1)
	return cmd
}

func TestHSetWithTTLRefreshesExpiry(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.LiveClaimKey("bill-1")
	if err := client.HSetWithTTL(ctx, key, "item:sess", "payload", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fields, err := client.HGetAll(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fields["item:sess"] != "payload" {
		t.Fatalf("expected field persisted, got %v", fields)
	}
	if len(mock.expireCalls) != 1 || mock.expireCalls[0] != key {
		t.Fatalf("expected expiry refresh on %s, got %v", key, mock.expireCalls)
	}
}

func TestLiveClaimKeyNamespacing(t *testing.T) {
	client := &Client{}
	if got := client.LiveClaimKey("abc"); got != "st:lc:abc" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := client.CounterKey("feed"); got != "st:counter:feed" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestPublishRequiresInitializedStore(t *testing.T) {
	client := &Client{}
	if err := client.Publish(context.Background(), "feed:bill", "x"); err == nil {
		t.Fatal("expected error for uninitialized client")
	}

	mock := newMockCmdable()
	client = &Client{store: mock}
	if err := client.Publish(context.Background(), "feed:bill", "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.published["feed:bill"]) != 1 {
		t.Fatalf("expected one published message, got %v", mock.published)
	}
}
