package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/splittab/splittab-backend/pkg/config"
)

// LiveClaim is a provisional, pre-submit claim held while a guest is still
// deciding. It expires on its own; nothing durable references it.
type LiveClaim struct {
	BillID      string    `json:"bill_id"`
	ItemID      string    `json:"item_id"`
	SessionID   string    `json:"session_id"`
	DisplayName string    `json:"display_name"`
	Quantity    float64   `json:"quantity"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the claim's hold has lapsed at the given instant.
func (c LiveClaim) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// LiveClaimStore holds the ephemeral claims for each bill.
type LiveClaimStore interface {
	Upsert(ctx context.Context, billID, itemID, sessionID, displayName string, quantity float64) error
	ListByBill(ctx context.Context, billID string) ([]LiveClaim, error)
	Release(ctx context.Context, billID, itemID, sessionID string) error
	ReleaseSession(ctx context.Context, billID, sessionID string) error
}

type liveClaimRedis interface {
	LiveClaimKey(billID string) string
	HSetWithTTL(ctx context.Context, key, field string, value any, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
}

// RedisLiveClaimStore keeps each bill's live claims in one Redis hash keyed
// by item and session. The hash TTL is refreshed on every write so an active
// table keeps its claims warm, while each field carries its own expiry that
// readers filter on; an abandoned bill's whole hash falls out of Redis once
// the last TTL lapses.
type RedisLiveClaimStore struct {
	redis liveClaimRedis
	ttl   time.Duration
	now   func() time.Time
}

// NewRedisLiveClaimStore builds the store with the configured claim TTL.
func NewRedisLiveClaimStore(client liveClaimRedis, cfg config.ClaimsConfig) (*RedisLiveClaimStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	ttl := cfg.LiveClaimTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLiveClaimStore{redis: client, ttl: ttl, now: time.Now}, nil
}

// Upsert writes or refreshes one session's live claim on one item. A zero
// quantity releases the claim instead of storing a no-op hold.
func (s *RedisLiveClaimStore) Upsert(ctx context.Context, billID, itemID, sessionID, displayName string, quantity float64) error {
	if billID == "" || itemID == "" || sessionID == "" {
		return fmt.Errorf("live claim requires bill, item and session ids")
	}
	if quantity <= 0 {
		return s.Release(ctx, billID, itemID, sessionID)
	}
	claim := LiveClaim{
		BillID:      billID,
		ItemID:      itemID,
		SessionID:   sessionID,
		DisplayName: displayName,
		Quantity:    quantity,
		ExpiresAt:   s.now().Add(s.ttl).UTC(),
	}
	payload, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("encoding live claim: %w", err)
	}
	return s.redis.HSetWithTTL(ctx, s.redis.LiveClaimKey(billID), fieldKey(itemID, sessionID), payload, s.ttl)
}

// ListByBill returns the bill's non-expired live claims. Expired fields are
// skipped, not deleted; the hash TTL reaps them eventually.
func (s *RedisLiveClaimStore) ListByBill(ctx context.Context, billID string) ([]LiveClaim, error) {
	fields, err := s.redis.HGetAll(ctx, s.redis.LiveClaimKey(billID))
	if err != nil {
		return nil, err
	}
	now := s.now()
	claims := make([]LiveClaim, 0, len(fields))
	for _, raw := range fields {
		var claim LiveClaim
		if err := json.Unmarshal([]byte(raw), &claim); err != nil {
			continue
		}
		if claim.Expired(now) {
			continue
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// AnyHolding reports whether any session still holds an unexpired claim on
// the item.
func (s *RedisLiveClaimStore) AnyHolding(ctx context.Context, billID, itemID string) (bool, error) {
	claims, err := s.ListByBill(ctx, billID)
	if err != nil {
		return false, err
	}
	for _, claim := range claims {
		if claim.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

// Release drops one session's claim on one item.
func (s *RedisLiveClaimStore) Release(ctx context.Context, billID, itemID, sessionID string) error {
	return s.redis.HDel(ctx, s.redis.LiveClaimKey(billID), fieldKey(itemID, sessionID))
}

// ReleaseSession drops every claim the session holds on the bill, typically
// right after its selection is finalized. The session may have live-claimed
// items it never submitted; those holds go too.
func (s *RedisLiveClaimStore) ReleaseSession(ctx context.Context, billID, sessionID string) error {
	key := s.redis.LiveClaimKey(billID)
	all, err := s.redis.HGetAll(ctx, key)
	if err != nil {
		return err
	}
	suffix := ":" + sessionID
	var fields []string
	for field := range all {
		if strings.HasSuffix(field, suffix) {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return s.redis.HDel(ctx, key, fields...)
}

func fieldKey(itemID, sessionID string) string {
	return itemID + ":" + sessionID
}
