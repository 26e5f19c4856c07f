package auth

import (
	"context"
	"time"

	"github.com/aryan0dhankhar/requestdesk/pkg/cache"
)

// Ledger records spent single-use tokens by jti. Consume returns false when the
// jti was already spent.
type Ledger interface {
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// KeyValueStore is the subset of the redis client the ledger needs.
type KeyValueStore interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// RedisLedger shares spent tokens across server instances.
type RedisLedger struct {
	kv KeyValueStore
}

func NewRedisLedger(kv KeyValueStore) *RedisLedger {
	return &RedisLedger{kv: kv}
}

func (l *RedisLedger) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	return l.kv.SetNX(ctx, ledgerKey(jti), "1", ttl)
}

// MemoryLedger keeps spent tokens in process memory.
type MemoryLedger struct {
	c *cache.Cache
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{c: cache.New()}
}

func (l *MemoryLedger) Consume(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	return l.c.SetIfAbsent(ledgerKey(jti), true, ttl), nil
}

func ledgerKey(jti string) string {
	return "token:spent:" + jti
}
