package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradelane/bolindexer/internal/domain"
)

const ladingTTL = 5 * time.Minute

// LadingCache implements domain.LadingCache using Redis hashes with JSON-
// serialized aggregates and a secondary address-to-hash index.
//
// Key schema:
//
//	bol:{hash}            - hash with field "data" containing JSON
//	bol:address:{address} - string value of the BOL hash
type LadingCache struct {
	rdb *redis.Client
}

// NewLadingCache creates a LadingCache backed by the given Client.
func NewLadingCache(c *Client) *LadingCache {
	return &LadingCache{rdb: c.Underlying()}
}

func ladingKey(hash string) string        { return "bol:" + hash }
func ladingAddressKey(addr string) string { return "bol:address:" + addr }

// Set stores an aggregate in the cache with a 5-minute TTL and indexes its
// contract address back to the hash.
func (lc *LadingCache) Set(ctx context.Context, b domain.BillOfLading) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("redis: marshal bill of lading %s: %w", b.BOLHash, err)
	}

	key := ladingKey(b.BOLHash)

	pipe := lc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, ladingTTL)
	if b.ContractAddress != "" {
		pipe.Set(ctx, ladingAddressKey(b.ContractAddress), b.BOLHash, ladingTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set bill of lading %s: %w", b.BOLHash, err)
	}
	return nil
}

// GetByHash retrieves an aggregate by its content hash.
// It returns domain.ErrNotFound when the key does not exist.
func (lc *LadingCache) GetByHash(ctx context.Context, hash string) (domain.BillOfLading, error) {
	data, err := lc.rdb.HGet(ctx, ladingKey(hash), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BillOfLading{}, domain.ErrNotFound
		}
		return domain.BillOfLading{}, fmt.Errorf("redis: get bill of lading %s: %w", hash, err)
	}

	var b domain.BillOfLading
	if err := json.Unmarshal(data, &b); err != nil {
		return domain.BillOfLading{}, fmt.Errorf("redis: unmarshal bill of lading %s: %w", hash, err)
	}
	return b, nil
}

// GetByAddress looks up an aggregate by its emitting contract address.
// It returns domain.ErrNotFound if the address mapping or entry does not exist.
func (lc *LadingCache) GetByAddress(ctx context.Context, address string) (domain.BillOfLading, error) {
	hash, err := lc.rdb.Get(ctx, ladingAddressKey(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BillOfLading{}, domain.ErrNotFound
		}
		return domain.BillOfLading{}, fmt.Errorf("redis: get bill of lading by address %s: %w", address, err)
	}

	return lc.GetByHash(ctx, hash)
}

// Invalidate removes an aggregate and its address index entry from the cache.
func (lc *LadingCache) Invalidate(ctx context.Context, hash string) error {
	// Read the entry first so the reverse index can be cleaned up too.
	b, err := lc.GetByHash(ctx, hash)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate bill of lading %s: %w", hash, err)
	}

	pipe := lc.rdb.TxPipeline()
	pipe.Del(ctx, ladingKey(hash))
	if err == nil && b.ContractAddress != "" {
		pipe.Del(ctx, ladingAddressKey(b.ContractAddress))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate bill of lading %s: %w", hash, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LadingCache = (*LadingCache)(nil)
