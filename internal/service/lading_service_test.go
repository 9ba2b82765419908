package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelane/bolindexer/internal/domain"
	"github.com/tradelane/bolindexer/internal/store/memory"
)

const (
	svcHash = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	svcAddr = "0x1111111111111111111111111111111111111111"
)

// mapCache is an in-memory domain.LadingCache that counts operations.
type mapCache struct {
	mu      sync.Mutex
	byHash  map[string]domain.BillOfLading
	byAddr  map[string]string
	sets    int
	setErr  error
	invErr  error
	invoked []string
}

func newMapCache() *mapCache {
	return &mapCache{
		byHash: make(map[string]domain.BillOfLading),
		byAddr: make(map[string]string),
	}
}

func (c *mapCache) Set(_ context.Context, b domain.BillOfLading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.sets++
	c.byHash[b.BOLHash] = b
	c.byAddr[b.ContractAddress] = b.BOLHash
	return nil
}

func (c *mapCache) GetByHash(_ context.Context, hash string) (domain.BillOfLading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.byHash[hash]
	if !ok {
		return domain.BillOfLading{}, domain.ErrNotFound
	}
	return b, nil
}

func (c *mapCache) GetByAddress(_ context.Context, address string) (domain.BillOfLading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash, ok := c.byAddr[address]
	if !ok {
		return domain.BillOfLading{}, domain.ErrNotFound
	}
	return c.byHash[hash], nil
}

func (c *mapCache) Invalidate(_ context.Context, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invoked = append(c.invoked, hash)
	if c.invErr != nil {
		return c.invErr
	}
	delete(c.byHash, hash)
	return nil
}

func seedLading(t *testing.T, store *memory.Store) {
	t.Helper()
	require.NoError(t, store.Ladings().Insert(context.Background(), domain.BillOfLading{
		BOLHash:         svcHash,
		ContractAddress: svcAddr,
		DeclaredValue:   big.NewInt(1000),
		TotalFunded:     new(big.Int),
		TotalPaid:       new(big.Int),
		TotalClaimed:    new(big.Int),
	}))
}

func TestGetByHashBackfillsCache(t *testing.T) {
	store := memory.NewStore()
	seedLading(t, store)
	cache := newMapCache()
	svc := NewLadingService(store.Ladings(), store.Offers(), cache, slog.New(slog.DiscardHandler))

	b, err := svc.GetByHash(context.Background(), svcHash)
	require.NoError(t, err)
	assert.Equal(t, svcHash, b.BOLHash)
	assert.Equal(t, 1, cache.sets)

	// Second read hits the cache without another backfill.
	_, err = svc.GetByHash(context.Background(), svcHash)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
}

func TestGetByHashServesFromCacheFirst(t *testing.T) {
	// Empty store; only the cache holds the aggregate.
	store := memory.NewStore()
	cache := newMapCache()
	require.NoError(t, cache.Set(context.Background(), domain.BillOfLading{
		BOLHash:         svcHash,
		ContractAddress: svcAddr,
	}))
	cache.sets = 0
	svc := NewLadingService(store.Ladings(), store.Offers(), cache, slog.New(slog.DiscardHandler))

	b, err := svc.GetByHash(context.Background(), svcHash)
	require.NoError(t, err)
	assert.Equal(t, svcHash, b.BOLHash)
}

func TestGetByHashNotFound(t *testing.T) {
	store := memory.NewStore()
	svc := NewLadingService(store.Ladings(), store.Offers(), nil, slog.New(slog.DiscardHandler))

	_, err := svc.GetByHash(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetByAddress(t *testing.T) {
	store := memory.NewStore()
	seedLading(t, store)
	svc := NewLadingService(store.Ladings(), store.Offers(), nil, slog.New(slog.DiscardHandler))

	b, err := svc.GetByAddress(context.Background(), svcAddr)
	require.NoError(t, err)
	assert.Equal(t, svcHash, b.BOLHash)
}

func TestGetByHashSurvivesCacheSetFailure(t *testing.T) {
	store := memory.NewStore()
	seedLading(t, store)
	cache := newMapCache()
	cache.setErr = errors.New("redis down")
	svc := NewLadingService(store.Ladings(), store.Offers(), cache, slog.New(slog.DiscardHandler))

	b, err := svc.GetByHash(context.Background(), svcHash)
	require.NoError(t, err)
	assert.Equal(t, svcHash, b.BOLHash)
}

func TestInvalidate(t *testing.T) {
	store := memory.NewStore()
	cache := newMapCache()
	require.NoError(t, cache.Set(context.Background(), domain.BillOfLading{BOLHash: svcHash}))
	svc := NewLadingService(store.Ladings(), store.Offers(), cache, slog.New(slog.DiscardHandler))

	svc.Invalidate(context.Background(), svcHash)
	assert.Equal(t, []string{svcHash}, cache.invoked)

	_, err := cache.GetByHash(context.Background(), svcHash)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOffersByHash(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Offers().Insert(context.Background(), domain.Offer{
		BOLHash:     svcHash,
		OfferID:     1,
		Amount:      big.NewInt(500),
		ClaimAmount: big.NewInt(525),
	}))
	svc := NewLadingService(store.Ladings(), store.Offers(), nil, slog.New(slog.DiscardHandler))

	offers, err := svc.OffersByHash(context.Background(), svcHash)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, uint64(1), offers[0].OfferID)
}
