// Package service contains the read-side services backing the HTTP API.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tradelane/bolindexer/internal/domain"
)

// LadingService serves bill-of-lading and offer queries, with a read-through
// cache in front of the persistent store. The cache is optional; a nil cache
// sends every read to the store.
type LadingService struct {
	ladings domain.LadingStore
	offers  domain.OfferStore
	cache   domain.LadingCache
	logger  *slog.Logger
}

// NewLadingService creates a LadingService.
func NewLadingService(
	ladings domain.LadingStore,
	offers domain.OfferStore,
	cache domain.LadingCache,
	logger *slog.Logger,
) *LadingService {
	return &LadingService{
		ladings: ladings,
		offers:  offers,
		cache:   cache,
		logger:  logger,
	}
}

// GetByHash retrieves an aggregate by content hash, checking the cache first
// and falling back to the persistent store on a miss.
func (s *LadingService) GetByHash(ctx context.Context, hash string) (domain.BillOfLading, error) {
	if s.cache != nil {
		if b, err := s.cache.GetByHash(ctx, hash); err == nil {
			return b, nil
		}
	}

	b, err := s.ladings.GetByHash(ctx, hash)
	if err != nil {
		return domain.BillOfLading{}, fmt.Errorf("lading_service: get by hash %q: %w", hash, err)
	}

	s.backfill(ctx, b)
	return b, nil
}

// GetByAddress retrieves an aggregate by its emitting contract address.
func (s *LadingService) GetByAddress(ctx context.Context, address string) (domain.BillOfLading, error) {
	if s.cache != nil {
		if b, err := s.cache.GetByAddress(ctx, address); err == nil {
			return b, nil
		}
	}

	b, err := s.ladings.GetByAddress(ctx, address)
	if err != nil {
		return domain.BillOfLading{}, fmt.Errorf("lading_service: get by address %q: %w", address, err)
	}

	s.backfill(ctx, b)
	return b, nil
}

// List returns aggregates directly from the persistent store.
func (s *LadingService) List(ctx context.Context, opts domain.ListOpts) ([]domain.BillOfLading, error) {
	out, err := s.ladings.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("lading_service: list: %w", err)
	}
	return out, nil
}

// OffersByHash returns the offers made against one bill of lading.
func (s *LadingService) OffersByHash(ctx context.Context, hash string) ([]domain.Offer, error) {
	out, err := s.offers.ListByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("lading_service: offers for %q: %w", hash, err)
	}
	return out, nil
}

// ListOffers returns offers across all aggregates, newest first.
func (s *LadingService) ListOffers(ctx context.Context, opts domain.ListOpts) ([]domain.Offer, error) {
	out, err := s.offers.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("lading_service: list offers: %w", err)
	}
	return out, nil
}

// Invalidate drops the cached entry for a hash after the indexer rewrites it.
func (s *LadingService) Invalidate(ctx context.Context, hash string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, hash); err != nil {
		s.logger.WarnContext(ctx, "lading_service: cache invalidate failed",
			slog.String("bol_hash", hash),
			slog.String("error", err.Error()),
		)
		// Non-fatal: the cache will eventually expire on its own.
	}
}

// backfill writes a freshly loaded aggregate into the cache; failures are
// logged and ignored.
func (s *LadingService) backfill(ctx context.Context, b domain.BillOfLading) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, b); err != nil {
		s.logger.WarnContext(ctx, "lading_service: cache set failed",
			slog.String("bol_hash", b.BOLHash),
			slog.String("error", err.Error()),
		)
	}
}
