// Package memory provides an in-memory implementation of domain.Store for
// tests. All stores share one mutex, so WithTx gives the same serialized view
// a database transaction would (without rollback).
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/tradelane/bolindexer/internal/domain"
)

type offerKey struct {
	hash    string
	offerID uint64
}

// Store is a mutex-guarded domain.Store backed by maps.
type Store struct {
	mu      sync.Mutex
	ladings map[string]domain.BillOfLading // keyed by BOLHash
	offers  map[offerKey]domain.Offer
	cursors map[string]uint64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		ladings: make(map[string]domain.BillOfLading),
		offers:  make(map[offerKey]domain.Offer),
		cursors: make(map[string]uint64),
	}
}

func (s *Store) Ladings() domain.LadingStore { return (*ladingStore)(s) }
func (s *Store) Offers() domain.OfferStore   { return (*offerStore)(s) }
func (s *Store) Cursor() domain.CursorStore  { return (*cursorStore)(s) }

// WithTx runs fn against the store itself. Partial writes are not rolled back
// on error; tests that need rollback semantics should assert on the error
// instead.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return fn(s)
}

type ladingStore Store

func (s *ladingStore) Insert(ctx context.Context, b domain.BillOfLading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ladings[b.BOLHash]; ok {
		return domain.ErrAlreadyExists
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.ladings[b.BOLHash] = cloneLading(b)
	return nil
}

func (s *ladingStore) Update(ctx context.Context, b domain.BillOfLading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.ladings[b.BOLHash]
	if !ok {
		return domain.ErrNotFound
	}
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = time.Now()
	s.ladings[b.BOLHash] = cloneLading(b)
	return nil
}

func (s *ladingStore) GetByHash(ctx context.Context, hash string) (domain.BillOfLading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.ladings[hash]
	if !ok {
		return domain.BillOfLading{}, domain.ErrNotFound
	}
	return cloneLading(b), nil
}

func (s *ladingStore) GetByAddress(ctx context.Context, address string) (domain.BillOfLading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.ladings {
		if b.ContractAddress == address {
			return cloneLading(b), nil
		}
	}
	return domain.BillOfLading{}, domain.ErrNotFound
}

func (s *ladingStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.BillOfLading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]domain.BillOfLading, 0, len(s.ladings))
	for _, b := range s.ladings {
		all = append(all, cloneLading(b))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, opts), nil
}

func (s *ladingStore) ListAddresses(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.ladings))
	var out []string
	for _, b := range s.ladings {
		if b.ContractAddress == "" {
			continue
		}
		if _, ok := seen[b.ContractAddress]; ok {
			continue
		}
		seen[b.ContractAddress] = struct{}{}
		out = append(out, b.ContractAddress)
	}
	sort.Strings(out)
	return out, nil
}

type offerStore Store

func (s *offerStore) Insert(ctx context.Context, o domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey{o.BOLHash, o.OfferID}
	if _, ok := s.offers[key]; ok {
		return domain.ErrAlreadyExists
	}
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	s.offers[key] = cloneOffer(o)
	return nil
}

func (s *offerStore) Update(ctx context.Context, o domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey{o.BOLHash, o.OfferID}
	cur, ok := s.offers[key]
	if !ok {
		return domain.ErrNotFound
	}
	o.CreatedAt = cur.CreatedAt
	o.UpdatedAt = time.Now()
	s.offers[key] = cloneOffer(o)
	return nil
}

func (s *offerStore) Get(ctx context.Context, hash string, offerID uint64) (domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerKey{hash, offerID}]
	if !ok {
		return domain.Offer{}, domain.ErrNotFound
	}
	return cloneOffer(o), nil
}

func (s *offerStore) ListByHash(ctx context.Context, hash string) ([]domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Offer
	for _, o := range s.offers {
		if o.BOLHash == hash {
			out = append(out, cloneOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferID < out[j].OfferID })
	return out, nil
}

func (s *offerStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]domain.Offer, 0, len(s.offers))
	for _, o := range s.offers {
		all = append(all, cloneOffer(o))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, opts), nil
}

type cursorStore Store

func (s *cursorStore) Get(ctx context.Context, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.cursors[name]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return block, nil
}

func (s *cursorStore) Set(ctx context.Context, name string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = block
	return nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

func cloneLading(b domain.BillOfLading) domain.BillOfLading {
	b.DeclaredValue = cloneBig(b.DeclaredValue)
	b.TotalFunded = cloneBig(b.TotalFunded)
	b.TotalPaid = cloneBig(b.TotalPaid)
	b.TotalClaimed = cloneBig(b.TotalClaimed)
	return b
}

func cloneOffer(o domain.Offer) domain.Offer {
	o.Amount = cloneBig(o.Amount)
	o.ClaimAmount = cloneBig(o.ClaimAmount)
	return o
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
