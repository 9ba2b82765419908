package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tradelane/bolindexer/internal/domain"
)

// OfferStore implements domain.OfferStore using PostgreSQL.
type OfferStore struct {
	db querier
}

// NewOfferStore creates an OfferStore over q.
func NewOfferStore(q querier) *OfferStore {
	return &OfferStore{db: q}
}

const offerColumns = `
	bol_hash, offer_id, investor, amount, interest_rate_bps,
	claim_amount, accepted, created_at, updated_at`

// Insert creates a new offer row. A duplicate (bol_hash, offer_id) maps to
// domain.ErrAlreadyExists.
func (s *OfferStore) Insert(ctx context.Context, o domain.Offer) error {
	const query = `
		INSERT INTO offers (
			bol_hash, offer_id, investor, amount, interest_rate_bps,
			claim_amount, accepted, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`

	_, err := s.db.Exec(ctx, query,
		o.BOLHash, int64(o.OfferID), o.Investor, bigString(o.Amount),
		int64(o.InterestRateBps), bigString(o.ClaimAmount), o.Accepted,
	)
	if err != nil {
		if mapped := mapInsertErr(err); errors.Is(mapped, domain.ErrAlreadyExists) {
			return mapped
		}
		return fmt.Errorf("postgres: insert offer %s/%d: %w", o.BOLHash, o.OfferID, err)
	}
	return nil
}

// Update rewrites the mutable state of an offer.
func (s *OfferStore) Update(ctx context.Context, o domain.Offer) error {
	const query = `
		UPDATE offers SET
			accepted   = $3,
			updated_at = NOW()
		WHERE bol_hash = $1 AND offer_id = $2`

	tag, err := s.db.Exec(ctx, query, o.BOLHash, int64(o.OfferID), o.Accepted)
	if err != nil {
		return fmt.Errorf("postgres: update offer %s/%d: %w", o.BOLHash, o.OfferID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get returns the offer with the given natural key.
func (s *OfferStore) Get(ctx context.Context, hash string, offerID uint64) (domain.Offer, error) {
	query := `SELECT` + offerColumns + ` FROM offers WHERE bol_hash = $1 AND offer_id = $2`
	return scanOffer(s.db.QueryRow(ctx, query, hash, int64(offerID)))
}

// ListByHash returns every offer against one bill of lading.
func (s *OfferStore) ListByHash(ctx context.Context, hash string) ([]domain.Offer, error) {
	query := `SELECT` + offerColumns + ` FROM offers WHERE bol_hash = $1 ORDER BY offer_id`
	rows, err := s.db.Query(ctx, query, hash)
	if err != nil {
		return nil, fmt.Errorf("postgres: list offers for %s: %w", hash, err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

// List returns offers ordered by creation time, newest first.
func (s *OfferStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Offer, error) {
	query := `SELECT` + offerColumns + `
		FROM offers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := s.db.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list offers: %w", err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

func collectOffers(rows pgx.Rows) ([]domain.Offer, error) {
	var out []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: collect offers: %w", err)
	}
	return out, nil
}

// scanOffer scans one offer row.
func scanOffer(row pgx.Row) (domain.Offer, error) {
	var (
		o               domain.Offer
		offerID, bps    int64
		amount, claimed string
	)
	err := row.Scan(
		&o.BOLHash, &offerID, &o.Investor, &amount, &bps,
		&claimed, &o.Accepted, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Offer{}, domain.ErrNotFound
		}
		return domain.Offer{}, fmt.Errorf("postgres: scan offer: %w", err)
	}

	o.OfferID = uint64(offerID)
	o.InterestRateBps = uint64(bps)
	if o.Amount, err = parseBig(amount); err != nil {
		return domain.Offer{}, err
	}
	if o.ClaimAmount, err = parseBig(claimed); err != nil {
		return domain.Offer{}, err
	}
	return o, nil
}
