package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tradelane/bolindexer/internal/domain"
)

// LadingStore implements domain.LadingStore using PostgreSQL.
type LadingStore struct {
	db querier
}

// NewLadingStore creates a LadingStore over q.
func NewLadingStore(q querier) *LadingStore {
	return &LadingStore{db: q}
}

const ladingColumns = `
	bol_hash, contract_address, buyer_wallet, seller_wallet,
	declared_value, bl_number, active, total_funded, total_paid,
	total_claimed, settled, minted_at, funding_enabled_at, arrived_at,
	paid_at, settled_at, created_at, updated_at`

// Insert creates a new aggregate row. A duplicate hash maps to
// domain.ErrAlreadyExists.
func (s *LadingStore) Insert(ctx context.Context, b domain.BillOfLading) error {
	const query = `
		INSERT INTO bill_of_ladings (
			bol_hash, contract_address, buyer_wallet, seller_wallet,
			declared_value, bl_number, active, total_funded, total_paid,
			total_claimed, settled, minted_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, NOW(), NOW()
		)`

	_, err := s.db.Exec(ctx, query,
		b.BOLHash, b.ContractAddress, b.BuyerWallet, b.SellerWallet,
		bigString(b.DeclaredValue), b.BLNumber, b.Active,
		bigString(b.TotalFunded), bigString(b.TotalPaid),
		bigString(b.TotalClaimed), b.Settled, b.MintedAt,
	)
	if err != nil {
		if mapped := mapInsertErr(err); errors.Is(mapped, domain.ErrAlreadyExists) {
			return mapped
		}
		return fmt.Errorf("postgres: insert bill of lading %s: %w", b.BOLHash, err)
	}
	return nil
}

// Update rewrites the mutable state of the row keyed by BOLHash.
func (s *LadingStore) Update(ctx context.Context, b domain.BillOfLading) error {
	const query = `
		UPDATE bill_of_ladings SET
			active             = $2,
			total_funded       = $3,
			total_paid         = $4,
			total_claimed      = $5,
			settled            = $6,
			funding_enabled_at = $7,
			arrived_at         = $8,
			paid_at            = $9,
			settled_at         = $10,
			updated_at         = NOW()
		WHERE bol_hash = $1`

	tag, err := s.db.Exec(ctx, query,
		b.BOLHash, b.Active,
		bigString(b.TotalFunded), bigString(b.TotalPaid), bigString(b.TotalClaimed),
		b.Settled, b.FundingEnabledAt, b.ArrivedAt, b.PaidAt, b.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bill of lading %s: %w", b.BOLHash, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByHash returns the aggregate with the given content hash.
func (s *LadingStore) GetByHash(ctx context.Context, hash string) (domain.BillOfLading, error) {
	query := `SELECT` + ladingColumns + ` FROM bill_of_ladings WHERE bol_hash = $1`
	return scanLading(s.db.QueryRow(ctx, query, hash))
}

// GetByAddress returns the aggregate emitted by the given contract address.
func (s *LadingStore) GetByAddress(ctx context.Context, address string) (domain.BillOfLading, error) {
	query := `SELECT` + ladingColumns + ` FROM bill_of_ladings WHERE contract_address = $1`
	return scanLading(s.db.QueryRow(ctx, query, address))
}

// List returns aggregates ordered by creation time, newest first.
func (s *LadingStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.BillOfLading, error) {
	query := `SELECT` + ladingColumns + `
		FROM bill_of_ladings
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bill of ladings: %w", err)
	}
	defer rows.Close()

	var out []domain.BillOfLading
	for rows.Next() {
		b, err := scanLading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bill of ladings: %w", err)
	}
	return out, nil
}

// ListAddresses returns the distinct contract addresses of all aggregates.
func (s *LadingStore) ListAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT contract_address FROM bill_of_ladings`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list addresses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("postgres: scan address: %w", err)
		}
		if addr != "" {
			out = append(out, addr)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list addresses: %w", err)
	}
	return out, nil
}

// scanLading scans one aggregate row.
func scanLading(row pgx.Row) (domain.BillOfLading, error) {
	var (
		b                                             domain.BillOfLading
		declaredValue, totalFunded, totalPaid, claims string
	)
	err := row.Scan(
		&b.BOLHash, &b.ContractAddress, &b.BuyerWallet, &b.SellerWallet,
		&declaredValue, &b.BLNumber, &b.Active, &totalFunded, &totalPaid,
		&claims, &b.Settled, &b.MintedAt, &b.FundingEnabledAt, &b.ArrivedAt,
		&b.PaidAt, &b.SettledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BillOfLading{}, domain.ErrNotFound
		}
		return domain.BillOfLading{}, fmt.Errorf("postgres: scan bill of lading: %w", err)
	}

	if b.DeclaredValue, err = parseBig(declaredValue); err != nil {
		return domain.BillOfLading{}, err
	}
	if b.TotalFunded, err = parseBig(totalFunded); err != nil {
		return domain.BillOfLading{}, err
	}
	if b.TotalPaid, err = parseBig(totalPaid); err != nil {
		return domain.BillOfLading{}, err
	}
	if b.TotalClaimed, err = parseBig(claims); err != nil {
		return domain.BillOfLading{}, err
	}
	return b, nil
}
