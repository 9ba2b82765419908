package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradelane/bolindexer/internal/domain"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, letting
// the same store code run in auto-commit mode or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store on PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	ladings *LadingStore
	offers  *OfferStore
	cursor  *CursorStore
}

// NewStore creates a Store over the client's connection pool.
func NewStore(client *Client) *Store {
	pool := client.Pool()
	return &Store{
		pool:    pool,
		ladings: &LadingStore{db: pool},
		offers:  &OfferStore{db: pool},
		cursor:  &CursorStore{db: pool},
	}
}

// Ladings returns the auto-commit lading store.
func (s *Store) Ladings() domain.LadingStore { return s.ladings }

// Offers returns the auto-commit offer store.
func (s *Store) Offers() domain.OfferStore { return s.offers }

// Cursor returns the auto-commit cursor store.
func (s *Store) Cursor() domain.CursorStore { return s.cursor }

// WithTx runs fn with a store view bound to one transaction. The transaction
// commits when fn returns nil and rolls back otherwise; rollback also covers
// panics and early returns because it is deferred.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	view := &txView{
		ladings: &LadingStore{db: tx},
		offers:  &OfferStore{db: tx},
		cursor:  &CursorStore{db: tx},
	}
	if err := fn(view); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// txView is the transaction-bound implementation of domain.Tx.
type txView struct {
	ladings *LadingStore
	offers  *OfferStore
	cursor  *CursorStore
}

func (v *txView) Ladings() domain.LadingStore { return v.ladings }
func (v *txView) Offers() domain.OfferStore   { return v.offers }
func (v *txView) Cursor() domain.CursorStore  { return v.cursor }

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// mapInsertErr converts a unique violation into domain.ErrAlreadyExists so
// handlers can treat lost insert races as no-ops.
func mapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrAlreadyExists
	}
	return err
}

// bigString renders a big.Int for TEXT columns; nil becomes "0".
func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseBig parses a TEXT column back into a big.Int; empty becomes 0.
func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: invalid numeric value %q", s)
	}
	return v, nil
}
