package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tradelane/bolindexer/internal/domain"
)

// CursorStore implements domain.CursorStore using PostgreSQL. Cursors are
// persisted so a restart resumes from the last fully processed block instead
// of recomputing from a safety margin.
type CursorStore struct {
	db querier
}

// NewCursorStore creates a CursorStore over q.
func NewCursorStore(q querier) *CursorStore {
	return &CursorStore{db: q}
}

// Get returns the named cursor, or domain.ErrNotFound when it has never been
// written.
func (s *CursorStore) Get(ctx context.Context, name string) (uint64, error) {
	var block int64
	err := s.db.QueryRow(ctx,
		`SELECT last_block FROM cursors WHERE name = $1`, name,
	).Scan(&block)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: get cursor %s: %w", name, err)
	}
	return uint64(block), nil
}

// Set upserts the named cursor.
func (s *CursorStore) Set(ctx context.Context, name string, block uint64) error {
	const query = `
		INSERT INTO cursors (name, last_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			last_block = EXCLUDED.last_block,
			updated_at = NOW()`

	if _, err := s.db.Exec(ctx, query, name, int64(block)); err != nil {
		return fmt.Errorf("postgres: set cursor %s: %w", name, err)
	}
	return nil
}
