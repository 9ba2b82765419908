package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// LadingStore persists bill-of-lading aggregates.
type LadingStore interface {
	// Insert creates a new row. It returns ErrAlreadyExists when a row with
	// the same BOLHash is already present (including when a concurrent writer
	// won the race), so callers can treat re-delivery as a no-op.
	Insert(ctx context.Context, b BillOfLading) error
	// Update rewrites the mutable state of an existing row, keyed by BOLHash.
	Update(ctx context.Context, b BillOfLading) error
	GetByHash(ctx context.Context, hash string) (BillOfLading, error)
	GetByAddress(ctx context.Context, address string) (BillOfLading, error)
	List(ctx context.Context, opts ListOpts) ([]BillOfLading, error)
	// ListAddresses returns the distinct contract addresses of all known
	// aggregates; it seeds each poll iteration's address set.
	ListAddresses(ctx context.Context) ([]string, error)
}

// OfferStore persists offers keyed by (BOLHash, OfferID).
type OfferStore interface {
	// Insert creates a new offer row; ErrAlreadyExists on a duplicate key.
	Insert(ctx context.Context, o Offer) error
	Update(ctx context.Context, o Offer) error
	Get(ctx context.Context, hash string, offerID uint64) (Offer, error)
	ListByHash(ctx context.Context, hash string) ([]Offer, error)
	List(ctx context.Context, opts ListOpts) ([]Offer, error)
}

// CursorStore persists named block cursors.
type CursorStore interface {
	// Get returns the cursor value, or ErrNotFound when the cursor has never
	// been written (cold start).
	Get(ctx context.Context, name string) (uint64, error)
	Set(ctx context.Context, name string, block uint64) error
}

// Tx is the store view handed to event handlers. All writes performed
// through it belong to one transaction: the handler's effect commits or rolls
// back atomically, on every exit path.
type Tx interface {
	Ladings() LadingStore
	Offers() OfferStore
	Cursor() CursorStore
}

// Store is the root persistence interface. Methods inherited from Tx run in
// auto-commit mode; WithTx scopes fn to a single transaction that is
// committed when fn returns nil and rolled back otherwise.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
