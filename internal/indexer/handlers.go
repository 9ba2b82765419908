package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tradelane/bolindexer/internal/chain"
	"github.com/tradelane/bolindexer/internal/domain"
)

// Handlers applies decoded events to the persisted store. One reducer per
// event kind, matched exhaustively; every reducer tolerates at-least-once
// delivery. The caller supplies the transaction scope, so a reducer's whole
// effect commits or rolls back as a unit.
type Handlers struct {
	reader chain.TradeStateReader
	logger *slog.Logger
	now    func() time.Time
}

// NewHandlers creates Handlers that resolve authoritative trade state through
// reader.
func NewHandlers(reader chain.TradeStateReader, logger *slog.Logger) *Handlers {
	return &Handlers{
		reader: reader,
		logger: logger.With(slog.String("component", "handlers")),
		now:    time.Now,
	}
}

// Apply dispatches ev to its reducer. Events outside the closed kind set
// return domain.ErrUnknownEvent.
func (h *Handlers) Apply(ctx context.Context, tx domain.Tx, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.CreatedEvent:
		return h.created(ctx, tx, e)
	case domain.ActiveEvent:
		return h.active(ctx, tx, e)
	case domain.InactiveEvent:
		return h.inactive(ctx, tx, e)
	case domain.FundedEvent:
		return h.funded(ctx, tx, e)
	case domain.FullEvent:
		// Fullness is derived from totals; the event itself carries no state.
		return nil
	case domain.PaidEvent:
		return h.paid(ctx, tx, e)
	case domain.ClaimedEvent:
		return h.claimed(ctx, tx, e)
	case domain.SettledEvent:
		return h.settled(ctx, tx, e)
	case domain.OfferEvent:
		return h.offer(ctx, tx, e)
	case domain.OfferAcceptedEvent:
		return h.offerAccepted(ctx, tx, e)
	default:
		return fmt.Errorf("indexer: %w: %T", domain.ErrUnknownEvent, ev)
	}
}

// created inserts the aggregate on first observation. The content hash comes
// from the contract's own trade state, not the event payload. Re-delivery and
// lost insert races are both no-ops.
func (h *Handlers) created(ctx context.Context, tx domain.Tx, e domain.CreatedEvent) error {
	st, err := h.reader.TradeState(ctx, e.Address)
	if err != nil {
		return fmt.Errorf("indexer: trade state for created %s: %w", e.Address.Hex(), err)
	}
	hash := st.Hash()

	if _, err := tx.Ladings().GetByHash(ctx, hash); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	minted := h.now().UTC()
	b := domain.BillOfLading{
		BOLHash:         hash,
		ContractAddress: e.Address.Hex(),
		BuyerWallet:     e.Buyer.Hex(),
		SellerWallet:    e.Seller.Hex(),
		DeclaredValue:   bigOrZero(e.DeclaredValue),
		BLNumber:        e.BLNumber,
		TotalFunded:     new(big.Int),
		TotalPaid:       new(big.Int),
		TotalClaimed:    new(big.Int),
		MintedAt:        &minted,
	}
	if err := tx.Ladings().Insert(ctx, b); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil
		}
		return err
	}

	h.logger.InfoContext(ctx, "bill of lading created",
		slog.String("hash", hash),
		slog.String("address", e.Address.Hex()),
		slog.Uint64("block", e.BlockNumber),
	)
	return nil
}

func (h *Handlers) active(ctx context.Context, tx domain.Tx, e domain.ActiveEvent) error {
	return h.mutate(ctx, tx, e.Address.Hex(), func(b *domain.BillOfLading) {
		b.Active = true
		if b.FundingEnabledAt == nil {
			t := h.now().UTC()
			b.FundingEnabledAt = &t
		}
	})
}

func (h *Handlers) inactive(ctx context.Context, tx domain.Tx, e domain.InactiveEvent) error {
	return h.mutate(ctx, tx, e.Address.Hex(), func(b *domain.BillOfLading) {
		b.Active = false
		if b.ArrivedAt == nil {
			t := h.now().UTC()
			b.ArrivedAt = &t
		}
	})
}

func (h *Handlers) funded(ctx context.Context, tx domain.Tx, e domain.FundedEvent) error {
	return h.mutate(ctx, tx, e.Address.Hex(), func(b *domain.BillOfLading) {
		b.TotalFunded = addBig(b.TotalFunded, e.Amount)
	})
}

func (h *Handlers) paid(ctx context.Context, tx domain.Tx, e domain.PaidEvent) error {
	return h.mutate(ctx, tx, e.Address.Hex(), func(b *domain.BillOfLading) {
		b.TotalPaid = addBig(b.TotalPaid, e.Amount)
		if b.PaidAt == nil {
			t := h.now().UTC()
			b.PaidAt = &t
		}
	})
}

func (h *Handlers) claimed(ctx context.Context, tx domain.Tx, e domain.ClaimedEvent) error {
	return h.mutate(ctx, tx, e.Address.Hex(), func(b *domain.BillOfLading) {
		b.TotalClaimed = addBig(b.TotalClaimed, e.Amount)
	})
}

// settled flips the flag true at most once; true→true is a no-op.
func (h *Handlers) settled(ctx context.Context, tx domain.Tx, e domain.SettledEvent) error {
	return h.mutate(ctx, tx, e.Address.Hex(), func(b *domain.BillOfLading) {
		b.Settled = true
		if b.SettledAt == nil {
			t := h.now().UTC()
			b.SettledAt = &t
		}
	})
}

// offer inserts the offer row with its derived claim amount on first
// observation. The parent aggregate is resolved from the store by emitting
// address, falling back to the on-chain trade state when the aggregate has
// not been indexed yet.
func (h *Handlers) offer(ctx context.Context, tx domain.Tx, e domain.OfferEvent) error {
	hash, err := h.resolveHash(ctx, tx, e.Address)
	if err != nil {
		return fmt.Errorf("indexer: resolve hash for offer %d on %s: %w", e.OfferID, e.Address.Hex(), err)
	}

	if _, err := tx.Offers().Get(ctx, hash, e.OfferID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	o := domain.Offer{
		BOLHash:         hash,
		OfferID:         e.OfferID,
		Investor:        e.Investor.Hex(),
		Amount:          bigOrZero(e.Amount),
		InterestRateBps: e.InterestRateBps,
		ClaimAmount:     domain.ClaimAmount(e.Amount, e.InterestRateBps),
		Accepted:        false,
	}
	if err := tx.Offers().Insert(ctx, o); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil
		}
		return err
	}

	h.logger.InfoContext(ctx, "offer created",
		slog.String("hash", hash),
		slog.Uint64("offer_id", e.OfferID),
		slog.String("investor", e.Investor.Hex()),
	)
	return nil
}

// offerAccepted marks the offer accepted and overwrites the aggregate's
// funded/paid totals from the authoritative on-chain trade state, correcting
// any drift the accumulation handlers introduced. Read-then-overwrite is
// itself idempotent.
func (h *Handlers) offerAccepted(ctx context.Context, tx domain.Tx, e domain.OfferAcceptedEvent) error {
	st, err := h.reader.TradeState(ctx, e.Contract())
	if err != nil {
		return fmt.Errorf("indexer: trade state for offer accept on %s: %w", e.Address.Hex(), err)
	}
	hash := st.Hash()

	offer, err := tx.Offers().Get(ctx, hash, e.OfferID)
	switch {
	case err == nil:
		if !offer.Accepted {
			offer.Accepted = true
			if err := tx.Offers().Update(ctx, offer); err != nil {
				return err
			}
		}
	case errors.Is(err, domain.ErrNotFound):
		h.logger.WarnContext(ctx, "accepted offer not found in store",
			slog.String("hash", hash),
			slog.Uint64("offer_id", e.OfferID),
		)
	default:
		return err
	}

	return h.mutate(ctx, tx, e.Address.Hex(), func(b *domain.BillOfLading) {
		b.TotalFunded = bigOrZero(st.TotalFunded)
		b.TotalPaid = bigOrZero(st.TotalPaid)
	})
}

// mutate loads the aggregate by contract address, applies fn, and writes it
// back. An aggregate that has never been indexed is logged and skipped, as
// there is no row to reconcile into.
func (h *Handlers) mutate(ctx context.Context, tx domain.Tx, address string, fn func(b *domain.BillOfLading)) error {
	b, err := tx.Ladings().GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "event for unknown contract, skipping",
				slog.String("address", address),
			)
			return nil
		}
		return err
	}
	fn(&b)
	return tx.Ladings().Update(ctx, b)
}

// resolveHash maps an emitting contract address to its aggregate hash.
func (h *Handlers) resolveHash(ctx context.Context, tx domain.Tx, address common.Address) (string, error) {
	b, err := tx.Ladings().GetByAddress(ctx, address.Hex())
	if err == nil {
		return b.BOLHash, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	st, err := h.reader.TradeState(ctx, address)
	if err != nil {
		return "", err
	}
	return st.Hash(), nil
}

func addBig(cur, delta *big.Int) *big.Int {
	sum := new(big.Int)
	if cur != nil {
		sum.Set(cur)
	}
	if delta != nil {
		sum.Add(sum, delta)
	}
	return sum
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
