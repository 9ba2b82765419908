package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies one of the BillOfLading contract's event types. The
// set is closed: the decoder only ever produces the kinds enumerated below,
// and handlers match them exhaustively.
type EventKind string

const (
	KindCreated       EventKind = "Created"
	KindActive        EventKind = "Active"
	KindInactive      EventKind = "Inactive"
	KindFunded        EventKind = "Funded"
	KindFull          EventKind = "Full"
	KindPaid          EventKind = "Paid"
	KindClaimed       EventKind = "Claimed"
	KindSettled       EventKind = "Settled"
	KindOffer         EventKind = "Offer"
	KindOfferAccepted EventKind = "OfferAccepted"
)

// PollKinds lists the event kinds fetched in the generic per-address pass.
// Created is excluded: discovery handles it across all addresses so that a
// contract's own creation event is never missed in the window it was found.
func PollKinds() []EventKind {
	return []EventKind{
		KindActive, KindInactive, KindFunded, KindFull,
		KindPaid, KindClaimed, KindSettled, KindOffer, KindOfferAccepted,
	}
}

// Event is a decoded contract log. Implementations form a sealed set; event
// handlers type-switch over the concrete types and treat anything else as
// ErrUnknownEvent.
type Event interface {
	Kind() EventKind
	Contract() common.Address
	Block() uint64
	sealedEvent()
}

// EventMeta carries the log coordinates shared by every decoded event.
type EventMeta struct {
	Address     common.Address
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

func (m EventMeta) Contract() common.Address { return m.Address }
func (m EventMeta) Block() uint64            { return m.BlockNumber }
func (m EventMeta) sealedEvent()             {}

// CreatedEvent is emitted once when a BillOfLading instance is deployed by
// the factory and minted.
type CreatedEvent struct {
	EventMeta
	Buyer         common.Address
	Seller        common.Address
	DeclaredValue *big.Int
	BLNumber      string
}

func (CreatedEvent) Kind() EventKind { return KindCreated }

// ActiveEvent signals that funding has been enabled on the contract.
type ActiveEvent struct{ EventMeta }

func (ActiveEvent) Kind() EventKind { return KindActive }

// InactiveEvent signals that funding has been disabled (cargo arrived).
type InactiveEvent struct{ EventMeta }

func (InactiveEvent) Kind() EventKind { return KindInactive }

// FundedEvent carries one funding contribution.
type FundedEvent struct {
	EventMeta
	Funder common.Address
	Amount *big.Int
}

func (FundedEvent) Kind() EventKind { return KindFunded }

// FullEvent signals that total funding reached the declared value. It carries
// no state of its own; fullness is derived from the totals.
type FullEvent struct{ EventMeta }

func (FullEvent) Kind() EventKind { return KindFull }

// PaidEvent carries one buyer payment.
type PaidEvent struct {
	EventMeta
	Payer  common.Address
	Amount *big.Int
}

func (PaidEvent) Kind() EventKind { return KindPaid }

// ClaimedEvent carries one investor claim redemption.
type ClaimedEvent struct {
	EventMeta
	Claimer common.Address
	Amount  *big.Int
}

func (ClaimedEvent) Kind() EventKind { return KindClaimed }

// SettledEvent signals final settlement of the trade.
type SettledEvent struct{ EventMeta }

func (SettledEvent) Kind() EventKind { return KindSettled }

// OfferEvent is emitted when an investor places a funding offer.
type OfferEvent struct {
	EventMeta
	OfferID         uint64
	Investor        common.Address
	Amount          *big.Int
	InterestRateBps uint64
}

func (OfferEvent) Kind() EventKind { return KindOffer }

// OfferAcceptedEvent is emitted when the seller accepts an offer.
type OfferAcceptedEvent struct {
	EventMeta
	OfferID uint64
}

func (OfferAcceptedEvent) Kind() EventKind { return KindOfferAccepted }
