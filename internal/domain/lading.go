// Package domain defines the core types of the bill-of-lading indexer and the
// interfaces (stores, caches, blob storage, signal bus) implemented by the
// infrastructure packages.
package domain

import (
	"math/big"
	"time"
)

// bpsDenominator is the basis-point denominator used for interest math.
const bpsDenominator = 10_000

// BillOfLading is the persisted aggregate for one trade/shipment,
// reconstructed from on-chain contract events. BOLHash is the correlation key
// between on-chain and off-chain state and is unique across the table.
type BillOfLading struct {
	BOLHash         string // 0x-prefixed 32-byte content hash
	ContractAddress string // emitting BillOfLading contract
	BuyerWallet     string
	SellerWallet    string
	DeclaredValue   *big.Int
	BLNumber        string // human reference number

	// State accumulated from events. Totals never decrease during normal
	// accumulation; OfferAccepted overwrites them from the authoritative
	// on-chain trade state.
	Active       bool
	TotalFunded  *big.Int
	TotalPaid    *big.Int
	TotalClaimed *big.Int
	Settled      bool

	// Write-once transition timestamps, stamped at first observation of the
	// corresponding event.
	MintedAt         *time.Time
	FundingEnabledAt *time.Time
	ArrivedAt        *time.Time
	PaidAt           *time.Time
	SettledAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFull reports whether funding has reached the declared value exactly.
func (b *BillOfLading) IsFull() bool {
	if b.DeclaredValue == nil || b.TotalFunded == nil {
		return false
	}
	return b.TotalFunded.Cmp(b.DeclaredValue) == 0
}

// Offer is a funding offer against a bill of lading, keyed by
// (BOLHash, OfferID).
type Offer struct {
	BOLHash         string
	OfferID         uint64
	Investor        string
	Amount          *big.Int
	InterestRateBps uint64
	ClaimAmount     *big.Int
	Accepted        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ClaimAmount computes the claim-token amount for a principal and an interest
// rate in basis points: amount + floor(amount * rateBps / 10000).
func ClaimAmount(amount *big.Int, rateBps uint64) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	interest := new(big.Int).Mul(amount, new(big.Int).SetUint64(rateBps))
	interest.Quo(interest, big.NewInt(bpsDenominator))
	return interest.Add(interest, amount)
}
