// Package indexer implements the chain-event poll loop: contract discovery,
// log fetching and decoding, and the idempotent event handlers that reconcile
// decoded events into the persisted store.
package indexer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tradelane/bolindexer/internal/chain"
	"github.com/tradelane/bolindexer/internal/domain"
)

// Decoder turns raw logs into typed domain events. Each event kind has
// exactly one decode shape derived from the declared ABI; a log that does not
// match its declared shape is rejected rather than decoded by guesswork.
type Decoder struct {
	registry *chain.Registry
}

// NewDecoder creates a Decoder backed by the given ABI registry.
func NewDecoder(registry *chain.Registry) *Decoder {
	return &Decoder{registry: registry}
}

// Decode identifies lg by its first topic and decodes it into the matching
// domain event. It returns domain.ErrUnknownEvent (wrapped) for topics that
// do not belong to the BillOfLading ABI.
func (d *Decoder) Decode(lg types.Log) (domain.Event, error) {
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("indexer: log %s[%d] has no topics", lg.TxHash.Hex(), lg.Index)
	}

	ab, err := d.registry.ABI(chain.ContractBillOfLading)
	if err != nil {
		return nil, err
	}
	ev, err := ab.EventByID(lg.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("indexer: %w: topic %s", domain.ErrUnknownEvent, lg.Topics[0].Hex())
	}

	meta := domain.EventMeta{
		Address:     lg.Address,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
	}

	switch domain.EventKind(ev.Name) {
	case domain.KindCreated:
		var raw struct {
			Buyer         common.Address
			Seller        common.Address
			DeclaredValue *big.Int
			BlNumber      string
		}
		if err := unpackLog(ab, &raw, ev.Name, lg); err != nil {
			return nil, err
		}
		return domain.CreatedEvent{
			EventMeta:     meta,
			Buyer:         raw.Buyer,
			Seller:        raw.Seller,
			DeclaredValue: raw.DeclaredValue,
			BLNumber:      raw.BlNumber,
		}, nil

	case domain.KindActive:
		return domain.ActiveEvent{EventMeta: meta}, nil

	case domain.KindInactive:
		return domain.InactiveEvent{EventMeta: meta}, nil

	case domain.KindFunded:
		var raw struct {
			Funder common.Address
			Amount *big.Int
		}
		if err := unpackLog(ab, &raw, ev.Name, lg); err != nil {
			return nil, err
		}
		return domain.FundedEvent{EventMeta: meta, Funder: raw.Funder, Amount: raw.Amount}, nil

	case domain.KindFull:
		return domain.FullEvent{EventMeta: meta}, nil

	case domain.KindPaid:
		var raw struct {
			Payer  common.Address
			Amount *big.Int
		}
		if err := unpackLog(ab, &raw, ev.Name, lg); err != nil {
			return nil, err
		}
		return domain.PaidEvent{EventMeta: meta, Payer: raw.Payer, Amount: raw.Amount}, nil

	case domain.KindClaimed:
		var raw struct {
			Claimer common.Address
			Amount  *big.Int
		}
		if err := unpackLog(ab, &raw, ev.Name, lg); err != nil {
			return nil, err
		}
		return domain.ClaimedEvent{EventMeta: meta, Claimer: raw.Claimer, Amount: raw.Amount}, nil

	case domain.KindSettled:
		return domain.SettledEvent{EventMeta: meta}, nil

	case domain.KindOffer:
		var raw struct {
			OfferId         *big.Int
			Investor        common.Address
			Amount          *big.Int
			InterestRateBps *big.Int
		}
		if err := unpackLog(ab, &raw, ev.Name, lg); err != nil {
			return nil, err
		}
		return domain.OfferEvent{
			EventMeta:       meta,
			OfferID:         raw.OfferId.Uint64(),
			Investor:        raw.Investor,
			Amount:          raw.Amount,
			InterestRateBps: raw.InterestRateBps.Uint64(),
		}, nil

	case domain.KindOfferAccepted:
		var raw struct {
			OfferId *big.Int
		}
		if err := unpackLog(ab, &raw, ev.Name, lg); err != nil {
			return nil, err
		}
		return domain.OfferAcceptedEvent{EventMeta: meta, OfferID: raw.OfferId.Uint64()}, nil

	default:
		return nil, fmt.Errorf("indexer: %w: %s", domain.ErrUnknownEvent, ev.Name)
	}
}

// unpackLog decodes a log's data section into the non-indexed fields of out
// and its topics into the indexed fields, strictly against the declared event
// schema.
func unpackLog(ab abi.ABI, out any, name string, lg types.Log) error {
	if len(lg.Data) > 0 {
		if err := ab.UnpackIntoInterface(out, name, lg.Data); err != nil {
			return fmt.Errorf("indexer: unpack %s data from log %s[%d]: %w", name, lg.TxHash.Hex(), lg.Index, err)
		}
	}

	var indexed abi.Arguments
	for _, arg := range ab.Events[name].Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) == 0 {
		return nil
	}
	if len(lg.Topics)-1 != len(indexed) {
		return fmt.Errorf("indexer: %s log %s[%d] has %d indexed topics, want %d",
			name, lg.TxHash.Hex(), lg.Index, len(lg.Topics)-1, len(indexed))
	}
	if err := abi.ParseTopics(out, indexed, lg.Topics[1:]); err != nil {
		return fmt.Errorf("indexer: parse %s topics from log %s[%d]: %w", name, lg.TxHash.Hex(), lg.Index, err)
	}
	return nil
}
