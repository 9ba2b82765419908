package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const methodGetTradeState = "getTradeState"

// TradeState mirrors the tuple returned by BillOfLading.getTradeState(). It
// is the authoritative on-chain view of a trade, used to resolve the content
// hash at creation time and to resync totals on offer acceptance.
type TradeState struct {
	BOLHash        [32]byte
	Buyer          common.Address
	Seller         common.Address
	Stablecoin     common.Address
	DeclaredValue  *big.Int
	TotalFunded    *big.Int
	TotalPaid      *big.Int
	TotalRepaid    *big.Int
	Settled        bool
	ClaimsIssued   bool
	FundingEnabled bool
	NFTMinted      bool
}

// Hash returns the 0x-prefixed hex form of the content hash.
func (s TradeState) Hash() string {
	return common.BytesToHash(s.BOLHash[:]).Hex()
}

// TradeStateReader reads the on-chain trade state of a BillOfLading contract.
type TradeStateReader interface {
	TradeState(ctx context.Context, address common.Address) (TradeState, error)
}

// StateReader implements TradeStateReader against a node RPC client.
type StateReader struct {
	client   Client
	registry *Registry
}

// NewStateReader creates a StateReader using the given client and registry.
func NewStateReader(client Client, registry *Registry) *StateReader {
	return &StateReader{client: client, registry: registry}
}

// TradeState calls getTradeState() on the contract at address and decodes the
// returned tuple.
func (r *StateReader) TradeState(ctx context.Context, address common.Address) (TradeState, error) {
	ab, err := r.registry.ABI(ContractBillOfLading)
	if err != nil {
		return TradeState{}, err
	}

	input, err := ab.Pack(methodGetTradeState)
	if err != nil {
		return TradeState{}, fmt.Errorf("chain: pack %s: %w", methodGetTradeState, err)
	}

	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &address, Data: input}, nil)
	if err != nil {
		return TradeState{}, fmt.Errorf("chain: call %s on %s: %w", methodGetTradeState, address.Hex(), err)
	}

	vals, err := ab.Unpack(methodGetTradeState, out)
	if err != nil {
		return TradeState{}, fmt.Errorf("chain: unpack %s from %s: %w", methodGetTradeState, address.Hex(), err)
	}
	if len(vals) != 12 {
		return TradeState{}, fmt.Errorf("chain: %s returned %d values, want 12", methodGetTradeState, len(vals))
	}

	var (
		st TradeState
		ok bool
	)
	if st.BOLHash, ok = vals[0].([32]byte); !ok {
		return TradeState{}, fmt.Errorf("chain: %s: bolHash has unexpected type %T", methodGetTradeState, vals[0])
	}
	st.Buyer, _ = vals[1].(common.Address)
	st.Seller, _ = vals[2].(common.Address)
	st.Stablecoin, _ = vals[3].(common.Address)
	if st.DeclaredValue, ok = vals[4].(*big.Int); !ok {
		return TradeState{}, fmt.Errorf("chain: %s: declaredValue has unexpected type %T", methodGetTradeState, vals[4])
	}
	st.TotalFunded, _ = vals[5].(*big.Int)
	st.TotalPaid, _ = vals[6].(*big.Int)
	st.TotalRepaid, _ = vals[7].(*big.Int)
	st.Settled, _ = vals[8].(bool)
	st.ClaimsIssued, _ = vals[9].(bool)
	st.FundingEnabled, _ = vals[10].(bool)
	st.NFTMinted, _ = vals[11].(bool)
	return st, nil
}
