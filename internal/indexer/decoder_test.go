package indexer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelane/bolindexer/internal/chain"
	"github.com/tradelane/bolindexer/internal/domain"
)

func newTestDecoder(t *testing.T) (*Decoder, abi.ABI, *chain.Registry) {
	t.Helper()
	registry := chain.NewRegistry("")
	ab, err := registry.ABI(chain.ContractBillOfLading)
	require.NoError(t, err)
	return NewDecoder(registry), ab, registry
}

// packData encodes the non-indexed inputs of the named event, the way a node
// would lay out the log's data section.
func packData(t *testing.T, ab abi.ABI, event string, vals ...any) []byte {
	t.Helper()
	data, err := ab.Events[event].Inputs.NonIndexed().Pack(vals...)
	require.NoError(t, err)
	return data
}

func eventTopic(t *testing.T, registry *chain.Registry, event string) common.Hash {
	t.Helper()
	topic, err := registry.EventTopic(chain.ContractBillOfLading, event)
	require.NoError(t, err)
	return topic
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func TestDecodeCreated(t *testing.T) {
	d, ab, registry := newTestDecoder(t)

	lg := types.Log{
		Address: testAddr,
		Topics: []common.Hash{
			eventTopic(t, registry, "Created"),
			addressTopic(testBuyer),
			addressTopic(testSeller),
		},
		Data:        packData(t, ab, "Created", big.NewInt(50000), "BL-2025-0001"),
		BlockNumber: 123,
		TxHash:      common.HexToHash("0x01"),
		Index:       4,
	}

	ev, err := d.Decode(lg)
	require.NoError(t, err)
	created, ok := ev.(domain.CreatedEvent)
	require.True(t, ok)
	assert.Equal(t, testAddr, created.Address)
	assert.Equal(t, testBuyer, created.Buyer)
	assert.Equal(t, testSeller, created.Seller)
	assert.Equal(t, int64(50000), created.DeclaredValue.Int64())
	assert.Equal(t, "BL-2025-0001", created.BLNumber)
	assert.Equal(t, uint64(123), created.BlockNumber)
	assert.Equal(t, uint(4), created.LogIndex)
}

func TestDecodeFunded(t *testing.T) {
	d, ab, registry := newTestDecoder(t)

	funder := common.HexToAddress("0x5555555555555555555555555555555555555555")
	lg := types.Log{
		Address: testAddr,
		Topics: []common.Hash{
			eventTopic(t, registry, "Funded"),
			addressTopic(funder),
		},
		Data:        packData(t, ab, "Funded", big.NewInt(2500)),
		BlockNumber: 130,
	}

	ev, err := d.Decode(lg)
	require.NoError(t, err)
	funded, ok := ev.(domain.FundedEvent)
	require.True(t, ok)
	assert.Equal(t, funder, funded.Funder)
	assert.Equal(t, int64(2500), funded.Amount.Int64())
}

func TestDecodeMarkerEvents(t *testing.T) {
	d, _, registry := newTestDecoder(t)

	tests := []struct {
		event string
		kind  domain.EventKind
	}{
		{"Active", domain.KindActive},
		{"Inactive", domain.KindInactive},
		{"Full", domain.KindFull},
		{"Settled", domain.KindSettled},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			lg := types.Log{
				Address:     testAddr,
				Topics:      []common.Hash{eventTopic(t, registry, tt.event)},
				BlockNumber: 140,
			}
			ev, err := d.Decode(lg)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind())
			assert.Equal(t, testAddr, ev.Contract())
			assert.Equal(t, uint64(140), ev.Block())
		})
	}
}

func TestDecodeOffer(t *testing.T) {
	d, ab, registry := newTestDecoder(t)

	investor := common.HexToAddress("0x6666666666666666666666666666666666666666")
	lg := types.Log{
		Address: testAddr,
		Topics: []common.Hash{
			eventTopic(t, registry, "Offer"),
			common.BigToHash(big.NewInt(9)),
			addressTopic(investor),
		},
		Data:        packData(t, ab, "Offer", big.NewInt(1000), big.NewInt(750)),
		BlockNumber: 150,
	}

	ev, err := d.Decode(lg)
	require.NoError(t, err)
	offer, ok := ev.(domain.OfferEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(9), offer.OfferID)
	assert.Equal(t, investor, offer.Investor)
	assert.Equal(t, int64(1000), offer.Amount.Int64())
	assert.Equal(t, uint64(750), offer.InterestRateBps)
}

func TestDecodeOfferAccepted(t *testing.T) {
	d, _, registry := newTestDecoder(t)

	lg := types.Log{
		Address: testAddr,
		Topics: []common.Hash{
			eventTopic(t, registry, "OfferAccepted"),
			common.BigToHash(big.NewInt(9)),
		},
		BlockNumber: 151,
	}

	ev, err := d.Decode(lg)
	require.NoError(t, err)
	accepted, ok := ev.(domain.OfferAcceptedEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(9), accepted.OfferID)
}

func TestDecodeUnknownTopic(t *testing.T) {
	d, _, _ := newTestDecoder(t)

	lg := types.Log{
		Address: testAddr,
		Topics:  []common.Hash{common.HexToHash("0xdeadbeef")},
	}
	_, err := d.Decode(lg)
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)
}

func TestDecodeNoTopics(t *testing.T) {
	d, _, _ := newTestDecoder(t)

	_, err := d.Decode(types.Log{Address: testAddr})
	assert.Error(t, err)
}

func TestDecodeTopicCountMismatch(t *testing.T) {
	d, ab, registry := newTestDecoder(t)

	// Funded declares one indexed argument; a log without it is rejected.
	lg := types.Log{
		Address: testAddr,
		Topics:  []common.Hash{eventTopic(t, registry, "Funded")},
		Data:    packData(t, ab, "Funded", big.NewInt(2500)),
	}
	_, err := d.Decode(lg)
	assert.Error(t, err)
}
