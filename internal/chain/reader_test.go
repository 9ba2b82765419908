package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callClient struct {
	result  []byte
	callErr error
	lastMsg ethereum.CallMsg
}

func (c *callClient) BlockNumber(_ context.Context) (uint64, error) { return 0, nil }

func (c *callClient) FilterLogs(_ context.Context, _ ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (c *callClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.lastMsg = msg
	return c.result, c.callErr
}

func TestTradeStateDecodesTuple(t *testing.T) {
	registry := NewRegistry("")
	ab, err := registry.ABI(ContractBillOfLading)
	require.NoError(t, err)

	var hash [32]byte
	copy(hash[:], common.HexToHash("0xabcd").Bytes())
	buyer := common.HexToAddress("0x01")
	seller := common.HexToAddress("0x02")
	coin := common.HexToAddress("0x03")

	out, err := ab.Methods["getTradeState"].Outputs.Pack(
		hash, buyer, seller, coin,
		big.NewInt(1000), big.NewInt(600), big.NewInt(300), big.NewInt(0),
		false, true, true, true,
	)
	require.NoError(t, err)

	client := &callClient{result: out}
	reader := NewStateReader(client, registry)

	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	st, err := reader.TradeState(context.Background(), addr)
	require.NoError(t, err)

	assert.Equal(t, hash, st.BOLHash)
	assert.Equal(t, common.BytesToHash(hash[:]).Hex(), st.Hash())
	assert.Equal(t, buyer, st.Buyer)
	assert.Equal(t, seller, st.Seller)
	assert.Equal(t, coin, st.Stablecoin)
	assert.Equal(t, int64(1000), st.DeclaredValue.Int64())
	assert.Equal(t, int64(600), st.TotalFunded.Int64())
	assert.Equal(t, int64(300), st.TotalPaid.Int64())
	assert.Zero(t, st.TotalRepaid.Sign())
	assert.False(t, st.Settled)
	assert.True(t, st.ClaimsIssued)
	assert.True(t, st.FundingEnabled)
	assert.True(t, st.NFTMinted)

	require.NotNil(t, client.lastMsg.To)
	assert.Equal(t, addr, *client.lastMsg.To)
}

func TestTradeStateCallFailure(t *testing.T) {
	boom := errors.New("execution reverted")
	client := &callClient{callErr: boom}
	reader := NewStateReader(client, NewRegistry(""))

	_, err := reader.TradeState(context.Background(), common.HexToAddress("0x01"))
	assert.ErrorIs(t, err, boom)
}

func TestTradeStateGarbageOutput(t *testing.T) {
	client := &callClient{result: []byte{0x01, 0x02}}
	reader := NewStateReader(client, NewRegistry(""))

	_, err := reader.TradeState(context.Background(), common.HexToAddress("0x01"))
	assert.Error(t, err)
}
