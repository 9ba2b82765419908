// Package chain wraps the node RPC surface and the contract ABI registry used
// by the indexer: current block height, filtered log retrieval, and read-only
// contract calls.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the read-only node RPC surface the indexer consumes. It is
// satisfied by *ethclient.Client; tests substitute an in-memory fake.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ Client = (*ethclient.Client)(nil)

// Dial connects to the node at rpcURL and verifies connectivity by fetching
// the current block height.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	if _, err := c.BlockNumber(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("chain: block number probe: %w", err)
	}
	return c, nil
}
