package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tradelane/bolindexer/internal/chain"
	"github.com/tradelane/bolindexer/internal/domain"
)

// Fetcher retrieves and decodes logs for one contract, one event kind, and
// one block range. Topic hashes are computed once and cached by the registry.
type Fetcher struct {
	client   chain.Client
	registry *chain.Registry
	decoder  *Decoder
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(client chain.Client, registry *chain.Registry, decoder *Decoder, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client:   client,
		registry: registry,
		decoder:  decoder,
		logger:   logger.With(slog.String("component", "fetcher")),
	}
}

// FetchEvents returns the decoded events of the given kind emitted by address
// within [from, to]. A single log's decode failure is logged and skipped
// without aborting its siblings.
func (f *Fetcher) FetchEvents(ctx context.Context, address common.Address, kind domain.EventKind, from, to uint64) ([]domain.Event, error) {
	topic, err := f.registry.EventTopic(chain.ContractBillOfLading, string(kind))
	if err != nil {
		return nil, err
	}

	logs, err := f.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic}},
	})
	if err != nil {
		return nil, fmt.Errorf("indexer: %s logs for %s [%d,%d]: %w", kind, address.Hex(), from, to, err)
	}

	events := make([]domain.Event, 0, len(logs))
	for _, lg := range logs {
		ev, err := f.decoder.Decode(lg)
		if err != nil {
			f.logger.WarnContext(ctx, "skipping undecodable log",
				slog.String("kind", string(kind)),
				slog.String("address", address.Hex()),
				slog.String("tx", lg.TxHash.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
