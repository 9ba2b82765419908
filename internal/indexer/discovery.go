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

// Discovery finds BillOfLading instance contracts deployed by the factory.
// It filters a block range for Created logs with no address filter, so
// contracts unknown to the store are picked up in the same window their
// creation event lands in.
type Discovery struct {
	client   chain.Client
	registry *chain.Registry
	decoder  *Decoder
	logger   *slog.Logger
}

// NewDiscovery creates a Discovery.
func NewDiscovery(client chain.Client, registry *chain.Registry, decoder *Decoder, logger *slog.Logger) *Discovery {
	return &Discovery{
		client:   client,
		registry: registry,
		decoder:  decoder,
		logger:   logger.With(slog.String("component", "discovery")),
	}
}

// Scan returns every decodable Created event in [from, to], across all
// addresses. A failed log query is returned as an error (the iteration is
// retried); a single log that fails to decode is logged and skipped.
func (d *Discovery) Scan(ctx context.Context, from, to uint64) ([]domain.CreatedEvent, error) {
	topic, err := d.registry.EventTopic(chain.ContractBillOfLading, string(domain.KindCreated))
	if err != nil {
		return nil, err
	}

	logs, err := d.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Topics:    [][]common.Hash{{topic}},
	})
	if err != nil {
		return nil, fmt.Errorf("indexer: discovery logs [%d,%d]: %w", from, to, err)
	}

	events := make([]domain.CreatedEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := d.decoder.Decode(lg)
		if err != nil {
			d.logger.WarnContext(ctx, "skipping undecodable creation log",
				slog.String("tx", lg.TxHash.Hex()),
				slog.Uint64("block", lg.BlockNumber),
				slog.String("error", err.Error()),
			)
			continue
		}
		created, ok := ev.(domain.CreatedEvent)
		if !ok {
			// Topic collision with a foreign contract's event; not ours.
			d.logger.WarnContext(ctx, "creation topic decoded to unexpected kind",
				slog.String("kind", string(ev.Kind())),
				slog.String("address", lg.Address.Hex()),
			)
			continue
		}
		events = append(events, created)
	}
	return events, nil
}
