package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/tradelane/bolindexer/internal/chain"
	"github.com/tradelane/bolindexer/internal/domain"
)

// Config holds poll loop tuning parameters.
type Config struct {
	// BatchSize caps the number of blocks scanned per iteration.
	BatchSize uint64
	// PollInterval is the sleep between iterations.
	PollInterval time.Duration
	// ErrorInterval is the longer sleep after a failed iteration.
	ErrorInterval time.Duration
	// SafetyMargin is subtracted from the current height when no persisted
	// cursor exists, so events emitted just before first start are caught.
	SafetyMargin uint64
	// CursorName is the persisted cursor row this loop owns.
	CursorName string
	// Fanout bounds concurrent per-address processing within one iteration.
	Fanout int
}

// Poller drives the scan loop: it computes the next block range, runs
// discovery, dispatches per-address event processing, advances the persisted
// cursor, and sleeps. A failed iteration leaves the cursor untouched and
// retries the same range after ErrorInterval; handler idempotence makes the
// replay safe.
type Poller struct {
	client    chain.Client
	discovery *Discovery
	fetcher   *Fetcher
	handlers  *Handlers
	store     domain.Store
	notify    Notifier
	cfg       Config
	logger    *slog.Logger
}

// NewPoller creates a Poller. notify may be nil.
func NewPoller(
	client chain.Client,
	discovery *Discovery,
	fetcher *Fetcher,
	handlers *Handlers,
	store domain.Store,
	notify Notifier,
	cfg Config,
	logger *slog.Logger,
) *Poller {
	if cfg.Fanout < 1 {
		cfg.Fanout = 1
	}
	if cfg.CursorName == "" {
		cfg.CursorName = "last_block"
	}
	return &Poller{
		client:    client,
		discovery: discovery,
		fetcher:   fetcher,
		handlers:  handlers,
		store:     store,
		notify:    notify,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "poller")),
	}
}

// Run executes the poll loop until ctx is cancelled. Every RPC call and every
// sleep is a cancellation point; cancellation never corrupts cursor state
// because the cursor is only written after a fully successful range.
func (p *Poller) Run(ctx context.Context) error {
	cursor, err := p.initCursor(ctx)
	if err != nil {
		return fmt.Errorf("indexer: init cursor: %w", err)
	}
	p.logger.InfoContext(ctx, "poll loop starting",
		slog.Uint64("cursor", cursor),
		slog.Uint64("batch_size", p.cfg.BatchSize),
		slog.Duration("poll_interval", p.cfg.PollInterval),
	)

	for {
		next, err := p.scanOnce(ctx, cursor)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			p.logger.ErrorContext(ctx, "iteration failed, backing off",
				slog.Uint64("cursor", cursor),
				slog.Duration("retry_in", p.cfg.ErrorInterval),
				slog.String("error", err.Error()),
			)
			if err := sleep(ctx, p.cfg.ErrorInterval); err != nil {
				return err
			}
			continue
		}
		cursor = next

		if err := sleep(ctx, p.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// initCursor loads the persisted cursor, or on cold start computes
// max(0, height − SafetyMargin) and persists it.
func (p *Poller) initCursor(ctx context.Context) (uint64, error) {
	cursor, err := p.store.Cursor().Get(ctx, p.cfg.CursorName)
	if err == nil {
		return cursor, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}

	height, err := p.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("current height: %w", err)
	}
	cursor = 0
	if height > p.cfg.SafetyMargin {
		cursor = height - p.cfg.SafetyMargin
	}
	if err := p.store.Cursor().Set(ctx, p.cfg.CursorName, cursor); err != nil {
		return 0, err
	}
	p.logger.InfoContext(ctx, "cold start, cursor initialized from safety margin",
		slog.Uint64("height", height),
		slog.Uint64("cursor", cursor),
	)
	return cursor, nil
}

// scanOnce processes at most one batch of new blocks and returns the new
// cursor position. When nothing new exists it returns the cursor unchanged.
func (p *Poller) scanOnce(ctx context.Context, cursor uint64) (uint64, error) {
	height, err := p.client.BlockNumber(ctx)
	if err != nil {
		return cursor, fmt.Errorf("current height: %w", err)
	}
	if height <= cursor {
		return cursor, nil
	}

	from := cursor + 1
	to := height
	if limit := cursor + p.cfg.BatchSize; to > limit {
		to = limit
	}

	if err := p.processRange(ctx, from, to); err != nil {
		return cursor, err
	}

	if err := p.store.Cursor().Set(ctx, p.cfg.CursorName, to); err != nil {
		return cursor, fmt.Errorf("persist cursor %d: %w", to, err)
	}
	p.logger.DebugContext(ctx, "range processed",
		slog.Uint64("from", from),
		slog.Uint64("to", to),
	)
	return to, nil
}

// processRange runs discovery, then the generic per-address pass over every
// known contract, for [from, to]. Any RPC or handler failure aborts the whole
// range so it is retried with the cursor unmoved.
func (p *Poller) processRange(ctx context.Context, from, to uint64) error {
	created, err := p.discovery.Scan(ctx, from, to)
	if err != nil {
		return err
	}

	// Apply creation events immediately so a contract's own first event is
	// not missed within the window it was discovered in.
	discovered := make(map[string]struct{}, len(created))
	for _, ev := range created {
		if err := p.apply(ctx, ev); err != nil {
			return err
		}
		discovered[ev.Contract().Hex()] = struct{}{}
	}

	addresses, err := p.pollSet(ctx, discovered)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Fanout)
	for _, addr := range addresses {
		g.Go(func() error {
			return p.processAddress(gctx, common.HexToAddress(addr), from, to)
		})
	}
	return g.Wait()
}

// pollSet merges the store's known addresses with this iteration's newly
// discovered ones, deduplicated and in stable order.
func (p *Poller) pollSet(ctx context.Context, discovered map[string]struct{}) ([]string, error) {
	known, err := p.store.Ladings().ListAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list known addresses: %w", err)
	}

	set := make(map[string]struct{}, len(known)+len(discovered))
	for _, a := range known {
		set[a] = struct{}{}
	}
	for a := range discovered {
		set[a] = struct{}{}
	}

	addresses := make([]string, 0, len(set))
	for a := range set {
		addresses = append(addresses, a)
	}
	sort.Strings(addresses)
	return addresses, nil
}

// processAddress fetches and applies every pollable event kind for one
// contract. Created is excluded; discovery already handled it.
func (p *Poller) processAddress(ctx context.Context, address common.Address, from, to uint64) error {
	for _, kind := range domain.PollKinds() {
		events, err := p.fetcher.FetchEvents(ctx, address, kind, from, to)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := p.apply(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// apply runs one event's handler inside its own store transaction and, on
// commit, notifies observers.
func (p *Poller) apply(ctx context.Context, ev domain.Event) error {
	err := p.store.WithTx(ctx, func(tx domain.Tx) error {
		return p.handlers.Apply(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("apply %s from %s at block %d: %w",
			ev.Kind(), ev.Contract().Hex(), ev.Block(), err)
	}
	if p.notify != nil {
		p.notify.EventApplied(ctx, ev)
	}
	return nil
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
