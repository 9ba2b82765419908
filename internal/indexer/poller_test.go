package indexer

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelane/bolindexer/internal/chain"
	"github.com/tradelane/bolindexer/internal/domain"
	"github.com/tradelane/bolindexer/internal/store/memory"
)

// fakeClient serves a fixed height and a canned log set, matching filter
// queries on block range, first topic, and address the way a node would.
type fakeClient struct {
	mu        sync.Mutex
	height    uint64
	logs      []types.Log
	filterErr error
}

func (f *fakeClient) BlockNumber(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, nil
}

func (f *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filterErr != nil {
		return nil, f.filterErr
	}

	var out []types.Log
	for _, lg := range f.logs {
		if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, lg.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 {
			if len(lg.Topics) == 0 || !containsHash(q.Topics[0], lg.Topics[0]) {
				continue
			}
		}
		out = append(out, lg)
	}
	return out, nil
}

func (f *fakeClient) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return nil, errors.New("fakeClient: CallContract not wired")
}

func containsAddress(haystack []common.Address, needle common.Address) bool {
	for _, a := range haystack {
		if a == needle {
			return true
		}
	}
	return false
}

func containsHash(haystack []common.Hash, needle common.Hash) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// recordingNotifier collects applied events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingNotifier) EventApplied(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) applied() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func newTestPoller(t *testing.T, client *fakeClient, store *memory.Store, notify Notifier, cfg Config) *Poller {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	registry := chain.NewRegistry("")
	decoder := NewDecoder(registry)
	discovery := NewDiscovery(client, registry, decoder, logger)
	fetcher := NewFetcher(client, registry, decoder, logger)

	handlers := NewHandlers(&fakeReader{states: map[common.Address]chain.TradeState{
		testAddr: tradeState(1000),
	}}, logger)
	handlers.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	return NewPoller(client, discovery, fetcher, handlers, store, notify, cfg, logger)
}

func testCreatedLog(t *testing.T, block uint64) types.Log {
	t.Helper()
	registry := chain.NewRegistry("")
	ab, err := registry.ABI(chain.ContractBillOfLading)
	require.NoError(t, err)
	return types.Log{
		Address: testAddr,
		Topics: []common.Hash{
			eventTopic(t, registry, "Created"),
			addressTopic(testBuyer),
			addressTopic(testSeller),
		},
		Data:        packData(t, ab, "Created", big.NewInt(1000), "BL-2025-0001"),
		BlockNumber: block,
	}
}

func testFundedLog(t *testing.T, block uint64, amount int64) types.Log {
	t.Helper()
	registry := chain.NewRegistry("")
	ab, err := registry.ABI(chain.ContractBillOfLading)
	require.NoError(t, err)
	return types.Log{
		Address: testAddr,
		Topics: []common.Hash{
			eventTopic(t, registry, "Funded"),
			addressTopic(testBuyer),
		},
		Data:        packData(t, ab, "Funded", big.NewInt(amount)),
		BlockNumber: block,
	}
}

func TestInitCursorColdStart(t *testing.T) {
	client := &fakeClient{height: 1000}
	store := memory.NewStore()
	p := newTestPoller(t, client, store, nil, Config{BatchSize: 100, SafetyMargin: 200, CursorName: "last_block"})

	cursor, err := p.initCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(800), cursor)

	persisted, err := store.Cursor().Get(context.Background(), "last_block")
	require.NoError(t, err)
	assert.Equal(t, uint64(800), persisted)
}

func TestInitCursorColdStartShortChain(t *testing.T) {
	client := &fakeClient{height: 50}
	store := memory.NewStore()
	p := newTestPoller(t, client, store, nil, Config{BatchSize: 100, SafetyMargin: 200, CursorName: "last_block"})

	cursor, err := p.initCursor(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cursor)
}

func TestInitCursorResumesPersisted(t *testing.T) {
	client := &fakeClient{height: 1000}
	store := memory.NewStore()
	require.NoError(t, store.Cursor().Set(context.Background(), "last_block", 500))
	p := newTestPoller(t, client, store, nil, Config{BatchSize: 100, SafetyMargin: 200, CursorName: "last_block"})

	cursor, err := p.initCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), cursor)
}

func TestScanOnceNothingNew(t *testing.T) {
	client := &fakeClient{height: 800}
	store := memory.NewStore()
	p := newTestPoller(t, client, store, nil, Config{BatchSize: 100, CursorName: "last_block"})

	cursor, err := p.scanOnce(context.Background(), 800)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), cursor)
}

func TestScanOnceProcessesAndAdvances(t *testing.T) {
	client := &fakeClient{
		height: 900,
		logs: []types.Log{
			testCreatedLog(t, 810),
			testFundedLog(t, 820, 250),
		},
	}
	store := memory.NewStore()
	notify := &recordingNotifier{}
	p := newTestPoller(t, client, store, notify, Config{BatchSize: 100, Fanout: 2, CursorName: "last_block"})

	cursor, err := p.scanOnce(context.Background(), 800)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), cursor)

	b, err := store.Ladings().GetByHash(context.Background(), testHash.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(250), b.TotalFunded.Int64())

	persisted, err := store.Cursor().Get(context.Background(), "last_block")
	require.NoError(t, err)
	assert.Equal(t, uint64(900), persisted)

	assert.Len(t, notify.applied(), 2)
}

func TestScanOnceAbsorbsReplayedCreatedLog(t *testing.T) {
	// Nodes can serve the same log twice across reorgs or retried ranges; a
	// replayed creation must not mint a second aggregate.
	client := &fakeClient{
		height: 900,
		logs: []types.Log{
			testCreatedLog(t, 810),
			testCreatedLog(t, 810),
		},
	}
	store := memory.NewStore()
	p := newTestPoller(t, client, store, nil, Config{BatchSize: 100, CursorName: "last_block"})

	cursor, err := p.scanOnce(context.Background(), 800)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), cursor)

	all, err := store.Ladings().List(context.Background(), domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, testHash.Hex(), all[0].BOLHash)
}

func TestScanOnceCapsAtBatchSize(t *testing.T) {
	client := &fakeClient{height: 5000}
	store := memory.NewStore()
	p := newTestPoller(t, client, store, nil, Config{BatchSize: 100, CursorName: "last_block"})

	cursor, err := p.scanOnce(context.Background(), 800)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), cursor)
}

func TestScanOnceLeavesCursorOnFailure(t *testing.T) {
	boom := errors.New("node unavailable")
	client := &fakeClient{height: 900, filterErr: boom}
	store := memory.NewStore()
	require.NoError(t, store.Cursor().Set(context.Background(), "last_block", 800))
	p := newTestPoller(t, client, store, nil, Config{BatchSize: 100, CursorName: "last_block"})

	cursor, err := p.scanOnce(context.Background(), 800)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(800), cursor)

	persisted, err := store.Cursor().Get(context.Background(), "last_block")
	require.NoError(t, err)
	assert.Equal(t, uint64(800), persisted)
}

func TestScanOncePollsKnownAddresses(t *testing.T) {
	// The aggregate is already indexed; no Created log this window, only a
	// Funded log that must be picked up through the known-address poll set.
	client := &fakeClient{
		height: 900,
		logs:   []types.Log{testFundedLog(t, 850, 400)},
	}
	store := memory.NewStore()
	minted := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Ladings().Insert(context.Background(), domain.BillOfLading{
		BOLHash:         testHash.Hex(),
		ContractAddress: testAddr.Hex(),
		BuyerWallet:     testBuyer.Hex(),
		SellerWallet:    testSeller.Hex(),
		DeclaredValue:   big.NewInt(1000),
		TotalFunded:     new(big.Int),
		TotalPaid:       new(big.Int),
		TotalClaimed:    new(big.Int),
		MintedAt:        &minted,
	}))
	p := newTestPoller(t, client, store, nil, Config{BatchSize: 100, CursorName: "last_block"})

	cursor, err := p.scanOnce(context.Background(), 800)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), cursor)

	b, err := store.Ladings().GetByHash(context.Background(), testHash.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(400), b.TotalFunded.Int64())
}

func testOfferLog(t *testing.T, block uint64, offerID int64, amount int64, rateBps int64) types.Log {
	t.Helper()
	registry := chain.NewRegistry("")
	ab, err := registry.ABI(chain.ContractBillOfLading)
	require.NoError(t, err)
	return types.Log{
		Address: testAddr,
		Topics: []common.Hash{
			eventTopic(t, registry, "Offer"),
			common.BigToHash(big.NewInt(offerID)),
			addressTopic(testBuyer),
		},
		Data:        packData(t, ab, "Offer", big.NewInt(amount), big.NewInt(rateBps)),
		BlockNumber: block,
	}
}

func testOfferAcceptedLog(t *testing.T, block uint64, offerID int64) types.Log {
	t.Helper()
	registry := chain.NewRegistry("")
	return types.Log{
		Address: testAddr,
		Topics: []common.Hash{
			eventTopic(t, registry, "OfferAccepted"),
			common.BigToHash(big.NewInt(offerID)),
		},
		BlockNumber: block,
	}
}

func TestScanOnceOfferLifecycle(t *testing.T) {
	// One window carries creation, an offer, a drifting Funded, and the
	// acceptance; the accepted totals come from the authoritative trade state.
	client := &fakeClient{
		height: 900,
		logs: []types.Log{
			testCreatedLog(t, 810),
			testOfferLog(t, 820, 1, 500, 1000),
			testFundedLog(t, 830, 999),
			testOfferAcceptedLog(t, 840, 1),
		},
	}
	store := memory.NewStore()

	logger := slog.New(slog.DiscardHandler)
	registry := chain.NewRegistry("")
	decoder := NewDecoder(registry)
	st := tradeState(1000)
	st.TotalFunded = big.NewInt(500)
	st.TotalPaid = new(big.Int)
	handlers := NewHandlers(&fakeReader{states: map[common.Address]chain.TradeState{testAddr: st}}, logger)
	handlers.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	p := NewPoller(client,
		NewDiscovery(client, registry, decoder, logger),
		NewFetcher(client, registry, decoder, logger),
		handlers, store, nil,
		Config{BatchSize: 100, CursorName: "last_block"}, logger)

	cursor, err := p.scanOnce(context.Background(), 800)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), cursor)

	o, err := store.Offers().Get(context.Background(), testHash.Hex(), 1)
	require.NoError(t, err)
	assert.True(t, o.Accepted)
	assert.Equal(t, int64(550), o.ClaimAmount.Int64())

	b, err := store.Ladings().GetByHash(context.Background(), testHash.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(500), b.TotalFunded.Int64())
}

func TestRunStopsOnCancel(t *testing.T) {
	client := &fakeClient{height: 100}
	store := memory.NewStore()
	p := newTestPoller(t, client, store, nil, Config{
		BatchSize:     100,
		PollInterval:  time.Millisecond,
		ErrorInterval: time.Millisecond,
		SafetyMargin:  200,
		CursorName:    "last_block",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}
