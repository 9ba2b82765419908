package indexer

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"time"

	"github.com/tradelane/bolindexer/internal/domain"
)

// EventsChannel is the signal-bus channel applied events are published on.
const EventsChannel = "bol:events"

// Notifier observes an event after its store effect has committed.
// Notifications are best-effort; failures must not affect the poll loop.
type Notifier interface {
	EventApplied(ctx context.Context, ev domain.Event)
}

// Notifiers fans one notification out to several observers.
type Notifiers []Notifier

func (ns Notifiers) EventApplied(ctx context.Context, ev domain.Event) {
	for _, n := range ns {
		n.EventApplied(ctx, ev)
	}
}

// EventNotice is the JSON payload published for every applied event.
type EventNotice struct {
	Kind      string    `json:"kind"`
	Contract  string    `json:"contract"`
	Block     uint64    `json:"block"`
	TxHash    string    `json:"tx_hash"`
	Amount    *big.Int  `json:"amount,omitempty"`
	OfferID   *uint64   `json:"offer_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NoticeFor flattens an event into its wire form.
func NoticeFor(ev domain.Event) EventNotice {
	n := EventNotice{
		Kind:      string(ev.Kind()),
		Contract:  ev.Contract().Hex(),
		Block:     ev.Block(),
		Timestamp: time.Now().UTC(),
	}
	switch e := ev.(type) {
	case domain.CreatedEvent:
		n.TxHash = e.TxHash.Hex()
		n.Amount = e.DeclaredValue
	case domain.FundedEvent:
		n.TxHash = e.TxHash.Hex()
		n.Amount = e.Amount
	case domain.PaidEvent:
		n.TxHash = e.TxHash.Hex()
		n.Amount = e.Amount
	case domain.ClaimedEvent:
		n.TxHash = e.TxHash.Hex()
		n.Amount = e.Amount
	case domain.OfferEvent:
		n.TxHash = e.TxHash.Hex()
		n.Amount = e.Amount
		id := e.OfferID
		n.OfferID = &id
	case domain.OfferAcceptedEvent:
		n.TxHash = e.TxHash.Hex()
		id := e.OfferID
		n.OfferID = &id
	}
	return n
}

// BusNotifier publishes applied events to a signal bus so out-of-process
// consumers (the WebSocket hub, dashboards) see them in near real time.
type BusNotifier struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewBusNotifier creates a BusNotifier.
func NewBusNotifier(bus domain.SignalBus, logger *slog.Logger) *BusNotifier {
	return &BusNotifier{
		bus:    bus,
		logger: logger.With(slog.String("component", "bus_notifier")),
	}
}

// CacheNotifier drops the cached aggregate for a contract whenever one of its
// events commits, so API reads never serve state older than the store.
type CacheNotifier struct {
	cache  domain.LadingCache
	logger *slog.Logger
}

// NewCacheNotifier creates a CacheNotifier.
func NewCacheNotifier(cache domain.LadingCache, logger *slog.Logger) *CacheNotifier {
	return &CacheNotifier{
		cache:  cache,
		logger: logger.With(slog.String("component", "cache_notifier")),
	}
}

// EventApplied invalidates the cache entry for the event's contract, when one
// is cached. Failures are logged only; the entry expires on its own.
func (cn *CacheNotifier) EventApplied(ctx context.Context, ev domain.Event) {
	b, err := cn.cache.GetByAddress(ctx, ev.Contract().Hex())
	if err != nil {
		return
	}
	if err := cn.cache.Invalidate(ctx, b.BOLHash); err != nil {
		cn.logger.WarnContext(ctx, "invalidate cached aggregate",
			slog.String("bol_hash", b.BOLHash),
			slog.String("error", err.Error()),
		)
	}
}

// EventApplied publishes the event notice; publish failures are logged only.
func (bn *BusNotifier) EventApplied(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(NoticeFor(ev))
	if err != nil {
		bn.logger.ErrorContext(ctx, "marshal event notice", slog.String("error", err.Error()))
		return
	}
	if err := bn.bus.Publish(ctx, EventsChannel, payload); err != nil {
		bn.logger.WarnContext(ctx, "publish event notice",
			slog.String("kind", string(ev.Kind())),
			slog.String("error", err.Error()),
		)
	}
}
