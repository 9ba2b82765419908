package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradelane/bolindexer/internal/domain"
	"github.com/tradelane/bolindexer/internal/indexer"
)

// EventArchiverConfig controls batching for the event archiver.
type EventArchiverConfig struct {
	// Prefix is prepended to every object key, e.g. "archive/".
	Prefix string
	// FlushCount uploads a batch once this many events are buffered.
	FlushCount int
	// FlushInterval uploads whatever is buffered at this cadence.
	FlushInterval time.Duration
}

// EventArchiver buffers applied-event notices and periodically uploads them
// to object storage as JSONL batches. It observes the indexer as a Notifier;
// archival is best-effort and never blocks or fails the poll loop.
type EventArchiver struct {
	writer domain.BlobWriter
	cfg    EventArchiverConfig
	logger *slog.Logger

	mu  sync.Mutex
	buf []indexer.EventNotice
}

// NewEventArchiver creates an EventArchiver writing through w.
func NewEventArchiver(w domain.BlobWriter, cfg EventArchiverConfig, logger *slog.Logger) *EventArchiver {
	if cfg.FlushCount <= 0 {
		cfg.FlushCount = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	return &EventArchiver{
		writer: w,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "event_archiver")),
	}
}

// EventApplied buffers the event, flushing when the batch is full.
func (a *EventArchiver) EventApplied(ctx context.Context, ev domain.Event) {
	a.mu.Lock()
	a.buf = append(a.buf, indexer.NoticeFor(ev))
	full := len(a.buf) >= a.cfg.FlushCount
	a.mu.Unlock()

	if full {
		a.Flush(ctx)
	}
}

// Run flushes the buffer at the configured interval until ctx is cancelled,
// then performs a final flush with a short grace period.
func (a *EventArchiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.Flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			a.Flush(ctx)
		}
	}
}

// Flush uploads the current buffer as one JSONL object. Upload failures are
// logged and the batch is dropped rather than retried, keeping memory bounded
// when the object store is down.
func (a *EventArchiver) Flush(ctx context.Context) {
	a.mu.Lock()
	batch := a.buf
	a.buf = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	buf, err := marshalJSONL(batch)
	if err != nil {
		a.logger.ErrorContext(ctx, "marshal event batch", slog.String("error", err.Error()))
		return
	}

	path := a.objectPath(time.Now().UTC())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		a.logger.WarnContext(ctx, "upload event batch",
			slog.String("path", path),
			slog.Int("events", len(batch)),
			slog.String("error", err.Error()),
		)
		return
	}

	a.logger.InfoContext(ctx, "archived event batch",
		slog.String("path", path),
		slog.Int("events", len(batch)),
	)
}

// objectPath builds the S3 key for one batch, partitioned by day:
//
//	<prefix>events/2026-08-30/<uuid>.jsonl
func (a *EventArchiver) objectPath(now time.Time) string {
	return fmt.Sprintf("%sevents/%s/%s.jsonl", a.cfg.Prefix, now.Format("2006-01-02"), uuid.New())
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ indexer.Notifier = (*EventArchiver)(nil)
