package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tradelane/bolindexer/internal/domain"
)

// ArchiveHandler lists and serves event archive batches stored in the blob
// backend.
type ArchiveHandler struct {
	reader domain.BlobReader
	prefix string
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler reading under the given key
// prefix.
func NewArchiveHandler(reader domain.BlobReader, prefix string, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		prefix: prefix,
		logger: logHandler(logger, "archive"),
	}
}

// archiveResponse is the wire form of one stored batch.
type archiveResponse struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListArchives returns metadata for every archived event batch.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reader.List(r.Context(), h.prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archives", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	out := make([]archiveResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, archiveResponse{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": out})
}

// DownloadArchive streams one JSONL batch back to the caller, for replay
// tooling that works off the HTTP API instead of hitting the bucket directly.
// Only keys under the configured archive prefix are served.
// GET /api/archives/{path...}
func (h *ArchiveHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "path")
	if path == "" || strings.Contains(path, "..") || !strings.HasPrefix(path, h.prefix) {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}

	body, err := h.reader.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get archive",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "stream archive interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
