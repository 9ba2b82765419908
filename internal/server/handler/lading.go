package handler

import (
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/tradelane/bolindexer/internal/domain"
	"github.com/tradelane/bolindexer/internal/service"
)

// LadingHandler serves bill-of-lading read endpoints.
type LadingHandler struct {
	svc    *service.LadingService
	logger *slog.Logger
}

// NewLadingHandler creates a LadingHandler.
func NewLadingHandler(svc *service.LadingService, logger *slog.Logger) *LadingHandler {
	return &LadingHandler{
		svc:    svc,
		logger: logHandler(logger, "lading"),
	}
}

// ladingResponse is the wire form of an aggregate. Amounts are decimal
// strings because they routinely exceed float64 precision.
type ladingResponse struct {
	BOLHash          string     `json:"bol_hash"`
	ContractAddress  string     `json:"contract_address"`
	BuyerWallet      string     `json:"buyer_wallet"`
	SellerWallet     string     `json:"seller_wallet"`
	DeclaredValue    string     `json:"declared_value"`
	BLNumber         string     `json:"bl_number"`
	Active           bool       `json:"active"`
	TotalFunded      string     `json:"total_funded"`
	TotalPaid        string     `json:"total_paid"`
	TotalClaimed     string     `json:"total_claimed"`
	Settled          bool       `json:"settled"`
	MintedAt         *time.Time `json:"minted_at,omitempty"`
	FundingEnabledAt *time.Time `json:"funding_enabled_at,omitempty"`
	ArrivedAt        *time.Time `json:"arrived_at,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toLadingResponse(b domain.BillOfLading) ladingResponse {
	return ladingResponse{
		BOLHash:          b.BOLHash,
		ContractAddress:  b.ContractAddress,
		BuyerWallet:      b.BuyerWallet,
		SellerWallet:     b.SellerWallet,
		DeclaredValue:    bigText(b.DeclaredValue),
		BLNumber:         b.BLNumber,
		Active:           b.Active,
		TotalFunded:      bigText(b.TotalFunded),
		TotalPaid:        bigText(b.TotalPaid),
		TotalClaimed:     bigText(b.TotalClaimed),
		Settled:          b.Settled,
		MintedAt:         b.MintedAt,
		FundingEnabledAt: b.FundingEnabledAt,
		ArrivedAt:        b.ArrivedAt,
		PaidAt:           b.PaidAt,
		SettledAt:        b.SettledAt,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func bigText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ListLadings returns a page of aggregates.
// GET /api/ladings
func (h *LadingHandler) ListLadings(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	ladings, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list ladings", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list bills of lading")
		return
	}

	out := make([]ladingResponse, 0, len(ladings))
	for _, b := range ladings {
		out = append(out, toLadingResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ladings": out,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetLading returns one aggregate by content hash.
// GET /api/ladings/{hash}
func (h *LadingHandler) GetLading(w http.ResponseWriter, r *http.Request) {
	hash := pathParam(r, "hash")
	if hash == "" {
		writeError(w, http.StatusBadRequest, "missing hash")
		return
	}

	b, err := h.svc.GetByHash(r.Context(), hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bill of lading not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get lading",
			slog.String("bol_hash", hash),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get bill of lading")
		return
	}

	writeJSON(w, http.StatusOK, toLadingResponse(b))
}

// GetLadingOffers returns the offers made against one aggregate.
// GET /api/ladings/{hash}/offers
func (h *LadingHandler) GetLadingOffers(w http.ResponseWriter, r *http.Request) {
	hash := pathParam(r, "hash")
	if hash == "" {
		writeError(w, http.StatusBadRequest, "missing hash")
		return
	}

	offers, err := h.svc.OffersByHash(r.Context(), hash)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list lading offers",
			slog.String("bol_hash", hash),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list offers")
		return
	}

	out := make([]offerResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOfferResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": out})
}
