package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tradelane/bolindexer/internal/domain"
	"github.com/tradelane/bolindexer/internal/service"
)

// OfferHandler serves offer read endpoints.
type OfferHandler struct {
	svc    *service.LadingService
	logger *slog.Logger
}

// NewOfferHandler creates an OfferHandler.
func NewOfferHandler(svc *service.LadingService, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{
		svc:    svc,
		logger: logHandler(logger, "offer"),
	}
}

// offerResponse is the wire form of an offer.
type offerResponse struct {
	BOLHash         string    `json:"bol_hash"`
	OfferID         uint64    `json:"offer_id"`
	Investor        string    `json:"investor"`
	Amount          string    `json:"amount"`
	InterestRateBps uint64    `json:"interest_rate_bps"`
	ClaimAmount     string    `json:"claim_amount"`
	Accepted        bool      `json:"accepted"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toOfferResponse(o domain.Offer) offerResponse {
	return offerResponse{
		BOLHash:         o.BOLHash,
		OfferID:         o.OfferID,
		Investor:        o.Investor,
		Amount:          bigText(o.Amount),
		InterestRateBps: o.InterestRateBps,
		ClaimAmount:     bigText(o.ClaimAmount),
		Accepted:        o.Accepted,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// ListOffers returns a page of offers across all bills of lading.
// GET /api/offers
func (h *OfferHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	offers, err := h.svc.ListOffers(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list offers", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list offers")
		return
	}

	out := make([]offerResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOfferResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"offers": out,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
