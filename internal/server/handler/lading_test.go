package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelane/bolindexer/internal/domain"
	"github.com/tradelane/bolindexer/internal/service"
	"github.com/tradelane/bolindexer/internal/store/memory"
)

const (
	testLadingHash = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testLadingAddr = "0x1111111111111111111111111111111111111111"
)

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	minted := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Ladings().Insert(context.Background(), domain.BillOfLading{
		BOLHash:         testLadingHash,
		ContractAddress: testLadingAddr,
		BuyerWallet:     "0x2222222222222222222222222222222222222222",
		SellerWallet:    "0x3333333333333333333333333333333333333333",
		DeclaredValue:   big.NewInt(50000),
		BLNumber:        "BL-2025-0001",
		TotalFunded:     big.NewInt(20000),
		TotalPaid:       new(big.Int),
		TotalClaimed:    new(big.Int),
		MintedAt:        &minted,
	}))
	require.NoError(t, store.Offers().Insert(context.Background(), domain.Offer{
		BOLHash:         testLadingHash,
		OfferID:         1,
		Investor:        "0x4444444444444444444444444444444444444444",
		Amount:          big.NewInt(10000),
		InterestRateBps: 500,
		ClaimAmount:     big.NewInt(10500),
	}))
	return store
}

func newTestMux(t *testing.T, store *memory.Store) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	svc := service.NewLadingService(store.Ladings(), store.Offers(), nil, logger)
	ladings := NewLadingHandler(svc, logger)
	offers := NewOfferHandler(svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ladings", ladings.ListLadings)
	mux.HandleFunc("GET /api/ladings/{hash}", ladings.GetLading)
	mux.HandleFunc("GET /api/ladings/{hash}/offers", ladings.GetLadingOffers)
	mux.HandleFunc("GET /api/offers", offers.ListOffers)
	return mux
}

func doGet(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestGetLading(t *testing.T) {
	mux := newTestMux(t, seedStore(t))

	rec := doGet(t, mux, "/api/ladings/"+testLadingHash)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testLadingHash, body["bol_hash"])
	assert.Equal(t, testLadingAddr, body["contract_address"])
	assert.Equal(t, "BL-2025-0001", body["bl_number"])
	assert.Equal(t, "50000", body["declared_value"])
	assert.Equal(t, "20000", body["total_funded"])
	assert.Equal(t, false, body["settled"])
}

func TestGetLadingNotFound(t *testing.T) {
	mux := newTestMux(t, seedStore(t))

	rec := doGet(t, mux, "/api/ladings/0xdeadbeef")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestListLadings(t *testing.T) {
	mux := newTestMux(t, seedStore(t))

	rec := doGet(t, mux, "/api/ladings?limit=10&offset=0")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Ladings []json.RawMessage `json:"ladings"`
		Limit   int               `json:"limit"`
		Offset  int               `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Ladings, 1)
	assert.Equal(t, 10, body.Limit)
	assert.Zero(t, body.Offset)
}

func TestListLadingsEmptyStoreReturnsEmptyArray(t *testing.T) {
	mux := newTestMux(t, memory.NewStore())

	rec := doGet(t, mux, "/api/ladings")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ladings":[]`)
}

func TestGetLadingOffers(t *testing.T) {
	mux := newTestMux(t, seedStore(t))

	rec := doGet(t, mux, "/api/ladings/"+testLadingHash+"/offers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Offers []struct {
			OfferID     uint64 `json:"offer_id"`
			Investor    string `json:"investor"`
			Amount      string `json:"amount"`
			ClaimAmount string `json:"claim_amount"`
			Accepted    bool   `json:"accepted"`
		} `json:"offers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Offers, 1)
	assert.Equal(t, uint64(1), body.Offers[0].OfferID)
	assert.Equal(t, "10000", body.Offers[0].Amount)
	assert.Equal(t, "10500", body.Offers[0].ClaimAmount)
	assert.False(t, body.Offers[0].Accepted)
}

func TestListOffers(t *testing.T) {
	mux := newTestMux(t, seedStore(t))

	rec := doGet(t, mux, "/api/offers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"offer_id":1`)
}

func TestParseListOptsClampsLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/ladings?limit=9999", nil)
	opts := parseListOpts(req)
	assert.Equal(t, 500, opts.Limit)

	req = httptest.NewRequest(http.MethodGet, "/api/ladings?limit=-3&offset=-1", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Zero(t, opts.Offset)
}
