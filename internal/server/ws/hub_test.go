package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubBus struct{}

func (stubBus) Publish(context.Context, string, []byte) error { return nil }

func (stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func newTestHub(origins []string) *Hub {
	return NewHub(stubBus{}, origins, slog.New(slog.DiscardHandler))
}

func upgradeRequest(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestOriginGate(t *testing.T) {
	cases := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"no header always passes", []string{"https://app.example"}, "", true},
		{"empty list passes any origin", nil, "https://anything.example", true},
		{"configured origin passes", []string{"https://app.example"}, "https://app.example", true},
		{"wildcard passes any origin", []string{"*"}, "https://anything.example", true},
		{"unknown origin rejected", []string{"https://app.example"}, "https://evil.example", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHub(tc.origins)
			assert.Equal(t, tc.want, h.originAllowed(upgradeRequest(tc.origin)))
		})
	}
}

func TestHandleWSRejectsDisallowedOrigin(t *testing.T) {
	h := newTestHub([]string{"https://app.example"})

	rec := httptest.NewRecorder()
	h.HandleWS(rec, upgradeRequest("https://evil.example"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
