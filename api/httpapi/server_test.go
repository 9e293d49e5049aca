package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"matchbook/domain/events"
	"matchbook/domain/orderbook"
	"matchbook/infra/metrics"
	"matchbook/infra/sequence"
	"matchbook/infra/storage"
	"matchbook/service"
)

type harness struct {
	srv *httptest.Server
	hub *Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)

	store, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "engine.db")}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := NewHub(log)
	m := metrics.New()
	engine := service.New(orderbook.NewRegistry(), store, sequence.New(0),
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithEventSink(hub),
	)

	srv := httptest.NewServer(NewServer(engine, hub, m, Options{DefaultDepth: 10}, log).Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return &harness{srv: srv, hub: hub}
}

func (h *harness) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestSubmitDecimalPriceAndQuery(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(t, http.MethodPost, "/api/v1/orders",
		`{"client_id":"C1","symbol":"sym","side":"BUY","order_type":"LIMIT","price":"100.50","quantity":10}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "OID-1", body["order_id"])
	assert.Equal(t, "SYM", body["symbol"])
	assert.Equal(t, "NEW", body["status"])

	code, body = h.do(t, http.MethodGet, "/api/v1/markets/SYM/orderbook", "")
	require.Equal(t, http.StatusOK, code)
	bids := body["bids"].([]any)
	require.Len(t, bids, 1)
	assert.Equal(t, "100.5000", bids[0].(map[string]any)["price"])
	assert.Equal(t, float64(10), bids[0].(map[string]any)["quantity"])
	assert.Empty(t, body["asks"])

	code, body = h.do(t, http.MethodGet, "/api/v1/markets/SYM/bbo", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "100.5000", body["bid"])
	assert.Nil(t, body["ask"])

	code, body = h.do(t, http.MethodGet, "/api/v1/orders/OID-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "C1", body["client_id"])
	assert.Equal(t, "BUY", body["side"])
	assert.Equal(t, "LIMIT", body["order_type"])
	assert.Equal(t, "100.5000", body["price"])
	assert.Equal(t, float64(10), body["remaining_quantity"])
}

func TestSubmitRawPriceWithScaleMatches(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(t, http.MethodPost, "/api/v1/orders",
		`{"client_id":"M","symbol":"SYM","side":"SELL","order_type":"LIMIT","price":10050,"scale":2,"quantity":10}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := h.do(t, http.MethodPost, "/api/v1/orders",
		`{"client_id":"T","symbol":"SYM","side":"BUY","order_type":"MARKET","quantity":4}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "FILLED", body["status"])
	assert.Equal(t, float64(4), body["filled_quantity"])
	fills := body["fills"].([]any)
	require.Len(t, fills, 1)
	assert.Equal(t, "OID-1", fills[0].(map[string]any)["maker_order_id"])
	assert.Equal(t, "100.5000", fills[0].(map[string]any)["price"])

	code, body = h.do(t, http.MethodGet, "/api/v1/orders/1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PARTIALLY_FILLED", body["status"])
	assert.Equal(t, float64(6), body["remaining_quantity"])
	assert.Len(t, body["fills"], 1)
}

func TestSubmitRejections(t *testing.T) {
	h := newHarness(t)

	cases := map[string]struct {
		body string
		code int
	}{
		"malformed json": {`{"symbol":`, http.StatusBadRequest},
		"bad side":       {`{"symbol":"S","side":"HOLD","order_type":"LIMIT","price":"1","quantity":1}`, http.StatusUnprocessableEntity},
		"zero quantity":  {`{"symbol":"S","side":"BUY","order_type":"LIMIT","price":"1","quantity":0}`, http.StatusUnprocessableEntity},
		"no price":       {`{"symbol":"S","side":"BUY","order_type":"LIMIT","quantity":1}`, http.StatusUnprocessableEntity},
		"fraction+scale": {`{"symbol":"S","side":"BUY","order_type":"LIMIT","price":1.5,"scale":2,"quantity":1}`, http.StatusUnprocessableEntity},
		"no symbol":      {`{"side":"BUY","order_type":"MARKET","quantity":1}`, http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			code, body := h.do(t, http.MethodPost, "/api/v1/orders", tc.body)
			assert.Equal(t, tc.code, code)
			assert.NotEmpty(t, body["message"])
		})
	}

	// rejections consume no id
	code, body := h.do(t, http.MethodPost, "/api/v1/orders",
		`{"symbol":"S","side":"BUY","order_type":"LIMIT","price":"1","quantity":1}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "OID-1", body["order_id"])
}

func TestCancel(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(t, http.MethodPost, "/api/v1/orders",
		`{"symbol":"SYM","side":"SELL","order_type":"LIMIT","price":"101","quantity":3}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := h.do(t, http.MethodDelete, "/api/v1/orders/SYM/OID-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["canceled"])

	code, _ = h.do(t, http.MethodDelete, "/api/v1/orders/SYM/OID-1", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = h.do(t, http.MethodDelete, "/api/v1/orders/SYM/bogus", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(t, http.MethodGet, "/api/v1/orders/OID-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELED", body["status"])
	assert.Equal(t, float64(0), body["remaining_quantity"])

	code, body = h.do(t, http.MethodGet, "/api/v1/markets/SYM/orderbook", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["asks"])
}

func TestOrderNotFound(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(t, http.MethodGet, "/api/v1/orders/OID-42", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["error"])
}

func TestOrderBookDepth(t *testing.T) {
	h := newHarness(t)

	for _, px := range []string{"100", "101", "102"} {
		code, _ := h.do(t, http.MethodPost, "/api/v1/orders",
			`{"symbol":"SYM","side":"SELL","order_type":"LIMIT","price":"`+px+`","quantity":1}`)
		require.Equal(t, http.StatusCreated, code)
	}

	code, body := h.do(t, http.MethodGet, "/api/v1/markets/SYM/orderbook?depth=2", "")
	require.Equal(t, http.StatusOK, code)
	asks := body["asks"].([]any)
	require.Len(t, asks, 2)
	assert.Equal(t, "100.0000", asks[0].(map[string]any)["price"])
	assert.Equal(t, "101.0000", asks[1].(map[string]any)["price"])

	code, body = h.do(t, http.MethodGet, "/api/v1/markets/SYM/orderbook?depth=0", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["asks"])

	code, body = h.do(t, http.MethodGet, "/api/v1/markets/SYM/orderbook?depth=-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["asks"], 3)

	code, _ = h.do(t, http.MethodGet, "/api/v1/markets/SYM/orderbook?depth=x", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(t, http.MethodGet, "/api/v1/markets/NOPE/orderbook", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["bids"])
	assert.Empty(t, body["asks"])

	code, body = h.do(t, http.MethodGet, "/api/v1/markets", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"SYM"}, body["symbols"])
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	_, _ = h.do(t, http.MethodPost, "/api/v1/orders",
		`{"symbol":"SYM","side":"BUY","order_type":"LIMIT","price":"1","quantity":1}`)

	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `engine_orders_total{result="accepted"} 1`)
}

func dialWS(t *testing.T, h *harness, query string) *websocket.Conn {
	t.Helper()
	before := h.hub.Len()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return h.hub.Len() == before+1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebsocketStreamsCommittedEvents(t *testing.T) {
	h := newHarness(t)
	conn := dialWS(t, h, "")

	code, _ := h.do(t, http.MethodPost, "/api/v1/orders",
		`{"client_id":"C1","symbol":"SYM","side":"BUY","order_type":"LIMIT","price":"100","quantity":5}`)
	require.Equal(t, http.StatusCreated, code)

	ev := readEvent(t, conn)
	assert.Equal(t, events.OrderAccepted, ev.Type)
	assert.Equal(t, "SYM", ev.Symbol)
	assert.Equal(t, uint64(1), ev.OrderID)
	assert.Equal(t, "100.0000", ev.Price)
}

func TestWebsocketSymbolFilter(t *testing.T) {
	h := newHarness(t)
	filtered := dialWS(t, h, "?symbol=aaa")
	all := dialWS(t, h, "")

	require.NoError(t, h.hub.Emit(events.Event{Type: events.Trade, Symbol: "BBB"}))
	require.NoError(t, h.hub.Emit(events.Event{Type: events.Trade, Symbol: "AAA"}))

	assert.Equal(t, "AAA", readEvent(t, filtered).Symbol)
	assert.Equal(t, "BBB", readEvent(t, all).Symbol)
	assert.Equal(t, "AAA", readEvent(t, all).Symbol)
}

func TestWebsocketSubscribeMessage(t *testing.T) {
	h := newHarness(t)
	conn := dialWS(t, h, "?symbol=AAA")

	require.NoError(t, conn.WriteJSON(subscribeRequest{Op: "subscribe", Symbols: []string{"ccc"}}))
	require.Eventually(t, func() bool {
		for c := range snapshotClients(h.hub) {
			if c.wants("CCC") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.hub.Emit(events.Event{Type: events.Trade, Symbol: "CCC"}))
	assert.Equal(t, "CCC", readEvent(t, conn).Symbol)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	h := newHarness(t)
	conn := dialWS(t, h, "")

	h.hub.Close()
	assert.Equal(t, 0, h.hub.Len())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	// emitting after close is a no-op
	require.NoError(t, h.hub.Emit(events.Event{Type: events.Trade, Symbol: "X"}))
}

func snapshotClients(h *Hub) map[*wsClient]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[*wsClient]struct{}, len(h.clients))
	for c := range h.clients {
		out[c] = struct{}{}
	}
	return out
}
