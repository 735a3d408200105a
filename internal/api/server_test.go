package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/refoss-bridge/internal/bridge"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/config"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/refoss-bridge/internal/refoss"
	"github.com/nerrad567/refoss-bridge/internal/refoss/rpc"
	"github.com/nerrad567/refoss-bridge/internal/registry"
	"github.com/nerrad567/refoss-bridge/internal/trigger"
)

const testMAC = "C4E7AE000001"

// fakeBridge serves a single device with fixed entities.
type fakeBridge struct {
	mu       sync.Mutex
	ready    bool
	rpcErr   error
	method   string
	params   any
	devices  []bridge.DeviceSnapshot
	entities []bridge.EntitySnapshot
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		ready: true,
		devices: []bridge.DeviceSnapshot{{
			ID:          "dev-1",
			Host:        "192.168.1.50",
			MAC:         testMAC,
			Name:        "Hallway",
			Model:       "R11",
			Initialized: true,
			Online:      true,
			Entities:    2,
		}},
		entities: []bridge.EntitySnapshot{
			{EntityID: "sensor.hallway_power", UniqueID: testMAC + "-switch:0-power", Platform: "sensor", State: 12.5, Available: true, Unit: "W"},
			{EntityID: "switch.hallway", UniqueID: testMAC + "-switch:0", Platform: "switch", State: true, Available: true},
		},
	}
}

func (f *fakeBridge) lookup(mac string) error {
	if refoss.FormatMAC(mac) != refoss.FormatMAC(testMAC) {
		return fmt.Errorf("%w: %s", bridge.ErrDeviceNotFound, mac)
	}
	return nil
}

func (f *fakeBridge) Devices() []bridge.DeviceSnapshot { return f.devices }

func (f *fakeBridge) Device(mac string) (bridge.DeviceSnapshot, error) {
	if err := f.lookup(mac); err != nil {
		return bridge.DeviceSnapshot{}, err
	}
	return f.devices[0], nil
}

func (f *fakeBridge) Entities(mac string) ([]bridge.EntitySnapshot, error) {
	if err := f.lookup(mac); err != nil {
		return nil, err
	}
	return f.entities, nil
}

func (f *fakeBridge) Triggers(mac string) ([]trigger.Config, error) {
	if err := f.lookup(mac); err != nil {
		return nil, err
	}
	return []trigger.Config{{
		Platform: "device",
		DeviceID: "dev-1",
		Domain:   refoss.Domain,
		Type:     "button_down",
		Subtype:  "button1",
	}}, nil
}

func (f *fakeBridge) DeviceID(mac string) (string, error) {
	if err := f.lookup(mac); err != nil {
		return "", err
	}
	if !f.ready {
		return "", fmt.Errorf("%w: %s", bridge.ErrNotReady, mac)
	}
	return "dev-1", nil
}

func (f *fakeBridge) CallRPC(_ context.Context, mac, method string, params any) (json.RawMessage, error) {
	if err := f.lookup(mac); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method, f.params = method, params
	if f.rpcErr != nil {
		return nil, f.rpcErr
	}
	return json.RawMessage(`{"was_on":false}`), nil
}

func (f *fakeBridge) Stats() bridge.DeviceStats { return bridge.DeviceStats{Total: 1, Online: 1} }

// fakeNamed is the config of "dev-1": one button input.
type fakeNamed struct{ config *refoss.Dict }

func (n fakeNamed) Name() string         { return "Hallway" }
func (n fakeNamed) Config() *refoss.Dict { return n.config }

func (f *fakeBridge) LookupDevice(deviceID string) (refoss.NamedConfig, bool) {
	if deviceID != "dev-1" {
		return nil, false
	}
	cfg := refoss.NewDict()
	cfg.Set("input:1", map[string]any{"id": 1, "type": "button"})
	return fakeNamed{config: cfg}, true
}

// fakeClicks returns canned click history.
type fakeClicks struct {
	limit int
	err   error
}

func (f *fakeClicks) RecentClicks(_ context.Context, deviceID string, limit int) ([]registry.ClickEvent, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []registry.ClickEvent{
		{ID: 2, DeviceID: deviceID, Channel: 1, ClickType: "button_double_push", FiredAt: time.Date(2024, 1, 10, 18, 3, 0, 0, time.UTC)},
		{ID: 1, DeviceID: deviceID, Channel: 1, ClickType: "button_down", FiredAt: time.Date(2024, 1, 10, 18, 2, 0, 0, time.UTC)},
	}, nil
}

type fakeHealth struct{}

func (fakeHealth) Status() (bridge.HealthStatus, string) {
	return bridge.HealthDegraded, "devices offline"
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		Host: "127.0.0.1",
		Port: 0,
		Timeouts: config.APITimeoutConfig{
			Read:  5,
			Write: 5,
			Idle:  5,
		},
		WebSocket: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
	}
}

func testServer(t *testing.T) (*Server, *fakeBridge, *fakeClicks) {
	t.Helper()

	fb := newFakeBridge()
	clicks := &fakeClicks{}
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config:  testConfig(),
		Logger:  log,
		Bridge:  fb,
		Bus:     trigger.NewBus(),
		Clicks:  clicks,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, fb, clicks
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.Default()
	if _, err := New(Deps{Bridge: newFakeBridge()}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without bridge should fail")
	}
}

// ─── Health & Metrics ──────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode(t, w)
	if resp["status"] != string(bridge.HealthHealthy) {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	devices, _ := resp["devices"].(map[string]any)
	if devices["total"] != float64(1) {
		t.Errorf("devices = %v", resp["devices"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.health = fakeHealth{}

	resp := decode(t, do(t, srv, http.MethodGet, "/api/v1/health", ""))
	if resp["status"] != string(bridge.HealthDegraded) || resp["reason"] != "devices offline" {
		t.Errorf("health = %v", resp)
	}
}

func TestMetrics(t *testing.T) {
	srv, _, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	var m SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Devices.Total != 1 || m.Devices.Online != 1 || m.Devices.Entities != 2 {
		t.Errorf("Devices = %+v", m.Devices)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("Runtime.Goroutines = 0")
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	srv, _, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name      string
		allowed   []string
		origin    string
		wantAllow string
	}{
		{"empty list allows all", nil, "http://localhost:3000", "http://localhost:3000"},
		{"listed origin", []string{"http://ha.local"}, "http://ha.local", "http://ha.local"},
		{"unlisted origin", []string{"http://ha.local"}, "http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := testServer(t)
			srv.cfg.CORS.AllowedOrigins = tt.allowed

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("ACAO = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	if w := do(t, srv, http.MethodGet, "/api/v1/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Devices ───────────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := decode(t, do(t, srv, http.MethodGet, "/api/v1/devices", ""))
	if resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}
	devices, _ := resp["devices"].([]any)
	first, _ := devices[0].(map[string]any)
	if first["mac"] != testMAC || first["name"] != "Hallway" {
		t.Errorf("device = %v", first)
	}
}

func TestGetDevice(t *testing.T) {
	tests := []struct {
		name       string
		mac        string
		wantStatus int
	}{
		{"canonical", testMAC, http.StatusOK},
		{"colon notation", "c4:e7:ae:00:00:01", http.StatusOK},
		{"unknown", "AABBCCDDEEFF", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := testServer(t)
			w := do(t, srv, http.MethodGet, "/api/v1/devices/"+tt.mac, "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestListEntities(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := decode(t, do(t, srv, http.MethodGet, "/api/v1/devices/"+testMAC+"/entities", ""))
	if resp["count"] != float64(2) {
		t.Fatalf("count = %v, want 2", resp["count"])
	}
	entities, _ := resp["entities"].([]any)
	power, _ := entities[0].(map[string]any)
	if power["state"] != 12.5 || power["unit"] != "W" {
		t.Errorf("power entity = %v", power)
	}
}

func TestListTriggers(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := decode(t, do(t, srv, http.MethodGet, "/api/v1/devices/"+testMAC+"/triggers", ""))
	triggers, _ := resp["triggers"].([]any)
	if len(triggers) != 1 {
		t.Fatalf("triggers = %v", resp)
	}
	tr, _ := triggers[0].(map[string]any)
	if tr["domain"] != refoss.Domain || tr["subtype"] != "button1" {
		t.Errorf("trigger = %v", tr)
	}
}

func TestListEvents(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"default limit", "", http.StatusOK, defaultEventLimit},
		{"explicit limit", "?limit=5", http.StatusOK, 5},
		{"capped limit", "?limit=1000", http.StatusOK, maxEventLimit},
		{"invalid limit", "?limit=abc", http.StatusBadRequest, 0},
		{"zero limit", "?limit=0", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, clicks := testServer(t)
			w := do(t, srv, http.MethodGet, "/api/v1/devices/"+testMAC+"/events"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if clicks.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", clicks.limit, tt.wantLimit)
			}
			if tt.wantStatus == http.StatusOK {
				resp := decode(t, w)
				if resp["count"] != float64(2) {
					t.Errorf("count = %v, want 2", resp["count"])
				}
			}
		})
	}
}

func TestListEvents_Errors(t *testing.T) {
	t.Run("device not ready", func(t *testing.T) {
		srv, fb, _ := testServer(t)
		fb.ready = false
		if w := do(t, srv, http.MethodGet, "/api/v1/devices/"+testMAC+"/events", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
	t.Run("store failure", func(t *testing.T) {
		srv, _, clicks := testServer(t)
		clicks.err = errors.New("disk I/O error")
		if w := do(t, srv, http.MethodGet, "/api/v1/devices/"+testMAC+"/events", ""); w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
	t.Run("no history store", func(t *testing.T) {
		srv, _, _ := testServer(t)
		srv.clicks = nil
		if w := do(t, srv, http.MethodGet, "/api/v1/devices/"+testMAC+"/events", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}

// ─── RPC Passthrough ───────────────────────────────────────────────

func TestCallRPC(t *testing.T) {
	srv, fb, _ := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/devices/"+testMAC+"/rpc",
		`{"method":"Switch.Set","params":{"id":0,"on":true}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	result, _ := resp["result"].(map[string]any)
	if result["was_on"] != false {
		t.Errorf("result = %v", resp["result"])
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.method != "Switch.Set" {
		t.Errorf("method = %q, want Switch.Set", fb.method)
	}
	raw, _ := fb.params.(json.RawMessage)
	if string(raw) != `{"id":0,"on":true}` {
		t.Errorf("params = %s", raw)
	}
}

func TestCallRPC_NoParams(t *testing.T) {
	srv, fb, _ := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/devices/"+testMAC+"/rpc", `{"method":"Refoss.GetStatus"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.params != nil {
		t.Errorf("params = %v, want nil", fb.params)
	}
}

func TestCallRPC_Errors(t *testing.T) {
	tests := []struct {
		name       string
		mac        string
		body       string
		rpcErr     error
		wantStatus int
	}{
		{"empty body", testMAC, "", nil, http.StatusBadRequest},
		{"invalid json", testMAC, "{", nil, http.StatusBadRequest},
		{"missing method", testMAC, `{"params":{}}`, nil, http.StatusBadRequest},
		{"unknown device", "AABBCCDDEEFF", `{"method":"Refoss.GetStatus"}`, nil, http.StatusNotFound},
		{"not initialized", testMAC, `{"method":"Refoss.GetStatus"}`, fmt.Errorf("%w: %s", bridge.ErrNotReady, testMAC), http.StatusServiceUnavailable},
		{"device call error", testMAC, `{"method":"Nope"}`, &rpc.CallError{Code: 404, Message: "No handler for Nope"}, http.StatusBadGateway},
		{"connection error", testMAC, `{"method":"Refoss.GetStatus"}`, fmt.Errorf("%w: timeout", rpc.ErrDeviceConnection), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, fb, _ := testServer(t)
			fb.rpcErr = tt.rpcErr

			req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/"+tt.mac+"/rpc", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			var e Error
			if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil || e.Status != tt.wantStatus {
				t.Errorf("error body = %s", w.Body.String())
			}
		})
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func startedServer(t *testing.T) (*Server, *trigger.Bus) {
	t.Helper()
	srv, _, _ := testServer(t)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, srv.bus
}

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func subscribe(t *testing.T, ws *websocket.Conn, channels ...string) {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}
}

var _ http.Hijacker = (*statusWriter)(nil)

// TestWebSocket_UpgradeThroughMiddleware dials through the full middleware
// chain and checks the handshake completes with 101.
func TestWebSocket_UpgradeThroughMiddleware(t *testing.T) {
	srv, _ := startedServer(t)

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	defer ws.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("handshake status = %d, want %d", resp.StatusCode, http.StatusSwitchingProtocols)
	}
}

func TestWebSocket_RelaysClick(t *testing.T) {
	srv, bus := startedServer(t)
	ws := dialWS(t, srv)
	subscribe(t, ws, refoss.EventClick)

	at := time.Date(2024, 1, 10, 18, 3, 0, 500_000_000, time.UTC)
	bus.FireClick("dev-1", "Hallway", 1, "button_down", at)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != refoss.EventClick {
		t.Errorf("message = %+v", msg)
	}
	if msg.Timestamp != "2024-01-10T18:03:00.5Z" {
		t.Errorf("timestamp = %q", msg.Timestamp)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload[refoss.AttrClickType] != "button_down" || payload[refoss.AttrDeviceID] != "dev-1" {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestWebSocket_FiltersBySubscription(t *testing.T) {
	srv, bus := startedServer(t)
	ws := dialWS(t, srv)
	subscribe(t, ws, bridge.EventStateChanged)

	bus.FireClick("dev-1", "Hallway", 1, "button_down", time.Now())
	bus.Fire(trigger.Event{
		Type: bridge.EventStateChanged,
		Data: map[string]any{"entity_id": "switch.hallway", "state": "ON"},
		Time: time.Now(),
	})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.EventType != bridge.EventStateChanged {
		t.Errorf("first event = %q, want %q", msg.EventType, bridge.EventStateChanged)
	}
}

func TestWebSocket_Wildcard(t *testing.T) {
	srv, bus := startedServer(t)
	ws := dialWS(t, srv)
	subscribe(t, ws, WSChannelAll)

	bus.Fire(trigger.Event{Type: "custom", Data: map[string]any{"k": "v"}, Time: time.Now()})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.EventType != "custom" {
		t.Errorf("event type = %q, want custom", msg.EventType)
	}
}

func TestWebSocket_PingAndUnknown(t *testing.T) {
	srv, _ := startedServer(t)
	ws := dialWS(t, srv)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("pong = %+v", msg)
	}

	if err := ws.WriteJSON(WSMessage{Type: "bogus", ID: "b1"}); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if msg.Type != WSTypeError {
		t.Errorf("type = %q, want error", msg.Type)
	}
}

func TestValidateTrigger(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"valid", `{"device_id":"dev-1","domain":"refoss_rpc","type":"single_push","subtype":"button1"}`, http.StatusOK, ""},
		{"unknown device accepted", `{"device_id":"dev-9","domain":"refoss_rpc","type":"long_push","subtype":"button4"}`, http.StatusOK, ""},
		{"bad type", `{"device_id":"dev-1","domain":"refoss_rpc","type":"spin","subtype":"button1"}`, http.StatusBadRequest, ErrCodeValidation},
		{"missing button", `{"device_id":"dev-1","domain":"refoss_rpc","type":"single_push","subtype":"button2"}`, http.StatusBadRequest, ErrCodeValidation},
		{"wrong domain", `{"device_id":"dev-1","domain":"mqtt","type":"single_push","subtype":"button1"}`, http.StatusBadRequest, ErrCodeValidation},
		{"wrong platform", `{"platform":"state","device_id":"dev-1","domain":"refoss_rpc","type":"single_push","subtype":"button1"}`, http.StatusBadRequest, ErrCodeValidation},
		{"missing device", `{"domain":"refoss_rpc","type":"single_push","subtype":"button1"}`, http.StatusBadRequest, ErrCodeValidation},
		{"empty body", "", http.StatusBadRequest, ErrCodeBadRequest},
	}

	srv, _, _ := testServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/v1/triggers/validate", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			body := decode(t, w)
			if tt.wantCode != "" {
				if body["code"] != tt.wantCode {
					t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
				}
				return
			}
			trig, _ := body["trigger"].(map[string]any)
			if body["valid"] != true || trig["platform"] != trigger.PlatformDevice {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestWebSocket_AttachTrigger(t *testing.T) {
	srv, bus := startedServer(t)
	ws := dialWS(t, srv)

	if err := ws.WriteJSON(WSMessage{
		Type: WSTypeAttachTrigger,
		ID:   "t1",
		Payload: trigger.Config{
			DeviceID: "dev-1", Domain: refoss.Domain, Type: "single_push", Subtype: "button1",
		},
	}); err != nil {
		t.Fatalf("write attach: %v", err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypeResponse || msg.ID != "t1" {
		t.Fatalf("attach response = %+v", msg)
	}

	at := time.Date(2024, 1, 10, 18, 3, 0, 0, time.UTC)
	bus.FireClick("dev-1", "Hallway", 2, "single_push", at)
	bus.FireClick("dev-1", "Hallway", 1, "double_push", at)
	bus.FireClick("dev-1", "Hallway", 1, "single_push", at)

	msg := readWS(t, ws)
	if msg.Type != WSTypeTrigger || msg.ID != "t1" || msg.EventType != refoss.EventClick {
		t.Fatalf("trigger message = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	ev, _ := payload["event"].(map[string]any)
	if ev[refoss.AttrChannel] != 1.0 || ev[refoss.AttrClickType] != "single_push" {
		t.Errorf("trigger event = %v", payload["event"])
	}

	if err := ws.WriteJSON(WSMessage{Type: WSTypeDetachTrigger, ID: "t1"}); err != nil {
		t.Fatalf("write detach: %v", err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypeResponse || msg.ID != "t1" {
		t.Fatalf("detach response = %+v", msg)
	}

	bus.FireClick("dev-1", "Hallway", 1, "single_push", at)
	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypePong {
		t.Errorf("message after detach = %+v, want pong", msg)
	}
}

func TestWebSocket_AttachTriggerErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  WSMessage
	}{
		{"missing id", WSMessage{Type: WSTypeAttachTrigger, Payload: trigger.Config{
			DeviceID: "dev-1", Domain: refoss.Domain, Type: "single_push", Subtype: "button1"}}},
		{"invalid trigger", WSMessage{Type: WSTypeAttachTrigger, ID: "t2", Payload: trigger.Config{
			DeviceID: "dev-1", Domain: refoss.Domain, Type: "single_push", Subtype: "button7"}}},
		{"detach unknown", WSMessage{Type: WSTypeDetachTrigger, ID: "nope"}},
	}

	srv, _ := startedServer(t)
	ws := dialWS(t, srv)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ws.WriteJSON(tt.msg); err != nil {
				t.Fatalf("write: %v", err)
			}
			if msg := readWS(t, ws); msg.Type != WSTypeError {
				t.Errorf("message = %+v, want error", msg)
			}
		})
	}
}

func TestServer_CloseStopsRelay(t *testing.T) {
	srv, _, _ := testServer(t)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	srv.bus.FireClick("dev-1", "Hallway", 1, "button_down", time.Now())
}
