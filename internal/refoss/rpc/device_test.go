package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const (
	testConfigJSON = `{"switch:0":{"id":0,"name":null},"input:1":{"id":1,"type":"button","name":"test input"},"sys":{"device":{"name":"Test name"}},"wifi":{"sta_1":{"enable":true},"sta_2":{"enable":false}}}`
	testStatusJSON = `{"switch:0":{"id":0,"output":false,"apower":0.0,"voltage":229.9},"input:1":{"id":1,"state":null},"sys":{"uptime":120,"temperature":{"tc":41.2}},"wifi":{"rssi":-58}}`
)

// fakeRefoss emulates the /rpc endpoint of a device over HTTP and WebSocket.
type fakeRefoss struct {
	t        *testing.T
	password string
	push     chan string

	mu    sync.Mutex
	calls []request
}

func newFakeRefoss(t *testing.T) *fakeRefoss {
	return &fakeRefoss{t: t, push: make(chan string, 8)}
}

func (f *fakeRefoss) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/rpc" {
		http.NotFound(w, r)
		return
	}
	if f.password != "" {
		if _, pass, ok := r.BasicAuth(); !ok || pass != f.password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	if websocket.IsWebSocketUpgrade(r) {
		f.serveWS(w, r)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(f.respond(req))) //nolint:errcheck // test server
}

func (f *fakeRefoss) respond(req request) string {
	id := strconv.FormatInt(req.ID, 10)
	switch req.Method {
	case MethodGetDeviceInfo:
		return `{"id":` + id + `,"result":{"id":"refoss-em06-c4e7ae000001","name":null,"mac":"C4E7AE000001","model":"EM06","ver":"1.2.3","gen":2}}`
	case MethodGetConfig:
		return `{"id":` + id + `,"result":` + testConfigJSON + `}`
	case MethodGetStatus:
		return `{"id":` + id + `,"result":` + testStatusJSON + `}`
	case MethodSwitchSet:
		return `{"id":` + id + `,"result":{"was_on":false}}`
	case "Auth.Denied":
		return `{"id":` + id + `,"error":{"code":401,"message":"unauthorized"}}`
	default:
		return `{"id":` + id + `,"error":{"code":404,"message":"No handler for ` + req.Method + `"}}`
	}
}

func (f *fakeRefoss) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var req request
	if err := conn.ReadJSON(&req); err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(f.respond(req))); err != nil {
		return
	}

	for msg := range f.push {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
	}
}

func (f *fakeRefoss) lastCall() request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func deviceFor(t *testing.T, srv *httptest.Server, password string) *Device {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())
	return NewDevice(Options{
		Host:     u.Hostname(),
		Port:     port,
		Username: "admin",
		Password: password,
		Timeout:  2 * time.Second,
	})
}

func TestDevice_Initialize(t *testing.T) {
	fake := newFakeRefoss(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dev := deviceFor(t, srv, "")
	if dev.Initialized() {
		t.Fatal("Initialized() = true before Initialize")
	}

	if err := dev.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if !dev.Initialized() {
		t.Error("Initialized() = false after Initialize")
	}
	if got := dev.Name(); got != "Test name" {
		t.Errorf("Name() = %q, want name from sys config", got)
	}
	if got := dev.MAC(); got != "c4:e7:ae:00:00:01" {
		t.Errorf("MAC() = %q", got)
	}
	if dev.Model() != "EM06" || dev.FirmwareVersion() != "1.2.3" {
		t.Errorf("Model/FirmwareVersion = %q/%q", dev.Model(), dev.FirmwareVersion())
	}

	keys := dev.Config().Keys()
	want := []string{"switch:0", "input:1", "sys", "wifi"}
	if len(keys) != len(want) {
		t.Fatalf("Config().Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Config().Keys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
	if got := dev.Status().Component("switch:0")["voltage"]; got != 229.9 {
		t.Errorf("status voltage = %v", got)
	}
}

func TestDevice_UpdateRequiresInitialize(t *testing.T) {
	dev := NewDevice(Options{Host: "127.0.0.1"})
	if err := dev.Update(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Update() error = %v, want ErrNotInitialized", err)
	}
}

func TestDevice_CallRPC(t *testing.T) {
	fake := newFakeRefoss(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dev := deviceFor(t, srv, "")

	raw, err := dev.CallRPC(context.Background(), MethodSwitchSet, map[string]any{"id": 0, "on": true})
	if err != nil {
		t.Fatalf("CallRPC() error = %v", err)
	}
	if string(raw) != `{"was_on":false}` {
		t.Errorf("result = %s", raw)
	}

	call := fake.lastCall()
	if call.Method != MethodSwitchSet || call.Source == "" || call.ID == 0 {
		t.Errorf("request = %+v", call)
	}
	params, _ := call.Params.(map[string]any)
	if params["on"] != true {
		t.Errorf("params = %v", call.Params)
	}
}

func TestDevice_CallRPC_Errors(t *testing.T) {
	fake := newFakeRefoss(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dev := deviceFor(t, srv, "")
	ctx := context.Background()

	_, err := dev.CallRPC(ctx, "Cover.Open", nil)
	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.Code != 404 {
		t.Errorf("unknown method error = %v, want *CallError 404", err)
	}

	if _, err := dev.CallRPC(ctx, "Auth.Denied", nil); !errors.Is(err, ErrInvalidAuth) {
		t.Errorf("auth error code = %v, want ErrInvalidAuth", err)
	}

	locked := newFakeRefoss(t)
	locked.password = "secret"
	authSrv := httptest.NewServer(locked)
	defer authSrv.Close()

	wrong := deviceFor(t, authSrv, "wrong")
	if _, err := wrong.CallRPC(ctx, MethodGetStatus, nil); !errors.Is(err, ErrInvalidAuth) {
		t.Errorf("HTTP 401 error = %v, want ErrInvalidAuth", err)
	}
	right := deviceFor(t, authSrv, "secret")
	if _, err := right.CallRPC(ctx, MethodGetStatus, nil); err != nil {
		t.Errorf("authenticated call error = %v", err)
	}

	srv.Close()
	_, err = dev.CallRPC(ctx, MethodGetStatus, nil)
	if !errors.Is(err, ErrDeviceConnection) || !IsConnectionError(err) {
		t.Errorf("closed server error = %v, want ErrDeviceConnection", err)
	}
}

func TestDevice_Subscribe(t *testing.T) {
	fake := newFakeRefoss(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dev := deviceFor(t, srv, "")
	if err := dev.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	statusCh := make(chan struct{}, 8)
	eventsCh := make(chan []Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- dev.Subscribe(ctx, PushHandler{
			OnStatus: func() { statusCh <- struct{}{} },
			OnEvents: func(ev []Event) { eventsCh <- ev },
		})
	}()

	waitFor := func(ch <-chan struct{}) {
		t.Helper()
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for status notification")
		}
	}

	// Initial GetStatus response.
	waitFor(statusCh)

	fake.push <- `{"src":"dev","method":"NotifyStatus","params":{"ts":1704912180.1,"switch:0":{"output":true}}}`
	waitFor(statusCh)

	sw := dev.Status().Component("switch:0")
	if sw["output"] != true || sw["voltage"] != 229.9 {
		t.Errorf("merged switch:0 = %v", sw)
	}
	if dev.Status().Has("ts") {
		t.Error("notification timestamp leaked into status")
	}

	fake.push <- `{"src":"dev","method":"NotifyEvent","params":{"ts":1704912181.0,"events":[{"component":"input","id":1,"event":"single_push","ts":1704912181.0}]}}`
	select {
	case events := <-eventsCh:
		if len(events) != 1 || events[0].Key() != "input:1" || events[0].Event != "single_push" || events[0].Channel() != 1 {
			t.Errorf("events = %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	// A timestamp-only patch changes nothing and must not notify.
	fake.push <- `{"src":"dev","method":"NotifyStatus","params":{"ts":1704912182.0}}`
	fake.push <- `{"src":"dev","method":"NotifyEvent","params":{"events":[{"component":"input:2","id":2,"event":"double_push"}]}}`
	select {
	case events := <-eventsCh:
		if len(events) != 1 || events[0].Key() != "input:2" || events[0].Name() != "input" || events[0].Channel() != 2 {
			t.Errorf("indexed events = %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for indexed events")
	}
	select {
	case <-statusCh:
		t.Error("timestamp-only NotifyStatus triggered OnStatus")
	default:
	}

	fake.push <- `{"src":"dev","method":"NotifyFullStatus","params":{"sys":{"uptime":5}}}`
	waitFor(statusCh)
	if got := dev.Status().Keys(); len(got) != 1 || got[0] != "sys" {
		t.Errorf("full status keys = %v, want [sys]", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Subscribe() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	close(fake.push)
}

func TestDevice_SubscribeConnectionLost(t *testing.T) {
	fake := newFakeRefoss(t)
	srv := httptest.NewServer(fake)

	dev := deviceFor(t, srv, "")
	srv.Close()

	err := dev.Subscribe(context.Background(), PushHandler{})
	if !errors.Is(err, ErrDeviceConnection) {
		t.Errorf("Subscribe() error = %v, want ErrDeviceConnection", err)
	}
}

func TestDevice_Shutdown(t *testing.T) {
	fake := newFakeRefoss(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dev := deviceFor(t, srv, "")
	if err := dev.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	dev.Shutdown()
	if dev.Initialized() {
		t.Error("Initialized() = true after Shutdown")
	}
}

func TestEvent_Key(t *testing.T) {
	id := func(n int) *int { return &n }

	tests := []struct {
		name        string
		ev          Event
		wantKey     string
		wantName    string
		wantChannel int
	}{
		{"bare component with id", Event{Component: "input", ID: id(2)}, "input:2", "input", 2},
		{"indexed component with id", Event{Component: "input:1", ID: id(1)}, "input:1", "input", 1},
		{"indexed component without id", Event{Component: "input:3"}, "input:3", "input", 3},
		{"no instance", Event{Component: "sys"}, "sys", "sys", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Key(); got != tt.wantKey {
				t.Errorf("Key() = %q, want %q", got, tt.wantKey)
			}
			if got := tt.ev.Name(); got != tt.wantName {
				t.Errorf("Name() = %q, want %q", got, tt.wantName)
			}
			if got := tt.ev.Channel(); got != tt.wantChannel {
				t.Errorf("Channel() = %d, want %d", got, tt.wantChannel)
			}
		})
	}
}

func TestNewDevice_IPv6Host(t *testing.T) {
	dev := NewDevice(Options{Host: "fe80::1", Port: 8080})
	if dev.rpcURL != "http://[fe80::1]:8080/rpc" {
		t.Errorf("rpcURL = %q", dev.rpcURL)
	}
	if dev.Name() != "fe80::1" {
		t.Errorf("Name() before Initialize = %q, want host", dev.Name())
	}
}
