package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
)

const (
	defaultTimeout = 10 * time.Second
	defaultPort    = 80

	// maxResponseSize caps a single RPC response body.
	maxResponseSize = 1 << 20
)

// Options configures a Device.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	// Timeout bounds each HTTP call. Default: 10s
	Timeout time.Duration

	// HTTPClient overrides the client used for calls.
	HTTPClient *http.Client

	// Dialer overrides the WebSocket dialer used by Subscribe.
	Dialer *websocket.Dialer
}

// Device is a Refoss device reached over its JSON-RPC API.
//
// Calls are made over HTTP POST to /rpc. Subscribe opens the WebSocket
// channel at the same path and keeps the cached status current from
// NotifyStatus and NotifyFullStatus frames.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Config and Status return snapshots that are replaced, never mutated.
type Device struct {
	opts    Options
	client  *http.Client
	dialer  *websocket.Dialer
	source  string
	nextID  atomic.Int64
	rpcURL  string
	wsURL   string
	hostStr string

	mu          sync.RWMutex
	info        DeviceInfo
	config      *refoss.Dict
	status      *refoss.Dict
	initialized bool

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewDevice returns an unconnected device. Call Initialize before use.
func NewDevice(opts Options) *Device {
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: opts.Timeout}
	}

	authority := refoss.Host(opts.Host) + ":" + strconv.Itoa(opts.Port)
	return &Device{
		opts:    opts,
		client:  client,
		dialer:  dialer,
		source:  "refossbridge-" + uuid.NewString(),
		rpcURL:  "http://" + authority + "/rpc",
		wsURL:   "ws://" + authority + "/rpc",
		hostStr: opts.Host,
		config:  refoss.NewDict(),
		status:  refoss.NewDict(),
	}
}

// Host returns the configured host.
func (d *Device) Host() string { return d.hostStr }

// Port returns the configured port.
func (d *Device) Port() int { return d.opts.Port }

// Name returns the device name, falling back to the device id and host.
func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch {
	case d.info.Name != "":
		return d.info.Name
	case d.info.ID != "":
		return d.info.ID
	default:
		return d.hostStr
	}
}

// MAC returns the device MAC in lower-case colon form.
func (d *Device) MAC() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return refoss.FormatMAC(d.info.MAC)
}

// Model returns the hardware model.
func (d *Device) Model() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info.Model
}

// FirmwareVersion returns the running firmware version.
func (d *Device) FirmwareVersion() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info.FirmwareVersion
}

// Info returns the last device info read by Initialize.
func (d *Device) Info() DeviceInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// Config returns the current config snapshot.
func (d *Device) Config() *refoss.Dict {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Status returns the current status snapshot.
func (d *Device) Status() *refoss.Dict {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Initialized reports whether Initialize completed and Shutdown has not
// been called since.
func (d *Device) Initialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

// Initialize reads device info, config and status.
func (d *Device) Initialize(ctx context.Context) error {
	var info DeviceInfo
	if err := d.callInto(ctx, MethodGetDeviceInfo, nil, &info); err != nil {
		return fmt.Errorf("reading device info: %w", err)
	}
	config, err := d.fetchDict(ctx, MethodGetConfig)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	status, err := d.fetchDict(ctx, MethodGetStatus)
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}

	if info.Name == "" {
		if dev, ok := config.Component("sys")["device"].(map[string]any); ok {
			info.Name, _ = dev["name"].(string)
		}
	}

	d.mu.Lock()
	d.info = info
	d.config = config
	d.status = status
	d.initialized = true
	d.mu.Unlock()
	return nil
}

// Update refreshes the status snapshot.
func (d *Device) Update(ctx context.Context) error {
	if !d.Initialized() {
		return ErrNotInitialized
	}
	status, err := d.fetchDict(ctx, MethodGetStatus)
	if err != nil {
		return err
	}
	d.setStatus(status)
	return nil
}

// Shutdown closes the push channel and marks the device uninitialized.
func (d *Device) Shutdown() {
	d.connMu.Lock()
	if d.conn != nil {
		d.conn.Close() //nolint:errcheck // closing on shutdown
		d.conn = nil
	}
	d.connMu.Unlock()

	d.mu.Lock()
	d.initialized = false
	d.mu.Unlock()
}

// CallRPC invokes method with params and returns the raw result.
//
// Errors wrap ErrDeviceConnection for transport failures and ErrInvalidAuth
// for rejected credentials; other device-side failures are *CallError.
func (d *Device) CallRPC(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(request{
		ID:     d.nextID.Add(1),
		Source: d.source,
		Method: method,
		Params: params,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, d.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceConnection, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.opts.Password != "" {
		req.SetBasicAuth(d.opts.Username, d.opts.Password)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidAuth
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrDeviceConnection, err)
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: HTTP %d", ErrDeviceConnection, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: decoding response: %w", ErrDeviceConnection, err)
	}
	if f.Error != nil {
		if f.Error.Code == codeUnauthorized {
			return nil, ErrInvalidAuth
		}
		return nil, f.Error
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrDeviceConnection, resp.StatusCode)
	}
	return f.Result, nil
}

func (d *Device) callInto(ctx context.Context, method string, params, out any) error {
	raw, err := d.CallRPC(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding %s result: %w", ErrDeviceConnection, method, err)
	}
	return nil
}

func (d *Device) fetchDict(ctx context.Context, method string) (*refoss.Dict, error) {
	out := refoss.NewDict()
	if err := d.callInto(ctx, method, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Device) setStatus(status *refoss.Dict) {
	d.mu.Lock()
	d.status = status
	d.mu.Unlock()
}

func (d *Device) mergeStatus(patch *refoss.Dict) {
	d.mu.Lock()
	d.status = d.status.Merge(patch)
	d.mu.Unlock()
}

// Subscribe opens the push channel and processes notifications until ctx is
// cancelled or the connection drops. It always returns a non-nil error:
// ctx.Err() on cancellation, otherwise an error wrapping ErrDeviceConnection.
func (d *Device) Subscribe(ctx context.Context, h PushHandler) error {
	header := http.Header{}
	if d.opts.Password != "" {
		req := &http.Request{Header: header}
		req.SetBasicAuth(d.opts.Username, d.opts.Password)
	}

	conn, resp, err := d.dialer.DialContext(ctx, d.wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // handshake body is unused
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrInvalidAuth
		}
		return fmt.Errorf("%w: dialing push channel: %w", ErrDeviceConnection, err)
	}

	d.connMu.Lock()
	d.conn = conn
	d.connMu.Unlock()
	defer func() {
		d.connMu.Lock()
		if d.conn == conn {
			d.conn = nil
		}
		d.connMu.Unlock()
		conn.Close() //nolint:errcheck // already failing or cancelled
	}()

	stop := context.AfterFunc(ctx, func() {
		conn.Close() //nolint:errcheck // unblocks ReadMessage
	})
	defer stop()

	// Devices only push notifications to peers that have sent a request;
	// a status request also resynchronises state missed while offline.
	statusID := d.nextID.Add(1)
	if err := conn.WriteJSON(request{ID: statusID, Source: d.source, Method: MethodGetStatus}); err != nil {
		return d.subscribeErr(ctx, err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return d.subscribeErr(ctx, err)
		}
		d.handleFrame(data, statusID, h)
	}
}

func (d *Device) subscribeErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: push channel: %w", ErrDeviceConnection, err)
}

func (d *Device) handleFrame(data []byte, statusID int64, h PushHandler) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}

	switch {
	case f.ID != nil && *f.ID == statusID && f.Result != nil:
		status := refoss.NewDict()
		if err := json.Unmarshal(f.Result, status); err != nil {
			return
		}
		d.setStatus(status)
		notify(h.OnStatus)

	case f.Method == notifyStatus || f.Method == notifyFullStatus:
		params := refoss.NewDict()
		if err := json.Unmarshal(f.Params, params); err != nil {
			return
		}
		params = withoutTimestamp(params)
		if f.Method == notifyFullStatus {
			d.setStatus(params)
		} else {
			if params.Len() == 0 {
				return
			}
			d.mergeStatus(params)
		}
		notify(h.OnStatus)

	case f.Method == notifyEvent:
		var p eventParams
		if err := json.Unmarshal(f.Params, &p); err != nil || len(p.Events) == 0 {
			return
		}
		if h.OnEvents != nil {
			h.OnEvents(p.Events)
		}
	}
}

func withoutTimestamp(d *refoss.Dict) *refoss.Dict {
	if !d.Has("ts") {
		return d
	}
	out := refoss.NewDict()
	for _, k := range d.Keys() {
		if k == "ts" {
			continue
		}
		v, _ := d.Get(k)
		out.Set(k, v)
	}
	return out
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}

// IsConnectionError reports whether err is a transport failure.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrDeviceConnection)
}

var _ refoss.Device = (*Device)(nil)
