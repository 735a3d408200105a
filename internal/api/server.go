// Package api provides the HTTP REST API and WebSocket event stream for the
// Refoss bridge.
//
// It exposes the managed devices, their entities and device triggers, the
// recent click history and a raw RPC passthrough. Bridge events (clicks and
// entity state changes) are relayed to WebSocket clients.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/refoss-bridge/internal/bridge"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/config"
	"github.com/nerrad567/refoss-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/refoss-bridge/internal/refoss"
	"github.com/nerrad567/refoss-bridge/internal/registry"
	"github.com/nerrad567/refoss-bridge/internal/trigger"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the view of the device bridge the API serves.
type Bridge interface {
	Devices() []bridge.DeviceSnapshot
	Device(mac string) (bridge.DeviceSnapshot, error)
	Entities(mac string) ([]bridge.EntitySnapshot, error)
	Triggers(mac string) ([]trigger.Config, error)
	DeviceID(mac string) (string, error)
	CallRPC(ctx context.Context, mac, method string, params any) (json.RawMessage, error)
	Stats() bridge.DeviceStats
	LookupDevice(deviceID string) (refoss.NamedConfig, bool)
}

// HealthSource reports the bridge health status.
type HealthSource interface {
	Status() (bridge.HealthStatus, string)
}

// ClickHistory returns recorded click events.
type ClickHistory interface {
	RecentClicks(ctx context.Context, deviceID string, limit int) ([]registry.ClickEvent, error)
}

// ConnectionStatus reports whether a connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// DBStats reports database connection pool statistics.
type DBStats interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Bridge  Bridge
	Bus     *trigger.Bus // optional: events relayed to WebSocket clients
	Health  HealthSource // optional
	Clicks  ClickHistory // optional: click history endpoint returns 503 without it
	MQTT    ConnectionStatus
	DB      DBStats
	Version string
}

// Server is the HTTP API server for the bridge.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    Bridge
	bus       *trigger.Bus
	health    HealthSource
	clicks    ClickHistory
	mqtt      ConnectionStatus
	db        DBStats
	version   string
	startTime time.Time

	hub      *Hub
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	unlisten func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	hub := NewHub(deps.Config.WebSocket, deps.Logger.Component("websocket"))
	hub.bus = deps.Bus
	hub.devices = deps.Bridge

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.Component("api"),
		bridge:    deps.Bridge,
		bus:       deps.Bus,
		health:    deps.Health,
		clicks:    deps.Clicks,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       hub,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It binds the listener synchronously so address errors are returned,
// relays bus events to the WebSocket hub, and serves in a background
// goroutine until Close().
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("listening on API address: %w", err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	if s.bus != nil {
		s.unlisten = s.bus.Listen("", s.relayEvent)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unlisten != nil {
		s.unlisten()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// relayEvent forwards a bus event to WebSocket clients subscribed to its type.
func (s *Server) relayEvent(ev trigger.Event) {
	s.hub.Broadcast(ev.Type, ev.Time, ev.Data)
}
