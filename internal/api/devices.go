package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	// defaultEventLimit is the click history page size when ?limit is absent.
	defaultEventLimit = 20

	// maxEventLimit caps ?limit on the click history endpoint.
	maxEventLimit = 100

	// rpcTimeout bounds a passthrough RPC call.
	rpcTimeout = 10 * time.Second
)

// RPCRequest is the body of POST /devices/{mac}/rpc.
type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// handleListDevices returns every managed device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by MAC.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.bridge.Device(chi.URLParam(r, "mac"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleListEntities returns the entities of a device.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.bridge.Entities(chi.URLParam(r, "mac"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": entities,
		"count":    len(entities),
	})
}

// handleListTriggers returns the device triggers of a device.
func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	triggers, err := s.bridge.Triggers(chi.URLParam(r, "mac"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"triggers": triggers,
		"count":    len(triggers),
	})
}

// handleListEvents returns the most recent clicks of a device, newest first.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.clicks == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "click history not available")
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	deviceID, err := s.bridge.DeviceID(chi.URLParam(r, "mac"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	events, err := s.clicks.RecentClicks(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("listing click history failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// handleCallRPC forwards an RPC call to the device and returns its result.
func (s *Server) handleCallRPC(w http.ResponseWriter, r *http.Request) {
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeBadRequest(w, "request body is required")
			return
		}
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	req.Method = strings.TrimSpace(req.Method)
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "method is required")
		return
	}

	var params any
	if len(req.Params) > 0 && string(req.Params) != "null" {
		params = req.Params
	}

	ctx, cancel := context.WithTimeout(r.Context(), rpcTimeout)
	defer cancel()

	mac := chi.URLParam(r, "mac")
	result, err := s.bridge.CallRPC(ctx, mac, req.Method, params)
	if err != nil {
		s.logger.Warn("rpc passthrough failed", "mac", mac, "method", req.Method, "error", err)
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"method": req.Method,
		"result": result,
	})
}
