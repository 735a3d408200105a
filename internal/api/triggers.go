package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/refoss-bridge/internal/trigger"
)

// WebSocket message types for device trigger subscriptions.
const (
	WSTypeAttachTrigger = "attach_trigger"
	WSTypeDetachTrigger = "detach_trigger"
	WSTypeTrigger       = "trigger"
)

// checkTrigger fills in the platform and validates cfg against the
// device's inputs.
func checkTrigger(devices trigger.Devices, cfg *trigger.Config) error {
	if cfg.Platform == "" {
		cfg.Platform = trigger.PlatformDevice
	}
	if cfg.Platform != trigger.PlatformDevice {
		return errors.New("platform must be " + trigger.PlatformDevice)
	}
	if cfg.DeviceID == "" {
		return errors.New("device_id is required")
	}
	return trigger.Validate(devices, *cfg)
}

// handleValidateTrigger checks a device trigger configuration.
func (s *Server) handleValidateTrigger(w http.ResponseWriter, r *http.Request) {
	var cfg trigger.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			writeBadRequest(w, "request body is required")
			return
		}
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}

	if err := checkTrigger(s.bridge, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   true,
		"trigger": cfg,
	})
}

// handleAttachTrigger attaches a device trigger whose firings are sent to
// the client as "trigger" messages carrying the attach message id.
func (c *WSClient) handleAttachTrigger(msg WSMessage) {
	if msg.ID == "" {
		c.sendError(msg.ID, "attach_trigger requires an id")
		return
	}
	if c.hub.bus == nil || c.hub.devices == nil {
		c.sendError(msg.ID, "device triggers are not available")
		return
	}

	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}
	var cfg trigger.Config
	if err := json.Unmarshal(payloadBytes, &cfg); err != nil {
		c.sendError(msg.ID, "invalid trigger payload")
		return
	}
	if err := checkTrigger(c.hub.devices, &cfg); err != nil {
		c.sendError(msg.ID, err.Error())
		return
	}

	id := msg.ID
	detach, err := trigger.Attach(c.hub.bus, cfg, func(ev trigger.Event) {
		c.sendTrigger(id, cfg, ev)
	})
	if err != nil {
		c.sendError(msg.ID, err.Error())
		return
	}

	c.mu.Lock()
	if old, ok := c.triggers[id]; ok {
		old()
	}
	c.triggers[id] = detach
	c.mu.Unlock()

	c.hub.logger.Debug("websocket trigger attached",
		"id", id, "device_id", cfg.DeviceID, "type", cfg.Type, "subtype", cfg.Subtype)
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"attached": cfg,
	})
}

// handleDetachTrigger removes the trigger attached under the message id.
func (c *WSClient) handleDetachTrigger(msg WSMessage) {
	c.mu.Lock()
	detach, ok := c.triggers[msg.ID]
	delete(c.triggers, msg.ID)
	c.mu.Unlock()

	if !ok {
		c.sendError(msg.ID, "no trigger attached with id "+msg.ID)
		return
	}
	detach()
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		"detached": msg.ID,
	})
}

// detachTriggers removes every trigger the client attached.
func (c *WSClient) detachTriggers() {
	c.mu.Lock()
	triggers := c.triggers
	c.triggers = make(map[string]func())
	c.mu.Unlock()

	for _, detach := range triggers {
		detach()
	}
}

func (c *WSClient) sendTrigger(id string, cfg trigger.Config, ev trigger.Event) {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeTrigger,
		ID:        id,
		EventType: ev.Type,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Payload: map[string]any{
			"trigger": cfg,
			"event":   ev.Data,
		},
	})
	if err != nil {
		c.hub.logger.Error("failed to marshal trigger message", "error", err)
		return
	}
	c.trySend(data)
}
