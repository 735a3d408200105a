package entity

import (
	"context"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
	"github.com/nerrad567/refoss-bridge/internal/refoss/rpc"
)

// Switches is the switch catalog: one relay entity per switch channel.
var Switches = Catalog{
	{ID: "switch", Description: Description{
		Key:    "switch",
		SubKey: "output",
	}},
}

// Switch is a relay channel that can be turned on and off.
type Switch struct {
	Base
	desc Description
}

// NewSwitch creates a switch. It matches the Setup constructor signature;
// the attribute id is not part of a switch's unique id.
func NewSwitch(coord Coordinator, key, _ string, desc Description) Entity {
	return &Switch{Base: NewBase(coord, key), desc: desc}
}

// Platform returns PlatformSwitch.
func (s *Switch) Platform() string { return PlatformSwitch }

// Description returns the switch's description.
func (s *Switch) Description() Description { return s.desc }

// IsOn reports the relay output.
func (s *Switch) IsOn() bool {
	on, _ := s.Status()[s.desc.SubKey].(bool)
	return on
}

// State returns the relay output, or nil when the device has not reported
// it.
func (s *Switch) State() any {
	v, ok := s.Status()[s.desc.SubKey].(bool)
	if !ok {
		return nil
	}
	return v
}

// LastState returns State; a switch keeps no conversion state.
func (s *Switch) LastState() any { return s.State() }

// TurnOn switches the relay on.
func (s *Switch) TurnOn(ctx context.Context) error { return s.set(ctx, true) }

// TurnOff switches the relay off.
func (s *Switch) TurnOff(ctx context.Context) error { return s.set(ctx, false) }

func (s *Switch) set(ctx context.Context, on bool) error {
	_, id, _ := refoss.SplitKey(s.key)
	_, err := s.CallRPC(ctx, rpc.MethodSwitchSet, map[string]any{"id": id, "on": on})
	return err
}
