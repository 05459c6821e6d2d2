package mcp4xxx

import "periph.io/x/conn/v3/physic"

var _ Wiper = (*MCP414X)(nil)

// MCP414X drives the MCP414X single potentiometers.
// Out of range writes are saturated to MaxValue.
type MCP414X struct {
	device
}

// NewMCP414X returns a driver assuming the device power-on mid-scale value.
func NewMCP414X(bus Bus, opts ...Option) *MCP414X {
	return &MCP414X{
		device: newDevice(bus, 64, opts),
	}
}

func (*MCP414X) Model() string {
	return ModelMCP414X
}

func (*MCP414X) MaxClock() physic.Frequency {
	return MaxClockMCP414X
}

func (m *MCP414X) WriteWiper(value uint8) error {
	return m.writeWiper(min(value, MaxValue))
}
