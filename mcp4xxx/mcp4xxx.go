package mcp4xxx

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

var _ TerminalDevice = (*MCP4XXX)(nil)

// MCP4XXX drives the potentiometers of the family exposing the terminal control (TCON) register.
// Out of range writes are rejected before any bus traffic.
type MCP4XXX struct {
	device
	terminals TerminalState
}

func NewMCP4XXX(bus Bus, opts ...Option) *MCP4XXX {
	return &MCP4XXX{
		device:    newDevice(bus, 0, opts),
		terminals: TerminalStateFromByte(TerminalDefault),
	}
}

func (*MCP4XXX) Model() string {
	return ModelMCP4XXX
}

func (*MCP4XXX) MaxClock() physic.Frequency {
	return MaxClockMCP4XXX
}

func (m *MCP4XXX) WriteWiper(value uint8) error {
	if value > MaxValue {
		err := fmt.Errorf("%w: %d (max: %d)", ErrOutOfRange, value, MaxValue)
		m.emit(OpWriteWiper, AddressWiper0, Encode(AddressWiper0, CommandWrite, 0), value, err)
		return fmt.Errorf("%s: %w", OpWriteWiper, err)
	}

	return m.writeWiper(value)
}

// Terminals returns the last terminal state successfully written to the device.
func (m *MCP4XXX) Terminals() TerminalState {
	return m.terminals
}

func (m *MCP4XXX) WriteTerminalConnection(a, w, b bool) error {
	state := TerminalState{A: a, W: w, B: b}
	command := Encode(AddressTerminalControl, CommandWrite, 0)

	err := m.write(command, state.Byte())
	m.emit(OpWriteTerminal, AddressTerminalControl, command, state.Byte(), err)
	if err != nil {
		return fmt.Errorf("%s: %w", OpWriteTerminal, err)
	}

	m.terminals = state
	return nil
}

func (m *MCP4XXX) EnableTerminals() error {
	return m.WriteTerminalConnection(true, true, true)
}

func (m *MCP4XXX) DisableTerminals() error {
	return m.WriteTerminalConnection(false, false, false)
}
