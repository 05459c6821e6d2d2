package mcp4xxx

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

var (
	ErrTransport  = errors.New("transport failure")
	ErrOutOfRange = errors.New("wiper value out of range")
	ErrIntegrity  = errors.New("invalid value read back from device")
	ErrAtBound    = errors.New("wiper already at bound")
)

type (
	Address uint8
	Command uint8
)

func (a Address) String() string {
	switch a {
	case AddressWiper0:
		return "wiper0"
	case AddressWiper1:
		return "wiper1"
	case AddressEEPROM0:
		return "eeprom0"
	case AddressEEPROM1:
		return "eeprom1"
	case AddressTerminalControl:
		return "tcon"
	}
	return fmt.Sprintf("0x%X", uint8(a))
}

func (c Command) String() string {
	switch c & commandMask {
	case CommandWrite:
		return "write"
	case CommandIncrement:
		return "increment"
	case CommandDecrement:
		return "decrement"
	}
	return "read"
}

// A Bus is the synchronous serial link a single device sits on.
// Every transaction is bracketed by Select and Deselect.
type Bus interface {
	Select() error
	Deselect() error
	WriteByte(b byte) error
	ReadByte() (byte, error)
}

// Wiper is implemented by every device of the family.
type Wiper interface {
	Name() string
	Model() string
	MaxClock() physic.Frequency
	Value() uint8
	WriteWiper(value uint8) error
	ReadWiper() (uint8, error)
	IncrementWiper() error
	DecrementWiper() error
}

// TerminalController is implemented by devices exposing the terminal control register.
type TerminalController interface {
	WriteTerminalConnection(a, w, b bool) error
	EnableTerminals() error
	DisableTerminals() error
	Terminals() TerminalState
}

type TerminalDevice interface {
	Wiper
	TerminalController
}

// An Event describes the outcome of one device operation.
type Event struct {
	Device  string
	Op      string
	Address Address
	Command byte
	Value   uint8
	Err     error
}

type Sink interface {
	Emit(e Event)
}

type SinkFunc func(e Event)

func (f SinkFunc) Emit(e Event) {
	f(e)
}

type nopSink struct{}

func (nopSink) Emit(Event) {}
