package mcp4xxx

import "periph.io/x/conn/v3/physic"

const (
	AddressWiper0          Address = 0x00
	AddressWiper1          Address = 0x01 // Dual potentiometers only
	AddressEEPROM0         Address = 0x02
	AddressEEPROM1         Address = 0x03 // Dual potentiometers only
	AddressTerminalControl Address = 0x04
)

// Command codes are already shifted into bits 3-2 of the command byte.
const (
	CommandWrite     Command = 0x00 // C1=0, C0=0
	CommandIncrement Command = 0x04 // C1=0, C0=1
	CommandDecrement Command = 0x08 // C1=1, C0=0
	CommandRead      Command = 0x0C // C1=1, C0=1
)

const (
	// MaxValue is the full scale wiper code (7-bit plus the half step, 129 positions).
	MaxValue uint8 = 128

	commandMask = 0x0C
	dataMask    = 0x03
	dummyByte   = 0x00
)

// Terminal control register bits.
const (
	TerminalA       uint8 = 0x08
	TerminalW       uint8 = 0x04
	TerminalB       uint8 = 0x02
	TerminalDefault uint8 = 0xFF // All terminals connected
)

const (
	MaxClockMCP414X = 10 * physic.MegaHertz
	MaxClockMCP4XXX = 200 * physic.KiloHertz
)

const (
	ModelMCP414X = "mcp414x"
	ModelMCP4XXX = "mcp4xxx"
)

const (
	OpWriteWiper    = "write_wiper"
	OpReadWiper     = "read_wiper"
	OpIncrement     = "increment_wiper"
	OpDecrement     = "decrement_wiper"
	OpWriteTerminal = "write_terminal_connection"
)
