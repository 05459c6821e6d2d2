package mcp4xxx

import "fmt"

// TerminalState holds the connection of the A, W and B terminals of a resistor network.
type TerminalState struct {
	A bool `json:"a" yaml:"a"`
	W bool `json:"w" yaml:"w"`
	B bool `json:"b" yaml:"b"`
}

func (t TerminalState) Connected() bool {
	return t.A && t.W && t.B
}

func (t TerminalState) Disconnected() bool {
	return !t.A && !t.W && !t.B
}

// Byte packs the state into the terminal control register.
// In TCON a set bit connects its terminal (TCON bit 3=A, 2=W, 1=B, bit 0 is
// the shutdown control of the other network). A fully connected network keeps
// the register default (all ones); otherwise only the bits of the connected
// terminals are set, so the second network is left disconnected as well.
func (t TerminalState) Byte() byte {
	if t.Connected() {
		return TerminalDefault
	}

	var v byte
	if t.A {
		v |= TerminalA
	}
	if t.W {
		v |= TerminalW
	}
	if t.B {
		v |= TerminalB
	}
	return v
}

func (t TerminalState) String() string {
	return fmt.Sprintf("A:%s W:%s B:%s (TCON=0x%02X)", onoff(t.A), onoff(t.W), onoff(t.B), t.Byte())
}

func TerminalStateFromByte(v byte) TerminalState {
	return TerminalState{
		A: v&TerminalA != 0,
		W: v&TerminalW != 0,
		B: v&TerminalB != 0,
	}
}

func onoff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
