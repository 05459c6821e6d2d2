package mcp4xxx_test

import (
	"errors"
	"testing"

	"github.com/mdouchement/potfand/bus"
	"github.com/mdouchement/potfand/mcp4xxx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWire = errors.New("wire unplugged")

// failAt makes the n-th byte of every frame fail.
func failAt(n int) bus.Fault {
	return func(frame []byte, _ byte) error {
		if len(frame) == n {
			return errWire
		}
		return nil
	}
}

type recorder struct {
	events []mcp4xxx.Event
}

func (r *recorder) Emit(e mcp4xxx.Event) {
	r.events = append(r.events, e)
}

func TestEncode(t *testing.T) {
	commands := []mcp4xxx.Command{
		mcp4xxx.CommandWrite,
		mcp4xxx.CommandIncrement,
		mcp4xxx.CommandDecrement,
		mcp4xxx.CommandRead,
	}

	for a := range 16 {
		address := mcp4xxx.Address(a)
		for _, command := range commands {
			for data := range 256 {
				b := mcp4xxx.Encode(address, command, uint8(data))
				assert.Equal(t, byte(address), b>>4)
				assert.Equal(t, byte(command), b&0x0C)
				assert.Equal(t, byte(data)&0x03, b&0x03)
			}
		}
	}

	assert.Equal(t, byte(0x00), mcp4xxx.Encode(mcp4xxx.AddressWiper0, mcp4xxx.CommandWrite, 0))
	assert.Equal(t, byte(0x04), mcp4xxx.Encode(mcp4xxx.AddressWiper0, mcp4xxx.CommandIncrement, 0))
	assert.Equal(t, byte(0x08), mcp4xxx.Encode(mcp4xxx.AddressWiper0, mcp4xxx.CommandDecrement, 0))
	assert.Equal(t, byte(0x0C), mcp4xxx.Encode(mcp4xxx.AddressWiper0, mcp4xxx.CommandRead, 0))
	assert.Equal(t, byte(0x40), mcp4xxx.Encode(mcp4xxx.AddressTerminalControl, mcp4xxx.CommandWrite, 0))
	// Data bits above D9-D8 never leak into the command field.
	assert.Equal(t, byte(0x03), mcp4xxx.Encode(mcp4xxx.AddressWiper0, mcp4xxx.CommandWrite, 0xFF))
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP4XXX(b)

	for v := range int(mcp4xxx.MaxValue) + 1 {
		require.NoError(t, dev.WriteWiper(uint8(v)))
		assert.Equal(t, uint8(v), dev.Value())

		got, err := dev.ReadWiper()
		require.NoError(t, err)
		assert.Equal(t, uint8(v), got)
		assert.False(t, b.Selected())
	}
}

func TestWriteWiperFrame(t *testing.T) {
	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP414X(b)

	require.NoError(t, dev.WriteWiper(42))
	assert.Equal(t, [][]byte{{0x00, 42}}, b.Frames())
	assert.Equal(t, byte(42), b.Register(mcp4xxx.AddressWiper0))
}

func TestMCP414XSaturates(t *testing.T) {
	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP414X(b)
	assert.Equal(t, uint8(64), dev.Value())

	require.NoError(t, dev.WriteWiper(200))
	assert.Equal(t, mcp4xxx.MaxValue, dev.Value())
	assert.Equal(t, [][]byte{{0x00, 128}}, b.Frames())
}

func TestMCP4XXXRejectsOutOfRange(t *testing.T) {
	b := bus.NewSimulated()
	rec := &recorder{}
	dev := mcp4xxx.NewMCP4XXX(b, mcp4xxx.WithName("pot"), mcp4xxx.WithSink(rec))
	assert.Equal(t, uint8(0), dev.Value())

	err := dev.WriteWiper(129)
	require.ErrorIs(t, err, mcp4xxx.ErrOutOfRange)
	assert.Equal(t, uint8(0), dev.Value())
	assert.Empty(t, b.Frames())

	require.Len(t, rec.events, 1)
	assert.Equal(t, "pot", rec.events[0].Device)
	assert.Equal(t, mcp4xxx.OpWriteWiper, rec.events[0].Op)
	assert.ErrorIs(t, rec.events[0].Err, mcp4xxx.ErrOutOfRange)
}

func TestIncrementToBound(t *testing.T) {
	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP4XXX(b)
	require.NoError(t, dev.WriteWiper(0))

	for range mcp4xxx.MaxValue {
		require.NoError(t, dev.IncrementWiper())
	}
	assert.Equal(t, mcp4xxx.MaxValue, dev.Value())

	b.Reset()
	err := dev.IncrementWiper()
	require.ErrorIs(t, err, mcp4xxx.ErrAtBound)
	assert.Equal(t, mcp4xxx.MaxValue, dev.Value())
	// The command is still sent, the device ignores it.
	assert.Equal(t, [][]byte{{0x04}}, b.Frames())
}

func TestDecrementAtZero(t *testing.T) {
	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP4XXX(b)

	err := dev.DecrementWiper()
	require.ErrorIs(t, err, mcp4xxx.ErrAtBound)
	assert.Equal(t, uint8(0), dev.Value())
	assert.Equal(t, [][]byte{{0x08}}, b.Frames())

	require.NoError(t, dev.IncrementWiper())
	require.NoError(t, dev.DecrementWiper())
	assert.Equal(t, uint8(0), dev.Value())
}

func TestTransportFailure(t *testing.T) {
	b := bus.NewSimulated()
	rec := &recorder{}
	dev := mcp4xxx.NewMCP414X(b, mcp4xxx.WithSink(rec))
	require.NoError(t, dev.WriteWiper(10))

	// The data byte fails: the command byte went out, the value did not.
	b.SetFault(failAt(1))
	err := dev.WriteWiper(100)
	require.ErrorIs(t, err, mcp4xxx.ErrTransport)
	require.ErrorIs(t, err, errWire)
	assert.Equal(t, uint8(10), dev.Value())
	assert.False(t, b.Selected(), "device must be deselected on failure")

	b.SetFault(failAt(0))
	require.ErrorIs(t, dev.IncrementWiper(), mcp4xxx.ErrTransport)
	require.ErrorIs(t, dev.DecrementWiper(), mcp4xxx.ErrTransport)
	assert.Equal(t, uint8(10), dev.Value())
	assert.False(t, b.Selected())

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, mcp4xxx.OpDecrement, last.Op)
	assert.ErrorIs(t, last.Err, mcp4xxx.ErrTransport)
}

func TestReadWiper(t *testing.T) {
	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP4XXX(b)
	require.NoError(t, dev.WriteWiper(20))
	b.Reset()

	// Someone else moved the wiper: reads report it, the cached value is left alone.
	b.SetRegister(mcp4xxx.AddressWiper0, 77)
	v, err := dev.ReadWiper()
	require.NoError(t, err)
	assert.Equal(t, uint8(77), v)
	assert.Equal(t, uint8(20), dev.Value())
	assert.Equal(t, [][]byte{{0x0C, 0x00}}, b.Frames())
}

func TestReadWiperIntegrity(t *testing.T) {
	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP4XXX(b)
	require.NoError(t, dev.WriteWiper(5))

	b.SetRegister(mcp4xxx.AddressWiper0, 200)
	_, err := dev.ReadWiper()
	require.ErrorIs(t, err, mcp4xxx.ErrIntegrity)
	assert.Equal(t, uint8(5), dev.Value())
	assert.False(t, b.Selected())
}

func TestReadWiperTransportFailure(t *testing.T) {
	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP4XXX(b)

	b.SetFault(failAt(1)) // Dummy byte
	_, err := dev.ReadWiper()
	require.ErrorIs(t, err, mcp4xxx.ErrTransport)
	assert.False(t, b.Selected())
}

func TestTerminalConnection(t *testing.T) {
	tcs := []struct {
		name    string
		a, w, b bool
		want    byte
	}{
		{name: "all connected", a: true, w: true, b: true, want: 0xFF},
		{name: "all disconnected", want: 0x00},
		{name: "wiper disconnected", a: true, b: true, want: 0x0A},
		{name: "only wiper", w: true, want: 0x04},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			b := bus.NewSimulated()
			dev := mcp4xxx.NewMCP4XXX(b)

			require.NoError(t, dev.WriteTerminalConnection(tc.a, tc.w, tc.b))
			assert.Equal(t, [][]byte{{0x40, tc.want}}, b.Frames())
			assert.Equal(t, mcp4xxx.TerminalState{A: tc.a, W: tc.w, B: tc.b}, dev.Terminals())
		})
	}
}

func TestEnableDisableTerminals(t *testing.T) {
	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP4XXX(b)
	assert.True(t, dev.Terminals().Connected())

	require.NoError(t, dev.DisableTerminals())
	assert.True(t, dev.Terminals().Disconnected())
	assert.Equal(t, byte(0x00), b.Register(mcp4xxx.AddressTerminalControl))

	require.NoError(t, dev.EnableTerminals())
	assert.True(t, dev.Terminals().Connected())
	assert.Equal(t, byte(0xFF), b.Register(mcp4xxx.AddressTerminalControl))

	b.SetFault(failAt(0))
	require.ErrorIs(t, dev.DisableTerminals(), mcp4xxx.ErrTransport)
	assert.True(t, dev.Terminals().Connected(), "state is only recorded on success")
}

func TestTerminalStateFromByte(t *testing.T) {
	for _, state := range []mcp4xxx.TerminalState{
		{},
		{A: true},
		{W: true},
		{B: true},
		{A: true, B: true},
		{A: true, W: true, B: true},
	} {
		assert.Equal(t, state, mcp4xxx.TerminalStateFromByte(state.Byte()))
	}
}
