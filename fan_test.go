package potfand

import (
	"errors"
	"testing"

	"github.com/mdouchement/potfand/bus"
	"github.com/mdouchement/potfand/mcp4xxx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWire = errors.New("wire unplugged")

// failOn makes every frame starting with the given command byte fail.
func failOn(command byte) bus.Fault {
	return func(frame []byte, b byte) error {
		if len(frame) == 0 && b == command {
			return errWire
		}
		return nil
	}
}

type states []FanState

func (s *states) Publish(state FanState) {
	*s = append(*s, state)
}

func newSwitchedFan(t *testing.T, speedCount int) (*Fan, *bus.Simulated, *states) {
	t.Helper()

	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP4XXX(b, mcp4xxx.WithName("pot"))
	fan, err := NewSwitchedFan("fan", dev, speedCount, WithLabel("Front"))
	require.NoError(t, err)

	published := &states{}
	fan.SetPublisher(published)
	return fan, b, published
}

func TestNewFanSpeedCount(t *testing.T) {
	dev := mcp4xxx.NewMCP414X(bus.NewSimulated())

	for _, count := range []int{-1, 0, 129} {
		_, err := NewFan("fan", dev, count)
		assert.ErrorIs(t, err, ErrInvalidSpeedCount, "speed count %d", count)
	}

	fan, err := NewFan("fan", dev, 128)
	require.NoError(t, err)
	assert.Equal(t, Traits{SpeedCount: 128, Speed: true}, fan.Traits())
}

func TestFanSetup(t *testing.T) {
	fan, b, _ := newSwitchedFan(t, 4)

	require.NoError(t, fan.Setup())
	assert.False(t, fan.Status().Failed())
	assert.Equal(t, [][]byte{{0x00, 0x00}, {0x40, 0x00}}, b.Frames())
	assert.Equal(t, FanState{Name: "fan", Label: "Front"}, fan.State())
}

func TestFanSetupFailure(t *testing.T) {
	fan, b, published := newSwitchedFan(t, 4)
	b.SetFault(failOn(0x40))

	err := fan.Setup()
	require.ErrorIs(t, err, mcp4xxx.ErrTransport)
	assert.True(t, fan.Status().Failed())
	assert.True(t, fan.DumpConfig().Failed)
	assert.NotEmpty(t, fan.DumpConfig().Error)

	// A failed fan stays failed and refuses requests.
	b.SetFault(nil)
	b.Reset()
	err = fan.Control(FanCall{Speed: ToPtr(2)})
	require.ErrorIs(t, err, ErrFailed)
	assert.Empty(t, b.Frames())
	assert.Empty(t, *published)
}

func TestFanControl(t *testing.T) {
	fan, b, published := newSwitchedFan(t, 4)
	require.NoError(t, fan.Setup())
	b.Reset()

	require.NoError(t, fan.Control(FanCall{State: ToPtr(true), Speed: ToPtr(3)}))
	assert.Equal(t, [][]byte{{0x40, 0xFF}, {0x00, 0x60}}, b.Frames())
	assert.Equal(t, FanState{Name: "fan", Label: "Front", On: true, Speed: 3, Wiper: 96}, fan.State())

	require.NoError(t, fan.Control(FanCall{State: ToPtr(false)}))
	assert.Equal(t, FanState{Name: "fan", Label: "Front", On: false, Speed: 3, Wiper: 96}, fan.State())
	assert.Equal(t, byte(0x00), b.Register(mcp4xxx.AddressTerminalControl))

	require.Len(t, *published, 2)
	assert.True(t, (*published)[0].On)
	assert.False(t, (*published)[1].On)
}

func TestFanControlClampsLevel(t *testing.T) {
	fan, b, _ := newSwitchedFan(t, 4)
	require.NoError(t, fan.Setup())

	require.NoError(t, fan.Control(FanCall{Speed: ToPtr(9)}))
	assert.Equal(t, 4, fan.State().Speed)
	assert.Equal(t, mcp4xxx.MaxValue, fan.State().Wiper)

	require.NoError(t, fan.Control(FanCall{Speed: ToPtr(-3)}))
	assert.Equal(t, 0, fan.State().Speed)
	assert.Equal(t, byte(0), b.Register(mcp4xxx.AddressWiper0))
}

func TestFanControlPartialFailure(t *testing.T) {
	fan, b, published := newSwitchedFan(t, 4)
	require.NoError(t, fan.Setup())
	b.SetFault(failOn(0x40))

	err := fan.Control(FanCall{State: ToPtr(true), Speed: ToPtr(3)})
	require.ErrorIs(t, err, mcp4xxx.ErrTransport)

	// The speed half went through even though the switch failed.
	assert.Equal(t, byte(0x60), b.Register(mcp4xxx.AddressWiper0))
	assert.Equal(t, FanState{Name: "fan", Label: "Front", On: false, Speed: 3, Wiper: 96}, fan.State())
	assert.False(t, fan.Status().Failed())

	require.Len(t, *published, 1)
	assert.Equal(t, fan.State(), (*published)[0])
}

func TestFanControlSpeedFailure(t *testing.T) {
	fan, b, published := newSwitchedFan(t, 4)
	require.NoError(t, fan.Setup())
	b.SetFault(failOn(0x00))

	err := fan.Control(FanCall{State: ToPtr(true), Speed: ToPtr(2)})
	require.ErrorIs(t, err, mcp4xxx.ErrTransport)
	assert.Equal(t, FanState{Name: "fan", Label: "Front", On: true}, fan.State())
	require.Len(t, *published, 1)
}

func TestWiperOnlyFan(t *testing.T) {
	b := bus.NewSimulated()
	dev := mcp4xxx.NewMCP414X(b, mcp4xxx.WithName("pot"))
	fan, err := NewFan("fan", dev, 100)
	require.NoError(t, err)

	require.NoError(t, fan.Setup())
	require.NoError(t, fan.Control(FanCall{State: ToPtr(true), Speed: ToPtr(50)}))
	assert.Equal(t, FanState{Name: "fan", On: true, Speed: 50, Wiper: 64}, fan.State())
	assert.Equal(t, [][]byte{{0x00, 0x00}, {0x00, 0x40}}, b.Frames())

	d := fan.DumpConfig()
	assert.Equal(t, "pot", d.Device)
	assert.False(t, d.Terminals)
	assert.Equal(t, 100, d.SpeedCount)
}
