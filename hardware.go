package potfand

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/potfand/bus"
	"github.com/mdouchement/potfand/mcp4xxx"
	"periph.io/x/conn/v3/physic"
)

// Hardware holds the components built from the configuration.
type Hardware struct {
	Potentiometers map[string]*Potentiometer
	Fans           map[string]*Fan
	closers        []io.Closer
}

// Open builds every device and fan described by cfg.
// When dummy is set, every device sits on a simulated bus.
func Open(cfg Config, dummy bool, log logger.Logger) (*Hardware, error) {
	hw := &Hardware{
		Potentiometers: map[string]*Potentiometer{},
		Fans:           map[string]*Fan{},
	}
	sink := NewLogSink(log)
	switched := map[string]mcp4xxx.TerminalDevice{}
	wipers := map[string]mcp4xxx.Wiper{}

	for _, name := range slices.Sorted(maps.Keys(cfg.Devices)) {
		s := cfg.Devices[name]

		setting := s.Bus
		if dummy {
			setting.Type = BusSimulated
		}

		b, closer, err := openBus(setting, maxClock(s.Model), log)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if closer != nil {
			hw.closers = append(hw.closers, closer)
		}

		opts := []mcp4xxx.Option{mcp4xxx.WithName(name), mcp4xxx.WithSink(sink)}
		switch s.Model {
		case mcp4xxx.ModelMCP4XXX:
			dev := mcp4xxx.NewMCP4XXX(b, opts...)
			switched[name] = dev
			wipers[name] = dev
			hw.Potentiometers[name] = NewPotentiometer(name, dev, s.Initial(), sink).WithTerminals(dev)
		default:
			dev := mcp4xxx.NewMCP414X(b, opts...)
			wipers[name] = dev
			hw.Potentiometers[name] = NewPotentiometer(name, dev, s.Initial(), sink)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(cfg.FanSettings)) {
		s := cfg.FanSettings[name]

		if err := hw.Potentiometers[s.Device].Claim(name); err != nil {
			hw.Close()
			return nil, err
		}

		opts := []FanOption{WithLabel(s.Label), WithFanSink(sink)}

		var fan *Fan
		var err error
		if dev, ok := switched[s.Device]; ok {
			fan, err = NewSwitchedFan(name, dev, s.SpeedCount, opts...)
		} else {
			fan, err = NewFan(name, wipers[s.Device], s.SpeedCount, opts...)
		}
		if err != nil {
			hw.Close()
			return nil, err
		}

		hw.Fans[name] = fan
	}

	return hw, nil
}

// Setup initializes potentiometers first then fans. Failed components are
// marked as such and the setup goes on with the others.
func (hw *Hardware) Setup() error {
	var errs []error

	for _, name := range slices.Sorted(maps.Keys(hw.Potentiometers)) {
		if err := hw.Potentiometers[name].Setup(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	for _, name := range slices.Sorted(maps.Keys(hw.Fans)) {
		if err := hw.Fans[name].Setup(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func (hw *Hardware) Diagnostics() Diagnostics {
	var d Diagnostics

	for _, name := range slices.Sorted(maps.Keys(hw.Potentiometers)) {
		d.Devices = append(d.Devices, hw.Potentiometers[name].DumpConfig())
	}
	for _, name := range slices.Sorted(maps.Keys(hw.Fans)) {
		d.Fans = append(d.Fans, hw.Fans[name].DumpConfig())
	}

	return d
}

func (hw *Hardware) States() []FanState {
	states := make([]FanState, 0, len(hw.Fans))
	for _, name := range slices.Sorted(maps.Keys(hw.Fans)) {
		states = append(states, hw.Fans[name].State())
	}
	return states
}

func (hw *Hardware) Close() error {
	var errs []error
	for _, c := range hw.closers {
		errs = append(errs, c.Close())
	}
	hw.closers = nil

	return errors.Join(errs...)
}

var openBus = func(s BusSetting, limit physic.Frequency, log logger.Logger) (mcp4xxx.Bus, io.Closer, error) {
	switch s.Type {
	case BusSPIDev:
		clock, err := s.Frequency(limit)
		if err != nil {
			return nil, nil, err
		}

		d, err := bus.OpenSPIDev(s.Port, clock, s.ChipSelect)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("SPI port `%s` @ %s (CS %s)", s.Port, clock, s.ChipSelect)
		return d, d, nil
	case BusBridge:
		var b *bus.Bridge
		var err error
		if s.Port == "auto" {
			b, err = bus.OpenBridgeAuto(s.VID, s.PID, s.Chip)
		} else {
			b, err = bus.OpenBridge(s.Port, s.Chip)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("bridge: %w", err)
		}
		b.SetLogger(log)

		info, err := b.Info()
		if err != nil {
			b.Close()
			return nil, nil, fmt.Errorf("bridge: %w", err)
		}
		log.Infof("Bridge `%s` - REV: %s - MCU: %s - PROTOCOL_VERSION: %s - CS: %d", b.Port(), info.Revision, info.MCU, info.Protocol, s.Chip)
		return b, b, nil
	}

	return bus.NewSimulated(), nil, nil
}

func maxClock(model string) physic.Frequency {
	if model == mcp4xxx.ModelMCP414X {
		return mcp4xxx.MaxClockMCP414X
	}
	return mcp4xxx.MaxClockMCP4XXX
}
