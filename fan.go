package potfand

import (
	"errors"
	"fmt"

	"github.com/mdouchement/potfand/mcp4xxx"
)

type FanOption func(*Fan)

func WithLabel(label string) FanOption {
	return func(f *Fan) {
		f.label = label
	}
}

func WithFanSink(s mcp4xxx.Sink) FanOption {
	return func(f *Fan) {
		if s != nil {
			f.sink = s
		}
	}
}

// A Fan drives a fan through the wiper of a digital potentiometer.
// Speed levels are mapped onto wiper positions and, when the device exposes
// its terminal control register, on/off is done by (dis)connecting all terminals.
//
// A Fan owns its device for its whole lifetime and is not safe for concurrent use.
type Fan struct {
	name       string
	label      string
	wiper      mcp4xxx.Wiper
	terminals  mcp4xxx.TerminalController // nil when the device has no terminal control
	speedCount int
	on         bool
	speed      int
	wiperValue uint8
	status     Status
	sink       mcp4xxx.Sink
	publisher  Publisher
}

// NewFan returns a fan whose on/off state is not backed by the hardware.
func NewFan(name string, dev mcp4xxx.Wiper, speedCount int, opts ...FanOption) (*Fan, error) {
	if speedCount < MinSpeedCount || speedCount > MaxSpeedCount {
		return nil, fmt.Errorf("%s: %w: %d", name, ErrInvalidSpeedCount, speedCount)
	}

	f := &Fan{
		name:       name,
		wiper:      dev,
		speedCount: speedCount,
		sink:       mcp4xxx.SinkFunc(func(mcp4xxx.Event) {}),
		publisher:  PublisherFunc(func(FanState) {}),
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// NewSwitchedFan returns a fan switched on and off through the terminal control register.
func NewSwitchedFan(name string, dev mcp4xxx.TerminalDevice, speedCount int, opts ...FanOption) (*Fan, error) {
	f, err := NewFan(name, dev, speedCount, opts...)
	if err != nil {
		return nil, err
	}

	f.terminals = dev
	return f, nil
}

func (f *Fan) SetPublisher(p Publisher) {
	f.publisher = p
}

func (f *Fan) Name() string {
	return f.name
}

func (f *Fan) Status() Status {
	return f.status
}

func (f *Fan) Traits() Traits {
	return Traits{
		SpeedCount: f.speedCount,
		Speed:      true,
	}
}

func (f *Fan) State() FanState {
	return FanState{
		Name:  f.name,
		Label: f.label,
		On:    f.on,
		Speed: f.speed,
		Wiper: f.wiperValue,
	}
}

// Setup puts the fan at minimum speed and switches it off.
// Any failure marks the fan as failed.
func (f *Fan) Setup() error {
	if err := f.wiper.WriteWiper(0); err != nil {
		err = fmt.Errorf("initialize wiper position: %w", err)
		f.fail(err)
		return err
	}

	if f.terminals != nil {
		if err := f.terminals.DisableTerminals(); err != nil {
			err = fmt.Errorf("disable terminals: %w", err)
			f.fail(err)
			return err
		}
	}

	f.wiperValue = 0
	f.speed = 0
	f.on = false
	f.emit(OpFanSetup, 0, nil)
	return nil
}

// Control applies the call. The state and speed parts are independent: a
// failure on one does not prevent the other and only the successful part is
// recorded. The requested speed level is clamped to [0, speedCount] and the
// clamped level is the one recorded. The resulting state is published in every case.
func (f *Fan) Control(call FanCall) error {
	if f.status.Failed() {
		return fmt.Errorf("%s: %w", f.name, ErrFailed)
	}

	var errs []error

	if call.State != nil {
		if err := f.switchTo(*call.State); err != nil {
			errs = append(errs, err)
		} else {
			f.on = *call.State
		}
	}

	if call.Speed != nil {
		level := min(max(*call.Speed, 0), f.speedCount)
		value := SpeedToWiper(level, f.speedCount)

		err := f.wiper.WriteWiper(value)
		f.emit(OpFanSpeed, value, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("set speed level %d: %w", level, err))
		} else {
			f.wiperValue = value
			f.speed = level
		}
	}

	f.publisher.Publish(f.State())
	return errors.Join(errs...)
}

func (f *Fan) switchTo(on bool) error {
	if f.terminals == nil {
		f.emit(OpFanState, f.wiperValue, nil)
		return nil
	}

	var err error
	if on {
		err = f.terminals.EnableTerminals()
	} else {
		err = f.terminals.DisableTerminals()
	}

	f.emit(OpFanState, f.wiperValue, err)
	if err != nil {
		return fmt.Errorf("switch %s: %w", onoff(on), err)
	}
	return nil
}

func (f *Fan) DumpConfig() FanDiagnostics {
	d := FanDiagnostics{
		FanState:   f.State(),
		Device:     f.wiper.Name(),
		SpeedCount: f.speedCount,
		Terminals:  f.terminals != nil,
		Failed:     f.status.Failed(),
	}
	if err := f.status.Err(); err != nil {
		d.Error = err.Error()
	}

	return d
}

func (f *Fan) fail(err error) {
	f.status.MarkFailed(err)
	f.emit(OpFanSetup, 0, err)
}

func (f *Fan) emit(op string, value uint8, err error) {
	f.sink.Emit(mcp4xxx.Event{
		Device: f.name,
		Op:     op,
		Value:  value,
		Err:    err,
	})
}

func onoff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
