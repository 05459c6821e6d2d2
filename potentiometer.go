package potfand

import (
	"fmt"
	"math"

	"github.com/mdouchement/potfand/mcp4xxx"
)

// A Potentiometer exposes a device as a numeric entity. Once a fan claims the
// device, the potentiometer only reports diagnostics.
type Potentiometer struct {
	name      string
	dev       mcp4xxx.Wiper
	terminals mcp4xxx.TerminalController
	initial   uint8
	owner     string
	status    Status
	sink      mcp4xxx.Sink
}

func NewPotentiometer(name string, dev mcp4xxx.Wiper, initial uint8, sink mcp4xxx.Sink) *Potentiometer {
	if sink == nil {
		sink = mcp4xxx.SinkFunc(func(mcp4xxx.Event) {})
	}

	return &Potentiometer{
		name:    name,
		dev:     dev,
		initial: min(initial, mcp4xxx.MaxValue),
		sink:    sink,
	}
}

// WithTerminals records the terminal control capability of the device for diagnostics.
func (p *Potentiometer) WithTerminals(t mcp4xxx.TerminalController) *Potentiometer {
	p.terminals = t
	return p
}

func (p *Potentiometer) Name() string {
	return p.name
}

func (p *Potentiometer) Status() Status {
	return p.status
}

func (p *Potentiometer) Owner() string {
	return p.owner
}

// Claim hands the device over to the named owner.
func (p *Potentiometer) Claim(owner string) error {
	if p.owner != "" {
		return fmt.Errorf("%s: %w %s", p.name, ErrOwned, p.owner)
	}

	p.owner = owner
	return nil
}

// Setup writes the configured initial value. Any failure marks the potentiometer as failed.
func (p *Potentiometer) Setup() error {
	if err := p.dev.WriteWiper(p.initial); err != nil {
		err = fmt.Errorf("set initial value: %w", err)
		p.status.MarkFailed(err)
		p.sink.Emit(mcp4xxx.Event{Device: p.name, Op: OpSetup, Value: p.initial, Err: err})
		return err
	}

	return nil
}

// Control truncates value and clamps it to the wiper range before writing it.
func (p *Potentiometer) Control(value float64) (uint8, error) {
	if err := p.usable(); err != nil {
		return p.dev.Value(), err
	}

	v := uint8(0)
	if !math.IsNaN(value) && value > 0 {
		v = uint8(min(value, float64(mcp4xxx.MaxValue)))
	}

	if err := p.dev.WriteWiper(v); err != nil {
		return p.dev.Value(), err
	}
	return v, nil
}

func (p *Potentiometer) Increment() (uint8, error) {
	if err := p.usable(); err != nil {
		return p.dev.Value(), err
	}

	err := p.dev.IncrementWiper()
	return p.dev.Value(), err
}

func (p *Potentiometer) Decrement() (uint8, error) {
	if err := p.usable(); err != nil {
		return p.dev.Value(), err
	}

	err := p.dev.DecrementWiper()
	return p.dev.Value(), err
}

// Read returns the wiper value reported by the device.
func (p *Potentiometer) Read() (uint8, error) {
	if err := p.usable(); err != nil {
		return 0, err
	}

	return p.dev.ReadWiper()
}

func (p *Potentiometer) DumpConfig() DeviceDiagnostics {
	d := DeviceDiagnostics{
		Name:         p.name,
		Model:        p.dev.Model(),
		MaxClock:     p.dev.MaxClock().String(),
		InitialValue: p.initial,
		CurrentValue: p.dev.Value(),
		Owner:        p.owner,
		Failed:       p.status.Failed(),
	}
	if p.terminals != nil {
		d.Terminals = ToPtr(p.terminals.Terminals())
	}
	if err := p.status.Err(); err != nil {
		d.Error = err.Error()
	}

	return d
}

func (p *Potentiometer) usable() error {
	if p.status.Failed() {
		return fmt.Errorf("%s: %w", p.name, ErrFailed)
	}
	if p.owner != "" {
		return fmt.Errorf("%s: %w %s", p.name, ErrOwned, p.owner)
	}
	return nil
}
