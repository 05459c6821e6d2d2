package mcp4xxx

import "fmt"

type Option func(*device)

// WithName sets the name reported in emitted events.
func WithName(name string) Option {
	return func(d *device) {
		d.name = name
	}
}

func WithSink(s Sink) Option {
	return func(d *device) {
		if s != nil {
			d.sink = s
		}
	}
}

// WithValue overrides the power-on wiper value assumed by the driver.
func WithValue(v uint8) Option {
	return func(d *device) {
		d.value = min(v, MaxValue)
	}
}

// device holds the behavior shared by every variant of the family.
// It is not safe for concurrent use: a device has a single owner.
type device struct {
	name  string
	bus   Bus
	sink  Sink
	value uint8
}

func newDevice(bus Bus, value uint8, opts []Option) device {
	d := device{
		bus:   bus,
		sink:  nopSink{},
		value: value,
	}
	for _, opt := range opts {
		opt(&d)
	}

	return d
}

func (d *device) Name() string {
	return d.name
}

func (d *device) Value() uint8 {
	return d.value
}

func (d *device) ReadWiper() (uint8, error) {
	command := Encode(AddressWiper0, CommandRead, 0)

	var low byte
	err := d.transaction(func(bus Bus) error {
		if err := bus.WriteByte(command); err != nil {
			return err
		}
		if err := bus.WriteByte(dummyByte); err != nil {
			return err
		}

		// The wiper value is in the low byte, the high one only carries D8 and reserved bits.
		if _, err := bus.ReadByte(); err != nil {
			return err
		}

		var err error
		low, err = bus.ReadByte()
		return err
	})
	if err == nil && low > MaxValue {
		err = fmt.Errorf("%w: 0x%02X (max: %d)", ErrIntegrity, low, MaxValue)
	}

	d.emit(OpReadWiper, AddressWiper0, command, low, err)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", OpReadWiper, err)
	}

	return low, nil
}

func (d *device) IncrementWiper() error {
	command := Encode(AddressWiper0, CommandIncrement, 0)

	err := d.transaction(func(bus Bus) error {
		return bus.WriteByte(command)
	})
	if err == nil {
		if d.value < MaxValue {
			d.value++
		} else {
			err = fmt.Errorf("%w: %d", ErrAtBound, d.value)
		}
	}

	d.emit(OpIncrement, AddressWiper0, command, d.value, err)
	if err != nil {
		return fmt.Errorf("%s: %w", OpIncrement, err)
	}
	return nil
}

func (d *device) DecrementWiper() error {
	command := Encode(AddressWiper0, CommandDecrement, 0)

	err := d.transaction(func(bus Bus) error {
		return bus.WriteByte(command)
	})
	if err == nil {
		if d.value > 0 {
			d.value--
		} else {
			err = fmt.Errorf("%w: %d", ErrAtBound, d.value)
		}
	}

	d.emit(OpDecrement, AddressWiper0, command, d.value, err)
	if err != nil {
		return fmt.Errorf("%s: %w", OpDecrement, err)
	}
	return nil
}

// writeWiper sends the value as is, range handling belongs to the variants.
func (d *device) writeWiper(value uint8) error {
	command := Encode(AddressWiper0, CommandWrite, 0)

	err := d.write(command, value)
	d.emit(OpWriteWiper, AddressWiper0, command, value, err)
	if err != nil {
		return fmt.Errorf("%s: %w", OpWriteWiper, err)
	}

	d.value = value
	return nil
}

// write sends a 16-bit frame: command byte followed by one data byte.
func (d *device) write(command, data byte) error {
	return d.transaction(func(bus Bus) error {
		if err := bus.WriteByte(command); err != nil {
			return err
		}
		return bus.WriteByte(data)
	})
}

// transaction runs fn between Select and Deselect. The device is deselected
// on every path and any bus error is reported as a transport failure.
func (d *device) transaction(fn func(bus Bus) error) (err error) {
	if err = d.bus.Select(); err != nil {
		return fmt.Errorf("%w: select: %w", ErrTransport, err)
	}

	defer func() {
		derr := d.bus.Deselect()
		if derr != nil && err == nil {
			err = fmt.Errorf("%w: deselect: %w", ErrTransport, derr)
		}
	}()

	if err = fn(d.bus); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

func (d *device) emit(op string, address Address, command byte, value uint8, err error) {
	d.sink.Emit(Event{
		Device:  d.name,
		Op:      op,
		Address: address,
		Command: command,
		Value:   value,
		Err:     err,
	})
}
