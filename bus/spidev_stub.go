//go:build !linux

package bus

import (
	"errors"

	"periph.io/x/conn/v3/physic"
)

var errUnsupported = errors.New("spidev: unsupported OS (need linux)")

type SPIDev struct{}

func OpenSPIDev(name string, clock physic.Frequency, cs string) (*SPIDev, error) {
	return nil, errUnsupported
}

func (d *SPIDev) Close() error            { return nil }
func (d *SPIDev) Select() error           { return errUnsupported }
func (d *SPIDev) Deselect() error         { return errUnsupported }
func (d *SPIDev) WriteByte(b byte) error  { return errUnsupported }
func (d *SPIDev) ReadByte() (byte, error) { return 0, errUnsupported }
