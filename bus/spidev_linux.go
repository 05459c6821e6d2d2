//go:build linux

package bus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdouchement/potfand/mcp4xxx"
	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var _ mcp4xxx.Bus = (*SPIDev)(nil)

// SPIDev is a bus backed by a Linux SPI controller.
//
// The controller is opened without native chip select so the select line stays
// asserted across the several transfers of a single command; it is driven
// through a GPIO line instead (active low).
type SPIDev struct {
	port spi.PortCloser
	conn spi.Conn
	chip *gpiocdev.Chip
	cs   *gpiocdev.Line
	w    [1]byte
	r    [1]byte
}

// OpenSPIDev opens the SPI port (e.g. "SPI0.0" or "/dev/spidev0.0") at the
// given clock and requests the GPIO line named cs as chip select.
func OpenSPIDev(name string, clock physic.Frequency, cs string) (*SPIDev, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("spidev: %w", err)
	}

	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("spidev: %s: %w", name, err)
	}

	conn, err := p.Connect(clock, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("spidev: %s: %w", name, err)
	}

	chip, line, err := requestCS(cs)
	if err != nil {
		p.Close()
		return nil, err
	}

	return &SPIDev{
		port: p,
		conn: conn,
		chip: chip,
		cs:   line,
	}, nil
}

func requestCS(name string) (*gpiocdev.Chip, *gpiocdev.Line, error) {
	candidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			candidates = append(candidates, filepath.Join("/dev", e.Name()))
		}
	}

	for _, path := range candidates {
		chip, err := gpiocdev.NewChip(path)
		if err != nil {
			continue
		}

		offset, err := chip.FindLine(name)
		if err != nil {
			chip.Close()
			continue
		}

		// Deasserted (high) until the first Select.
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(1), gpiocdev.WithConsumer("potfand-cs"))
		if err != nil {
			chip.Close()
			continue
		}

		return chip, line, nil
	}

	return nil, nil, fmt.Errorf("spidev: chip select line %q not found (or busy)", name)
}

func (d *SPIDev) Close() error {
	d.cs.SetValue(1)
	d.cs.Close()
	d.chip.Close()
	return d.port.Close()
}

func (d *SPIDev) Select() error {
	return d.cs.SetValue(0)
}

func (d *SPIDev) Deselect() error {
	return d.cs.SetValue(1)
}

func (d *SPIDev) WriteByte(b byte) error {
	d.w[0] = b
	return d.conn.Tx(d.w[:], d.r[:])
}

func (d *SPIDev) ReadByte() (byte, error) {
	d.w[0] = 0x00
	if err := d.conn.Tx(d.w[:], d.r[:]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}
