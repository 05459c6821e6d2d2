package bus

import (
	"errors"
	"sync"

	"github.com/mdouchement/potfand/mcp4xxx"
)

var ErrNotSelected = errors.New("device not selected")

var _ mcp4xxx.Bus = (*Simulated)(nil)

// A Fault is consulted before each byte written on a Simulated bus.
// frame holds the bytes already written during the current selection.
// A non-nil error aborts the write.
type Fault func(frame []byte, b byte) error

// A Simulated bus emulates one MCP4xxx device sitting on the bus.
// It should only be used for dev & tests.
type Simulated struct {
	sync      sync.Mutex
	selected  bool
	frame     []byte
	frames    [][]byte
	response  []byte
	registers map[mcp4xxx.Address]byte
	fault     Fault
}

func NewSimulated() *Simulated {
	return &Simulated{
		registers: map[mcp4xxx.Address]byte{
			mcp4xxx.AddressWiper0:          64,
			mcp4xxx.AddressWiper1:          64,
			mcp4xxx.AddressTerminalControl: mcp4xxx.TerminalDefault,
		},
	}
}

// SetFault installs f, nil removes the current fault.
func (s *Simulated) SetFault(f Fault) {
	s.sync.Lock()
	defer s.sync.Unlock()

	s.fault = f
}

// Register returns the raw content of a device register.
func (s *Simulated) Register(address mcp4xxx.Address) byte {
	s.sync.Lock()
	defer s.sync.Unlock()

	return s.registers[address]
}

// SetRegister overwrites a device register, e.g. to emulate bus noise.
func (s *Simulated) SetRegister(address mcp4xxx.Address, v byte) {
	s.sync.Lock()
	defer s.sync.Unlock()

	s.registers[address] = v
}

// Frames returns the bytes written during each completed selection.
func (s *Simulated) Frames() [][]byte {
	s.sync.Lock()
	defer s.sync.Unlock()

	frames := make([][]byte, len(s.frames))
	for i, f := range s.frames {
		frames[i] = append([]byte(nil), f...)
	}
	return frames
}

func (s *Simulated) Selected() bool {
	s.sync.Lock()
	defer s.sync.Unlock()

	return s.selected
}

func (s *Simulated) Reset() {
	s.sync.Lock()
	defer s.sync.Unlock()

	s.frames = nil
}

func (s *Simulated) Select() error {
	s.sync.Lock()
	defer s.sync.Unlock()

	s.selected = true
	s.frame = nil
	s.response = nil
	return nil
}

func (s *Simulated) Deselect() error {
	s.sync.Lock()
	defer s.sync.Unlock()

	if s.selected {
		s.frames = append(s.frames, s.frame)
	}
	s.selected = false
	s.frame = nil
	s.response = nil
	return nil
}

func (s *Simulated) WriteByte(b byte) error {
	s.sync.Lock()
	defer s.sync.Unlock()

	if !s.selected {
		return ErrNotSelected
	}

	if s.fault != nil {
		if err := s.fault(s.frame, b); err != nil {
			return err
		}
	}

	s.frame = append(s.frame, b)
	s.exec()
	return nil
}

func (s *Simulated) ReadByte() (byte, error) {
	s.sync.Lock()
	defer s.sync.Unlock()

	if !s.selected {
		return 0, ErrNotSelected
	}

	if len(s.response) == 0 {
		return 0xFF, nil // Floating line
	}

	b := s.response[0]
	s.response = s.response[1:]
	return b, nil
}

// exec applies the current frame once it holds a complete command.
func (s *Simulated) exec() {
	command := s.frame[0]
	address := mcp4xxx.Address(command >> 4)
	value := s.registers[address]

	switch mcp4xxx.Command(command & 0x0C) {
	case mcp4xxx.CommandWrite:
		if len(s.frame) == 2 {
			s.registers[address] = s.frame[1]
		}
	case mcp4xxx.CommandIncrement:
		if len(s.frame) == 1 && value < mcp4xxx.MaxValue {
			s.registers[address] = value + 1
		}
	case mcp4xxx.CommandDecrement:
		if len(s.frame) == 1 && value > 0 {
			s.registers[address] = value - 1
		}
	case mcp4xxx.CommandRead:
		if len(s.frame) == 2 {
			s.response = []byte{0x00, value}
		}
	}
}
