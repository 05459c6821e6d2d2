package bus

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/potfand/mcp4xxx"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// The bridge is a USB microcontroller exposing its SPI peripheral through a line based ASCII protocol:
//
//	request:  >CC[payload]\r\n
//	response: <CC|payload\r\n
//
// Any line received before the response is a log line from the bridge firmware.
const (
	CommRequestCharacter  = '>'
	CommResponseCharacter = '<'
	CommSeparator         = '|'
	CommEndCharacter      = '\n'
	CommAltEndCharacter   = '\r'
	CommBufferLen         = 128
)

const (
	BridgeHardwareInfo BridgeCommand = 0x05
	BridgeFirmwareInfo BridgeCommand = 0x06
	BridgeSelect       BridgeCommand = 0x10
	BridgeDeselect     BridgeCommand = 0x11
	BridgeWriteByte    BridgeCommand = 0x12
	BridgeReadByte     BridgeCommand = 0x13
)

var (
	ErrNotFound       = errors.New("bridge not found/plugged")
	ErrTimeout        = errors.New("bridge response timeout")
	ErrBridgeProtocol = errors.New("invalid bridge response")
	ErrBridge         = errors.New("bridge error")
)

var _ mcp4xxx.Bus = (*Bridge)(nil)

type BridgeCommand uint8

type BridgeInfo struct {
	Revision string `json:"revision"`
	MCU      string `json:"mcu"`
	Protocol string `json:"protocol,omitempty"`
}

type port interface {
	io.ReadWriter
	io.Closer
}

// A Bridge is a bus reached through a serial SPI bridge.
type Bridge struct {
	sync  sync.Mutex
	pname string
	chip  uint8
	port  port
	log   logger.Logger
	wbuf  []byte
	rbuf  []byte
}

// OpenBridgeAuto opens the first serial port matching the given USB identifiers.
func OpenBridgeAuto(vid, pid string, chip uint8) (*Bridge, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			return OpenBridge(p.Name, chip)
		}
	}

	return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, vid, pid)
}

func OpenBridge(name string, chip uint8) (*Bridge, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	if err = p.SetReadTimeout(200 * time.Millisecond); err != nil {
		p.Close()
		return nil, err
	}

	if err = p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, err
	}

	if err = p.ResetOutputBuffer(); err != nil {
		p.Close()
		return nil, err
	}

	return newBridge(name, chip, p), nil
}

func newBridge(name string, chip uint8, p port) *Bridge {
	return &Bridge{
		pname: name,
		chip:  chip,
		port:  p,
		wbuf:  make([]byte, CommBufferLen),
		rbuf:  make([]byte, CommBufferLen*8),
	}
}

func (b *Bridge) SetLogger(l logger.Logger) {
	b.log = l
}

func (b *Bridge) Port() string {
	return b.pname
}

func (b *Bridge) Close() error {
	return b.port.Close()
}

func (b *Bridge) Info() (*BridgeInfo, error) {
	var info BridgeInfo

	response, err := b.Run(BridgeHardwareInfo)
	if err != nil {
		return nil, fmt.Errorf("hardware_info: %w", err)
	}
	for k, v := range keyValues(response) {
		switch k {
		case "HW_REV":
			info.Revision = v
		case "MCU":
			info.MCU = v
		}
	}

	response, err = b.Run(BridgeFirmwareInfo)
	if err != nil {
		return nil, fmt.Errorf("firmware_info: %w", err)
	}
	for k, v := range keyValues(response) {
		if k == "PROTOCOL_VERSION" {
			info.Protocol = v
		}
	}

	return &info, nil
}

func (b *Bridge) Select() error {
	c1, c2 := f2x(b.chip)
	_, err := b.Run(BridgeSelect, c1, c2)
	return err
}

func (b *Bridge) Deselect() error {
	c1, c2 := f2x(b.chip)
	_, err := b.Run(BridgeDeselect, c1, c2)
	return err
}

func (b *Bridge) WriteByte(v byte) error {
	v1, v2 := f2x(v)
	_, err := b.Run(BridgeWriteByte, v1, v2)
	return err
}

func (b *Bridge) ReadByte() (byte, error) {
	response, err := b.Run(BridgeReadByte)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseUint(string(response), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("read_byte: %w: %w", ErrBridgeProtocol, err)
	}
	return byte(v), nil
}

// Run sends a command to the bridge and returns the payload of its response.
func (b *Bridge) Run(command BridgeCommand, payload ...byte) ([]byte, error) {
	b.sync.Lock()
	defer b.sync.Unlock()

	l := 5 + len(payload)
	if l > len(b.wbuf) {
		return nil, fmt.Errorf("payload too large: %d", len(payload))
	}

	b.wbuf[0] = CommRequestCharacter
	b.wbuf[1], b.wbuf[2] = f2x(command)
	copy(b.wbuf[3:], payload)
	b.wbuf[l-2] = CommAltEndCharacter
	b.wbuf[l-1] = CommEndCharacter

	n, err := b.port.Write(b.wbuf[:l])
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	if n != l {
		return nil, fmt.Errorf("write: short write %d of %d", n, l)
	}

	//

	var response []byte
	l = 0
	for {
		if l == len(b.rbuf) {
			return nil, fmt.Errorf("read: %w: response too large", ErrBridgeProtocol)
		}

		n, err = b.port.Read(b.rbuf[l:])
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			return nil, ErrTimeout
		}
		l += n

		start := bytes.IndexByte(b.rbuf[:l], CommResponseCharacter)
		if start < 0 {
			continue
		}
		end := bytes.IndexByte(b.rbuf[start:l], CommEndCharacter)
		if end < 0 {
			continue
		}

		b.logs(b.rbuf[:start])
		response = bytes.TrimSpace(b.rbuf[start+1 : start+end])
		break
	}

	//

	code, data, ok := bytes.Cut(response, []byte{CommSeparator})
	if !ok || len(code) != 2 {
		return nil, fmt.Errorf("%w: %q", ErrBridgeProtocol, response)
	}

	c1, c2 := f2x(command)
	if code[0] != c1 || code[1] != c2 {
		return nil, fmt.Errorf("%w: unexpected command %s", ErrBridgeProtocol, code)
	}

	if msg, ok := bytes.CutPrefix(data, []byte("ERR:")); ok {
		return nil, fmt.Errorf("%w: %s", ErrBridge, msg)
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

func (b *Bridge) logs(p []byte) {
	if b.log == nil {
		return
	}

	for line := range bytes.SplitSeq(p, []byte{CommEndCharacter}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		b.log.Debug(string(line))
	}
}

func keyValues(p []byte) map[string]string {
	kvs := map[string]string{}
	for line := range bytes.SplitSeq(p, []byte{';'}) {
		k, v, ok := bytes.Cut(line, []byte{':'})
		if !ok {
			continue
		}
		kvs[string(bytes.TrimSpace(k))] = string(bytes.TrimSpace(v))
	}
	return kvs
}

func f2x[T ~uint8](v T) (byte, byte) {
	s := fmt.Sprintf("%02X", v)
	return s[0], s[1]
}
