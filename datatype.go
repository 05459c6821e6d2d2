package potfand

import (
	"time"

	"github.com/mdouchement/potfand/hwmon/sensor"
	"github.com/mdouchement/potfand/mcp4xxx"
)

type Sensor interface {
	Temperatures() ([]sensor.Temperature, error)
}

type Publisher interface {
	Publish(state FanState)
}

type PublisherFunc func(state FanState)

func (f PublisherFunc) Publish(state FanState) {
	f(state)
}

// A FanCall is a control request. A nil field leaves that part of the fan unchanged.
type FanCall struct {
	State *bool `json:"state,omitempty"`
	Speed *int  `json:"speed,omitempty"`
}

// FanState is the observable state of a fan.
type FanState struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	On    bool   `json:"on"`
	Speed int    `json:"speed"`
	Wiper uint8  `json:"wiper"`
}

type Traits struct {
	SpeedCount int  `json:"speed_count"`
	Speed      bool `json:"speed"`
}

type FanDiagnostics struct {
	FanState
	Device     string `json:"device"`
	SpeedCount int    `json:"speed_count"`
	Terminals  bool   `json:"terminals"`
	Failed     bool   `json:"failed"`
	Error      string `json:"error,omitempty"`
}

type DeviceDiagnostics struct {
	Name         string                 `json:"name"`
	Model        string                 `json:"model"`
	MaxClock     string                 `json:"max_clock"`
	InitialValue uint8                  `json:"initial_value"`
	CurrentValue uint8                  `json:"current_value"`
	Terminals    *mcp4xxx.TerminalState `json:"terminals,omitempty"`
	Owner        string                 `json:"owner,omitempty"`
	Failed       bool                   `json:"failed"`
	Error        string                 `json:"error,omitempty"`
}

type Diagnostics struct {
	Devices []DeviceDiagnostics `json:"devices"`
	Fans    []FanDiagnostics    `json:"fans"`
}

type Evaluation struct {
	Fan             string    `json:"fan"`
	EvaluedAt       time.Time `json:"-"`
	Level           int       `json:"level"`
	TemperatureName string    `json:"temperature_name"`
	Temperature     float64   `json:"temperature"`
}

func ToPtr[T any](v T) *T {
	return &v
}

const (
	OpFanSetup = "fan_setup"
	OpFanState = "fan_state"
	OpFanSpeed = "fan_speed"
	OpSetup    = "setup"
)

// FanResult is the answer to a fan control request.
type FanResult struct {
	FanState
	Error string `json:"error,omitempty"`
}

// DeviceResult is the answer to a device operation.
type DeviceResult struct {
	Name  string `json:"name"`
	Value uint8  `json:"value"`
	Error string `json:"error,omitempty"`
}

// DeviceCall carries the value of a device write.
type DeviceCall struct {
	Value float64 `json:"value"`
}

const (
	DeviceWrite     = "write"
	DeviceIncrement = "increment"
	DeviceDecrement = "decrement"
	DeviceRead      = "read"
)

const (
	eventControl     = "control"
	eventDevice      = "device"
	eventStates      = "states"
	eventDiagnostics = "diagnostics"
	eventEval        = "eval"
	eventWatch       = "watch"
	eventUnwatch     = "unwatch"
)

type event struct {
	name      string
	target    string // Fan or device name
	call      FanCall
	op        string
	value     float64
	evals     map[string]Evaluation
	monitorID int64
	monitor   chan<- []byte
	reply     chan<- reply
}

func (e event) respond(value any, err error) {
	if e.reply != nil {
		e.reply <- reply{value: value, err: err}
	}
}

type reply struct {
	value any
	err   error
}

func genID() int64 {
	time.Sleep(time.Nanosecond)
	return time.Now().UnixNano()
}
