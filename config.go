package potfand

import (
	"fmt"
	"os"
	"regexp"
	"slices"

	"github.com/mdouchement/potfand/hwmon/environment"
	"github.com/mdouchement/potfand/mcp4xxx"
	"go.yaml.in/yaml/v4"
	"periph.io/x/conn/v3/physic"
)

const (
	BusSPIDev    = "spidev"
	BusBridge    = "bridge"
	BusSimulated = "simulated"
)

type Config struct {
	Debug       bool                      `yaml:"debug"`
	Socket      string                    `yaml:"socket"`
	Polling     Duration                  `yaml:"polling"`
	MQTT        *MQTTConfig               `yaml:"mqtt"`
	Devices     map[string]*DeviceSetting `yaml:"devices"`
	FanSettings map[string]*FanSetting    `yaml:"fans"`
}

type DeviceSetting struct {
	Name         string     `yaml:"-"`
	Model        string     `yaml:"model"`
	InitialValue *uint8     `yaml:"initial_value"`
	Bus          BusSetting `yaml:"bus"`
}

type BusSetting struct {
	Type       string `yaml:"type"`
	Port       string `yaml:"port"`        // SPI port name or serial device, "auto" to detect the bridge
	ChipSelect string `yaml:"chip_select"` // GPIO line name used as chip select on spidev
	Chip       uint8  `yaml:"chip"`        // Chip select index on the bridge
	VID        string `yaml:"vid"`
	PID        string `yaml:"pid"`
	Clock      string `yaml:"clock"`
}

type FanSetting struct {
	Name        string       `yaml:"-"`
	Label       string       `yaml:"label"`
	Device      string       `yaml:"device"`
	SpeedCount  int          `yaml:"speed_count"`
	FanStepUp   Duration     `yaml:"fan_step_up"`
	FanStepDown Duration     `yaml:"fan_step_down"`
	CurvePoints []CurvePoint `yaml:"curve_points"`
}

// A CurvePoint selects Level once any of its sensors reaches its threshold (°C).
type CurvePoint struct {
	Level      int                `yaml:"level"`
	Thresholds map[string]float64 `yaml:"thresholds"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

func Load(path string) (Config, error) {
	var c Config

	f, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer f.Close()

	codec := yaml.NewDecoder(f)
	err = codec.Decode(&c)
	if err != nil {
		return c, err
	}

	return c, c.validate()
}

// Initial returns the configured initial wiper value or the model default.
func (d DeviceSetting) Initial() uint8 {
	if d.InitialValue != nil {
		return *d.InitialValue
	}
	if d.Model == mcp4xxx.ModelMCP414X {
		return 64
	}
	return 0
}

// Frequency returns the configured bus clock bounded by the device maximum.
func (b BusSetting) Frequency(limit physic.Frequency) (physic.Frequency, error) {
	if b.Clock == "" {
		return limit, nil
	}

	var f physic.Frequency
	if err := f.Set(b.Clock); err != nil {
		return 0, fmt.Errorf("clock: %w", err)
	}
	return min(f, limit), nil
}

// Curve reports whether at least one fan is driven by temperatures.
func (c Config) Curve() bool {
	for _, fan := range c.FanSettings {
		if len(fan.CurvePoints) > 0 {
			return true
		}
	}
	return false
}

func (c *Config) validate() error {
	if c.Socket == "" {
		c.Socket = environment.GetEnvPath(environment.KeyHostRun, "/run", "potfand", "potfand.sock")
	}
	if c.Polling.Duration <= 0 {
		c.Polling.Duration = defaultPolling
	}
	if c.MQTT != nil {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt: no broker provided")
		}
		if c.MQTT.ClientID == "" {
			c.MQTT.ClientID = "potfand"
		}
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = "potfand"
		}
	}

	reName := regexp.MustCompile(`^[a-z0-9_-]+$`)

	for name, dev := range c.Devices {
		if !reName.MatchString(name) {
			return fmt.Errorf("%s: invalid device name", name)
		}
		if dev == nil {
			return fmt.Errorf("%s: empty device setting", name)
		}
		dev.Name = name

		if dev.Model != mcp4xxx.ModelMCP414X && dev.Model != mcp4xxx.ModelMCP4XXX {
			return fmt.Errorf("%s: unsupported model %q", name, dev.Model)
		}
		if dev.InitialValue != nil && *dev.InitialValue > mcp4xxx.MaxValue {
			return fmt.Errorf("%s: initial_value must be in range [0,%d]", name, mcp4xxx.MaxValue)
		}

		switch dev.Bus.Type {
		case BusSPIDev:
			if dev.Bus.Port == "" || dev.Bus.ChipSelect == "" {
				return fmt.Errorf("%s: spidev bus requires port and chip_select", name)
			}
		case BusBridge:
			if dev.Bus.Port == "" {
				dev.Bus.Port = "auto"
			}
			if dev.Bus.VID == "" && dev.Bus.PID == "" {
				dev.Bus.VID, dev.Bus.PID = "2e8a", "000a" // RP2040 running the bridge firmware
			}
		case BusSimulated:
		default:
			return fmt.Errorf("%s: unsupported bus type %q", name, dev.Bus.Type)
		}

		if dev.Bus.Clock != "" {
			var f physic.Frequency
			if err := f.Set(dev.Bus.Clock); err != nil {
				return fmt.Errorf("%s: clock: %w", name, err)
			}
		}
	}

	owners := map[string]string{}
	for name, fan := range c.FanSettings {
		if !reName.MatchString(name) {
			return fmt.Errorf("%s: invalid fan name", name)
		}
		if fan == nil {
			return fmt.Errorf("%s: empty fan setting", name)
		}
		fan.Name = name

		if _, ok := c.Devices[fan.Device]; !ok {
			return fmt.Errorf("%s: unknown device %q", name, fan.Device)
		}
		if owner, ok := owners[fan.Device]; ok {
			return fmt.Errorf("%s: device %q already used by fan %s", name, fan.Device, owner)
		}
		owners[fan.Device] = name

		if fan.SpeedCount == 0 {
			fan.SpeedCount = DefaultSpeedCount
		}
		if fan.SpeedCount < MinSpeedCount || fan.SpeedCount > MaxSpeedCount {
			return fmt.Errorf("%s: %w", name, ErrInvalidSpeedCount)
		}

		prev := 0
		for _, point := range fan.CurvePoints {
			if point.Level <= prev || point.Level > fan.SpeedCount {
				return fmt.Errorf("%s: curve level %d must be increasing and in range [1,%d]", name, point.Level, fan.SpeedCount)
			}
			prev = point.Level

			if len(point.Thresholds) == 0 {
				return fmt.Errorf("%s: level %d: no temperature thresholds specified", name, point.Level)
			}
		}
	}

	return nil
}

// Sensors returns the sorted names of the sensors used by the fan curves.
func (c Config) Sensors() []string {
	var names []string
	for _, fan := range c.FanSettings {
		for _, point := range fan.CurvePoints {
			for name := range point.Thresholds {
				if !slices.Contains(names, name) {
					names = append(names, name)
				}
			}
		}
	}

	slices.Sort(names)
	return names
}
