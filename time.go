package potfand

import (
	"encoding/json"
	"time"

	"go.yaml.in/yaml/v4"
)

const defaultPolling = 2 * time.Second

// Duration is a time.Duration written as a string ("1m30s") in YAML and JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	return d.parse(str)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	return d.parse(str)
}

func (d *Duration) parse(str string) (err error) {
	if str == "" {
		d.Duration = 0
		return nil
	}

	d.Duration, err = time.ParseDuration(str)
	return err
}
