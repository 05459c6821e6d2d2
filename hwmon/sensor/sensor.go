// Package sensor collects the temperatures exposed by the kernel hwmon interface.
package sensor

import (
	"errors"
	"slices"
)

type TemperatureID uint16

type Temperature struct {
	ID          TemperatureID `json:"-"`
	Key         string        `json:"key"`
	Name        string        `json:"name"`
	Device      string        `json:"device"`
	Temperature float64       `json:"temperature"`
	High        float64       `json:"high,omitempty"`
	Critical    float64       `json:"critical,omitempty"`
	file        string
}

// A Collector refreshes a fixed set of temperature sensors.
type Collector struct {
	temps []Temperature
}

func New() (*Collector, error) {
	temps, err := scan()
	return &Collector{temps: temps}, err
}

// Drop forgets the temperatures with the given names.
func (c *Collector) Drop(names ...string) {
	c.temps = slices.DeleteFunc(c.temps, func(t Temperature) bool {
		return slices.Contains(names, t.Name)
	})
}

func (c *Collector) Temperatures() ([]Temperature, error) {
	temps := make([]Temperature, 0, len(c.temps))
	var errs []error
	for _, t := range c.temps {
		v, err := readMilli(t.file)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		t.Temperature = v
		temps = append(temps, t)
	}

	return temps, errors.Join(errs...)
}

func (c *Collector) Close() error {
	return nil
}
