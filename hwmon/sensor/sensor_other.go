//go:build !linux

package sensor

import "errors"

var errUnsupported = errors.New("hwmon: unsupported OS (need linux)")

func scan() ([]Temperature, error) {
	return nil, errUnsupported
}

func readMilli(string) (float64, error) {
	return 0, errUnsupported
}
