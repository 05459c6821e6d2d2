package sensor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/mdouchement/potfand/hwmon/environment"
)

// Values are exposed in millidegree Celsius:
// https://www.kernel.org/doc/Documentation/hwmon/sysfs-interface
const scale = 1000

func scan() ([]Temperature, error) {
	files, err := filepath.Glob(environment.GetEnvPath(environment.KeyHostSys, "/sys", "class", "hwmon", "hwmon*", "temp*_input"))
	if err != nil {
		return nil, fmt.Errorf("could not get temperature files: %w", err)
	}
	slices.Sort(files)

	var temps []Temperature
	var errs []error
	for _, file := range files {
		directory := filepath.Dir(file)
		base := filepath.Join(directory, strings.TrimSuffix(filepath.Base(file), "_input")) // <dir>/temp1

		chip, err := readString(filepath.Join(directory, "name"))
		if err != nil {
			errs = append(errs, err)
			continue
		}

		key, name := chip, chip
		if label, _ := readString(base + "_label"); label != "" {
			// "Core 0" => "core_0"
			key += "_" + strings.ReplaceAll(strings.ToLower(label), " ", "_")
			name += ": " + label
		}

		v, err := readMilli(file)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		high, _ := readMilli(base + "_max")
		critical, _ := readMilli(base + "_crit")

		temps = append(temps, Temperature{
			ID:          TemperatureID(len(temps)),
			Key:         key,
			Name:        name,
			Device:      chip,
			Temperature: v,
			High:        high,
			Critical:    critical,
			file:        file,
		})
	}

	return temps, errors.Join(errs...)
}

func readString(filename string) (string, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func readMilli(filename string) (float64, error) {
	raw, err := readString(filename)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filename, err)
	}
	return v / scale, nil
}
