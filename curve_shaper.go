package potfand

import (
	"errors"
	"fmt"
	"time"

	"github.com/mdouchement/potfand/hwmon/sensor"
)

var ErrNotFoundTemp = errors.New("temperature not found")

type step struct {
	temperature float64
	level       int
}

// A CurveShaper turns temperatures into fan speed levels.
type CurveShaper struct {
	index map[sensor.TemperatureID]map[string][]step
}

func NewCurveShaper(cfg Config, temps []sensor.Temperature) (*CurveShaper, error) {
	s := &CurveShaper{
		index: make(map[sensor.TemperatureID]map[string][]step),
	}

	findID := func(name string) (sensor.TemperatureID, error) {
		for _, t := range temps {
			if t.Name == name {
				return t.ID, nil
			}
		}

		return 0, ErrNotFoundTemp
	}

	for _, fan := range cfg.FanSettings {
		for _, point := range fan.CurvePoints {
			for tname, threshold := range point.Thresholds {
				tid, err := findID(tname)
				if err != nil {
					return nil, fmt.Errorf("%s: %s: %w", fan.Name, tname, err)
				}

				if s.index[tid] == nil {
					s.index[tid] = make(map[string][]step)
				}
				s.index[tid][fan.Name] = append(s.index[tid][fan.Name], step{temperature: threshold, level: point.Level})
			}
		}
	}

	return s, nil
}

// Level returns the speed level of the fan for a temperature read by the given sensor.
func (s CurveShaper) Level(fan string, id sensor.TemperatureID, t float64) int {
	var level int
	for _, st := range s.index[id][fan] {
		if t >= st.temperature {
			level = max(level, st.level)
		}
	}
	return level
}

// Eval returns, for each fan, the highest level required by its temperatures.
func (s CurveShaper) Eval(temps []sensor.Temperature) map[string]Evaluation {
	evals := map[string]Evaluation{}
	now := time.Now()

	for _, t := range temps {
		for fan := range s.index[t.ID] {
			eval := Evaluation{
				Fan:             fan,
				EvaluedAt:       now,
				Level:           s.Level(fan, t.ID, t.Temperature),
				TemperatureName: t.Name,
				Temperature:     t.Temperature,
			}

			if prev, ok := evals[fan]; !ok || eval.Level > prev.Level {
				evals[fan] = eval
			}
		}
	}

	return evals
}
