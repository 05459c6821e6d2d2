package potfand

import "github.com/mdouchement/potfand/mcp4xxx"

const (
	MinSpeedCount     = 1
	MaxSpeedCount     = 128
	DefaultSpeedCount = 100
)

// SpeedToWiper maps a speed level in [1, speedCount] onto a wiper value in [1, 128].
// The wiper never rests at 0 for a non zero level so the fan keeps a minimum drive.
func SpeedToWiper(level, speedCount int) uint8 {
	if level <= 0 {
		return 0
	}
	if level >= speedCount {
		return mcp4xxx.MaxValue
	}

	v := uint8(level * int(mcp4xxx.MaxValue) / speedCount)
	if v == 0 {
		v = 1
	}
	return v
}
