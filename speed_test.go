package potfand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeedToWiper(t *testing.T) {
	tcs := []struct {
		level      int
		speedCount int
		want       uint8
	}{
		{level: -1, speedCount: 5, want: 0},
		{level: 0, speedCount: 5, want: 0},
		{level: 1, speedCount: 5, want: 25},
		{level: 3, speedCount: 4, want: 96},
		{level: 5, speedCount: 5, want: 128},
		{level: 7, speedCount: 5, want: 128},
		{level: 1, speedCount: 128, want: 1},
		{level: 1, speedCount: 1, want: 128},
		{level: 50, speedCount: 100, want: 64},
	}

	for _, tc := range tcs {
		assert.Equal(t, tc.want, SpeedToWiper(tc.level, tc.speedCount), "level %d of %d", tc.level, tc.speedCount)
	}
}

func TestSpeedToWiperMonotonic(t *testing.T) {
	for count := MinSpeedCount; count <= MaxSpeedCount; count++ {
		prev := SpeedToWiper(0, count)
		for level := 1; level <= count; level++ {
			v := SpeedToWiper(level, count)
			assert.Greater(t, v, uint8(0))
			assert.GreaterOrEqual(t, v, prev)
			prev = v
		}
		assert.Equal(t, uint8(128), prev)
	}
}
