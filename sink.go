package potfand

import (
	"errors"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/potfand/mcp4xxx"
)

// LogSink turns device events into log lines.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(l logger.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Emit(e mcp4xxx.Event) {
	switch {
	case e.Err == nil && onBus(e.Op):
		s.log.Debugf("[%s] %s: command=0x%02X (%s %s) value=%d", e.Device, e.Op, e.Command, e.Address, mcp4xxx.Command(e.Command), e.Value)
	case e.Err == nil:
		s.log.Debugf("[%s] %s: value=%d", e.Device, e.Op, e.Value)
	case errors.Is(e.Err, mcp4xxx.ErrAtBound):
		// Nothing to do on the device, not a fault.
		s.log.Infof("[%s] %s: %s", e.Device, e.Op, e.Err)
	default:
		s.log.WithError(e.Err).Errorf("[%s] %s failed (value=%d)", e.Device, e.Op, e.Value)
	}
}

func onBus(op string) bool {
	switch op {
	case mcp4xxx.OpWriteWiper, mcp4xxx.OpReadWiper, mcp4xxx.OpIncrement, mcp4xxx.OpDecrement, mcp4xxx.OpWriteTerminal:
		return true
	}
	return false
}
