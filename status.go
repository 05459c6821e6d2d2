package potfand

import (
	"errors"
	"fmt"
)

var (
	ErrFailed            = errors.New("component marked as failed")
	ErrOwned             = errors.New("device is owned by a fan")
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedOp     = errors.New("unsupported operation")
	ErrShutdown          = errors.New("controller is shut down")
	ErrInvalidSpeedCount = fmt.Errorf("speed count must be in range [%d,%d]", MinSpeedCount, MaxSpeedCount)
)

// Status is the health of a component. Once failed, it stays failed for the
// lifetime of the process.
type Status struct {
	err error
}

func (s *Status) MarkFailed(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s Status) Failed() bool {
	return s.err != nil
}

func (s Status) Err() error {
	return s.err
}

func (s Status) String() string {
	if s.err != nil {
		return "failed: " + s.err.Error()
	}
	return "healthy"
}
