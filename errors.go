package sortcell

import "errors"

var (
	// ErrAlreadyRunning is returned when an actuation targets a device that is mid-operation
	ErrAlreadyRunning = errors.New("already running")
	// ErrOutOfRange is returned for an invalid index, angle, direction, speed or target position
	ErrOutOfRange = errors.New("out of range")
	// ErrTimeout is returned when a bounded wait expires
	ErrTimeout = errors.New("timeout")
	// ErrRemoteUnreachable is returned when a node cannot be reached
	ErrRemoteUnreachable = errors.New("remote unreachable")
	// ErrStopRequested is returned when work is abandoned because the stop flag is set
	ErrStopRequested = errors.New("stop requested")
	// ErrNotConnected is returned when a sensor does not respond
	ErrNotConnected = errors.New("not connected")
)
