// Package node is the command surface of the motor and sensor nodes: device ownership, background
// dispatch and the HTTP API the coordinator drives
package node

import (
	"errors"

	"github.com/calvinmclean/sortcell"
)

// Result is the plain-text reply to an actuation command
type Result string

const (
	ResultOK             Result = "OK"
	ResultFail           Result = "FAIL"
	ResultAlreadyRunning Result = "ALREADY RUNNING"
)

// ResultFor maps a command error to its reply
func ResultFor(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, sortcell.ErrAlreadyRunning):
		return ResultAlreadyRunning
	default:
		return ResultFail
	}
}
