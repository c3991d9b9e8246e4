// Package position tracks which delivery segment is lined up with the output and computes the step
// count to reach another one
package position

import (
	"fmt"
	"sync"

	"github.com/calvinmclean/sortcell"
)

// DefaultStepsPerSegment is the number of rotation steps between adjacent segments
const DefaultStepsPerSegment = 1100

// Policy decides when a move is committed to the tracked position
type Policy int

const (
	// PolicyOptimistic commits before the physical move, even if the move then fails
	PolicyOptimistic Policy = iota
	// PolicyConfirmed commits only after the move succeeds
	PolicyConfirmed
)

func (p Policy) String() string {
	switch p {
	case PolicyConfirmed:
		return "confirmed"
	default:
		fallthrough
	case PolicyOptimistic:
		return "optimistic"
	}
}

// ParsePolicy accepts "optimistic" or "confirmed"
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "optimistic":
		return PolicyOptimistic, nil
	case "confirmed":
		return PolicyConfirmed, nil
	default:
		return PolicyOptimistic, fmt.Errorf("invalid position policy %q", s)
	}
}

// RelativeMove returns the signed steps from current to target. It is the direct distance along the
// ring without wrapping, zero only when current equals target
func RelativeMove(current, target sortcell.Position, stepsPerSegment int) int {
	return (int(target) - int(current)) * stepsPerSegment
}

// Tracker owns the authoritative current Position
type Tracker struct {
	// moving serializes Move. mtx only guards current so readers are not held up by a move in progress
	moving sync.Mutex

	mtx             sync.Mutex
	current         sortcell.Position
	stepsPerSegment int
	policy          Policy
}

// NewTracker starts at start. A zero stepsPerSegment uses DefaultStepsPerSegment
func NewTracker(start sortcell.Position, stepsPerSegment int, policy Policy) (*Tracker, error) {
	if !start.Valid() {
		return nil, fmt.Errorf("%w: position %d", sortcell.ErrOutOfRange, start)
	}
	if stepsPerSegment == 0 {
		stepsPerSegment = DefaultStepsPerSegment
	}
	return &Tracker{current: start, stepsPerSegment: stepsPerSegment, policy: policy}, nil
}

func (t *Tracker) Current() sortcell.Position {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.current
}

func (t *Tracker) Policy() Policy {
	return t.policy
}

// Move computes the steps to target and runs move with them. A zero move still calls move so callers
// see a uniform sequence. The position is committed according to the Policy
func (t *Tracker) Move(target sortcell.Position, move func(steps int) error) (int, error) {
	if !target.Valid() {
		return 0, fmt.Errorf("%w: position %d", sortcell.ErrOutOfRange, target)
	}

	t.moving.Lock()
	defer t.moving.Unlock()

	t.mtx.Lock()
	steps := RelativeMove(t.current, target, t.stepsPerSegment)
	if t.policy == PolicyOptimistic {
		t.current = target
	}
	t.mtx.Unlock()

	err := move(steps)
	if err != nil {
		return steps, err
	}

	t.mtx.Lock()
	t.current = target
	t.mtx.Unlock()
	return steps, nil
}
