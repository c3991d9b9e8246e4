package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/hal/sim"
)

const (
	stepPin = 1
	dirPin  = 2
)

func newTestStepper(t *testing.T, cfg StepperConfig) (*Stepper, *sim.Board) {
	t.Helper()
	board := sim.NewBoard()
	cfg.StepPin = stepPin
	cfg.DirPin = dirPin
	s, err := NewStepper(board, cfg)
	require.NoError(t, err)
	return s, board
}

func TestStepperDrive(t *testing.T) {
	tests := []struct {
		name     string
		steps    int
		forward  bool
		expected int
	}{
		{"Forward", 100, true, 100},
		{"Backward", -50, false, -50},
		{"Zero", 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, board := newTestStepper(t, StepperConfig{})

			err := s.Drive(tt.steps, 20000)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, s.Position())
			assert.Equal(t, max(tt.steps, -tt.steps), board.Pin(stepPin).Rises())
			if tt.steps != 0 {
				assert.Equal(t, tt.forward, board.Pin(dirPin).Get())
			}
			assert.False(t, board.Pin(stepPin).Get())
			assert.False(t, s.Running())
		})
	}
}

func TestStepperPacing(t *testing.T) {
	s, _ := newTestStepper(t, StepperConfig{})

	start := time.Now()
	err := s.Drive(50, 1000)
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 49*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

// overheadDriver records when each step is issued and stalls on one of them
type overheadDriver struct {
	stallOn  int
	overhead time.Duration
	issued   []time.Time
}

func (d *overheadDriver) Step(bool) {
	d.issued = append(d.issued, time.Now())
	if len(d.issued) == d.stallOn {
		time.Sleep(d.overhead)
	}
}

func (d *overheadDriver) Enable(bool) {}

func assertMinInterval(t *testing.T, issued []time.Time, period time.Duration) {
	t.Helper()
	const slack = 50 * time.Microsecond
	for i := 1; i < len(issued); i++ {
		gap := issued[i].Sub(issued[i-1])
		assert.GreaterOrEqual(t, gap, period-slack, "step %d followed step %d after %s", i+1, i, gap)
	}
}

func TestStepperMinimumInterval(t *testing.T) {
	t.Run("AfterSlowStep", func(t *testing.T) {
		driver := &overheadDriver{stallOn: 3, overhead: 5 * time.Millisecond}
		s := NewStepperWithDriver(driver, StepperConfig{})

		require.NoError(t, s.Drive(10, 1000))
		require.Len(t, driver.issued, 10)
		assertMinInterval(t, driver.issued, time.Millisecond)
	})

	t.Run("AcrossDrives", func(t *testing.T) {
		driver := &overheadDriver{}
		s := NewStepperWithDriver(driver, StepperConfig{})

		require.NoError(t, s.Drive(1, 100))
		require.NoError(t, s.Drive(-1, 100))
		require.Len(t, driver.issued, 2)
		assertMinInterval(t, driver.issued, 10*time.Millisecond)
		assert.Equal(t, 0, s.Position())
	})
}

func TestStepperStopBeforeRun(t *testing.T) {
	s, board := newTestStepper(t, StepperConfig{})

	op, err := s.Prepare(300, 20000)
	require.NoError(t, err)
	assert.True(t, s.Running())

	_, err = s.Prepare(1, 20000)
	assert.ErrorIs(t, err, sortcell.ErrAlreadyRunning)

	assert.True(t, s.Stop())
	require.NoError(t, op.Run())

	assert.Equal(t, 0, s.Position())
	assert.Equal(t, 0, board.Pin(stepPin).Rises())
	assert.False(t, s.Running())
}

func TestStepperPrepareCancel(t *testing.T) {
	s, _ := newTestStepper(t, StepperConfig{})

	op, err := s.Prepare(5, 20000)
	require.NoError(t, err)
	op.Cancel()
	assert.False(t, s.Running())

	require.NoError(t, s.Drive(5, 20000))
	assert.Equal(t, 5, s.Position())
}

func TestStepperAlreadyRunningAndStop(t *testing.T) {
	s, board := newTestStepper(t, StepperConfig{})

	done := make(chan error)
	go func() {
		done <- s.Drive(100000, 1000)
	}()

	require.Eventually(t, s.Running, time.Second, time.Millisecond)

	err := s.Drive(10, 1000)
	assert.ErrorIs(t, err, sortcell.ErrAlreadyRunning)

	assert.True(t, s.Stop())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stepper did not stop")
	}

	assert.False(t, s.Running())
	assert.Less(t, s.Position(), 100000)
	assert.Equal(t, s.Position(), board.Pin(stepPin).Rises())

	// stop is reset so the next drive runs to completion
	require.NoError(t, s.Drive(5, 20000))
	assert.Equal(t, board.Pin(stepPin).Rises(), s.Position())
}

func TestStepperStopIdle(t *testing.T) {
	s, _ := newTestStepper(t, StepperConfig{})
	assert.False(t, s.Stop())

	require.NoError(t, s.Drive(3, 20000))
	assert.Equal(t, 3, s.Position())
}

func TestStepperOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		steps int
		speed int
	}{
		{"PastMax", 101, 1000},
		{"PastMin", -1, 1000},
		{"ZeroSpeed", 10, 0},
		{"NegativeSpeed", 10, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, board := newTestStepper(t, StepperConfig{Bounded: true, Min: 0, Max: 100})

			_, err := s.Prepare(tt.steps, tt.speed)
			assert.ErrorIs(t, err, sortcell.ErrOutOfRange)
			assert.False(t, s.Running())

			err = s.Drive(tt.steps, tt.speed)
			assert.ErrorIs(t, err, sortcell.ErrOutOfRange)
			assert.Equal(t, 0, board.Pin(stepPin).Rises())
			assert.Equal(t, 0, s.Position())
			assert.False(t, s.Running())
		})
	}
}

func TestStepperEnablePin(t *testing.T) {
	board := sim.NewBoard()
	enable := 3
	s, err := NewStepper(board, StepperConfig{StepPin: stepPin, DirPin: dirPin, EnablePin: &enable, DisableWhenIdle: true})
	require.NoError(t, err)

	s.Enable()
	assert.False(t, board.Pin(enable).Get())

	s.Disable()
	assert.True(t, board.Pin(enable).Get())

	require.NoError(t, s.Drive(2, 20000))
	assert.True(t, board.Pin(enable).Get())
	assert.Equal(t, 1, board.Pin(enable).Falls())
}

func TestHBridgeSequence(t *testing.T) {
	levels := func(pins [4]*sim.Pin) [4]bool {
		return [4]bool{pins[0].Get(), pins[1].Get(), pins[2].Get(), pins[3].Get()}
	}

	tests := []struct {
		name     string
		mode     StepMode
		steps    int
		expected [4]bool
	}{
		{"FullForwardOne", StepModeFull, 1, [4]bool{false, true, false, false}},
		{"FullBackwardOne", StepModeFull, -1, [4]bool{false, false, false, true}},
		{"FullWrap", StepModeFull, 4, [4]bool{true, false, false, false}},
		{"HalfForwardOne", StepModeHalf, 1, [4]bool{true, true, false, false}},
		{"HalfBackwardOne", StepModeHalf, -1, [4]bool{true, false, false, true}},
		{"HalfWrap", StepModeHalf, 8, [4]bool{true, false, false, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := sim.NewBoard()
			s, err := NewStepper(board, StepperConfig{Coils: []int{10, 11, 12, 13}, StepMode: tt.mode})
			require.NoError(t, err)

			require.NoError(t, s.Drive(tt.steps, 20000))

			pins := [4]*sim.Pin{board.Pin(10), board.Pin(11), board.Pin(12), board.Pin(13)}
			assert.Equal(t, tt.expected, levels(pins))
			assert.Equal(t, tt.steps, s.Position())
		})
	}
}

func TestNewStepperErrors(t *testing.T) {
	_, err := NewStepper(sim.NewBoard(), StepperConfig{Coils: []int{1, 2}})
	assert.Error(t, err)

	_, err = NewStepper(sim.NewBoard(), StepperConfig{Bounded: true, Min: 10, Max: 0})
	assert.Error(t, err)

	board := sim.NewBoard(sim.Strict())
	_, err = board.ADC(1)
	require.NoError(t, err)
	_, err = NewStepper(board, StepperConfig{StepPin: 1, DirPin: 2})
	assert.ErrorIs(t, err, sim.ErrPinInUse)
}
