package node

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/device"
	"github.com/calvinmclean/sortcell/hal/sim"
	"github.com/calvinmclean/sortcell/logging"
	"github.com/calvinmclean/sortcell/metrics"
)

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func newMotorNode(t *testing.T) (*MotorNode, *sim.Board) {
	t.Helper()
	board := sim.NewBoard()
	n, err := NewMotorNode(board, MotorNodeConfig{
		Steppers: []device.StepperConfig{
			{StepPin: 1, DirPin: 2},
			{StepPin: 3, DirPin: 4},
		},
		Servos: []device.ServoConfig{{Pin: 10}, {Pin: 11}},
		Motors: []device.DCMotorConfig{{In1Pin: 20, In2Pin: 21, EnablePin: 22}},
	}, logging.Discard(), metrics.New())
	require.NoError(t, err)
	return n, board
}

func TestMotorNodeHelp(t *testing.T) {
	n, _ := newMotorNode(t)

	w := do(t, n.Router(), http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "POST /stepper/{id} [steps, speed]: Drive a stepper")
	assert.Contains(t, w.Body.String(), "POST /stop: Stop every actuator")
}

func TestMotorNodeCommands(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		target   string
		expected Result
	}{
		{"StepperOK", http.MethodPost, "/stepper/1?steps=5&speed=20000", ResultOK},
		{"StepperIndexTooHigh", http.MethodPost, "/stepper/2?steps=5&speed=20000", ResultFail},
		{"StepperNegativeIndex", http.MethodPost, "/stepper/-1?steps=5&speed=20000", ResultFail},
		{"StepperBadSpeed", http.MethodPost, "/stepper/0?steps=5&speed=0", ResultFail},
		{"StepperMissingSteps", http.MethodPost, "/stepper/0?speed=10", ResultFail},
		{"ServoOK", http.MethodPost, "/servo/1?angle=90", ResultOK},
		{"ServoAngleTooHigh", http.MethodPost, "/servo/1?angle=181", ResultFail},
		{"ServoIndexTooHigh", http.MethodPost, "/servo/2?angle=90", ResultFail},
		{"MotorOK", http.MethodPost, "/motors/0?time=0.01&direction=-1", ResultOK},
		{"MotorBadDirection", http.MethodPost, "/motors/0?time=0.01&direction=0", ResultFail},
		{"MotorIndexTooHigh", http.MethodPost, "/motors/1?time=0.01&direction=1", ResultFail},
		{"MotorTooLong", http.MethodPost, "/motors/0?time=100000&direction=1", ResultFail},
		{"Stop", http.MethodPost, "/stop", ResultOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := newMotorNode(t)

			w := do(t, n.Router(), tt.method, tt.target)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, string(tt.expected), w.Body.String())
			n.Wait()
		})
	}
}

func TestMotorNodeInvalidIndexHasNoEffect(t *testing.T) {
	n, board := newMotorNode(t)

	do(t, n.Router(), http.MethodPost, "/stepper/7?steps=5&speed=20000")
	do(t, n.Router(), http.MethodPost, "/servo/7?angle=10")
	n.Wait()

	for pin := range 5 {
		assert.Equal(t, 0, board.Pin(pin).Rises())
	}
	_, set := board.SimServo(10).Angle()
	assert.False(t, set)
}

func TestMotorNodeStepperStatus(t *testing.T) {
	n, board := newMotorNode(t)
	h := n.Router()

	w := do(t, h, http.MethodPost, "/stepper/0?steps=-12&speed=20000")
	require.Equal(t, "OK", w.Body.String())
	n.Wait()

	w = do(t, h, http.MethodGet, "/stepper/0")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running":false,"position":-12}`, w.Body.String())
	assert.Equal(t, 12, board.Pin(1).Rises())

	w = do(t, h, http.MethodGet, "/stepper/9")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "FAIL", w.Body.String())
}

func TestMotorNodeAlreadyRunningAndStop(t *testing.T) {
	n, board := newMotorNode(t)
	h := n.Router()

	w := do(t, h, http.MethodPost, "/stepper/0?steps=100000&speed=1000")
	require.Equal(t, "OK", w.Body.String())
	w = do(t, h, http.MethodPost, "/motors/0?time=60&direction=1")
	require.Equal(t, "OK", w.Body.String())

	require.Eventually(t, func() bool {
		s, err := n.StepperStatus(0)
		return err == nil && s.Running
	}, time.Second, time.Millisecond)

	w = do(t, h, http.MethodPost, "/stepper/0?steps=1&speed=1000")
	assert.Equal(t, "ALREADY RUNNING", w.Body.String())
	w = do(t, h, http.MethodPost, "/motors/0?time=1&direction=1")
	assert.Equal(t, "ALREADY RUNNING", w.Body.String())

	// another stepper is independent
	w = do(t, h, http.MethodPost, "/stepper/1?steps=3&speed=20000")
	assert.Equal(t, "OK", w.Body.String())

	w = do(t, h, http.MethodPost, "/stop")
	assert.Equal(t, "OK", w.Body.String())

	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("actuators did not stop")
	}

	status, err := n.StepperStatus(0)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Less(t, status.Position, 100000)

	for _, pin := range []int{10, 11} {
		angle, ok := board.SimServo(pin).Angle()
		assert.True(t, ok)
		assert.Equal(t, 180, angle)
	}
	assert.False(t, board.Pin(20).Get())
	assert.Equal(t, uint16(0), board.SimPWM(22).Duty())
}

func TestMotorNodeStepperOutOfBounds(t *testing.T) {
	board := sim.NewBoard()
	n, err := NewMotorNode(board, MotorNodeConfig{
		Steppers: []device.StepperConfig{{StepPin: 1, DirPin: 2, Bounded: true, Min: 0, Max: 100}},
	}, logging.Discard(), metrics.New())
	require.NoError(t, err)
	h := n.Router()

	w := do(t, h, http.MethodPost, "/stepper/0?steps=5000&speed=1000")
	assert.Equal(t, "FAIL", w.Body.String())
	n.Wait()
	assert.Equal(t, 0, board.Pin(1).Rises())

	status, err := n.StepperStatus(0)
	require.NoError(t, err)
	assert.Equal(t, StepperStatus{}, status)

	w = do(t, h, http.MethodPost, "/stepper/0?steps=100&speed=20000")
	assert.Equal(t, "OK", w.Body.String())
	n.Wait()

	w = do(t, h, http.MethodPost, "/stepper/0?steps=1&speed=20000")
	assert.Equal(t, "FAIL", w.Body.String())
	n.Wait()
	assert.Equal(t, 100, board.Pin(1).Rises())
}

func TestMotorNodeStopRightAfterAccept(t *testing.T) {
	for range 50 {
		n, board := newMotorNode(t)
		h := n.Router()

		w := do(t, h, http.MethodPost, "/stepper/0?steps=300&speed=1000")
		require.Equal(t, "OK", w.Body.String())
		w = do(t, h, http.MethodPost, "/motors/0?time=60&direction=1")
		require.Equal(t, "OK", w.Body.String())

		w = do(t, h, http.MethodPost, "/stop")
		require.Equal(t, "OK", w.Body.String())

		done := make(chan struct{})
		go func() {
			n.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("actuators did not stop")
		}

		status, err := n.StepperStatus(0)
		require.NoError(t, err)
		require.Less(t, status.Position, 300)
		require.Equal(t, status.Position, board.Pin(1).Rises())
		require.Equal(t, uint16(0), board.SimPWM(22).Duty())
	}
}

func TestMotorNodeMetrics(t *testing.T) {
	n, _ := newMotorNode(t)
	h := n.Router()

	do(t, h, http.MethodPost, "/servo/0?angle=45")
	w := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `sortcell_node_commands_total{command="servo",result="OK"} 1`)
}

var relayPins = []int{4, 14, 22, 12, 23, 19}

func newSensorNode(t *testing.T, distance bool) (*SensorNode, *sim.Board, *sim.RegisterBus) {
	t.Helper()

	bus := sim.NewColourBus(1000, 100, 400, 100)
	board := sim.NewBoard(sim.WithI2C(func() *sim.RegisterBus { return bus }))
	board.SimADC(26).Store(500)

	cfg := SensorNodeConfig{
		Colour:   device.ColourSensorConfig{SCLPin: 21, SDAPin: 20, IntegrationTime: 2400 * time.Microsecond},
		MetalPin: 5,
		Piezos: []device.PiezoConfig{
			{Pin: 26, PollInterval: time.Millisecond},
			{Pin: 27, PollInterval: time.Millisecond},
		},
	}
	for _, p := range relayPins {
		cfg.Relays = append(cfg.Relays, device.RelayConfig{Pin: p, ActiveLow: true})
	}
	if distance {
		cfg.Distance = &device.DistanceSensorConfig{TriggerPin: 6, EchoPin: 7, Timeout: time.Millisecond}
	}

	n, err := NewSensorNode(board, nil, cfg, logging.Discard(), metrics.New())
	require.NoError(t, err)
	return n, board, bus
}

func TestSensorNodeReads(t *testing.T) {
	n, board, _ := newSensorNode(t, false)
	h := n.Router()

	w := do(t, h, http.MethodGet, "/colour")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"red":0,"green":25,"blue":0}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/metal")
	assert.JSONEq(t, `{"is_metal":0}`, w.Body.String())
	board.Pin(5).Set(true)
	w = do(t, h, http.MethodGet, "/metal")
	assert.JSONEq(t, `{"is_metal":1}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/piezo/0")
	assert.JSONEq(t, `{"value":false}`, w.Body.String())
	board.SimADC(26).Store(900)
	w = do(t, h, http.MethodGet, "/piezo/0")
	assert.JSONEq(t, `{"value":true}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/piezo/1?timeout=0.02")
	assert.JSONEq(t, `{"value":false}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/piezo/2")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "FAIL", w.Body.String())

	w = do(t, h, http.MethodGet, "/distance")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSensorNodeColourDisconnected(t *testing.T) {
	n, _, bus := newSensorNode(t, false)
	bus.Detach(0x29)

	w := do(t, n.Router(), http.MethodGet, "/colour")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "FAIL", w.Body.String())
}

func TestSensorNodeDistanceTimeout(t *testing.T) {
	n, _, _ := newSensorNode(t, true)

	_, err := n.Distance()
	assert.ErrorIs(t, err, sortcell.ErrTimeout)
}

func TestSensorNodeRelays(t *testing.T) {
	n, board, _ := newSensorNode(t, false)
	h := n.Router()

	// active-low relays idle high
	for _, p := range relayPins {
		assert.True(t, board.Pin(p).Get())
	}

	w := do(t, h, http.MethodPost, "/relay/0?enable=1")
	assert.Equal(t, "OK", w.Body.String())
	assert.False(t, board.Pin(4).Get())

	w = do(t, h, http.MethodPost, "/relay/6?enable=1")
	assert.Equal(t, "FAIL", w.Body.String())
	w = do(t, h, http.MethodPost, "/relay/1?enable=2")
	assert.Equal(t, "FAIL", w.Body.String())

	w = do(t, h, http.MethodPost, "/stop")
	assert.Equal(t, "OK", w.Body.String())
	assert.True(t, board.Pin(4).Get())
	assert.True(t, n.Latched())

	w = do(t, h, http.MethodPost, "/relay/0?enable=1")
	assert.Equal(t, "FAIL", w.Body.String())
	assert.True(t, board.Pin(4).Get())

	// switching off is always allowed
	w = do(t, h, http.MethodPost, "/relay/0?enable=0")
	assert.Equal(t, "OK", w.Body.String())

	w = do(t, h, http.MethodPost, "/release")
	assert.Equal(t, "OK", w.Body.String())
	w = do(t, h, http.MethodPost, "/relay/0?enable=1")
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, []bool{true, false, false, false, false, false}, n.RelayStates())
}

func TestSensorNodeHelp(t *testing.T) {
	n, _, _ := newSensorNode(t, false)

	w := do(t, n.Router(), http.MethodGet, "/")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, len(sensorCommands)+1)
	assert.Equal(t, "Available Commands:", lines[0])
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher(1, logging.Discard(), metrics.New())

	release := make(chan struct{})
	task, err := d.Go("a", func() error {
		<-release
		return nil
	})
	require.NoError(t, err)
	assert.False(t, task.Finished())
	assert.True(t, d.Busy("a"))

	_, err = d.Go("a", func() error { return nil })
	assert.ErrorIs(t, err, sortcell.ErrAlreadyRunning)

	_, err = d.Go("b", func() error { return nil })
	assert.ErrorIs(t, err, sortcell.ErrAlreadyRunning, "global cap of 1")

	close(release)
	require.NoError(t, task.Wait(context.Background()))
	assert.True(t, task.Finished())
	assert.False(t, d.Busy("a"))

	task, err = d.Go("b", func() error { return sortcell.ErrOutOfRange })
	require.NoError(t, err)
	<-task.Done()
	assert.ErrorIs(t, task.Err(), sortcell.ErrOutOfRange)
}

func TestSensorNodeFollow(t *testing.T) {
	n, board, _ := newSensorNode(t, false)
	flag := sortcell.NewStopFlag()

	require.NoError(t, n.Relay(0, true))
	assert.False(t, board.Pin(4).Get())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Follow(ctx, flag)
	}()

	flag.Set(true)
	require.Eventually(t, func() bool {
		return n.Latched() && board.Pin(4).Get()
	}, time.Second, time.Millisecond)

	flag.Set(false)
	n.Release()
	require.NoError(t, n.Relay(0, true))

	flag.Set(true)
	require.Eventually(t, n.Latched, time.Second, time.Millisecond)

	cancel()
	<-done
}
