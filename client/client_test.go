package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/device"
	"github.com/calvinmclean/sortcell/hal/sim"
	"github.com/calvinmclean/sortcell/logging"
	"github.com/calvinmclean/sortcell/metrics"
	"github.com/calvinmclean/sortcell/node"
	"github.com/calvinmclean/sortcell/retry"
)

func newMotorServer(t *testing.T) (*node.MotorNode, *sim.Board, *httptest.Server) {
	t.Helper()
	board := sim.NewBoard()
	n, err := node.NewMotorNode(board, node.MotorNodeConfig{
		Steppers: []device.StepperConfig{{StepPin: 1, DirPin: 2}},
		Servos:   []device.ServoConfig{{Pin: 3}},
		Motors:   []device.DCMotorConfig{{In1Pin: 4, In2Pin: 5, EnablePin: 6}},
	}, logging.Discard(), metrics.New())
	require.NoError(t, err)

	srv := httptest.NewServer(n.Router())
	t.Cleanup(srv.Close)
	return n, board, srv
}

func TestMotors(t *testing.T) {
	n, board, srv := newMotorServer(t)
	c := NewMotors(srv.URL, retry.Once())
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	require.NoError(t, c.Stepper(ctx, 0, 7, 20000))
	n.Wait()
	status, err := c.StepperStatus(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, node.StepperStatus{Running: false, Position: 7}, status)

	require.NoError(t, c.Servo(ctx, 0, 90))
	angle, _ := board.SimServo(3).Angle()
	assert.Equal(t, 90, angle)

	err = c.Servo(ctx, 3, 90)
	assert.ErrorIs(t, err, ErrFailed)

	require.NoError(t, c.Motor(ctx, 0, time.Minute, -1))
	require.Eventually(t, func() bool { return board.Pin(5).Get() }, time.Second, time.Millisecond)
	err = c.Motor(ctx, 0, time.Second, 1)
	assert.ErrorIs(t, err, sortcell.ErrAlreadyRunning)

	require.NoError(t, c.Stop(ctx))
	n.Wait()
	assert.False(t, board.Pin(5).Get())
}

func TestSensors(t *testing.T) {
	bus := sim.NewColourBus(1000, 100, 400, 100)
	board := sim.NewBoard(sim.WithI2C(func() *sim.RegisterBus { return bus }))
	n, err := node.NewSensorNode(board, nil, node.SensorNodeConfig{
		Colour:   device.ColourSensorConfig{IntegrationTime: 2400 * time.Microsecond},
		MetalPin: 9,
		Piezos:   []device.PiezoConfig{{Pin: 26, PollInterval: time.Millisecond}},
		Relays:   []device.RelayConfig{{Pin: 4, ActiveLow: true}, {Pin: 14, ActiveLow: true}},
	}, logging.Discard(), metrics.New())
	require.NoError(t, err)

	srv := httptest.NewServer(n.Router())
	defer srv.Close()

	c := NewSensors(srv.URL+"/", retry.Once())
	ctx := context.Background()

	colour, err := c.Colour(ctx)
	require.NoError(t, err)
	assert.Equal(t, device.Colour{Green: 25}, colour)

	board.Pin(9).Set(true)
	metal, err := c.Metal(ctx)
	require.NoError(t, err)
	assert.True(t, metal)

	touched, err := c.Piezo(ctx, 0, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, touched)

	_, err = c.Piezo(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrFailed)

	_, err = c.Distance(ctx)
	assert.ErrorIs(t, err, ErrFailed)

	require.NoError(t, c.Relay(ctx, 1, true))
	assert.False(t, board.Pin(14).Get())

	require.NoError(t, c.Stop(ctx))
	assert.True(t, board.Pin(14).Get())
	assert.ErrorIs(t, c.Relay(ctx, 1, true), ErrFailed)

	require.NoError(t, c.Release(ctx))
	require.NoError(t, c.Relay(ctx, 1, true))
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	attempts := retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	err := NewMotors(addr, attempts).Stop(context.Background())
	assert.ErrorIs(t, err, sortcell.ErrRemoteUnreachable)
	assert.Contains(t, err.Error(), "after 2 attempts")

	err = NewSensors(addr, retry.Once()).Release(context.Background())
	assert.ErrorIs(t, err, sortcell.ErrRemoteUnreachable)
}
