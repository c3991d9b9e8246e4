package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/calvinmclean/babyapi"

	"github.com/calvinmclean/sortcell/node"
	"github.com/calvinmclean/sortcell/retry"
)

// Motors calls a motor node
type Motors struct {
	caller
	steppers *babyapi.Client[*resource]
	servos   *babyapi.Client[*resource]
	motors   *babyapi.Client[*resource]
}

func NewMotors(addr string, cfg retry.Config) *Motors {
	c := newCaller(addr, cfg)
	return &Motors{
		caller:   c,
		steppers: babyapi.NewClient[*resource](c.addr, "/stepper"),
		servos:   babyapi.NewClient[*resource](c.addr, "/servo"),
		motors:   babyapi.NewClient[*resource](c.addr, "/motors"),
	}
}

func (m *Motors) Stepper(ctx context.Context, id, steps, speed int) error {
	return m.action(ctx, http.MethodPost, resourceURL(m.steppers, id, url.Values{
		"steps": {strconv.Itoa(steps)},
		"speed": {strconv.Itoa(speed)},
	}))
}

func (m *Motors) StepperStatus(ctx context.Context, id int) (node.StepperStatus, error) {
	var status node.StepperStatus
	err := m.read(ctx, resourceURL(m.steppers, id, nil), &status)
	return status, err
}

func (m *Motors) Servo(ctx context.Context, id, angle int) error {
	return m.action(ctx, http.MethodPost, resourceURL(m.servos, id, url.Values{
		"angle": {strconv.Itoa(angle)},
	}))
}

func (m *Motors) Motor(ctx context.Context, id int, d time.Duration, direction int) error {
	return m.action(ctx, http.MethodPost, resourceURL(m.motors, id, url.Values{
		"time":      {strconv.FormatFloat(d.Seconds(), 'f', -1, 64)},
		"direction": {strconv.Itoa(direction)},
	}))
}

func (m *Motors) Stop(ctx context.Context) error {
	return m.action(ctx, http.MethodPost, m.url("/stop", nil))
}
