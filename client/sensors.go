package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/calvinmclean/babyapi"

	"github.com/calvinmclean/sortcell/device"
	"github.com/calvinmclean/sortcell/node"
	"github.com/calvinmclean/sortcell/retry"
)

// Sensors calls a sensor node
type Sensors struct {
	caller
	piezos *babyapi.Client[*resource]
	relays *babyapi.Client[*resource]
}

func NewSensors(addr string, cfg retry.Config) *Sensors {
	c := newCaller(addr, cfg)
	return &Sensors{
		caller: c,
		piezos: babyapi.NewClient[*resource](c.addr, "/piezo"),
		relays: babyapi.NewClient[*resource](c.addr, "/relay"),
	}
}

func (s *Sensors) Colour(ctx context.Context) (device.Colour, error) {
	var c device.Colour
	err := s.read(ctx, s.url("/colour", nil), &c)
	return c, err
}

func (s *Sensors) Metal(ctx context.Context) (bool, error) {
	var resp node.MetalResponse
	err := s.read(ctx, s.url("/metal", nil), &resp)
	return resp.IsMetal == 1, err
}

// Piezo asks for a touch, letting the node poll for up to timeout. Zero takes a single reading
func (s *Sensors) Piezo(ctx context.Context, id int, timeout time.Duration) (bool, error) {
	var params url.Values
	if timeout > 0 {
		params = url.Values{"timeout": {strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)}}
	}

	var resp node.PiezoResponse
	err := s.read(ctx, resourceURL(s.piezos, id, params), &resp)
	return resp.Value, err
}

func (s *Sensors) Distance(ctx context.Context) (float64, error) {
	var resp node.DistanceResponse
	err := s.read(ctx, s.url("/distance", nil), &resp)
	return resp.Centimetres, err
}

func (s *Sensors) Relay(ctx context.Context, id int, enable bool) error {
	v := "0"
	if enable {
		v = "1"
	}
	return s.action(ctx, http.MethodPost, resourceURL(s.relays, id, url.Values{"enable": {v}}))
}

func (s *Sensors) Stop(ctx context.Context) error {
	return s.action(ctx, http.MethodPost, s.url("/stop", nil))
}

func (s *Sensors) Release(ctx context.Context) error {
	return s.action(ctx, http.MethodPost, s.url("/release", nil))
}
