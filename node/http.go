package node

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/metrics"
)

var errMissingParam = errors.New("missing parameter")

func intParam(r *http.Request, name string) (int, error) {
	s := r.FormValue(name)
	if s == "" {
		return 0, fmt.Errorf("%w: %s", errMissingParam, name)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", sortcell.ErrOutOfRange, name, s)
	}
	return v, nil
}

func floatParam(r *http.Request, name string) (float64, error) {
	s := r.FormValue(name)
	if s == "" {
		return 0, fmt.Errorf("%w: %s", errMissingParam, name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", sortcell.ErrOutOfRange, name, s)
	}
	return v, nil
}

func idParam(r *http.Request) (int, error) {
	s := chi.URLParam(r, "id")
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q", sortcell.ErrOutOfRange, s)
	}
	return id, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// respond writes the plain-text result of an actuation and counts it
func respond(w http.ResponseWriter, r *http.Request, logger *slog.Logger, m *metrics.Metrics, command string, err error) {
	res := ResultFor(err)
	if err != nil {
		logger.Warn("command rejected", "command", command, "result", res, "error", err)
	}
	m.Commands.WithLabelValues(command, string(res)).Inc()
	render.PlainText(w, r, string(res))
}

// readFailed answers a sensor read that could not produce a value
func readFailed(w http.ResponseWriter, r *http.Request, logger *slog.Logger, m *metrics.Metrics, command string, err error) {
	logger.Warn("sensor read failed", "command", command, "error", err)
	m.Commands.WithLabelValues(command, string(ResultFail)).Inc()

	status := http.StatusServiceUnavailable
	if errors.Is(err, sortcell.ErrOutOfRange) || errors.Is(err, errMissingParam) {
		status = http.StatusBadRequest
	}
	render.Status(r, status)
	render.PlainText(w, r, string(ResultFail))
}

func readOK(w http.ResponseWriter, r *http.Request, m *metrics.Metrics, command string, v any) {
	m.Commands.WithLabelValues(command, string(ResultOK)).Inc()
	render.JSON(w, r, v)
}

// NewRouter has the middleware and /metrics shared by every node
func NewRouter(logger *slog.Logger, m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Handle("/metrics", m.Handler())
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("handled request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}

var motorCommands = []*Command[*MotorNode]{
	{
		Method:      http.MethodPost,
		Pattern:     "/stepper/{id}",
		Params:      "steps, speed",
		Description: "Drive a stepper by signed steps at speed steps per second.",
		Run: func(n *MotorNode, w http.ResponseWriter, r *http.Request) {
			err := func() error {
				id, err := idParam(r)
				if err != nil {
					return err
				}
				steps, err := intParam(r, "steps")
				if err != nil {
					return err
				}
				speed, err := intParam(r, "speed")
				if err != nil {
					return err
				}
				_, err = n.Stepper(id, steps, speed)
				return err
			}()
			respond(w, r, n.logger, n.metrics, "stepper", err)
		},
	},
	{
		Method:      http.MethodGet,
		Pattern:     "/stepper/{id}",
		Description: "Report whether a stepper is running and its position.",
		Run: func(n *MotorNode, w http.ResponseWriter, r *http.Request) {
			id, err := idParam(r)
			if err != nil {
				readFailed(w, r, n.logger, n.metrics, "stepper_status", err)
				return
			}
			status, err := n.StepperStatus(id)
			if err != nil {
				readFailed(w, r, n.logger, n.metrics, "stepper_status", err)
				return
			}
			readOK(w, r, n.metrics, "stepper_status", status)
		},
	},
	{
		Method:      http.MethodPost,
		Pattern:     "/servo/{id}",
		Params:      "angle",
		Description: "Move a servo to angle 0-180.",
		Run: func(n *MotorNode, w http.ResponseWriter, r *http.Request) {
			err := func() error {
				id, err := idParam(r)
				if err != nil {
					return err
				}
				angle, err := intParam(r, "angle")
				if err != nil {
					return err
				}
				return n.Servo(id, angle)
			}()
			respond(w, r, n.logger, n.metrics, "servo", err)
		},
	},
	{
		Method:      http.MethodPost,
		Pattern:     "/motors/{id}",
		Params:      "time, direction",
		Description: "Run a DC motor for time seconds in direction 1 or -1.",
		Run: func(n *MotorNode, w http.ResponseWriter, r *http.Request) {
			err := func() error {
				id, err := idParam(r)
				if err != nil {
					return err
				}
				t, err := floatParam(r, "time")
				if err != nil {
					return err
				}
				direction, err := intParam(r, "direction")
				if err != nil {
					return err
				}
				_, err = n.Motor(id, seconds(t), direction)
				return err
			}()
			respond(w, r, n.logger, n.metrics, "motor", err)
		},
	},
	{
		Method:      http.MethodPost,
		Pattern:     "/stop",
		Description: "Stop every actuator and park the servos.",
		Run: func(n *MotorNode, w http.ResponseWriter, r *http.Request) {
			n.StopAll()
			respond(w, r, n.logger, n.metrics, "stop", nil)
		},
	},
}

// Router serves the motor node commands and /metrics
func (n *MotorNode) Router() http.Handler {
	r := NewRouter(n.logger, n.metrics)
	Mount(r, n, motorCommands)
	return r
}

// MetalResponse is the reply to GET /metal
type MetalResponse struct {
	IsMetal int `json:"is_metal"`
}

// PiezoResponse is the reply to GET /piezo/{id}
type PiezoResponse struct {
	Value bool `json:"value"`
}

// DistanceResponse is the reply to GET /distance
type DistanceResponse struct {
	Centimetres float64 `json:"cm"`
}

var sensorCommands = []*Command[*SensorNode]{
	{
		Method:      http.MethodGet,
		Pattern:     "/colour",
		Description: "Read the colour sensor.",
		Run: func(n *SensorNode, w http.ResponseWriter, r *http.Request) {
			c, err := n.Colour()
			if err != nil {
				readFailed(w, r, n.logger, n.metrics, "colour", err)
				return
			}
			readOK(w, r, n.metrics, "colour", c)
		},
	},
	{
		Method:      http.MethodGet,
		Pattern:     "/metal",
		Description: "Read the metal sensor.",
		Run: func(n *SensorNode, w http.ResponseWriter, r *http.Request) {
			resp := MetalResponse{}
			if n.Metal() {
				resp.IsMetal = 1
			}
			readOK(w, r, n.metrics, "metal", resp)
		},
	},
	{
		Method:      http.MethodGet,
		Pattern:     "/piezo/{id}",
		Params:      "timeout (optional)",
		Description: "Report a touch on a piezo, waiting up to timeout seconds if given.",
		Run: func(n *SensorNode, w http.ResponseWriter, r *http.Request) {
			touched, err := func() (bool, error) {
				id, err := idParam(r)
				if err != nil {
					return false, err
				}
				var timeout time.Duration
				if r.FormValue("timeout") != "" {
					t, err := floatParam(r, "timeout")
					if err != nil {
						return false, err
					}
					timeout = seconds(t)
				}
				return n.Piezo(r.Context(), id, timeout)
			}()
			if err != nil {
				readFailed(w, r, n.logger, n.metrics, "piezo", err)
				return
			}
			readOK(w, r, n.metrics, "piezo", PiezoResponse{touched})
		},
	},
	{
		Method:      http.MethodGet,
		Pattern:     "/distance",
		Description: "Measure distance with the ultrasonic sensor.",
		Run: func(n *SensorNode, w http.ResponseWriter, r *http.Request) {
			cm, err := n.Distance()
			if err != nil {
				readFailed(w, r, n.logger, n.metrics, "distance", err)
				return
			}
			readOK(w, r, n.metrics, "distance", DistanceResponse{cm})
		},
	},
	{
		Method:      http.MethodPost,
		Pattern:     "/relay/{id}",
		Params:      "enable",
		Description: "Switch a relay on (1) or off (0).",
		Run: func(n *SensorNode, w http.ResponseWriter, r *http.Request) {
			err := func() error {
				id, err := idParam(r)
				if err != nil {
					return err
				}
				enable, err := intParam(r, "enable")
				if err != nil {
					return err
				}
				if enable != 0 && enable != 1 {
					return fmt.Errorf("%w: enable %d", sortcell.ErrOutOfRange, enable)
				}
				return n.Relay(id, enable == 1)
			}()
			respond(w, r, n.logger, n.metrics, "relay", err)
		},
	},
	{
		Method:      http.MethodPost,
		Pattern:     "/stop",
		Description: "Switch every relay off and refuse enables until release.",
		Run: func(n *SensorNode, w http.ResponseWriter, r *http.Request) {
			n.Stop()
			respond(w, r, n.logger, n.metrics, "stop", nil)
		},
	},
	{
		Method:      http.MethodPost,
		Pattern:     "/release",
		Description: "Clear a stop.",
		Run: func(n *SensorNode, w http.ResponseWriter, r *http.Request) {
			n.Release()
			respond(w, r, n.logger, n.metrics, "release", nil)
		},
	},
}

// Router serves the sensor node commands and /metrics
func (n *SensorNode) Router() http.Handler {
	r := NewRouter(n.logger, n.metrics)
	Mount(r, n, sensorCommands)
	return r
}
