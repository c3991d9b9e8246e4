package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/client"
	"github.com/calvinmclean/sortcell/node"
)

type cycle struct {
	o   *Orchestrator
	ctx context.Context
	id  string
}

// RunCycle runs one full cycle and returns its finished record. Remote failures are recorded and the
// sequence carries on. A stop at any checkpoint unwinds with only the safe-stop commands
func (o *Orchestrator) RunCycle(ctx context.Context) sortcell.CycleRecord {
	start := time.Now()
	c := &cycle{o: o, ctx: ctx, id: o.history.begin(start)}
	logger := o.logger.With("cycle", c.id)
	logger.Info("starting cycle")

	material, ok, err := c.run()

	result := sortcell.CycleFail
	switch {
	case err != nil:
		result = sortcell.CycleStopped
		c.event("stop requested, unwinding")
		o.setState(StateStopped)
		o.safeStop(ctx, c.id)
	case ok:
		result = sortcell.CycleOK
	}

	if result != sortcell.CycleStopped {
		o.setState(StateIdle)
	}

	end := time.Now()
	o.history.update(c.id, func(r *sortcell.CycleRecord) {
		r.Material = material
		r.Result = result
		r.End = end
	})
	o.metrics.Cycles.WithLabelValues(material.String(), string(result)).Inc()
	o.metrics.CycleDuration.Observe(end.Sub(start).Seconds())

	logger.Info("finished cycle", "material", material, "result", result, "duration", end.Sub(start))

	rec, _ := o.history.Get(c.id)
	return rec
}

// run is the sequence proper. ok is true when a material was dispensed. The only error it returns is
// sortcell.ErrStopRequested
func (c *cycle) run() (sortcell.Material, bool, error) {
	cfg := c.o.cfg

	c.o.setState(StateLightingAlert)
	err := c.checkpoint()
	if err != nil {
		return sortcell.MaterialUnknown, false, err
	}
	_ = c.call("sensors", "release", 0, c.o.sensors.Release)

	err = c.alert()
	if err != nil {
		return sortcell.MaterialUnknown, false, err
	}

	c.o.setState(StateClassifying)
	material, err := c.classify()
	if err != nil {
		return material, false, err
	}
	mc, known := cfg.Materials.For(material)
	if !known {
		c.event("could not classify object, skipping routing and dispense")
		return material, false, c.reset(nil)
	}
	c.event("classified as " + material.String())

	c.o.setState(StateRouting)
	err = c.route(mc)
	if err != nil {
		return material, false, err
	}

	c.o.setState(StateAwaitingPlacement)
	placed, err := c.awaitPlacement(mc)
	if err != nil {
		return material, false, err
	}

	if cfg.GatePlacement && !placed {
		c.event("placement not confirmed, skipping dispense")
		return material, false, c.reset(&mc.Relay)
	}

	c.o.setState(StateDispensing)
	err = c.dispense(mc.Dispense)
	if err != nil {
		return material, false, err
	}

	c.o.setState(StateResetting)
	err = c.rotate(material)
	if err != nil {
		return material, false, err
	}

	return material, true, c.reset(&mc.Relay)
}

func (c *cycle) alert() error {
	cfg := c.o.cfg
	for _, r := range cfg.AlertRelays {
		err := c.relay(r, true)
		if err != nil {
			return err
		}
	}

	err := c.sleep(cfg.AlertDwell)
	if err != nil {
		return err
	}

	for _, r := range cfg.AlertRelays {
		err := c.relay(r, false)
		if err != nil {
			return err
		}
	}
	return c.sleep(cfg.Settle)
}

// classify reads the metal sensor and, when that is negative, the colour sensor. A failed read gives
// MaterialUnknown
func (c *cycle) classify() (sortcell.Material, error) {
	err := c.checkpoint()
	if err != nil {
		return sortcell.MaterialUnknown, err
	}

	var metal bool
	err = c.call("sensors", "metal", 0, func(ctx context.Context) (err error) {
		metal, err = c.o.sensors.Metal(ctx)
		return err
	})
	if err != nil {
		return sortcell.MaterialUnknown, nil
	}
	if metal {
		return sortcell.MaterialMetal, nil
	}

	err = c.checkpoint()
	if err != nil {
		return sortcell.MaterialUnknown, err
	}

	colour, err := callResult(c, "sensors", "colour", c.o.sensors.Colour)
	if err != nil {
		return sortcell.MaterialUnknown, nil
	}
	c.event(fmt.Sprintf("colour red=%d green=%d blue=%d", colour.Red, colour.Green, colour.Blue))

	return Classify(false, colour, c.o.cfg.Colour), nil
}

// route opens the material's gate and runs the conveyor into position, then stops the motor node
func (c *cycle) route(mc MaterialConfig) error {
	cfg := c.o.cfg

	err := c.relay(mc.Relay, true)
	if err != nil {
		return err
	}
	err = c.servo(mc.Servo, cfg.RouteAngle)
	if err != nil {
		return err
	}
	err = c.motor(cfg.ConveyorMotor, cfg.RouteDuration, cfg.RouteDirection)
	if err != nil {
		return err
	}
	err = c.stepper(cfg.ConveyorStepper, cfg.ConveyorSteps, cfg.ConveyorSpeed)
	if err != nil {
		return err
	}

	err = c.sleep(cfg.RouteDuration)
	if err != nil {
		return err
	}

	err = c.checkpoint()
	if err != nil {
		return err
	}
	_ = c.call("motors", "stop", 0, c.o.motors.Stop)
	return nil
}

// awaitPlacement polls the material's piezo, then runs the return leg. A failed or timed out poll
// counts as not placed
func (c *cycle) awaitPlacement(mc MaterialConfig) (bool, error) {
	cfg := c.o.cfg

	err := c.checkpoint()
	if err != nil {
		return false, err
	}

	var placed bool
	err = c.call("sensors", fmt.Sprintf("piezo %d", mc.Piezo), cfg.PlacementTimeout, func(ctx context.Context) (err error) {
		placed, err = c.o.sensors.Piezo(ctx, mc.Piezo, cfg.PlacementTimeout)
		return err
	})
	if err == nil {
		c.event(fmt.Sprintf("placement confirmed: %t", placed))
	}

	err = c.motor(cfg.ConveyorMotor, cfg.ReturnDuration, -cfg.RouteDirection)
	if err != nil {
		return placed, err
	}
	err = c.servo(mc.Servo, cfg.ParkedAngle)
	if err != nil {
		return placed, err
	}
	return placed, c.sleep(cfg.ReturnDuration)
}

// dispense advances the stepper, holds, then returns it by exactly the negated steps once it is idle
func (c *cycle) dispense(d Dispense) error {
	hold := d.Relay != nil && d.RelayMode == RelayHold
	pulse := d.Relay != nil && d.RelayMode == RelayPulse

	if hold {
		err := c.relay(*d.Relay, true)
		if err != nil {
			return err
		}
	}

	err := c.stepper(d.Stepper, d.Steps, d.Speed)
	if err != nil {
		return err
	}

	if pulse {
		err = c.relay(*d.Relay, true)
		if err != nil {
			return err
		}
		err = c.sleep(d.Pulse)
		if err != nil {
			return err
		}
		err = c.relay(*d.Relay, false)
		if err != nil {
			return err
		}
	}

	err = c.sleep(d.Hold)
	if err != nil {
		return err
	}

	err = c.waitIdle(d.Stepper)
	if err != nil && !errors.Is(err, sortcell.ErrTimeout) {
		return err
	}

	err = c.stepper(d.Stepper, -d.Steps, d.Speed)
	if err != nil {
		return err
	}

	if hold {
		return c.relay(*d.Relay, false)
	}
	return nil
}

// waitIdle polls the stepper until it reports not running. It gives up with sortcell.ErrTimeout after
// the idle timeout
func (c *cycle) waitIdle(id int) error {
	cfg := c.o.cfg
	if !cfg.WaitForIdle {
		return nil
	}

	deadline := time.Now().Add(cfg.IdleTimeout)
	for {
		err := c.checkpoint()
		if err != nil {
			return err
		}

		status, err := callResult(c, "motors", fmt.Sprintf("stepper status %d", id), func(ctx context.Context) (node.StepperStatus, error) {
			return c.o.motors.StepperStatus(ctx, id)
		})
		if err == nil && !status.Running {
			return nil
		}

		if time.Now().After(deadline) {
			c.event(fmt.Sprintf("stepper %d still running after %s", id, cfg.IdleTimeout))
			return sortcell.ErrTimeout
		}

		err = c.sleep(cfg.IdlePoll)
		if err != nil {
			return err
		}
	}
}

// rotate turns the delivery ring to the material's segment. A failed rotation is recorded and, under
// the confirmed policy, leaves the tracked position where it was
func (c *cycle) rotate(material sortcell.Material) error {
	cfg := c.o.cfg
	target, ok := material.Position()
	if !ok {
		return nil
	}

	from := c.o.tracker.Current()
	steps, err := c.o.tracker.Move(target, func(steps int) error {
		if steps == 0 {
			return nil
		}
		err := c.checkpoint()
		if err != nil {
			return err
		}
		return c.call("motors", fmt.Sprintf("stepper %d steps %d speed %d", cfg.RotationStepper, steps, cfg.RotationSpeed), 0, func(ctx context.Context) error {
			return c.o.motors.Stepper(ctx, cfg.RotationStepper, steps, cfg.RotationSpeed)
		})
	})
	if errors.Is(err, sortcell.ErrStopRequested) {
		return err
	}
	c.event(fmt.Sprintf("ring %s -> %s (%d steps), tracking %s", from, target, steps, c.o.tracker.Current()))
	return nil
}

// reset turns off the route relay and releases the sensor node
func (c *cycle) reset(routeRelay *int) error {
	c.o.setState(StateResetting)
	if routeRelay != nil {
		err := c.relay(*routeRelay, false)
		if err != nil {
			return err
		}
	}

	err := c.checkpoint()
	if err != nil {
		return err
	}
	_ = c.call("sensors", "release", 0, c.o.sensors.Release)
	return nil
}

func (c *cycle) relay(id int, enable bool) error {
	err := c.checkpoint()
	if err != nil {
		return err
	}
	state := "off"
	if enable {
		state = "on"
	}
	_ = c.call("sensors", fmt.Sprintf("relay %d %s", id, state), 0, func(ctx context.Context) error {
		return c.o.sensors.Relay(ctx, id, enable)
	})
	return nil
}

func (c *cycle) servo(id, angle int) error {
	err := c.checkpoint()
	if err != nil {
		return err
	}
	_ = c.call("motors", fmt.Sprintf("servo %d angle %d", id, angle), 0, func(ctx context.Context) error {
		return c.o.motors.Servo(ctx, id, angle)
	})
	return nil
}

func (c *cycle) motor(id int, d time.Duration, direction int) error {
	err := c.checkpoint()
	if err != nil {
		return err
	}
	_ = c.call("motors", fmt.Sprintf("motor %d for %s direction %d", id, d, direction), 0, func(ctx context.Context) error {
		return c.o.motors.Motor(ctx, id, d, direction)
	})
	return nil
}

// stepper issues a move. A remote failure is recorded but only a stop is returned
func (c *cycle) stepper(id, steps, speed int) error {
	err := c.checkpoint()
	if err != nil {
		return err
	}
	_ = c.call("motors", fmt.Sprintf("stepper %d steps %d speed %d", id, steps, speed), 0, func(ctx context.Context) error {
		return c.o.motors.Stepper(ctx, id, steps, speed)
	})
	return nil
}

// call runs one remote call with the call timeout plus extra, counts it and records the outcome
func (c *cycle) call(nodeName, action string, extra time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.o.cfg.CallTimeout+extra)
	defer cancel()

	err := fn(ctx)

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, sortcell.ErrAlreadyRunning):
		outcome = "already_running"
	case errors.Is(err, sortcell.ErrRemoteUnreachable):
		outcome = "unreachable"
	case errors.Is(err, client.ErrFailed):
		outcome = "failed"
	default:
		outcome = "error"
	}
	c.o.metrics.RemoteCalls.WithLabelValues(nodeName, outcome).Inc()

	if err != nil {
		c.o.logger.Warn("remote call failed", "cycle", c.id, "node", nodeName, "action", action, "error", err)
		c.event(fmt.Sprintf("%s %s: %v", nodeName, action, err))
		return err
	}
	c.event(fmt.Sprintf("%s %s", nodeName, action))
	return nil
}

func callResult[T any](c *cycle, nodeName, action string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := c.call(nodeName, action, 0, func(ctx context.Context) (err error) {
		result, err = fn(ctx)
		return err
	})
	return result, err
}

func (c *cycle) event(msg string) {
	if c.id == "" {
		return
	}
	c.o.history.event(c.id, time.Now(), msg)
}

func (c *cycle) checkpoint() error {
	return checkpoint(c.ctx, c.o.flag)
}

func (c *cycle) sleep(d time.Duration) error {
	return sleep(c.ctx, c.o.flag, d)
}
