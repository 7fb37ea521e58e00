// Package sync drives a client's Input timeline to track the server's
// Remote timeline at the target offset, via either a hard resync or a
// clamped PI-controlled speed adjustment — the sync controller component.
package sync

import "time"

// Controller holds the running state of the speedup/slowdown PI loop. The
// gains are spec-derived tuning values with no direct teacher equivalent;
// the clamped-feedback-loop *shape* is grounded on the cubic congestion
// controller's window adjustment loop (see DESIGN.md).
type Controller struct {
	TickPeriod time.Duration

	kp float64 // proportional gain
	ki float64 // integral gain

	integral     float64
	RelativeSpeed float64
}

// NewController returns a Controller tuned to settle a typical offset error
// within roughly 30 ticks without visible hitching, per spec.
func NewController(tickPeriod time.Duration) *Controller {
	return &Controller{
		TickPeriod:    tickPeriod,
		kp:            0.12,
		ki:            0.02,
		RelativeSpeed: 1.0,
	}
}

// Result describes what the controller decided this update.
type Result struct {
	HardResync    bool
	RelativeSpeed float64
}

// Update consumes the current offset error (Input - (Remote + rtt/2 +
// input_delay_target), in ticks) and returns the action to take: a hard
// resync if the error exceeds 2 tick periods in magnitude, otherwise a
// relative-speed adjustment clamped to [0.9, 1.1].
func (c *Controller) Update(offsetErrorTicks float64) Result {
	const hardResyncThresholdTicks = 2.0

	if offsetErrorTicks > hardResyncThresholdTicks || offsetErrorTicks < -hardResyncThresholdTicks {
		c.integral = 0
		c.RelativeSpeed = 1.0
		return Result{HardResync: true}
	}

	c.integral += offsetErrorTicks
	// Anti-windup: bound the integral term so a long-sustained small error
	// cannot eventually saturate the output past the clamp and then take
	// many ticks to unwind once the error clears.
	const integralClamp = 50.0
	if c.integral > integralClamp {
		c.integral = integralClamp
	} else if c.integral < -integralClamp {
		c.integral = -integralClamp
	}

	adjustment := c.kp*offsetErrorTicks + c.ki*c.integral
	speed := 1.0 - adjustment
	if speed > 1.1 {
		speed = 1.1
	} else if speed < 0.9 {
		speed = 0.9
	}
	c.RelativeSpeed = speed
	return Result{RelativeSpeed: speed}
}

// Reset clears the integral term and relative speed, e.g. after a hard
// resync or reconnect.
func (c *Controller) Reset() {
	c.integral = 0
	c.RelativeSpeed = 1.0
}
