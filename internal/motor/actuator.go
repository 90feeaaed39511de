package motor

import (
	"fmt"
	"log"
	"sync"
	"time"

	"robot-server/internal/models"
)

// Config holds the actuator speed limits
type Config struct {
	MaxSpeed      float64 // upper clamp, percent
	MinSpeed      float64 // minimum-to-move floor for directional moves, percent
	TurnSharpness float64 // inner-wheel reversal fraction for spins, 0..1
}

// DefaultConfig returns the stock drive limits
func DefaultConfig() Config {
	return Config{
		MaxSpeed:      100,
		MinSpeed:      30,
		TurnSharpness: 1.0,
	}
}

// Actuator owns the motor state and the exclusivity guarantee: at most
// one movement command controls the backend at any instant. The
// supervisor tick, manual command path and emergency path all
// serialize through the internal mutex. A timed Move holds the
// actuator until its duration elapses; Stop and EmergencyStop preempt
// the hold instead of waiting for it.
//
// The minimum-to-move floor applies to the scalar speed of directional
// moves (motors stall below it); wheel-level SetSpeeds only clamps, so
// the line-following law may command an arbitrarily slow inner wheel.
type Actuator struct {
	mu      sync.Mutex
	backend Backend
	cfg     Config

	left   float64
	right  float64
	moving bool

	held      bool
	holdGen   uint64
	holdTimer *time.Timer
}

// New creates an actuator over the given backend
func New(backend Backend, cfg Config) *Actuator {
	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = 100
	}
	if cfg.MinSpeed < 0 {
		cfg.MinSpeed = 0
	}
	if cfg.TurnSharpness <= 0 || cfg.TurnSharpness > 1 {
		cfg.TurnSharpness = 1
	}
	return &Actuator{backend: backend, cfg: cfg}
}

// Move drives in a direction at a scalar speed percent. A positive
// duration occupies the actuator until it elapses or Stop or
// EmergencyStop preempts it; while occupied, further movement commands
// are rejected with models.ErrBusy rather than queued.
func (a *Actuator) Move(dir models.Direction, speed float64, duration time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.held {
		return models.ErrBusy
	}

	speed = a.clampScalar(speed)
	left, right := differential(dir, speed, a.cfg.TurnSharpness)
	if err := a.apply(left, right); err != nil {
		return err
	}

	if duration > 0 {
		a.held = true
		a.holdGen++
		gen := a.holdGen
		a.holdTimer = time.AfterFunc(duration, func() { a.finishHold(gen) })
	}
	return nil
}

// SetSpeeds writes wheel speeds directly, clamped into
// [-MaxSpeed, MaxSpeed]. Rejected with models.ErrBusy while a timed
// movement holds the actuator.
func (a *Actuator) SetSpeeds(left, right float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.held {
		return models.ErrBusy
	}
	return a.apply(a.clampWheel(left), a.clampWheel(right))
}

// Stop halts the motors, releasing any timed movement hold
func (a *Actuator) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.preemptHold()
	return a.apply(0, 0)
}

// EmergencyStop forces zero speed immediately. It preempts an in-flight
// timed movement rather than waiting for it, and repeated calls while
// already stopped still reassert zero speed.
func (a *Actuator) EmergencyStop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.preemptHold()
	if err := a.apply(0, 0); err != nil {
		log.Printf("Actuator: emergency stop write failed: %v", err)
		return err
	}
	return nil
}

// State returns the currently commanded speeds
func (a *Actuator) State() models.MotorState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return models.MotorState{
		LeftSpeed:  a.left,
		RightSpeed: a.right,
		Moving:     a.moving,
	}
}

// Close stops the motors and releases the backend
func (a *Actuator) Close() error {
	a.mu.Lock()
	a.preemptHold()
	stopErr := a.apply(0, 0)
	a.mu.Unlock()

	if err := a.backend.Close(); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}
	return stopErr
}

// finishHold stops the motors when a timed movement expires, unless the
// hold was already preempted
func (a *Actuator) finishHold(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.held || gen != a.holdGen {
		return
	}
	a.held = false
	a.holdTimer = nil
	if err := a.apply(0, 0); err != nil {
		log.Printf("Actuator: stop after timed move failed: %v", err)
	}
}

// preemptHold releases the timed-movement hold and invalidates any
// expiry callback already in flight. Callers hold mu.
func (a *Actuator) preemptHold() {
	if a.holdTimer != nil {
		a.holdTimer.Stop()
		a.holdTimer = nil
	}
	a.held = false
	a.holdGen++
}

// apply writes to the backend and mirrors the state on success.
// Callers hold mu.
func (a *Actuator) apply(left, right float64) error {
	if err := a.backend.ApplySpeeds(left, right); err != nil {
		return fmt.Errorf("motor write: %w", err)
	}
	a.left = left
	a.right = right
	a.moving = left != 0 || right != 0
	return nil
}

// clampScalar bounds a directional move speed into [0, MaxSpeed] and
// raises a non-zero request below the stall floor up to MinSpeed
func (a *Actuator) clampScalar(speed float64) float64 {
	if speed < 0 {
		speed = 0
	}
	if speed > a.cfg.MaxSpeed {
		speed = a.cfg.MaxSpeed
	}
	if speed > 0 && speed < a.cfg.MinSpeed {
		speed = a.cfg.MinSpeed
	}
	return speed
}

// clampWheel bounds a wheel speed into [-MaxSpeed, MaxSpeed]
func (a *Actuator) clampWheel(v float64) float64 {
	if v < -a.cfg.MaxSpeed {
		return -a.cfg.MaxSpeed
	}
	if v > a.cfg.MaxSpeed {
		return a.cfg.MaxSpeed
	}
	return v
}

// differential maps a direction and scalar speed onto wheel speeds.
// Forward and backward drive both wheels equally; turns spin the
// wheels against each other, the inner wheel scaled by sharpness.
func differential(dir models.Direction, speed, sharpness float64) (left, right float64) {
	switch dir {
	case models.DirectionForward:
		return speed, speed
	case models.DirectionBackward:
		return -speed, -speed
	case models.DirectionLeft:
		return -speed * sharpness, speed
	case models.DirectionRight:
		return speed, -speed * sharpness
	default:
		return 0, 0
	}
}
