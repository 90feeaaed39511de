package pid

import (
	"sync"
	"time"
)

// Gains are the proportional, integral and derivative coefficients
type Gains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// Config configures a Regulator
type Config struct {
	Gains         Gains
	Setpoint      float64
	IntegralLimit float64 // anti-windup clamp on the accumulated integral
	OutputLimit   float64 // clamp on the final output
}

// DefaultConfig returns gains tuned for the normalized line error
func DefaultConfig() Config {
	return Config{
		Gains:         Gains{Kp: 35, Ki: 0.5, Kd: 5},
		Setpoint:      0,
		IntegralLimit: 100,
		OutputLimit:   100,
	}
}

// Regulator is a proportional-integral-derivative controller. The
// control tick is the only caller of Update; gain and setpoint access
// from the command channel is serialized by the internal mutex.
type Regulator struct {
	mu sync.Mutex

	gains         Gains
	setpoint      float64
	integralLimit float64
	outputLimit   float64

	integral  float64
	prevError float64
	lastTime  time.Time

	now func() time.Time // replaceable for tests
}

// New creates a regulator and stamps its clock
func New(cfg Config) *Regulator {
	if cfg.IntegralLimit <= 0 {
		cfg.IntegralLimit = 100
	}
	if cfg.OutputLimit <= 0 {
		cfg.OutputLimit = 100
	}
	r := &Regulator{
		gains:         cfg.Gains,
		setpoint:      cfg.Setpoint,
		integralLimit: cfg.IntegralLimit,
		outputLimit:   cfg.OutputLimit,
		now:           time.Now,
	}
	r.lastTime = r.now()
	return r
}

// Update advances the controller with a new measurement and returns the
// correction. A non-advancing clock (dt <= 0) returns 0 without touching
// any state, guarding the integral against duplicate ticks and the
// derivative against division by zero.
func (r *Regulator) Update(measured float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	dt := now.Sub(r.lastTime).Seconds()
	if dt <= 0 {
		return 0
	}

	err := r.setpoint - measured
	integral := clamp(r.integral+err*dt, -r.integralLimit, r.integralLimit)
	derivative := (err - r.prevError) / dt

	output := r.gains.Kp*err + r.gains.Ki*integral + r.gains.Kd*derivative
	output = clamp(output, -r.outputLimit, r.outputLimit)

	r.integral = integral
	r.prevError = err
	r.lastTime = now
	return output
}

// Reset clears the integral and derivative history and restarts the
// clock. Must be called on every (re-)entry into the regulator's
// control mode so stale windup cannot leak into the first commands.
func (r *Regulator) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integral = 0
	r.prevError = 0
	r.lastTime = r.now()
}

// SetGains replaces the controller gains
func (r *Regulator) SetGains(g Gains) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gains = g
}

// Gains returns the current gains
func (r *Regulator) Gains() Gains {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gains
}

// SetSetpoint changes the target value
func (r *Regulator) SetSetpoint(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setpoint = v
}

// Setpoint returns the target value
func (r *Regulator) Setpoint() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setpoint
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
