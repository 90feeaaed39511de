package motor

import (
	"math"
	"sync"
	"time"

	"robot-server/internal/models"
)

// SimulatedBackend integrates differential-drive kinematics instead of
// driving hardware. It doubles as the pose source for waypoint
// navigation in simulation.
type SimulatedBackend struct {
	mu          sync.Mutex
	left        float64
	right       float64
	x           float64
	y           float64
	heading     float64
	lastUpdate  time.Time
	wheelBase   float64 // meters between wheel centers
	maxVelocity float64 // meters per second at 100% speed

	now func() time.Time // replaceable for tests
}

// NewSimulatedBackend creates a simulated drive at the origin facing +X
func NewSimulatedBackend(wheelBase, maxVelocity float64) *SimulatedBackend {
	if wheelBase <= 0 {
		wheelBase = 0.2
	}
	if maxVelocity <= 0 {
		maxVelocity = 0.5
	}
	b := &SimulatedBackend{
		wheelBase:   wheelBase,
		maxVelocity: maxVelocity,
		now:         time.Now,
	}
	b.lastUpdate = b.now()
	return b
}

// ApplySpeeds integrates the pose under the previous speeds, then
// latches the new ones
func (b *SimulatedBackend) ApplySpeeds(left, right float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.integrate(b.now())
	b.left = left
	b.right = right
	return nil
}

// Pose returns the integrated position estimate
func (b *SimulatedBackend) Pose() models.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.integrate(b.now())
	return models.Position{X: b.x, Y: b.y, Heading: b.heading}
}

// SetPose places the vehicle, for tests and demo setups
func (b *SimulatedBackend) SetPose(p models.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.integrate(b.now())
	b.x = p.X
	b.y = p.Y
	b.heading = normalizeAngle(p.Heading)
}

// Close implements Backend
func (b *SimulatedBackend) Close() error {
	return nil
}

// integrate advances the pose up to now. Callers hold mu.
func (b *SimulatedBackend) integrate(now time.Time) {
	dt := now.Sub(b.lastUpdate).Seconds()
	b.lastUpdate = now
	if dt <= 0 {
		return
	}
	vl := b.left / 100 * b.maxVelocity
	vr := b.right / 100 * b.maxVelocity
	v := (vl + vr) / 2
	w := (vr - vl) / b.wheelBase

	b.heading = normalizeAngle(b.heading + w*dt)
	b.x += v * math.Cos(b.heading) * dt
	b.y += v * math.Sin(b.heading) * dt
}

// normalizeAngle wraps an angle into [-pi, pi]
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
