package motor

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"robot-server/internal/models"
)

type recordingBackend struct {
	mu     sync.Mutex
	writes [][2]float64
	fail   bool
}

func (b *recordingBackend) ApplySpeeds(left, right float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("bus write rejected")
	}
	b.writes = append(b.writes, [2]float64{left, right})
	return nil
}

func (b *recordingBackend) Close() error { return nil }

func (b *recordingBackend) last() [2]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.writes) == 0 {
		return [2]float64{}
	}
	return b.writes[len(b.writes)-1]
}

func (b *recordingBackend) setFail(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = fail
}

func TestDirectionMapping(t *testing.T) {
	cases := []struct {
		dir   models.Direction
		speed float64
		want  [2]float64
	}{
		{models.DirectionForward, 50, [2]float64{50, 50}},
		{models.DirectionBackward, 50, [2]float64{-50, -50}},
		{models.DirectionLeft, 50, [2]float64{-50, 50}},
		{models.DirectionRight, 50, [2]float64{50, -50}},
	}
	for _, tc := range cases {
		backend := &recordingBackend{}
		a := New(backend, DefaultConfig())
		if err := a.Move(tc.dir, tc.speed, 0); err != nil {
			t.Fatalf("move %s: %v", tc.dir, err)
		}
		if got := backend.last(); got != tc.want {
			t.Errorf("direction %s: wheels %v, want %v", tc.dir, got, tc.want)
		}
	}
}

func TestMinSpeedFloor(t *testing.T) {
	backend := &recordingBackend{}
	a := New(backend, DefaultConfig())

	if err := a.Move(models.DirectionForward, 10, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := backend.last(); got != [2]float64{30, 30} {
		t.Fatalf("speed 10 must be raised to the stall floor, wheels %v", got)
	}

	// zero stays zero, the floor only applies to non-zero requests
	if err := a.Move(models.DirectionForward, 0, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := backend.last(); got != [2]float64{0, 0} {
		t.Fatalf("zero speed must stay zero, wheels %v", got)
	}
}

func TestSpeedClamps(t *testing.T) {
	backend := &recordingBackend{}
	a := New(backend, DefaultConfig())

	if err := a.Move(models.DirectionForward, 150, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := backend.last(); got != [2]float64{100, 100} {
		t.Fatalf("over-limit move must clamp to 100, wheels %v", got)
	}

	if err := a.SetSpeeds(150, -150); err != nil {
		t.Fatalf("set speeds: %v", err)
	}
	if got := backend.last(); got != [2]float64{100, -100} {
		t.Fatalf("wheel clamp failed, wheels %v", got)
	}

	// no stall floor at the wheel level: a slow inner wheel is legal
	if err := a.SetSpeeds(5, -5); err != nil {
		t.Fatalf("set speeds: %v", err)
	}
	if got := backend.last(); got != [2]float64{5, -5} {
		t.Fatalf("wheel speeds must not be floored, wheels %v", got)
	}
}

func TestTimedMoveExclusivity(t *testing.T) {
	backend := &recordingBackend{}
	a := New(backend, DefaultConfig())

	if err := a.Move(models.DirectionForward, 50, 60*time.Millisecond); err != nil {
		t.Fatalf("timed move: %v", err)
	}
	if err := a.Move(models.DirectionBackward, 50, 0); !errors.Is(err, models.ErrBusy) {
		t.Fatalf("second move during hold: got %v, want ErrBusy", err)
	}
	if err := a.SetSpeeds(10, 10); !errors.Is(err, models.ErrBusy) {
		t.Fatalf("set speeds during hold: got %v, want ErrBusy", err)
	}

	// the hold releases itself and stops the motors
	time.Sleep(120 * time.Millisecond)
	if got := backend.last(); got != [2]float64{0, 0} {
		t.Fatalf("expired timed move must stop the motors, wheels %v", got)
	}
	if err := a.Move(models.DirectionForward, 50, 0); err != nil {
		t.Fatalf("move after hold expiry: %v", err)
	}
}

func TestStopPreemptsTimedMove(t *testing.T) {
	backend := &recordingBackend{}
	a := New(backend, DefaultConfig())

	if err := a.Move(models.DirectionForward, 50, time.Hour); err != nil {
		t.Fatalf("timed move: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st := a.State()
	if st.Moving || st.LeftSpeed != 0 || st.RightSpeed != 0 {
		t.Fatalf("stop must zero the state, got %+v", st)
	}
	if err := a.Move(models.DirectionForward, 60, 0); err != nil {
		t.Fatalf("move after preempted hold: %v", err)
	}
}

func TestPreemptedTimerCannotStopNewMovement(t *testing.T) {
	backend := &recordingBackend{}
	a := New(backend, DefaultConfig())

	if err := a.Move(models.DirectionForward, 50, 30*time.Millisecond); err != nil {
		t.Fatalf("timed move: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := a.Move(models.DirectionForward, 60, 0); err != nil {
		t.Fatalf("move: %v", err)
	}

	// let the original timer fire; its generation is stale
	time.Sleep(80 * time.Millisecond)
	if got := backend.last(); got != [2]float64{60, 60} {
		t.Fatalf("stale hold timer stopped a new movement, wheels %v", got)
	}
}

func TestEmergencyStopPreemptsAndRepeats(t *testing.T) {
	backend := &recordingBackend{}
	a := New(backend, DefaultConfig())

	if err := a.Move(models.DirectionForward, 80, time.Hour); err != nil {
		t.Fatalf("timed move: %v", err)
	}
	if err := a.EmergencyStop(); err != nil {
		t.Fatalf("emergency stop: %v", err)
	}
	if got := backend.last(); got != [2]float64{0, 0} {
		t.Fatalf("emergency stop must zero the wheels, got %v", got)
	}

	// idempotent: a repeat still reasserts zero
	writesBefore := len(backend.writes)
	if err := a.EmergencyStop(); err != nil {
		t.Fatalf("repeat emergency stop: %v", err)
	}
	if len(backend.writes) != writesBefore+1 {
		t.Fatal("repeat emergency stop must reassert zero speed")
	}

	if err := a.Move(models.DirectionForward, 40, 0); err != nil {
		t.Fatalf("move after emergency stop: %v", err)
	}
}

func TestBackendErrorPropagates(t *testing.T) {
	backend := &recordingBackend{fail: true}
	a := New(backend, DefaultConfig())

	if err := a.Move(models.DirectionForward, 50, 0); err == nil {
		t.Fatal("expected backend write failure to propagate")
	}
	if st := a.State(); st.Moving {
		t.Fatal("failed write must not mirror into the state")
	}

	backend.setFail(false)
	if err := a.Move(models.DirectionForward, 50, 0); err != nil {
		t.Fatalf("move after backend recovery: %v", err)
	}
}

func TestSimulatedStraightLine(t *testing.T) {
	b := NewSimulatedBackend(0.2, 0.5)
	clock := &fakeClock{t: time.Unix(2000, 0)}
	b.now = clock.now
	b.lastUpdate = clock.t

	if err := b.ApplySpeeds(100, 100); err != nil {
		t.Fatalf("apply: %v", err)
	}
	clock.advance(time.Second)

	p := b.Pose()
	if math.Abs(p.X-0.5) > 1e-9 || math.Abs(p.Y) > 1e-9 {
		t.Fatalf("1s at full speed must cover 0.5m along +X, got (%.4f, %.4f)", p.X, p.Y)
	}
	if p.Heading != 0 {
		t.Fatalf("straight drive must keep heading, got %.4f", p.Heading)
	}
}

func TestSimulatedSpinInPlace(t *testing.T) {
	b := NewSimulatedBackend(0.2, 0.5)
	clock := &fakeClock{t: time.Unix(2000, 0)}
	b.now = clock.now
	b.lastUpdate = clock.t

	if err := b.ApplySpeeds(-100, 100); err != nil {
		t.Fatalf("apply: %v", err)
	}
	clock.advance(200 * time.Millisecond)

	p := b.Pose()
	if math.Abs(p.X) > 1e-9 || math.Abs(p.Y) > 1e-9 {
		t.Fatalf("spin must hold position, got (%.4f, %.4f)", p.X, p.Y)
	}
	// w = (0.5 - (-0.5)) / 0.2 = 5 rad/s, so 0.2s turns 1 rad
	if math.Abs(p.Heading-1.0) > 1e-9 {
		t.Fatalf("expected heading 1.0 rad, got %.4f", p.Heading)
	}
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}
