package nav

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"robot-server/internal/fusion"
	"robot-server/internal/models"
	"robot-server/internal/motor"
	"robot-server/internal/pid"
)

// SampleSource supplies the most recent sensor sample. Latest returns
// models.ErrSensorStale when no sample has arrived yet or the cached
// one is older than the freshness bound.
type SampleSource interface {
	Latest() (models.SensorSample, error)
}

// PoseSource supplies the current pose estimate for waypoint seeking
type PoseSource interface {
	Pose() models.Position
}

// VisionSource supplies detected obstacles for choosing an avoidance
// direction. May be nil when no camera is fitted.
type VisionSource interface {
	DetectObstacles() []models.Obstacle
}

// Config holds the control loop timing and driving parameters
type Config struct {
	LoopInterval      time.Duration // control loop period
	BaseSpeed         float64       // cruise speed percent
	TurnSpeed         float64       // in-place turn speed percent
	SearchSpeedFactor float64       // fraction of TurnSpeed used while searching
	LostLineTimeout   time.Duration // search time before giving up
	IntersectionHold  time.Duration // full stop before crossing
	IntersectionCross time.Duration // straight drive across the junction
	AvoidanceTime     time.Duration // swerve duration on an imminent obstacle
	HeadingTolerance  float64       // radians, turn in place above this
	PositionTolerance float64       // meters, waypoint reached within this
}

// DefaultConfig returns the stock 20 Hz driving parameters
func DefaultConfig() Config {
	return Config{
		LoopInterval:      50 * time.Millisecond,
		BaseSpeed:         50,
		TurnSpeed:         40,
		SearchSpeedFactor: 0.8,
		LostLineTimeout:   2 * time.Second,
		IntersectionHold:  time.Second,
		IntersectionCross: time.Second,
		AvoidanceTime:     time.Second,
		HeadingTolerance:  0.1,
		PositionTolerance: 0.15,
	}
}

// phase is a timed maneuver that runs to its deadline before normal
// control resumes
type phase int

const (
	phaseNone phase = iota
	phaseIntersectionHold
	phaseIntersectionCross
	phaseAvoid
)

// Supervisor runs the navigation state machine. It is the single
// writer to the actuator while any autonomous mode is active: each
// tick reads the latest fused sensor state, applies the safety ladder
// and drives according to the current mode. Manual mode leaves the
// actuator to the command path entirely.
type Supervisor struct {
	cfg      Config
	fusion   *fusion.Engine
	pid      *pid.Regulator
	actuator *motor.Actuator
	samples  SampleSource
	pose     PoseSource
	vision   VisionSource
	events   chan<- models.Event

	mu           sync.Mutex
	mode         models.NavigationMode
	state        models.NavigationState
	estop        bool
	stale        bool
	waypoints    []models.Waypoint
	counters     models.NavigationCounters
	lastFusion   models.FusionResult
	lastSeenSide float64
	lostSince    time.Time
	phase        phase
	phaseUntil   time.Time
	avoidLeft    bool
	avoidResume  models.NavigationState
	pausedState  models.NavigationState
}

// New creates a supervisor in manual mode. pose, vision and events may
// be nil; waypoint seeking and avoidance steering degrade accordingly.
func New(cfg Config, engine *fusion.Engine, regulator *pid.Regulator, actuator *motor.Actuator,
	samples SampleSource, pose PoseSource, vision VisionSource, events chan<- models.Event) *Supervisor {
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = 50 * time.Millisecond
	}
	return &Supervisor{
		cfg:      cfg,
		fusion:   engine,
		pid:      regulator,
		actuator: actuator,
		samples:  samples,
		pose:     pose,
		vision:   vision,
		events:   events,
		mode:     models.ModeManual,
		state:    models.StateIdle,
	}
}

// Run drives the control loop until the context is cancelled
func (s *Supervisor) Run(ctx context.Context) {
	log.Printf("NavigationSupervisor: starting control loop, interval %v", s.cfg.LoopInterval)
	ticker := time.NewTicker(s.cfg.LoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("NavigationSupervisor: stopping control loop")
			s.mu.Lock()
			s.stopDrive()
			s.mu.Unlock()
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// tick executes one control cycle
func (s *Supervisor) tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.estop {
		// reassert zero speed every cycle while latched
		s.actuator.EmergencyStop()
		return
	}

	sample, err := s.samples.Latest()
	if err != nil {
		if !s.stale {
			log.Printf("NavigationSupervisor: sensor data stale, holding: %v", err)
			s.stale = true
		}
		if s.mode != models.ModeManual {
			s.stopDrive()
		}
		return
	}
	if s.stale {
		s.stale = false
		log.Println("NavigationSupervisor: sensor data fresh again")
	}

	res := s.fusion.Classify(sample)
	s.lastFusion = res
	if res.LineDetected && res.LineError != 0 {
		s.lastSeenSide = res.LineError
	}

	if res.Safety == models.SafetyCollision {
		s.engageEmergency("collision detected")
		return
	}

	if s.mode == models.ModeManual {
		if res.Safety == models.SafetyObstacleImminent {
			s.stopDrive()
		}
		return
	}

	if s.state == models.StateMissionPaused {
		return
	}

	if s.phase != phaseNone {
		s.runPhase(now)
		return
	}

	if res.Safety == models.SafetyObstacleImminent {
		// a blind swerve loses the line, so line following latches
		// the emergency stop instead of steering around
		if s.mode == models.ModeLineFollowing {
			s.engageEmergency("obstacle imminent on line")
			return
		}
		s.beginAvoidance(now)
		return
	}

	scale := 1.0
	if res.Safety == models.SafetyObstacleClose {
		scale = 0.5
	}

	switch s.mode {
	case models.ModeLineFollowing:
		s.followLine(now, res, scale)
	case models.ModeAutonomous, models.ModeMission:
		s.seekWaypoint(scale)
	}
}

// followLine applies the differential steering law, or searches when
// the line is gone
func (s *Supervisor) followLine(now time.Time, res models.FusionResult, scale float64) {
	if !res.LineDetected {
		s.searchForLine(now)
		return
	}

	if s.state == models.StateSearching {
		s.counters.LineRecoveries++
		s.pid.Reset()
		s.emit("line reacquired", false)
	}
	s.lostSince = time.Time{}

	if res.IntersectionDetected {
		s.counters.Intersections++
		s.stopDrive()
		s.phase = phaseIntersectionHold
		s.phaseUntil = now.Add(s.cfg.IntersectionHold)
		s.state = models.StateMoving
		s.emit("intersection detected", false)
		return
	}

	s.state = models.StateMoving
	base := s.cfg.BaseSpeed * scale
	correction := s.pid.Update(res.LineError)
	s.drive(base-correction, base+correction)
}

// searchForLine sweeps toward the side the line was last seen on.
// Giving up reverts to manual mode so the vehicle does not spin
// forever.
func (s *Supervisor) searchForLine(now time.Time) {
	if s.state != models.StateSearching {
		s.state = models.StateSearching
		s.lostSince = now
		s.emit("line lost, searching", false)
	}
	if now.Sub(s.lostSince) > s.cfg.LostLineTimeout {
		s.stopDrive()
		s.mode = models.ModeManual
		s.state = models.StateIdle
		s.lostSince = time.Time{}
		s.emit("line search failed, reverting to manual", false)
		return
	}
	turn := s.cfg.TurnSpeed * s.cfg.SearchSpeedFactor
	if s.lastSeenSide >= 0 {
		s.drive(turn, -turn)
	} else {
		s.drive(-turn, turn)
	}
}

// seekWaypoint turns toward and drives to the head of the waypoint
// queue
func (s *Supervisor) seekWaypoint(scale float64) {
	if len(s.waypoints) == 0 {
		if s.state != models.StateIdle {
			s.stopDrive()
			s.state = models.StateIdle
		}
		return
	}
	if s.pose == nil {
		s.stopDrive()
		return
	}

	pose := s.pose.Pose()
	target := s.waypoints[0]
	dx := target.X - pose.X
	dy := target.Y - pose.Y

	if math.Hypot(dx, dy) <= s.cfg.PositionTolerance {
		s.waypoints = s.waypoints[1:]
		s.counters.WaypointsReached++
		s.stopDrive()
		s.state = models.StateIdle
		s.emit(fmt.Sprintf("waypoint reached at (%.2f, %.2f)", target.X, target.Y), false)
		return
	}

	headingErr := normalizeAngle(math.Atan2(dy, dx) - pose.Heading)
	if math.Abs(headingErr) > s.cfg.HeadingTolerance {
		s.state = models.StateTurning
		turn := s.cfg.TurnSpeed * scale
		if headingErr > 0 {
			s.drive(-turn, turn)
		} else {
			s.drive(turn, -turn)
		}
		return
	}

	s.state = models.StateMoving
	base := s.cfg.BaseSpeed * scale
	steer := headingErr / s.cfg.HeadingTolerance * 0.25 * base
	s.drive(base-steer, base+steer)
}

// runPhase advances a timed maneuver
func (s *Supervisor) runPhase(now time.Time) {
	switch s.phase {
	case phaseIntersectionHold:
		if now.Before(s.phaseUntil) {
			return
		}
		s.phase = phaseIntersectionCross
		s.phaseUntil = now.Add(s.cfg.IntersectionCross)
		s.drive(s.cfg.BaseSpeed, s.cfg.BaseSpeed)
	case phaseIntersectionCross:
		if now.Before(s.phaseUntil) {
			s.drive(s.cfg.BaseSpeed, s.cfg.BaseSpeed)
			return
		}
		s.phase = phaseNone
		s.pid.Reset()
	case phaseAvoid:
		if now.Before(s.phaseUntil) {
			turn := s.cfg.TurnSpeed
			if s.avoidLeft {
				s.drive(-turn, turn)
			} else {
				s.drive(turn, -turn)
			}
			return
		}
		s.phase = phaseNone
		s.state = s.avoidResume
		s.pid.Reset()
		s.emit("obstacle avoidance complete", false)
	}
}

// beginAvoidance starts a swerve away from an imminent obstacle. The
// camera picks the side when available, otherwise the swerve goes
// left.
func (s *Supervisor) beginAvoidance(now time.Time) {
	s.counters.ObstaclesAvoided++
	s.avoidResume = s.state
	s.avoidLeft = true
	if s.vision != nil {
		if obs := largestObstacle(s.vision.DetectObstacles()); obs != nil && obs.CenterX < 0.5 {
			s.avoidLeft = false
		}
	}
	s.phase = phaseAvoid
	s.phaseUntil = now.Add(s.cfg.AvoidanceTime)
	s.state = models.StateObstacleAvoidance
	s.stopDrive()
	s.emit("obstacle ahead, avoiding", false)
}

// SetMode switches the operating mode. The actuator is stopped before
// the switch, and entering any mode other than emergency_stop clears
// the emergency latch. Entering line_following resets the regulator so
// stale integral does not jerk the wheels.
func (s *Supervisor) SetMode(mode models.NavigationMode) error {
	switch mode {
	case models.ModeManual, models.ModeLineFollowing, models.ModeAutonomous,
		models.ModeMission, models.ModeEmergencyStop:
	default:
		return models.Validationf("unknown navigation mode %d", int(mode))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopDrive()
	s.phase = phaseNone
	s.lostSince = time.Time{}

	if mode == models.ModeEmergencyStop {
		s.engageEmergency("emergency stop requested")
		return nil
	}

	s.estop = false
	s.mode = mode
	s.state = models.StateIdle
	if mode == models.ModeLineFollowing {
		s.pid.Reset()
	}
	log.Printf("NavigationSupervisor: mode changed to %s", mode)
	s.emit("mode changed to "+mode.String(), false)
	return nil
}

// Mode returns the current operating mode
func (s *Supervisor) Mode() models.NavigationMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// EmergencyStopped reports whether the emergency latch is engaged
func (s *Supervisor) EmergencyStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estop
}

// EmergencyStop latches the emergency state and halts the drive. The
// latch holds until a mode change away from emergency_stop.
func (s *Supervisor) EmergencyStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engageEmergency("operator emergency stop")
}

// engageEmergency latches, halts and reports. Callers hold mu.
func (s *Supervisor) engageEmergency(reason string) {
	s.estop = true
	s.mode = models.ModeEmergencyStop
	s.state = models.StateIdle
	s.phase = phaseNone
	s.lostSince = time.Time{}
	s.actuator.EmergencyStop()
	log.Printf("NavigationSupervisor: emergency stop engaged: %s", reason)
	s.emit(reason, true)
}

// NavigateTo replaces the waypoint queue with a single target and
// enters autonomous mode
func (s *Supervisor) NavigateTo(x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.estop {
		return models.ErrEmergencyStop
	}
	s.stopDrive()
	s.waypoints = []models.Waypoint{{X: x, Y: y}}
	s.mode = models.ModeAutonomous
	s.state = models.StateMoving
	s.phase = phaseNone
	s.pid.Reset()
	s.emit(fmt.Sprintf("navigating to (%.2f, %.2f)", x, y), false)
	return nil
}

// EnqueueWaypoint appends a target to the waypoint queue
func (s *Supervisor) EnqueueWaypoint(wp models.Waypoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.estop {
		return models.ErrEmergencyStop
	}
	s.waypoints = append(s.waypoints, wp)
	return nil
}

// ClearWaypoints empties the waypoint queue
func (s *Supervisor) ClearWaypoints() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waypoints = nil
}

// WaypointsRemaining returns the queue depth
func (s *Supervisor) WaypointsRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waypoints)
}

// Pause suspends mission driving in place
func (s *Supervisor) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != models.ModeMission {
		return models.Validationf("pause requires mission mode, currently %s", s.mode)
	}
	if s.state == models.StateMissionPaused {
		return nil
	}
	s.pausedState = s.state
	s.phase = phaseNone
	s.stopDrive()
	s.state = models.StateMissionPaused
	s.emit("mission paused", false)
	return nil
}

// Resume continues mission driving after a pause
func (s *Supervisor) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.StateMissionPaused {
		return models.Validationf("resume requires a paused mission, currently %s", s.state)
	}
	s.state = s.pausedState
	if s.state == 0 {
		s.state = models.StateMoving
	}
	s.pid.Reset()
	s.emit("mission resumed", false)
	return nil
}

// Status returns a point-in-time snapshot
func (s *Supervisor) Status() models.NavigationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := models.NavigationStatus{
		Timestamp:          time.Now(),
		Mode:               s.mode,
		State:              s.state,
		WaypointsRemaining: len(s.waypoints),
		EmergencyStop:      s.estop,
		LineDetected:       s.lastFusion.LineDetected,
		LineError:          s.lastFusion.LineError,
		Safety:             s.lastFusion.Safety,
		Counters:           s.counters,
	}
	if !s.lostSince.IsZero() {
		status.LineLostSec = time.Since(s.lostSince).Seconds()
	}
	if s.pose != nil {
		status.Position = s.pose.Pose()
	}
	if len(s.waypoints) > 0 {
		wp := s.waypoints[0]
		status.CurrentWaypoint = &wp
	}
	return status
}

// LastFusion returns the classification from the most recent tick
func (s *Supervisor) LastFusion() models.FusionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFusion
}

// SetBaseSpeed overrides the cruise speed used by the driving laws.
// Non-positive values are ignored.
func (s *Supervisor) SetBaseSpeed(speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if speed > 0 {
		s.cfg.BaseSpeed = speed
	}
}

// PID exposes the steering regulator for gain tuning commands
func (s *Supervisor) PID() *pid.Regulator {
	return s.pid
}

// drive writes wheel speeds. ErrBusy means a manual timed move still
// holds the actuator and this cycle is skipped; any other failure is a
// hardware fault and latches the emergency stop.
func (s *Supervisor) drive(left, right float64) {
	if err := s.actuator.SetSpeeds(left, right); err != nil {
		if errors.Is(err, models.ErrBusy) {
			return
		}
		log.Printf("NavigationSupervisor: drive fault: %v", err)
		s.engageEmergency("actuator fault")
	}
}

// stopDrive halts the motors, logging rather than escalating failures.
// Callers hold mu.
func (s *Supervisor) stopDrive() {
	if err := s.actuator.Stop(); err != nil {
		log.Printf("NavigationSupervisor: stop failed: %v", err)
	}
}

// emit sends an event without ever blocking the control loop
func (s *Supervisor) emit(detail string, emergency bool) {
	if s.events == nil {
		return
	}
	ev := models.Event{Timestamp: time.Now(), Detail: detail, Emergency: emergency}
	select {
	case s.events <- ev:
	default:
		log.Printf("NavigationSupervisor: event channel full, dropped: %s", detail)
	}
}

// largestObstacle picks the detection with the biggest area
func largestObstacle(obstacles []models.Obstacle) *models.Obstacle {
	var best *models.Obstacle
	for i := range obstacles {
		if best == nil || obstacles[i].Area > best.Area {
			best = &obstacles[i]
		}
	}
	return best
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
