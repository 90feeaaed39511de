package mission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"robot-server/internal/models"
)

// Navigator is the slice of the navigation supervisor the executor
// drives missions through
type Navigator interface {
	SetMode(models.NavigationMode) error
	EnqueueWaypoint(models.Waypoint) error
	ClearWaypoints()
	WaypointsRemaining() int
	Pause() error
	Resume() error
	EmergencyStopped() bool
}

// Driver runs timed maneuvers for scan tasks. May be nil, in which
// case scans degrade to stationary waits.
type Driver interface {
	Move(dir models.Direction, speed float64, duration time.Duration) error
}

// Config holds mission execution limits and task timings
type Config struct {
	PollInterval     time.Duration // waypoint arrival poll period
	WaypointTimeout  time.Duration // default per-waypoint deadline
	MissionTimeout   time.Duration // default overall deadline
	PauseBetween     time.Duration // settle time after each waypoint, zero disables
	MaxWaypoints     int
	HistoryLimit     int
	DeliveryTime     time.Duration
	InspectionTime   time.Duration
	ScanTurnTime     time.Duration // one quarter turn of a scan
	ScanTurnSpeed    float64
	WaypointEstimate time.Duration // planning estimate per waypoint
}

// DefaultConfig returns the stock mission limits
func DefaultConfig() Config {
	return Config{
		PollInterval:     200 * time.Millisecond,
		WaypointTimeout:  60 * time.Second,
		MissionTimeout:   30 * time.Minute,
		PauseBetween:     time.Second,
		MaxWaypoints:     50,
		HistoryLimit:     50,
		DeliveryTime:     2 * time.Second,
		InspectionTime:   3 * time.Second,
		ScanTurnTime:     time.Second,
		ScanTurnSpeed:    40,
		WaypointEstimate: 30 * time.Second,
	}
}

// errMissionDeadline distinguishes the overall mission deadline from a
// per-waypoint timeout: a patrol that runs out its deadline has done
// its job
var errMissionDeadline = errors.New("mission deadline reached")

// Executor owns the mission lifecycle. At most one mission is active
// at a time; starting another while one runs is rejected with
// models.ErrBusy. The mission itself runs on a goroutine that feeds
// waypoints to the navigator one at a time and polls for arrival, so
// cancellation takes effect within one poll interval.
type Executor struct {
	cfg    Config
	nav    Navigator
	driver Driver
	events chan<- models.Event

	mu      sync.Mutex
	mission *models.Mission
	cancel  context.CancelFunc
	history []models.MissionRecord
	stats   models.MissionStats
}

// New creates an executor. driver and events may be nil.
func New(cfg Config, nav Navigator, driver Driver, events chan<- models.Event) *Executor {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.WaypointTimeout <= 0 {
		cfg.WaypointTimeout = def.WaypointTimeout
	}
	if cfg.MissionTimeout <= 0 {
		cfg.MissionTimeout = def.MissionTimeout
	}
	if cfg.MaxWaypoints <= 0 {
		cfg.MaxWaypoints = def.MaxWaypoints
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.DeliveryTime <= 0 {
		cfg.DeliveryTime = def.DeliveryTime
	}
	if cfg.InspectionTime <= 0 {
		cfg.InspectionTime = def.InspectionTime
	}
	if cfg.ScanTurnTime <= 0 {
		cfg.ScanTurnTime = def.ScanTurnTime
	}
	if cfg.ScanTurnSpeed <= 0 {
		cfg.ScanTurnSpeed = def.ScanTurnSpeed
	}
	if cfg.WaypointEstimate <= 0 {
		cfg.WaypointEstimate = def.WaypointEstimate
	}
	return &Executor{cfg: cfg, nav: nav, driver: driver, events: events}
}

// Start validates a mission request and launches it. The returned
// mission is a snapshot; the executor keeps ownership of the live
// record.
func (e *Executor) Start(ctx context.Context, req models.MissionRequest) (*models.Mission, error) {
	if err := validateRequest(req, e.cfg.MaxWaypoints); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mission != nil && !e.mission.State.Terminal() {
		return nil, fmt.Errorf("mission %s still %s: %w", e.mission.ID, e.mission.State, models.ErrBusy)
	}

	m := &models.Mission{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Type:              req.Type,
		Waypoints:         append([]models.Waypoint(nil), req.Waypoints...),
		Timeout:           req.Timeout,
		State:             models.MissionPlanning,
		CreatedAt:         time.Now(),
		EstimatedDuration: float64(len(req.Waypoints)) * e.cfg.WaypointEstimate.Seconds(),
	}
	if m.Name == "" {
		m.Name = "mission-" + m.ID[:8]
	}
	if m.Timeout <= 0 {
		m.Timeout = e.cfg.MissionTimeout.Seconds()
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mission = m
	e.cancel = cancel
	go e.run(runCtx, m)

	log.Printf("MissionExecutor: mission %s (%s, %d waypoints) accepted", m.ID, m.Type, len(m.Waypoints))
	e.emit(fmt.Sprintf("mission %s started: %s", m.ID, m.Name), false)
	return e.snapshotLocked(), nil
}

// Pause suspends the active mission between waypoints or mid-drive
func (e *Executor) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mission == nil || e.mission.State.Terminal() {
		return models.ErrNoMission
	}
	if e.mission.State != models.MissionExecuting {
		return fmt.Errorf("pause in state %s: %w", e.mission.State, models.ErrMissionState)
	}
	if err := e.nav.Pause(); err != nil {
		return err
	}
	e.mission.State = models.MissionPaused
	e.emit("mission "+e.mission.ID+" paused", false)
	return nil
}

// Resume continues a paused mission
func (e *Executor) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mission == nil || e.mission.State.Terminal() {
		return models.ErrNoMission
	}
	if e.mission.State != models.MissionPaused {
		return fmt.Errorf("resume in state %s: %w", e.mission.State, models.ErrMissionState)
	}
	if err := e.nav.Resume(); err != nil {
		return err
	}
	e.mission.State = models.MissionExecuting
	e.emit("mission "+e.mission.ID+" resumed", false)
	return nil
}

// Cancel aborts the active mission. The run goroutine observes the
// cancellation within one poll interval, stops the vehicle and
// finalizes the record.
func (e *Executor) Cancel() error {
	e.mu.Lock()
	if e.mission == nil || e.mission.State.Terminal() {
		e.mu.Unlock()
		return models.ErrNoMission
	}
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	return nil
}

// Status returns a point-in-time snapshot of the executor
func (e *Executor) Status() models.MissionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mission == nil {
		return models.MissionStatus{State: models.MissionIdle}
	}
	m := e.mission
	status := models.MissionStatus{
		Active:         !m.State.Terminal(),
		ID:             m.ID,
		Name:           m.Name,
		Type:           m.Type,
		State:          m.State,
		CurrentIndex:   m.CurrentIndex,
		TotalWaypoints: len(m.Waypoints),
	}
	if len(m.Waypoints) > 0 {
		status.Progress = float64(m.CompletedWaypoints()) / float64(len(m.Waypoints))
	}
	if !m.StartedAt.IsZero() {
		end := m.FinishedAt
		if end.IsZero() {
			end = time.Now()
		}
		status.ElapsedSec = end.Sub(m.StartedAt).Seconds()
	}
	return status
}

// Current returns a copy of the active or last mission, or nil
func (e *Executor) Current() *models.Mission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// History returns the bounded record of terminal missions, oldest
// first
func (e *Executor) History() []models.MissionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.MissionRecord(nil), e.history...)
}

// Stats returns cumulative terminal mission counters
func (e *Executor) Stats() models.MissionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// run is the mission goroutine
func (e *Executor) run(ctx context.Context, m *models.Mission) {
	e.mu.Lock()
	m.State = models.MissionExecuting
	m.StartedAt = time.Now()
	e.mu.Unlock()

	e.nav.ClearWaypoints()
	if err := e.nav.SetMode(models.ModeMission); err != nil {
		e.finish(m, models.MissionFailed, fmt.Sprintf("enter mission mode: %v", err))
		return
	}

	err := e.runCircuit(ctx, m)
	switch {
	case err == nil:
		e.finish(m, models.MissionCompleted, "")
	case errors.Is(err, context.Canceled):
		e.finish(m, models.MissionCancelled, "")
	case errors.Is(err, errMissionDeadline):
		if m.Type == models.MissionPatrol {
			e.finish(m, models.MissionCompleted, "")
		} else {
			e.finish(m, models.MissionFailed, "mission deadline exceeded")
		}
	default:
		e.finish(m, models.MissionFailed, err.Error())
	}
}

// runCircuit walks the waypoint list once, or repeatedly for patrols
func (e *Executor) runCircuit(ctx context.Context, m *models.Mission) error {
	deadline := time.Now().Add(time.Duration(m.Timeout * float64(time.Second)))

	for {
		for i := range m.Waypoints {
			if err := e.runWaypoint(ctx, m, i, deadline); err != nil {
				return err
			}
		}
		if m.Type != models.MissionPatrol {
			return nil
		}
		// next patrol lap starts with a clean circuit
		e.mu.Lock()
		for i := range m.Waypoints {
			m.Waypoints[i].Completed = false
		}
		e.mu.Unlock()
	}
}

// runWaypoint feeds one waypoint to the navigator, polls until the
// vehicle arrives and then executes the waypoint's tasks. Paused time
// does not count against the waypoint deadline.
func (e *Executor) runWaypoint(ctx context.Context, m *models.Mission, i int, deadline time.Time) error {
	e.mu.Lock()
	m.CurrentIndex = i
	wp := m.Waypoints[i]
	e.mu.Unlock()

	if time.Now().After(deadline) {
		return errMissionDeadline
	}
	if err := e.nav.EnqueueWaypoint(wp); err != nil {
		return fmt.Errorf("enqueue waypoint %d: %w", i, err)
	}

	timeout := e.cfg.WaypointTimeout
	if wp.Timeout > 0 {
		timeout = time.Duration(wp.Timeout * float64(time.Second))
	}

	var elapsed time.Duration
	for e.nav.WaypointsRemaining() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
		if e.nav.EmergencyStopped() {
			return fmt.Errorf("waypoint %d: emergency stop engaged", i)
		}
		if e.paused() {
			continue
		}
		elapsed += e.cfg.PollInterval
		if elapsed >= timeout {
			return fmt.Errorf("waypoint %d not reached within %s: %w", i, timeout, models.ErrTimeout)
		}
		if time.Now().After(deadline) {
			return errMissionDeadline
		}
	}

	e.mu.Lock()
	m.Waypoints[i].Completed = true
	e.mu.Unlock()
	e.emit(fmt.Sprintf("mission %s: waypoint %d reached", m.ID, i), false)

	if err := e.runTasks(ctx, wp.Tasks); err != nil {
		return err
	}
	// settle before heading for the next leg
	return sleep(ctx, e.cfg.PauseBetween)
}

func (e *Executor) runTasks(ctx context.Context, tasks []models.Task) error {
	for _, task := range tasks {
		if err := e.runTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runTask(ctx context.Context, task models.Task) error {
	switch task.Type {
	case models.TaskWait:
		d := time.Duration(task.Duration * float64(time.Second))
		if d <= 0 {
			d = time.Second
		}
		return sleep(ctx, d)
	case models.TaskDelivery:
		e.emit("delivery task: releasing payload", false)
		return sleep(ctx, e.cfg.DeliveryTime)
	case models.TaskInspection:
		e.emit("inspection task: capturing site", false)
		return sleep(ctx, e.cfg.InspectionTime)
	case models.TaskScan:
		return e.runScan(ctx)
	default:
		return models.Validationf("unknown task type %q", task.Type)
	}
}

// runScan sweeps the surroundings with four quarter turns
func (e *Executor) runScan(ctx context.Context) error {
	for quarter := 0; quarter < 4; quarter++ {
		if e.driver != nil {
			err := e.driver.Move(models.DirectionRight, e.cfg.ScanTurnSpeed, e.cfg.ScanTurnTime)
			if err != nil && !errors.Is(err, models.ErrBusy) {
				return fmt.Errorf("scan turn: %w", err)
			}
		}
		if err := sleep(ctx, e.cfg.ScanTurnTime+e.cfg.PollInterval); err != nil {
			return err
		}
	}
	return nil
}

// finish moves the mission to a terminal state exactly once, returns
// the vehicle to manual control and records the outcome. An engaged
// emergency latch outlives the teardown: forcing manual mode here
// would clear it.
func (e *Executor) finish(m *models.Mission, state models.MissionState, errMsg string) {
	e.nav.ClearWaypoints()
	if e.nav.EmergencyStopped() {
		log.Printf("MissionExecutor: mission %s ending with emergency latch engaged", m.ID)
	} else if err := e.nav.SetMode(models.ModeManual); err != nil {
		log.Printf("MissionExecutor: leaving mission mode: %v", err)
	}

	e.mu.Lock()
	if m.State.Terminal() {
		e.mu.Unlock()
		return
	}
	m.State = state
	m.FinishedAt = time.Now()
	m.Error = errMsg
	e.recordLocked(m)
	e.mu.Unlock()

	if errMsg != "" {
		log.Printf("MissionExecutor: mission %s %s: %s", m.ID, state, errMsg)
	} else {
		log.Printf("MissionExecutor: mission %s %s", m.ID, state)
	}
	e.emit(fmt.Sprintf("mission %s %s", m.ID, state), false)
}

// recordLocked appends the terminal mission to the bounded history and
// folds it into the stats. Callers hold mu.
func (e *Executor) recordLocked(m *models.Mission) {
	duration := 0.0
	if !m.StartedAt.IsZero() {
		duration = m.FinishedAt.Sub(m.StartedAt).Seconds()
	}
	e.history = append(e.history, models.MissionRecord{
		ID:          m.ID,
		Name:        m.Name,
		Type:        m.Type,
		State:       m.State,
		Waypoints:   len(m.Waypoints),
		Completed:   m.CompletedWaypoints(),
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
		DurationSec: duration,
		Error:       m.Error,
	})
	if len(e.history) > e.cfg.HistoryLimit {
		e.history = e.history[len(e.history)-e.cfg.HistoryLimit:]
	}

	switch m.State {
	case models.MissionCompleted:
		e.stats.Completed++
	case models.MissionFailed:
		e.stats.Failed++
	case models.MissionCancelled:
		e.stats.Cancelled++
	}
	e.stats.TotalExecSec += duration
	terminal := e.stats.Completed + e.stats.Failed + e.stats.Cancelled
	if terminal > 0 {
		e.stats.AverageExecSec = e.stats.TotalExecSec / float64(terminal)
		e.stats.SuccessRate = float64(e.stats.Completed) / float64(terminal)
	}
}

func (e *Executor) paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mission != nil && e.mission.State == models.MissionPaused
}

func (e *Executor) snapshotLocked() *models.Mission {
	if e.mission == nil {
		return nil
	}
	m := *e.mission
	m.Waypoints = append([]models.Waypoint(nil), e.mission.Waypoints...)
	return &m
}

// emit sends an event without blocking mission execution
func (e *Executor) emit(detail string, emergency bool) {
	if e.events == nil {
		return
	}
	ev := models.Event{Timestamp: time.Now(), Detail: detail, Emergency: emergency}
	select {
	case e.events <- ev:
	default:
		log.Printf("MissionExecutor: event channel full, dropped: %s", detail)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// validateRequest checks a start_mission payload before any state
// changes
func validateRequest(req models.MissionRequest, maxWaypoints int) error {
	if req.Type == "" {
		return models.Validationf("mission type is required")
	}
	if !req.Type.Valid() {
		return models.Validationf("unknown mission type %q", req.Type)
	}
	if len(req.Waypoints) == 0 {
		return models.Validationf("mission has no waypoints")
	}
	if len(req.Waypoints) > maxWaypoints {
		return models.Validationf("too many waypoints: %d exceeds limit %d", len(req.Waypoints), maxWaypoints)
	}
	for i, wp := range req.Waypoints {
		if math.IsNaN(wp.X) || math.IsInf(wp.X, 0) || math.IsNaN(wp.Y) || math.IsInf(wp.Y, 0) {
			return models.Validationf("waypoint %d has invalid coordinates", i)
		}
		if wp.Timeout < 0 {
			return models.Validationf("waypoint %d has a negative timeout", i)
		}
		for _, task := range wp.Tasks {
			if !task.Type.Valid() {
				return models.Validationf("waypoint %d has unknown task type %q", i, task.Type)
			}
			if task.Duration < 0 {
				return models.Validationf("waypoint %d has a negative task duration", i)
			}
		}
	}
	return nil
}
