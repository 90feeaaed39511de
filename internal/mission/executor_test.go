package mission

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"robot-server/internal/models"
)

type stubNav struct {
	mu        sync.Mutex
	mode      models.NavigationMode
	queue     int
	autoReach bool
	paused    bool
	estop     bool
}

func (n *stubNav) SetMode(m models.NavigationMode) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mode = m
	n.paused = false
	return nil
}

func (n *stubNav) EnqueueWaypoint(models.Waypoint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.autoReach {
		n.queue++
	}
	return nil
}

func (n *stubNav) ClearWaypoints() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = 0
}

func (n *stubNav) WaypointsRemaining() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.queue
}

func (n *stubNav) Pause() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paused = true
	return nil
}

func (n *stubNav) Resume() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paused = false
	return nil
}

func (n *stubNav) EmergencyStopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.estop
}

func (n *stubNav) setEstop(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.estop = v
}

func (n *stubNav) currentMode() models.NavigationMode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode
}

type stubDriver struct {
	mu    sync.Mutex
	moves int
}

func (d *stubDriver) Move(models.Direction, float64, time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.moves++
	return nil
}

func (d *stubDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.moves
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.WaypointTimeout = time.Second
	cfg.PauseBetween = time.Millisecond
	cfg.DeliveryTime = 5 * time.Millisecond
	cfg.InspectionTime = 5 * time.Millisecond
	cfg.ScanTurnTime = 2 * time.Millisecond
	return cfg
}

func waitForState(t *testing.T, e *Executor, want models.MissionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Status().State == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("executor never reached %s, currently %s", want, e.Status().State)
}

func twoWaypoints() []models.Waypoint {
	return []models.Waypoint{{X: 1, Y: 0}, {X: 1, Y: 1}}
}

func TestMissionCompletes(t *testing.T) {
	nav := &stubNav{autoReach: true}
	e := New(testConfig(), nav, nil, nil)

	req := models.MissionRequest{
		Name:      "loop",
		Type:      models.MissionDelivery,
		Waypoints: twoWaypoints(),
	}
	m, err := e.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.ID == "" || m.EstimatedDuration <= 0 {
		t.Fatalf("mission snapshot incomplete: %+v", m)
	}

	waitForState(t, e, models.MissionCompleted)

	status := e.Status()
	if status.Active {
		t.Fatal("terminal mission still reported active")
	}
	if status.Progress != 1.0 {
		t.Fatalf("progress = %v, want 1.0", status.Progress)
	}
	if got := nav.currentMode(); got != models.ModeManual {
		t.Fatalf("mode after mission = %s, want manual", got)
	}

	stats := e.Stats()
	if stats.Completed != 1 || stats.SuccessRate != 1.0 {
		t.Fatalf("stats = %+v, want one success", stats)
	}
	history := e.History()
	if len(history) != 1 || history[0].State != models.MissionCompleted || history[0].Completed != 2 {
		t.Fatalf("history = %+v", history)
	}
}

func TestStartValidation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWaypoints = 2
	e := New(cfg, &stubNav{autoReach: true}, nil, nil)

	cases := []struct {
		name string
		req  models.MissionRequest
	}{
		{"missing type", models.MissionRequest{Waypoints: twoWaypoints()}},
		{"unknown type", models.MissionRequest{Type: "joyride", Waypoints: twoWaypoints()}},
		{"no waypoints", models.MissionRequest{Type: models.MissionDelivery}},
		{"too many waypoints", models.MissionRequest{
			Type:      models.MissionDelivery,
			Waypoints: []models.Waypoint{{X: 1}, {X: 2}, {X: 3}},
		}},
		{"bad coordinates", models.MissionRequest{
			Type:      models.MissionDelivery,
			Waypoints: []models.Waypoint{{X: math.NaN(), Y: 1}},
		}},
		{"bad task type", models.MissionRequest{
			Type:      models.MissionDelivery,
			Waypoints: []models.Waypoint{{X: 1, Tasks: []models.Task{{Type: "teleport"}}}},
		}},
	}
	for _, tc := range cases {
		if _, err := e.Start(context.Background(), tc.req); !models.IsValidation(err) {
			t.Errorf("%s: got %v, want validation error", tc.name, err)
		}
	}
	if got := e.Status().State; got != models.MissionIdle {
		t.Fatalf("state after rejected requests = %s, want idle", got)
	}
}

func TestSecondMissionRejectedWhileActive(t *testing.T) {
	nav := &stubNav{}
	e := New(testConfig(), nav, nil, nil)

	req := models.MissionRequest{Type: models.MissionPatrol, Waypoints: twoWaypoints()}
	if _, err := e.Start(context.Background(), req); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, e, models.MissionExecuting)

	if _, err := e.Start(context.Background(), req); !errors.Is(err, models.ErrBusy) {
		t.Fatalf("second start: got %v, want ErrBusy", err)
	}

	if err := e.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForState(t, e, models.MissionCancelled)
}

func TestCancelStopsPromptly(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 20 * time.Millisecond
	nav := &stubNav{}
	e := New(cfg, nav, nil, nil)

	req := models.MissionRequest{Type: models.MissionInspection, Waypoints: twoWaypoints()}
	if _, err := e.Start(context.Background(), req); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, e, models.MissionExecuting)

	started := time.Now()
	if err := e.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForState(t, e, models.MissionCancelled)

	if elapsed := time.Since(started); elapsed > 500*time.Millisecond {
		t.Fatalf("cancellation took %v", elapsed)
	}
	if nav.WaypointsRemaining() != 0 {
		t.Fatal("waypoints left queued after cancel")
	}
	if got := nav.currentMode(); got != models.ModeManual {
		t.Fatalf("mode after cancel = %s, want manual", got)
	}
	if got := e.Stats().Cancelled; got != 1 {
		t.Fatalf("cancelled count = %d, want 1", got)
	}

	if err := e.Cancel(); !errors.Is(err, models.ErrNoMission) {
		t.Fatalf("cancel with no mission: got %v, want ErrNoMission", err)
	}
}

func TestPauseResumeLifecycle(t *testing.T) {
	nav := &stubNav{}
	e := New(testConfig(), nav, nil, nil)

	if err := e.Pause(); !errors.Is(err, models.ErrNoMission) {
		t.Fatalf("pause with no mission: got %v, want ErrNoMission", err)
	}

	req := models.MissionRequest{Type: models.MissionPatrol, Waypoints: twoWaypoints()}
	if _, err := e.Start(context.Background(), req); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, e, models.MissionExecuting)

	if err := e.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if got := e.Status().State; got != models.MissionPaused {
		t.Fatalf("state = %s, want paused", got)
	}
	if err := e.Pause(); !errors.Is(err, models.ErrMissionState) {
		t.Fatalf("double pause: got %v, want ErrMissionState", err)
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := e.Status().State; got != models.MissionExecuting {
		t.Fatalf("state = %s, want executing", got)
	}
	if err := e.Resume(); !errors.Is(err, models.ErrMissionState) {
		t.Fatalf("double resume: got %v, want ErrMissionState", err)
	}

	if err := e.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForState(t, e, models.MissionCancelled)
}

func TestEmergencyStopFailsMission(t *testing.T) {
	nav := &stubNav{}
	e := New(testConfig(), nav, nil, nil)

	req := models.MissionRequest{Type: models.MissionDelivery, Waypoints: twoWaypoints()}
	if _, err := e.Start(context.Background(), req); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, e, models.MissionExecuting)

	nav.setEstop(true)
	waitForState(t, e, models.MissionFailed)

	if current := e.Current(); !strings.Contains(current.Error, "emergency stop") {
		t.Fatalf("mission error = %q, want emergency stop", current.Error)
	}
	// teardown must not force manual mode while the latch holds
	if got := nav.currentMode(); got == models.ModeManual {
		t.Fatal("teardown changed mode with the emergency latch engaged")
	}
}

func TestWaypointTimeoutFailsMission(t *testing.T) {
	cfg := testConfig()
	cfg.WaypointTimeout = 30 * time.Millisecond
	nav := &stubNav{}
	e := New(cfg, nav, nil, nil)

	req := models.MissionRequest{Type: models.MissionDelivery, Waypoints: twoWaypoints()}
	if _, err := e.Start(context.Background(), req); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, e, models.MissionFailed)

	current := e.Current()
	if current == nil || !strings.Contains(current.Error, "not reached") {
		t.Fatalf("mission error = %+v", current)
	}
	if got := e.Stats().Failed; got != 1 {
		t.Fatalf("failed count = %d, want 1", got)
	}
	if got := nav.currentMode(); got != models.ModeManual {
		t.Fatalf("mode after failure = %s, want manual", got)
	}
}

func TestMissionDeadline(t *testing.T) {
	cfg := testConfig()
	nav := &stubNav{}
	e := New(cfg, nav, nil, nil)

	req := models.MissionRequest{
		Type:      models.MissionDelivery,
		Waypoints: twoWaypoints(),
		Timeout:   0.03,
	}
	if _, err := e.Start(context.Background(), req); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, e, models.MissionFailed)

	if current := e.Current(); !strings.Contains(current.Error, "deadline") {
		t.Fatalf("mission error = %q, want deadline failure", current.Error)
	}
}

func TestPatrolCompletesAtDeadline(t *testing.T) {
	nav := &stubNav{autoReach: true}
	e := New(testConfig(), nav, nil, nil)

	req := models.MissionRequest{
		Type:      models.MissionPatrol,
		Waypoints: []models.Waypoint{{X: 1, Tasks: []models.Task{{Type: models.TaskWait, Duration: 0.005}}}},
		Timeout:   0.05,
	}
	if _, err := e.Start(context.Background(), req); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, e, models.MissionCompleted)

	if current := e.Current(); current.Error != "" {
		t.Fatalf("patrol ended with error %q", current.Error)
	}
}

func TestScanTaskTurnsFourTimes(t *testing.T) {
	nav := &stubNav{autoReach: true}
	driver := &stubDriver{}
	e := New(testConfig(), nav, driver, nil)

	req := models.MissionRequest{
		Type:      models.MissionInspection,
		Waypoints: []models.Waypoint{{X: 1, Tasks: []models.Task{{Type: models.TaskScan}}}},
	}
	if _, err := e.Start(context.Background(), req); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, e, models.MissionCompleted)

	if got := driver.count(); got != 4 {
		t.Fatalf("scan turns = %d, want 4", got)
	}
}

func TestHistoryEviction(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryLimit = 2
	nav := &stubNav{autoReach: true}
	e := New(cfg, nav, nil, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		m, err := e.Start(context.Background(), models.MissionRequest{
			Type:      models.MissionCustom,
			Waypoints: []models.Waypoint{{X: float64(i)}},
		})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		ids = append(ids, m.ID)
		waitForState(t, e, models.MissionCompleted)
	}

	history := e.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	for _, record := range history {
		if record.ID == ids[0] {
			t.Fatal("oldest record survived eviction")
		}
	}
	if got := e.Stats().Completed; got != 3 {
		t.Fatalf("completed count = %d, want 3 despite eviction", got)
	}
}
