package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"robot-server/internal/mission"
	"robot-server/internal/models"
	"robot-server/internal/motor"
	"robot-server/internal/nav"
)

// CommandService executes remote commands against the drive, the
// navigation supervisor and the mission executor, and builds a reply
// for every command, failures included
type CommandService struct {
	actuator *motor.Actuator
	nav      *nav.Supervisor
	missions *mission.Executor
	samples  nav.SampleSource

	robotID    string
	simulation bool
	started    time.Time

	// Input channel from the MQTT subscriber
	CommandChan chan *models.Command

	// Output channel to the MQTT publisher
	ReplyChan chan *models.Reply
}

// CommandServiceConfig holds configuration for the command service
type CommandServiceConfig struct {
	RobotID     string
	Simulation  bool
	ChannelSize int
}

// NewCommandService creates a new command service
func NewCommandService(
	actuator *motor.Actuator,
	supervisor *nav.Supervisor,
	missions *mission.Executor,
	samples nav.SampleSource,
	config CommandServiceConfig,
) *CommandService {
	if config.ChannelSize <= 0 {
		config.ChannelSize = 100
	}
	return &CommandService{
		actuator:    actuator,
		nav:         supervisor,
		missions:    missions,
		samples:     samples,
		robotID:     config.RobotID,
		simulation:  config.Simulation,
		started:     time.Now(),
		CommandChan: make(chan *models.Command, config.ChannelSize),
		ReplyChan:   make(chan *models.Reply, config.ChannelSize),
	}
}

// Start begins executing commands from the channel
// Runs until context is cancelled or the channel is closed
func (s *CommandService) Start(ctx context.Context) {
	log.Println("CommandService: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("CommandService: Context cancelled, shutting down...")
			return

		case cmd, ok := <-s.CommandChan:
			if !ok {
				log.Println("CommandService: Command channel closed, shutting down...")
				return
			}
			reply := s.Execute(ctx, cmd)

			// Write to channel (non-blocking with timeout)
			select {
			case s.ReplyChan <- reply:
				// Successfully sent
			case <-time.After(1 * time.Second):
				log.Printf("Warning: Reply channel full, dropping reply %s", reply.ID)
			}
		}
	}
}

// Execute runs one command to completion and builds its reply,
// correlated by the command id. A fresh id is assigned when the sender
// omitted one so the reply is still traceable.
func (s *CommandService) Execute(ctx context.Context, cmd *models.Command) *models.Reply {
	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	}

	action, err := models.ParseAction(cmd.Action)
	if err != nil {
		log.Printf("CommandService: %v", err)
		return &models.Reply{ID: id, Message: err.Error()}
	}

	result, err := s.dispatch(ctx, action, cmd.Params)
	if err != nil {
		log.Printf("CommandService: %s failed: %v", action, err)
		return &models.Reply{ID: id, Message: err.Error()}
	}
	return &models.Reply{ID: id, Success: true, Result: result}
}

func (s *CommandService) dispatch(ctx context.Context, action models.Action, params json.RawMessage) (interface{}, error) {
	switch action {
	case models.ActionMove:
		return s.handleMove(params)
	case models.ActionStop:
		return nil, s.actuator.Stop()
	case models.ActionEmergencyStop:
		s.nav.EmergencyStop()
		return nil, nil
	case models.ActionNavigateTo:
		return s.handleNavigate(params)
	case models.ActionStartMission:
		return s.handleStartMission(ctx, params)
	case models.ActionPauseMission:
		return nil, s.missions.Pause()
	case models.ActionResumeMission:
		return nil, s.missions.Resume()
	case models.ActionCancelMission:
		return nil, s.missions.Cancel()
	case models.ActionGetStatus:
		return s.handleGetStatus(), nil
	case models.ActionGetSensors:
		return s.handleGetSensors()
	case models.ActionSetPIDValues:
		return s.handleSetPID(params)
	case models.ActionGetPIDValues:
		return s.nav.PID().Gains(), nil
	case models.ActionResetPID:
		s.nav.PID().Reset()
		return nil, nil
	case models.ActionStartLineFollowing:
		return s.handleStartLineFollowing(params)
	case models.ActionStopLineFollowing:
		return s.handleStopLineFollowing()
	default:
		return nil, models.Validationf("action %s not implemented", action)
	}
}

// handleMove runs a manual differential move. The emergency latch wins
// over manual driving; an in-flight timed move rejects with ErrBusy via
// the actuator.
func (s *CommandService) handleMove(params json.RawMessage) (interface{}, error) {
	p := models.MoveParams{Direction: "forward", Speed: 50}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	if s.nav.EmergencyStopped() {
		return nil, models.ErrEmergencyStop
	}
	dir, err := models.ParseDirection(p.Direction)
	if err != nil {
		return nil, models.Validationf("%v", err)
	}
	if p.Duration < 0 {
		return nil, models.Validationf("duration must not be negative")
	}

	duration := time.Duration(p.Duration * float64(time.Second))
	if err := s.actuator.Move(dir, p.Speed, duration); err != nil {
		return nil, err
	}
	return s.actuator.State(), nil
}

func (s *CommandService) handleNavigate(params json.RawMessage) (interface{}, error) {
	var p models.NavigateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := s.nav.NavigateTo(p.X, p.Y); err != nil {
		return nil, err
	}
	return s.nav.Status(), nil
}

func (s *CommandService) handleStartMission(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req models.MissionRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return s.missions.Start(ctx, req)
}

// handleGetStatus aggregates every subsystem into one report. A missing
// sensor snapshot leaves its section zeroed rather than failing the
// whole report.
func (s *CommandService) handleGetStatus() models.RobotStatus {
	status := models.RobotStatus{
		RobotID:      s.robotID,
		Timestamp:    time.Now(),
		UptimeSec:    time.Since(s.started).Seconds(),
		Simulation:   s.simulation,
		Motor:        s.actuator.State(),
		Navigation:   s.nav.Status(),
		Mission:      s.missions.Status(),
		MissionStats: s.missions.Stats(),
	}
	if sample, err := s.samples.Latest(); err == nil {
		status.Sensors = models.SensorSnapshot{
			Sample: sample,
			Fusion: s.nav.LastFusion(),
			AgeSec: time.Since(sample.Timestamp).Seconds(),
		}
	}
	return status
}

// handleGetSensors returns the latest raw sample with its fused
// classification. A stale sample is still reported (its age says so);
// only a total absence of data fails.
func (s *CommandService) handleGetSensors() (interface{}, error) {
	sample, err := s.samples.Latest()
	if err != nil && sample.Timestamp.IsZero() {
		return nil, err
	}
	return models.SensorSnapshot{
		Sample: sample,
		Fusion: s.nav.LastFusion(),
		AgeSec: time.Since(sample.Timestamp).Seconds(),
	}, nil
}

// handleSetPID merges partial gain overrides onto the current gains
func (s *CommandService) handleSetPID(params json.RawMessage) (interface{}, error) {
	var p models.PIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Kp == nil && p.Ki == nil && p.Kd == nil {
		return nil, models.Validationf("no gains provided")
	}

	gains := s.nav.PID().Gains()
	if p.Kp != nil {
		gains.Kp = *p.Kp
	}
	if p.Ki != nil {
		gains.Ki = *p.Ki
	}
	if p.Kd != nil {
		gains.Kd = *p.Kd
	}
	if gains.Kp < 0 || gains.Ki < 0 || gains.Kd < 0 {
		return nil, models.Validationf("gains must not be negative")
	}

	s.nav.PID().SetGains(gains)
	log.Printf("CommandService: PID gains set to kp=%.2f ki=%.2f kd=%.2f", gains.Kp, gains.Ki, gains.Kd)
	return gains, nil
}

func (s *CommandService) handleStartLineFollowing(params json.RawMessage) (interface{}, error) {
	var p models.LineFollowParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.BaseSpeed < 0 {
		return nil, models.Validationf("base speed must not be negative")
	}
	s.nav.SetBaseSpeed(p.BaseSpeed)
	if err := s.nav.SetMode(models.ModeLineFollowing); err != nil {
		return nil, err
	}
	return s.nav.Status(), nil
}

func (s *CommandService) handleStopLineFollowing() (interface{}, error) {
	if mode := s.nav.Mode(); mode != models.ModeLineFollowing {
		return nil, models.Validationf("line following not active, currently %s", mode)
	}
	if err := s.nav.SetMode(models.ModeManual); err != nil {
		return nil, err
	}
	return s.nav.Status(), nil
}

// decodeParams decodes an action payload, tolerating a missing one
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return models.Validationf("bad params: %v", err)
	}
	return nil
}
