package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action identifies a remote command
type Action string

const (
	ActionMove               Action = "move"
	ActionStop               Action = "stop"
	ActionEmergencyStop      Action = "emergency_stop"
	ActionNavigateTo         Action = "navigate_to"
	ActionStartMission       Action = "start_mission"
	ActionPauseMission       Action = "pause_mission"
	ActionResumeMission      Action = "resume_mission"
	ActionCancelMission      Action = "cancel_mission"
	ActionGetStatus          Action = "get_status"
	ActionGetSensors         Action = "get_sensors"
	ActionSetPIDValues       Action = "set_pid_values"
	ActionGetPIDValues       Action = "get_pid_values"
	ActionResetPID           Action = "reset_pid"
	ActionStartLineFollowing Action = "start_line_following"
	ActionStopLineFollowing  Action = "stop_line_following"
)

// ParseAction validates a wire action string
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionMove, ActionStop, ActionEmergencyStop, ActionNavigateTo,
		ActionStartMission, ActionPauseMission, ActionResumeMission,
		ActionCancelMission, ActionGetStatus, ActionGetSensors,
		ActionSetPIDValues, ActionGetPIDValues, ActionResetPID,
		ActionStartLineFollowing, ActionStopLineFollowing:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Command is a structured command received from the command channel.
// Params stays raw until the action-specific handler decodes it.
type Command struct {
	ID     string          `json:"id,omitempty"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// MoveParams is the payload of the move action
type MoveParams struct {
	Direction string  `json:"direction"`
	Speed     float64 `json:"speed"`
	Duration  float64 `json:"duration,omitempty"` // seconds, 0 = until stopped
}

// NavigateParams is the payload of the navigate_to action
type NavigateParams struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PIDParams carries PID gain overrides over the command channel.
// Nil fields leave the corresponding gain unchanged.
type PIDParams struct {
	Kp *float64 `json:"kp,omitempty"`
	Ki *float64 `json:"ki,omitempty"`
	Kd *float64 `json:"kd,omitempty"`
}

// LineFollowParams is the optional payload of start_line_following
type LineFollowParams struct {
	BaseSpeed float64 `json:"base_speed,omitempty"`
}

// Reply is the per-command response sent back over the command channel
type Reply struct {
	ID      string      `json:"id,omitempty"`
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Message string      `json:"message,omitempty"`
}

// MotorState is a snapshot of the actuator output
type MotorState struct {
	LeftSpeed  float64 `json:"left_speed"`
	RightSpeed float64 `json:"right_speed"`
	Moving     bool    `json:"moving"`
}

// RobotStatus is the full get_status aggregate
type RobotStatus struct {
	RobotID      string           `json:"robot_id"`
	Timestamp    time.Time        `json:"timestamp"`
	UptimeSec    float64          `json:"uptime_sec"`
	Simulation   bool             `json:"simulation"`
	Motor        MotorState       `json:"motor"`
	Sensors      SensorSnapshot   `json:"sensors"`
	Navigation   NavigationStatus `json:"navigation"`
	Mission      MissionStatus    `json:"mission"`
	MissionStats MissionStats     `json:"mission_stats"`
}

// Broadcast reasons attached to status updates
const (
	StatusPeriodic   = "periodic"
	StatusTransition = "transition"
	StatusEmergency  = "emergency"
)

// StatusUpdate is the unsolicited broadcast published on the status topic
type StatusUpdate struct {
	Timestamp  time.Time        `json:"timestamp"`
	RobotID    string           `json:"robot_id"`
	Reason     string           `json:"reason"`
	Detail     string           `json:"detail,omitempty"`
	Motor      MotorState       `json:"motor"`
	Fusion     *FusionResult    `json:"fusion,omitempty"`
	Navigation NavigationStatus `json:"navigation"`
	Mission    MissionStatus    `json:"mission"`
}

// Event is an internal state-change notification fanned out to the
// status broadcaster and the telemetry archive
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail"`
	Emergency bool      `json:"emergency"`
}
