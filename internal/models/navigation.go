package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NavigationMode is the exclusive operating mode of the vehicle
type NavigationMode int

const (
	ModeManual NavigationMode = iota + 1
	ModeLineFollowing
	ModeAutonomous
	ModeMission
	ModeEmergencyStop
)

// String returns the wire representation of the mode
func (m NavigationMode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeLineFollowing:
		return "line_following"
	case ModeAutonomous:
		return "autonomous"
	case ModeMission:
		return "mission"
	case ModeEmergencyStop:
		return "emergency_stop"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseNavigationMode converts a wire string into a NavigationMode
func ParseNavigationMode(s string) (NavigationMode, error) {
	switch s {
	case "manual":
		return ModeManual, nil
	case "line_following":
		return ModeLineFollowing, nil
	case "autonomous":
		return ModeAutonomous, nil
	case "mission":
		return ModeMission, nil
	case "emergency_stop":
		return ModeEmergencyStop, nil
	default:
		return 0, fmt.Errorf("unknown navigation mode %q", s)
	}
}

// MarshalJSON encodes the mode as its string form
func (m NavigationMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes the mode from its string form
func (m *NavigationMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode, err := ParseNavigationMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// NavigationState is the current activity within the active mode
type NavigationState int

const (
	StateIdle NavigationState = iota + 1
	StateMoving
	StateTurning
	StateSearching
	StateObstacleAvoidance
	StateMissionPaused
)

// String returns the wire representation of the state
func (s NavigationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMoving:
		return "moving"
	case StateTurning:
		return "turning"
	case StateSearching:
		return "searching"
	case StateObstacleAvoidance:
		return "obstacle_avoidance"
	case StateMissionPaused:
		return "mission_paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalJSON encodes the state as its string form
func (s NavigationState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Direction is a manual drive direction
type Direction int

const (
	DirectionForward Direction = iota + 1
	DirectionBackward
	DirectionLeft
	DirectionRight
)

// String returns the wire representation of the direction
func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection converts a wire string into a Direction
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "forward":
		return DirectionForward, nil
	case "backward":
		return DirectionBackward, nil
	case "left":
		return DirectionLeft, nil
	case "right":
		return DirectionRight, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Position is the estimated vehicle pose in the world frame
type Position struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"` // radians, 0 = +X axis
}

// Waypoint is a single navigation target within a mission or
// a direct navigate_to request
type Waypoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Action    string  `json:"action,omitempty"`
	Timeout   float64 `json:"timeout,omitempty"` // seconds, 0 = default
	Tasks     []Task  `json:"tasks,omitempty"`
	Completed bool    `json:"completed,omitempty"`
}

// NavigationCounters holds cumulative activity counters since startup
type NavigationCounters struct {
	Intersections    int `json:"intersections"`
	WaypointsReached int `json:"waypoints_reached"`
	ObstaclesAvoided int `json:"obstacles_avoided"`
	LineRecoveries   int `json:"line_recoveries"`
}

// NavigationStatus is a point-in-time snapshot of the supervisor
type NavigationStatus struct {
	Timestamp          time.Time          `json:"timestamp"`
	Mode               NavigationMode     `json:"mode"`
	State              NavigationState    `json:"state"`
	Position           Position           `json:"position"`
	CurrentWaypoint    *Waypoint          `json:"current_waypoint,omitempty"`
	WaypointsRemaining int                `json:"waypoints_remaining"`
	EmergencyStop      bool               `json:"emergency_stop"`
	LineDetected       bool               `json:"line_detected"`
	LineError          float64            `json:"line_error"`
	LineLostSec        float64            `json:"line_lost_sec,omitempty"` // time spent searching, 0 when the line is held
	Safety             SafetyEvent        `json:"safety_event"`
	Counters           NavigationCounters `json:"counters"`
}
