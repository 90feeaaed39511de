package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MissionState is the lifecycle state of a mission
type MissionState int

const (
	MissionIdle MissionState = iota + 1
	MissionPlanning
	MissionExecuting
	MissionPaused
	MissionCompleted
	MissionFailed
	MissionCancelled
)

// String returns the wire representation of the mission state
func (s MissionState) String() string {
	switch s {
	case MissionIdle:
		return "idle"
	case MissionPlanning:
		return "planning"
	case MissionExecuting:
		return "executing"
	case MissionPaused:
		return "paused"
	case MissionCompleted:
		return "completed"
	case MissionFailed:
		return "failed"
	case MissionCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("mission_state(%d)", int(s))
	}
}

// Terminal reports whether the state ends the mission lifecycle
func (s MissionState) Terminal() bool {
	return s == MissionCompleted || s == MissionFailed || s == MissionCancelled
}

// MarshalJSON encodes the state as its string form
func (s MissionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// MissionType categorizes a mission
type MissionType string

const (
	MissionDelivery   MissionType = "delivery"
	MissionPatrol     MissionType = "patrol"
	MissionInspection MissionType = "inspection"
	MissionEmergency  MissionType = "emergency"
	MissionCustom     MissionType = "custom"
)

// Valid reports whether the type is one of the known mission types
func (t MissionType) Valid() bool {
	switch t {
	case MissionDelivery, MissionPatrol, MissionInspection, MissionEmergency, MissionCustom:
		return true
	}
	return false
}

// TaskType categorizes a per-waypoint task
type TaskType string

const (
	TaskDelivery   TaskType = "delivery"
	TaskInspection TaskType = "inspection"
	TaskWait       TaskType = "wait"
	TaskScan       TaskType = "scan"
)

// Valid reports whether the type is one of the known task types
func (t TaskType) Valid() bool {
	switch t {
	case TaskDelivery, TaskInspection, TaskWait, TaskScan:
		return true
	}
	return false
}

// Task is an action executed after its waypoint is reached
type Task struct {
	Type     TaskType `json:"type"`
	Duration float64  `json:"duration,omitempty"` // seconds, used by wait tasks
}

// MissionRequest is the start_mission payload as received from the
// command channel
type MissionRequest struct {
	Name      string      `json:"name,omitempty"`
	Type      MissionType `json:"type"`
	Waypoints []Waypoint  `json:"waypoints"`
	Timeout   float64     `json:"timeout,omitempty"` // seconds, 0 = default
}

// Mission is an accepted mission owned by the executor until it
// reaches a terminal state
type Mission struct {
	ID                string      `json:"id"`
	Name              string      `json:"name,omitempty"`
	Type              MissionType `json:"type"`
	Waypoints         []Waypoint  `json:"waypoints"`
	Timeout           float64     `json:"timeout"` // seconds
	State             MissionState `json:"state"`
	CurrentIndex      int         `json:"current_index"`
	CreatedAt         time.Time   `json:"created_at"`
	StartedAt         time.Time   `json:"started_at,omitempty"`
	FinishedAt        time.Time   `json:"finished_at,omitempty"`
	EstimatedDuration float64     `json:"estimated_duration"` // seconds
	Error             string      `json:"error,omitempty"`
}

// CompletedWaypoints counts waypoints marked completed
func (m *Mission) CompletedWaypoints() int {
	n := 0
	for _, w := range m.Waypoints {
		if w.Completed {
			n++
		}
	}
	return n
}

// MissionStatus is a point-in-time snapshot of the executor
type MissionStatus struct {
	Active         bool         `json:"active"`
	ID             string       `json:"id,omitempty"`
	Name           string       `json:"name,omitempty"`
	Type           MissionType  `json:"type,omitempty"`
	State          MissionState `json:"state"`
	Progress       float64      `json:"progress"` // completed waypoints / total, 0..1
	CurrentIndex   int          `json:"current_index"`
	TotalWaypoints int          `json:"total_waypoints"`
	ElapsedSec     float64      `json:"elapsed_sec"`
}

// MissionRecord is a terminal mission kept in the bounded history
type MissionRecord struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	Type        MissionType  `json:"type"`
	State       MissionState `json:"state"`
	Waypoints   int          `json:"waypoints"`
	Completed   int          `json:"completed"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	DurationSec float64      `json:"duration_sec"`
	Error       string       `json:"error,omitempty"`
}

// MissionStats aggregates terminal mission outcomes
type MissionStats struct {
	Completed       int     `json:"missions_completed"`
	Failed          int     `json:"missions_failed"`
	Cancelled       int     `json:"missions_cancelled"`
	TotalExecSec    float64 `json:"total_execution_sec"`
	AverageExecSec  float64 `json:"average_execution_sec"`
	SuccessRate     float64 `json:"success_rate"` // completed / terminal, 0..1
}
