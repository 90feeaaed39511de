package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SensorSample represents one instant's raw readings from the sensor array
type SensorSample struct {
	Timestamp time.Time `json:"timestamp"`
	Channels  []float64 `json:"channels"`  // line intensity per channel, leftmost first
	Bump      bool      `json:"bump"`      // collision switch pressed
	Proximity float64   `json:"proximity"` // close-range distance, smaller = closer
}

// SafetyEvent classifies the obstacle/collision severity of a sample.
// Higher values are more severe.
type SafetyEvent int

const (
	SafetyNone SafetyEvent = iota
	SafetyObstacleClose
	SafetyObstacleImminent
	SafetyCollision
)

// String returns the wire representation of the safety event
func (e SafetyEvent) String() string {
	switch e {
	case SafetyNone:
		return "none"
	case SafetyObstacleClose:
		return "obstacle_close"
	case SafetyObstacleImminent:
		return "obstacle_imminent"
	case SafetyCollision:
		return "collision"
	default:
		return fmt.Sprintf("safety_event(%d)", int(e))
	}
}

// Critical reports whether the event must preempt normal control
func (e SafetyEvent) Critical() bool {
	return e == SafetyObstacleImminent || e == SafetyCollision
}

// MarshalJSON encodes the event as its string form
func (e SafetyEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// FusionResult is the classified output derived from one SensorSample
type FusionResult struct {
	Timestamp            time.Time   `json:"timestamp"`
	LineError            float64     `json:"line_error"` // normalized position error in [-1, +1], 0 = centered
	LineDetected         bool        `json:"line_detected"`
	IntersectionDetected bool        `json:"intersection_detected"`
	Safety               SafetyEvent `json:"safety_event"`
}

// SensorSnapshot bundles the latest raw sample with its fusion result
// for the get_sensors command
type SensorSnapshot struct {
	Sample SensorSample `json:"sample"`
	Fusion FusionResult `json:"fusion"`
	AgeSec float64      `json:"age_sec"` // age of the sample when snapshotted
}

// Obstacle is a detected obstacle from the optional vision collaborator
type Obstacle struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	Area    float64 `json:"area"`
}
