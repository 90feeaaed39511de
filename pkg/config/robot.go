package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// ControlConfig tunes the drive and the control loop
type ControlConfig struct {
	LoopRateHz        float64 `yaml:"loop_rate_hz"`
	BaseSpeed         float64 `yaml:"base_speed"`
	TurnSpeed         float64 `yaml:"turn_speed"`
	MaxSpeed          float64 `yaml:"max_speed"`
	MinSpeed          float64 `yaml:"min_speed"`
	TurnSharpness     float64 `yaml:"turn_sharpness"`
	SearchSpeedFactor float64 `yaml:"search_speed_factor"`
}

// ThresholdConfig tunes the sensor fusion classifier
type ThresholdConfig struct {
	Channels             int     `yaml:"channels"`
	SmoothingWindow      int     `yaml:"smoothing_window"`
	LineDetected         float64 `yaml:"line_detected"`
	LostLine             float64 `yaml:"lost_line"`
	Intersection         float64 `yaml:"intersection"`
	IntersectionMajority int     `yaml:"intersection_majority"`
	ObstacleClose        float64 `yaml:"obstacle_close"`
	CollisionImminent    float64 `yaml:"collision_imminent"`
	MaxIntensity         float64 `yaml:"max_intensity"`
}

// PIDConfig tunes the line-centering regulator
type PIDConfig struct {
	Kp            float64 `yaml:"kp"`
	Ki            float64 `yaml:"ki"`
	Kd            float64 `yaml:"kd"`
	IntegralLimit float64 `yaml:"integral_limit"`
	OutputLimit   float64 `yaml:"output_limit"`
}

// NavigationConfig tunes the supervisor's timed maneuvers
type NavigationConfig struct {
	LostLineTimeoutSec   float64 `yaml:"lost_line_timeout_sec"`
	IntersectionHoldSec  float64 `yaml:"intersection_hold_sec"`
	IntersectionCrossSec float64 `yaml:"intersection_cross_sec"`
	AvoidanceSec         float64 `yaml:"avoidance_sec"`
	HeadingToleranceRad  float64 `yaml:"heading_tolerance_rad"`
	PositionToleranceM   float64 `yaml:"position_tolerance_m"`
}

// MissionConfig tunes mission execution limits and task timings
type MissionConfig struct {
	PollIntervalSec     float64 `yaml:"poll_interval_sec"`
	WaypointTimeoutSec  float64 `yaml:"waypoint_timeout_sec"`
	MissionTimeoutSec   float64 `yaml:"mission_timeout_sec"`
	PauseSec            float64 `yaml:"pause_sec"`
	MaxWaypoints        int     `yaml:"max_waypoints"`
	HistoryLimit        int     `yaml:"history_limit"`
	DeliverySec         float64 `yaml:"delivery_sec"`
	InspectionSec       float64 `yaml:"inspection_sec"`
	ScanTurnSec         float64 `yaml:"scan_turn_sec"`
	ScanTurnSpeed       float64 `yaml:"scan_turn_speed"`
	WaypointEstimateSec float64 `yaml:"waypoint_estimate_sec"`
}

// StatusConfig tunes the broadcast and archive cadence
type StatusConfig struct {
	HeartbeatSec     float64 `yaml:"heartbeat_sec"`
	SensorArchiveSec float64 `yaml:"sensor_archive_sec"`
}

// SimulationConfig tunes the simulated drive and sensor backends
type SimulationConfig struct {
	WheelBaseM          float64 `yaml:"wheel_base_m"`
	MaxVelocityMps      float64 `yaml:"max_velocity_mps"`
	WanderPeriodSec     float64 `yaml:"wander_period_sec"`
	WanderAmplitude     float64 `yaml:"wander_amplitude"`
	LineWidth           float64 `yaml:"line_width"`
	PeakIntensity       float64 `yaml:"peak_intensity"`
	FloorIntensity      float64 `yaml:"floor_intensity"`
	Noise               float64 `yaml:"noise"`
	SafeProximity       float64 `yaml:"safe_proximity"`
	Seed                int64   `yaml:"seed"`
	ObstaclePeriodSec   float64 `yaml:"obstacle_period_sec"`
	ObstacleDurationSec float64 `yaml:"obstacle_duration_sec"`
	ObstacleProximity   float64 `yaml:"obstacle_proximity"`
}

// RobotConfig is the top-level structure for robot.yaml. Unlike the
// environment Config it holds tuning rather than wiring, so it ships
// with full defaults and the file only overrides what it names.
type RobotConfig struct {
	Control    ControlConfig    `yaml:"control"`
	Thresholds ThresholdConfig  `yaml:"thresholds"`
	PID        PIDConfig        `yaml:"pid"`
	Navigation NavigationConfig `yaml:"navigation"`
	Mission    MissionConfig    `yaml:"mission"`
	Status     StatusConfig     `yaml:"status"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// DefaultRobotConfig returns the stock tuning
func DefaultRobotConfig() *RobotConfig {
	return &RobotConfig{
		Control: ControlConfig{
			LoopRateHz:        20,
			BaseSpeed:         50,
			TurnSpeed:         40,
			MaxSpeed:          100,
			MinSpeed:          30,
			TurnSharpness:     1.0,
			SearchSpeedFactor: 0.8,
		},
		Thresholds: ThresholdConfig{
			Channels:          5,
			SmoothingWindow:   5,
			LineDetected:      400,
			LostLine:          400,
			Intersection:      600,
			ObstacleClose:     100,
			CollisionImminent: 50,
			MaxIntensity:      1000,
		},
		PID: PIDConfig{
			Kp:            35,
			Ki:            0.5,
			Kd:            5,
			IntegralLimit: 100,
			OutputLimit:   100,
		},
		Navigation: NavigationConfig{
			LostLineTimeoutSec:   2.0,
			IntersectionHoldSec:  1.0,
			IntersectionCrossSec: 1.0,
			AvoidanceSec:         1.0,
			HeadingToleranceRad:  0.1,
			PositionToleranceM:   0.15,
		},
		Mission: MissionConfig{
			PollIntervalSec:     0.2,
			WaypointTimeoutSec:  60,
			MissionTimeoutSec:   1800,
			PauseSec:            1.0,
			MaxWaypoints:        50,
			HistoryLimit:        50,
			DeliverySec:         2.0,
			InspectionSec:       3.0,
			ScanTurnSec:         1.0,
			ScanTurnSpeed:       40,
			WaypointEstimateSec: 30,
		},
		Status: StatusConfig{
			HeartbeatSec:     5,
			SensorArchiveSec: 1,
		},
		Simulation: SimulationConfig{
			WheelBaseM:          0.2,
			MaxVelocityMps:      0.5,
			WanderPeriodSec:     12,
			WanderAmplitude:     1.5,
			LineWidth:           0.8,
			PeakIntensity:       900,
			FloorIntensity:      60,
			Noise:               25,
			SafeProximity:       250,
			Seed:                1,
			ObstacleDurationSec: 1.5,
			ObstacleProximity:   40,
		},
	}
}

// LoadRobotConfig reads and parses robot.yaml, overlaying it on the
// defaults. A missing file is not an error: the robot runs on stock
// tuning.
func LoadRobotConfig(path string) (*RobotConfig, error) {
	cfg := DefaultRobotConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config: no tuning file at %s, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("read robot config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse robot config: %w", err)
	}
	log.Printf("Config: loaded tuning from %s", path)
	return cfg, nil
}
