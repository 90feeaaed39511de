package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRobotConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadRobotConfig(filepath.Join(t.TempDir(), "robot.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *cfg != *DefaultRobotConfig() {
		t.Fatalf("missing file config = %+v, want stock defaults", cfg)
	}
}

func TestLoadRobotConfigOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.yaml")
	body := `
control:
  base_speed: 65
pid:
  kp: 12.5
mission:
  max_waypoints: 10
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadRobotConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Control.BaseSpeed != 65 {
		t.Fatalf("base speed = %v, want 65", cfg.Control.BaseSpeed)
	}
	if cfg.PID.Kp != 12.5 {
		t.Fatalf("kp = %v, want 12.5", cfg.PID.Kp)
	}
	if cfg.Mission.MaxWaypoints != 10 {
		t.Fatalf("max waypoints = %d, want 10", cfg.Mission.MaxWaypoints)
	}

	// untouched settings keep their defaults
	def := DefaultRobotConfig()
	if cfg.Control.TurnSpeed != def.Control.TurnSpeed {
		t.Fatalf("turn speed = %v, want default %v", cfg.Control.TurnSpeed, def.Control.TurnSpeed)
	}
	if cfg.Thresholds != def.Thresholds {
		t.Fatalf("thresholds = %+v, want defaults", cfg.Thresholds)
	}
}

func TestLoadRobotConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.yaml")
	if err := os.WriteFile(path, []byte("control: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRobotConfig(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ROBOT_ID", "rover-42")
	t.Setenv("TELEMETRY_ENABLED", "true")
	t.Setenv("MQTT_BROKER", "tcp://broker.local:1883")

	cfg := Load()
	if cfg.RobotID != "rover-42" {
		t.Fatalf("robot id = %q, want rover-42", cfg.RobotID)
	}
	if !cfg.TelemetryEnabled {
		t.Fatal("telemetry flag not picked up")
	}
	if cfg.MQTTBroker != "tcp://broker.local:1883" {
		t.Fatalf("broker = %q", cfg.MQTTBroker)
	}
}

func TestLoadBoolFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SIMULATION", "definitely")
	if cfg := Load(); !cfg.Simulation {
		t.Fatal("unparseable SIMULATION must fall back to its default")
	}
}
