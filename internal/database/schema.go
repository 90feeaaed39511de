package database

// SQL schemas for all ClickHouse tables

const (
	// RobotStatusTableSQL creates the robot_status table holding every
	// broadcast status update
	RobotStatusTableSQL = `
		CREATE TABLE IF NOT EXISTS robot_status (
			timestamp DateTime64(3),
			robot_id String,
			reason String,
			detail String,
			mode String,
			state String,
			pos_x Float64,
			pos_y Float64,
			heading Float64,
			left_speed Float64,
			right_speed Float64,
			line_detected Bool,
			line_error Float64,
			safety_event String,
			emergency Bool,
			mission_id String,
			mission_state String,
			mission_progress Float64,
			waypoints_remaining UInt32
		) ENGINE = MergeTree()
		ORDER BY (robot_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// SensorReadingsTableSQL creates the sensor_readings table sampled
	// at the archive cadence
	SensorReadingsTableSQL = `
		CREATE TABLE IF NOT EXISTS sensor_readings (
			timestamp DateTime64(3),
			robot_id String,
			channels Array(Float64),
			bump Bool,
			proximity Float64
		) ENGINE = MergeTree()
		ORDER BY (robot_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// SafetyEventsTableSQL creates the safety_events table recording
	// every emergency broadcast
	SafetyEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS safety_events (
			timestamp DateTime64(3),
			robot_id String,
			event String,
			detail String,
			pos_x Float64,
			pos_y Float64
		) ENGINE = MergeTree()
		ORDER BY (robot_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		RobotStatusTableSQL,
		SensorReadingsTableSQL,
		SafetyEventsTableSQL,
	}
}
