package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"robot-server/internal/models"
)

type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(addr, database, username, password string) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", addr)

	db := &ClickHouseDB{conn: conn}

	// Initialize schema
	if err := db.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema() error {
	ctx := context.Background()

	tables := AllTables()
	for _, tableSQL := range tables {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// SaveStatus saves a status update to the robot_status table
func (db *ClickHouseDB) SaveStatus(update *models.StatusUpdate) error {
	ctx := context.Background()

	query := `
		INSERT INTO robot_status (
			timestamp, robot_id, reason, detail, mode, state,
			pos_x, pos_y, heading, left_speed, right_speed,
			line_detected, line_error, safety_event, emergency,
			mission_id, mission_state, mission_progress, waypoints_remaining
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		update.Timestamp,
		update.RobotID,
		update.Reason,
		update.Detail,
		update.Navigation.Mode.String(),
		update.Navigation.State.String(),
		update.Navigation.Position.X,
		update.Navigation.Position.Y,
		update.Navigation.Position.Heading,
		update.Motor.LeftSpeed,
		update.Motor.RightSpeed,
		update.Navigation.LineDetected,
		update.Navigation.LineError,
		update.Navigation.Safety.String(),
		update.Navigation.EmergencyStop,
		update.Mission.ID,
		update.Mission.State.String(),
		update.Mission.Progress,
		uint32(update.Navigation.WaypointsRemaining),
	)

	if err != nil {
		return fmt.Errorf("failed to insert status update: %w", err)
	}

	return nil
}

// SaveSensorReading saves a raw sensor sample to the sensor_readings
// table
func (db *ClickHouseDB) SaveSensorReading(robotID string, sample models.SensorSample) error {
	ctx := context.Background()

	query := `
		INSERT INTO sensor_readings (timestamp, robot_id, channels, bump, proximity)
		VALUES (?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		sample.Timestamp,
		robotID,
		sample.Channels,
		sample.Bump,
		sample.Proximity,
	)

	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}

	return nil
}

// SaveSafetyEvent saves an emergency broadcast to the safety_events
// table
func (db *ClickHouseDB) SaveSafetyEvent(update *models.StatusUpdate) error {
	ctx := context.Background()

	query := `
		INSERT INTO safety_events (timestamp, robot_id, event, detail, pos_x, pos_y)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		update.Timestamp,
		update.RobotID,
		update.Navigation.Safety.String(),
		update.Detail,
		update.Navigation.Position.X,
		update.Navigation.Position.Y,
	)

	if err != nil {
		return fmt.Errorf("failed to insert safety event: %w", err)
	}

	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		log.Println("ClickHouse connection closed")
	}
	return nil
}
