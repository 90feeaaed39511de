package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Robot identity
	RobotID         string
	Simulation      bool
	RobotConfigPath string

	// MQTT Configuration
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// MQTT topic patterns ({robot_id} is substituted at startup)
	MQTTTopicCommand      string
	MQTTTopicWaypoints    string
	MQTTTopicResponse     string
	MQTTTopicStatus       string
	MQTTTopicAlert        string
	MQTTTopicAvailability string

	// Telemetry archive (ClickHouse)
	TelemetryEnabled bool
	ClickHouseAddr   string
	ClickHouseDB     string
	ClickHouseUser   string
	ClickHousePass   string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		// Robot identity
		RobotID:         getEnv("ROBOT_ID", "rover-01"),
		Simulation:      getEnvBool("SIMULATION", true),
		RobotConfigPath: getEnv("ROBOT_CONFIG_PATH", "robot.yaml"),

		// MQTT Configuration
		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "robot-server"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		// MQTT topic patterns
		MQTTTopicCommand:      getEnv("MQTT_TOPIC_COMMAND", "robot/{robot_id}/command"),
		MQTTTopicWaypoints:    getEnv("MQTT_TOPIC_WAYPOINTS", "robot/{robot_id}/waypoints"),
		MQTTTopicResponse:     getEnv("MQTT_TOPIC_RESPONSE", "robot/{robot_id}/response"),
		MQTTTopicStatus:       getEnv("MQTT_TOPIC_STATUS", "robot/{robot_id}/status"),
		MQTTTopicAlert:        getEnv("MQTT_TOPIC_ALERT", "robot/{robot_id}/alert"),
		MQTTTopicAvailability: getEnv("MQTT_TOPIC_AVAILABILITY", "robot/{robot_id}/availability"),

		// Telemetry archive
		TelemetryEnabled: getEnvBool("TELEMETRY_ENABLED", false),
		ClickHouseAddr:   getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:     getEnv("CLICKHOUSE_DB", "robotics"),
		ClickHouseUser:   getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:   getEnv("CLICKHOUSE_PASS", ""),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}
