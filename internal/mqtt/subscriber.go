package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"robot-server/internal/models"
)

// Subscriber handles MQTT subscriptions and writes commands to a
// channel for the command service to consume
type Subscriber struct {
	client mqtt.Client

	// Output channel (written by subscriber, read by command service)
	CommandChan chan *models.Command

	commandTopic  string
	waypointTopic string
}

// SubscriberConfig holds configuration for the MQTT subscriber
type SubscriberConfig struct {
	CommandTopic  string // e.g., "robot/{robot_id}/command"
	WaypointTopic string // e.g., "robot/{robot_id}/waypoints"
}

// NewSubscriber creates a new MQTT subscriber with channels
func NewSubscriber(
	client mqtt.Client,
	config SubscriberConfig,
	commandChan chan *models.Command,
) *Subscriber {
	return &Subscriber{
		client:        client,
		CommandChan:   commandChan,
		commandTopic:  config.CommandTopic,
		waypointTopic: config.WaypointTopic,
	}
}

// SubscribeAll subscribes to all configured topics
func (s *Subscriber) SubscribeAll() error {
	if s.commandTopic != "" {
		if err := s.subscribeToTopic(s.commandTopic, s.handleCommand); err != nil {
			return fmt.Errorf("failed to subscribe to command topic: %w", err)
		}
		log.Printf("Subscribed to command topic: %s", s.commandTopic)
	}

	if s.waypointTopic != "" {
		if err := s.subscribeToTopic(s.waypointTopic, s.handleWaypoints); err != nil {
			return fmt.Errorf("failed to subscribe to waypoint topic: %w", err)
		}
		log.Printf("Subscribed to waypoint topic: %s", s.waypointTopic)
	}

	return nil
}

// subscribeToTopic is a helper function to subscribe to a topic with a handler
func (s *Subscriber) subscribeToTopic(topic string, handler mqtt.MessageHandler) error {
	token := s.client.Subscribe(topic, 1, handler)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// handleCommand parses a command message and writes it to the channel
func (s *Subscriber) handleCommand(client mqtt.Client, msg mqtt.Message) {
	var cmd models.Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Printf("Error unmarshaling command: %v", err)
		return
	}
	if cmd.Action == "" {
		log.Printf("Dropping command without an action from topic: %s", msg.Topic())
		return
	}

	log.Printf("Received command %q for robot %s", cmd.Action, extractRobotID(msg.Topic()))

	// Write to channel (non-blocking with timeout)
	select {
	case s.CommandChan <- &cmd:
		// Successfully sent
	case <-time.After(1 * time.Second):
		log.Printf("Warning: Command channel full, dropping %q", cmd.Action)
	}
}

// handleWaypoints accepts a bare waypoint list and forwards it as a
// start_mission command, so simple ground stations can fly a mission
// without building the full command envelope
func (s *Subscriber) handleWaypoints(client mqtt.Client, msg mqtt.Message) {
	var waypoints []models.Waypoint
	if err := json.Unmarshal(msg.Payload(), &waypoints); err != nil {
		log.Printf("Error unmarshaling waypoint list: %v", err)
		return
	}

	params, err := json.Marshal(models.MissionRequest{
		Type:      models.MissionCustom,
		Waypoints: waypoints,
	})
	if err != nil {
		log.Printf("Error building mission request: %v", err)
		return
	}

	cmd := &models.Command{
		Action: string(models.ActionStartMission),
		Params: params,
	}

	log.Printf("Received waypoint list with %d entries", len(waypoints))

	select {
	case s.CommandChan <- cmd:
		// Successfully sent
	case <-time.After(1 * time.Second):
		log.Println("Warning: Command channel full, dropping waypoint list")
	}
}

// extractRobotID extracts the robot ID from an MQTT topic
// Example: "robot/rover-01/command" -> "rover-01"
func extractRobotID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
