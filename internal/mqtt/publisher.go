package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"robot-server/internal/models"
)

// Publisher handles MQTT publishing from channels
type Publisher struct {
	client mqtt.Client

	// Input channels (read by publisher, written by the services)
	ReplyChan  chan *models.Reply
	StatusChan chan *models.StatusUpdate

	responseTopic string
	statusTopic   string
	alertTopic    string
}

// PublisherConfig holds the concrete (already formatted) topics
type PublisherConfig struct {
	ResponseTopic string // e.g., "robot/rover-01/response"
	StatusTopic   string // e.g., "robot/rover-01/status"
	AlertTopic    string // e.g., "robot/rover-01/alert"
}

// NewPublisher creates a new MQTT publisher with channels
func NewPublisher(
	client mqtt.Client,
	config PublisherConfig,
	replyChan chan *models.Reply,
	statusChan chan *models.StatusUpdate,
) *Publisher {
	return &Publisher{
		client:        client,
		ReplyChan:     replyChan,
		StatusChan:    statusChan,
		responseTopic: config.ResponseTopic,
		statusTopic:   config.StatusTopic,
		alertTopic:    config.AlertTopic,
	}
}

// Start begins publishing replies and status updates from the channels.
// Runs until context is cancelled or both channels are closed.
func (p *Publisher) Start(ctx context.Context) {
	log.Println("MQTT Publisher: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT Publisher: Context cancelled, shutting down...")
			return

		case reply, ok := <-p.ReplyChan:
			if !ok {
				log.Println("MQTT Publisher: Reply channel closed, shutting down...")
				return
			}
			if err := p.publishJSON(p.responseTopic, reply); err != nil {
				log.Printf("Error publishing command reply: %v", err)
				continue
			}
			log.Printf("Published reply %s (success=%v) to topic: %s", reply.ID, reply.Success, p.responseTopic)

		case update, ok := <-p.StatusChan:
			if !ok {
				log.Println("MQTT Publisher: Status channel closed, shutting down...")
				return
			}
			if err := p.publishJSON(p.statusTopic, update); err != nil {
				log.Printf("Error publishing status update: %v", err)
				continue
			}
			// emergencies go out on the alert topic as well, periodic
			// heartbeats stay quiet in the log
			if update.Reason == models.StatusEmergency {
				if err := p.publishJSON(p.alertTopic, update); err != nil {
					log.Printf("Error publishing alert: %v", err)
					continue
				}
				log.Printf("Published emergency alert to topic: %s", p.alertTopic)
			} else if update.Reason != models.StatusPeriodic {
				log.Printf("Published %s status update to topic: %s", update.Reason, p.statusTopic)
			}
		}
	}
}

// publishJSON marshals a payload and publishes it at QoS 1
func (p *Publisher) publishJSON(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	token := p.client.Publish(topic, 1, false, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}

// FormatTopic replaces the {robot_id} placeholder in a topic pattern
// Example: "robot/{robot_id}/command" -> "robot/rover-01/command"
func FormatTopic(topicPattern, robotID string) string {
	return strings.ReplaceAll(topicPattern, "{robot_id}", robotID)
}
