package services

import (
	"context"
	"log"
	"time"

	"robot-server/internal/mission"
	"robot-server/internal/models"
	"robot-server/internal/motor"
	"robot-server/internal/nav"
)

// StatusService broadcasts the robot state: a periodic heartbeat plus
// an immediate update for every navigation or mission event. Emergency
// events go out with their own reason so the publisher can raise an
// alert.
type StatusService struct {
	actuator *motor.Actuator
	nav      *nav.Supervisor
	missions *mission.Executor

	robotID  string
	interval time.Duration

	// Input channel from the supervisor and the mission executor
	EventChan chan models.Event

	// Output channels to the MQTT publisher and the telemetry archive.
	// TelemetryChan stays nil when no archive is attached; nil outputs
	// are skipped.
	StatusChan    chan *models.StatusUpdate
	TelemetryChan chan *models.StatusUpdate
}

// StatusServiceConfig holds configuration for the status service
type StatusServiceConfig struct {
	RobotID     string
	Interval    time.Duration
	ChannelSize int
}

// NewStatusService creates a new status service reading from the given
// event channel
func NewStatusService(
	actuator *motor.Actuator,
	supervisor *nav.Supervisor,
	missions *mission.Executor,
	events chan models.Event,
	config StatusServiceConfig,
) *StatusService {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = 100
	}
	return &StatusService{
		actuator:   actuator,
		nav:        supervisor,
		missions:   missions,
		robotID:    config.RobotID,
		interval:   config.Interval,
		EventChan:  events,
		StatusChan: make(chan *models.StatusUpdate, config.ChannelSize),
	}
}

// Start begins broadcasting status updates
// Runs until context is cancelled or the event channel is closed
func (s *StatusService) Start(ctx context.Context) {
	log.Printf("StatusService: Starting, heartbeat every %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// announce the initial state right away
	s.broadcast(s.Snapshot(models.StatusPeriodic, ""))

	for {
		select {
		case <-ctx.Done():
			log.Println("StatusService: Context cancelled, shutting down...")
			return

		case <-ticker.C:
			s.broadcast(s.Snapshot(models.StatusPeriodic, ""))

		case ev, ok := <-s.EventChan:
			if !ok {
				log.Println("StatusService: Event channel closed, shutting down...")
				return
			}
			reason := models.StatusTransition
			if ev.Emergency {
				reason = models.StatusEmergency
				log.Printf("StatusService: emergency event: %s", ev.Detail)
			}
			update := s.Snapshot(reason, ev.Detail)
			update.Timestamp = ev.Timestamp
			s.broadcast(update)
		}
	}
}

// Snapshot assembles a status update from the live components
func (s *StatusService) Snapshot(reason, detail string) *models.StatusUpdate {
	update := &models.StatusUpdate{
		Timestamp:  time.Now(),
		RobotID:    s.robotID,
		Reason:     reason,
		Detail:     detail,
		Motor:      s.actuator.State(),
		Navigation: s.nav.Status(),
		Mission:    s.missions.Status(),
	}
	if fusion := s.nav.LastFusion(); !fusion.Timestamp.IsZero() {
		update.Fusion = &fusion
	}
	return update
}

// broadcast fans an update out to every attached output without
// blocking the event loop
func (s *StatusService) broadcast(update *models.StatusUpdate) {
	for _, ch := range []chan *models.StatusUpdate{s.StatusChan, s.TelemetryChan} {
		if ch == nil {
			continue
		}
		select {
		case ch <- update:
			// Successfully sent
		default:
			log.Printf("Warning: status channel full, dropping %s update", update.Reason)
		}
	}
}
