package services

import (
	"context"
	"log"
	"time"

	"robot-server/internal/database"
	"robot-server/internal/models"
	"robot-server/internal/nav"
)

// TelemetryService archives status updates and raw sensor samples to
// ClickHouse. Archiving is strictly best effort: a failed insert is
// logged and dropped so the control path never waits on the database.
type TelemetryService struct {
	db      *database.ClickHouseDB
	samples nav.SampleSource

	robotID  string
	interval time.Duration

	// Input channel from the status service
	StatusChan chan *models.StatusUpdate
}

// TelemetryServiceConfig holds configuration for the telemetry service
type TelemetryServiceConfig struct {
	RobotID        string
	SensorInterval time.Duration
	ChannelSize    int
}

// NewTelemetryService creates a new telemetry service
func NewTelemetryService(
	db *database.ClickHouseDB,
	samples nav.SampleSource,
	config TelemetryServiceConfig,
) *TelemetryService {
	if config.SensorInterval <= 0 {
		config.SensorInterval = time.Second
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = 200
	}
	return &TelemetryService{
		db:         db,
		samples:    samples,
		robotID:    config.RobotID,
		interval:   config.SensorInterval,
		StatusChan: make(chan *models.StatusUpdate, config.ChannelSize),
	}
}

// Start begins archiving until the context is cancelled
func (s *TelemetryService) Start(ctx context.Context) {
	log.Printf("TelemetryService: Starting, sensor archive every %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("TelemetryService: Context cancelled, shutting down...")
			return

		case update, ok := <-s.StatusChan:
			if !ok {
				log.Println("TelemetryService: Status channel closed, shutting down...")
				return
			}
			s.archiveStatus(update)

		case <-ticker.C:
			s.archiveSensors()
		}
	}
}

// archiveStatus writes one status update, plus a safety event row for
// emergencies
func (s *TelemetryService) archiveStatus(update *models.StatusUpdate) {
	if err := s.db.SaveStatus(update); err != nil {
		log.Printf("Error saving status update: %v", err)
		return
	}
	if update.Reason == models.StatusEmergency {
		if err := s.db.SaveSafetyEvent(update); err != nil {
			log.Printf("Error saving safety event: %v", err)
		}
	}
}

// archiveSensors writes the latest raw sample when one is fresh
func (s *TelemetryService) archiveSensors() {
	sample, err := s.samples.Latest()
	if err != nil {
		return
	}
	if err := s.db.SaveSensorReading(s.robotID, sample); err != nil {
		log.Printf("Error saving sensor reading: %v", err)
	}
}
