package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"robot-server/internal/database"
	"robot-server/internal/fusion"
	"robot-server/internal/mission"
	"robot-server/internal/models"
	"robot-server/internal/motor"
	"robot-server/internal/mqtt"
	"robot-server/internal/nav"
	"robot-server/internal/pid"
	"robot-server/internal/sensors"
	"robot-server/internal/services"
	"robot-server/pkg/config"
)

func main() {
	log.Println("Starting Robot Control Server (Channel-Based Architecture)...")

	// Load configuration: wiring from the environment, tuning from YAML
	cfg := config.Load()
	robotCfg, err := config.LoadRobotConfig(cfg.RobotConfigPath)
	if err != nil {
		log.Fatalf("Failed to load robot tuning: %v", err)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopInterval := rateToInterval(robotCfg.Control.LoopRateHz)

	// === Initialize Backends ===
	// Only the simulated drive and sensor bar are fitted in this build;
	// hardware backends plug in behind the same interfaces.
	if !cfg.Simulation {
		log.Fatal("Hardware backends are not fitted in this build; set SIMULATION=true")
	}
	log.Println("Initializing simulated backends...")
	driveBackend := motor.NewSimulatedBackend(
		robotCfg.Simulation.WheelBaseM,
		robotCfg.Simulation.MaxVelocityMps,
	)
	sensorBackend := sensors.NewSimulated(sensors.SimConfig{
		Channels:          robotCfg.Thresholds.Channels,
		SampleRate:        robotCfg.Control.LoopRateHz,
		WanderPeriod:      robotCfg.Simulation.WanderPeriodSec,
		WanderAmplitude:   robotCfg.Simulation.WanderAmplitude,
		LineWidth:         robotCfg.Simulation.LineWidth,
		PeakIntensity:     robotCfg.Simulation.PeakIntensity,
		FloorIntensity:    robotCfg.Simulation.FloorIntensity,
		Noise:             robotCfg.Simulation.Noise,
		SafeProximity:     robotCfg.Simulation.SafeProximity,
		Seed:              robotCfg.Simulation.Seed,
		ObstaclePeriod:    robotCfg.Simulation.ObstaclePeriodSec,
		ObstacleDuration:  robotCfg.Simulation.ObstacleDurationSec,
		ObstacleProximity: robotCfg.Simulation.ObstacleProximity,
	})

	// === Initialize Control Components ===
	log.Println("Initializing control components...")
	actuator := motor.New(driveBackend, motor.Config{
		MaxSpeed:      robotCfg.Control.MaxSpeed,
		MinSpeed:      robotCfg.Control.MinSpeed,
		TurnSharpness: robotCfg.Control.TurnSharpness,
	})
	defer actuator.Close()

	poller := sensors.NewPoller(sensorBackend, sensors.PollerConfig{
		Interval: loopInterval,
		MaxAge:   5 * loopInterval,
	})
	go poller.Start(ctx)

	engine := fusion.New(fusion.Config{
		Channels:              robotCfg.Thresholds.Channels,
		SmoothingWindow:       robotCfg.Thresholds.SmoothingWindow,
		LineDetectedThreshold: robotCfg.Thresholds.LineDetected,
		LostLineThreshold:     robotCfg.Thresholds.LostLine,
		IntersectionThreshold: robotCfg.Thresholds.Intersection,
		IntersectionMajority:  robotCfg.Thresholds.IntersectionMajority,
		ObstacleCloseDist:     robotCfg.Thresholds.ObstacleClose,
		CollisionImminentDist: robotCfg.Thresholds.CollisionImminent,
		MaxIntensity:          robotCfg.Thresholds.MaxIntensity,
	})
	regulator := pid.New(pid.Config{
		Gains: pid.Gains{
			Kp: robotCfg.PID.Kp,
			Ki: robotCfg.PID.Ki,
			Kd: robotCfg.PID.Kd,
		},
		IntegralLimit: robotCfg.PID.IntegralLimit,
		OutputLimit:   robotCfg.PID.OutputLimit,
	})

	// === Channel Creation ===
	// State-change events from the supervisor and the mission executor
	// fan into the status broadcaster
	eventChan := make(chan models.Event, 100)

	// === Initialize Navigation Supervisor ===
	supervisor := nav.New(nav.Config{
		LoopInterval:      loopInterval,
		BaseSpeed:         robotCfg.Control.BaseSpeed,
		TurnSpeed:         robotCfg.Control.TurnSpeed,
		SearchSpeedFactor: robotCfg.Control.SearchSpeedFactor,
		LostLineTimeout:   secondsToDuration(robotCfg.Navigation.LostLineTimeoutSec),
		IntersectionHold:  secondsToDuration(robotCfg.Navigation.IntersectionHoldSec),
		IntersectionCross: secondsToDuration(robotCfg.Navigation.IntersectionCrossSec),
		AvoidanceTime:     secondsToDuration(robotCfg.Navigation.AvoidanceSec),
		HeadingTolerance:  robotCfg.Navigation.HeadingToleranceRad,
		PositionTolerance: robotCfg.Navigation.PositionToleranceM,
	}, engine, regulator, actuator, poller, driveBackend, nil, eventChan)
	go supervisor.Run(ctx)

	// === Initialize Mission Executor ===
	executor := mission.New(mission.Config{
		PollInterval:     secondsToDuration(robotCfg.Mission.PollIntervalSec),
		WaypointTimeout:  secondsToDuration(robotCfg.Mission.WaypointTimeoutSec),
		MissionTimeout:   secondsToDuration(robotCfg.Mission.MissionTimeoutSec),
		PauseBetween:     secondsToDuration(robotCfg.Mission.PauseSec),
		MaxWaypoints:     robotCfg.Mission.MaxWaypoints,
		HistoryLimit:     robotCfg.Mission.HistoryLimit,
		DeliveryTime:     secondsToDuration(robotCfg.Mission.DeliverySec),
		InspectionTime:   secondsToDuration(robotCfg.Mission.InspectionSec),
		ScanTurnTime:     secondsToDuration(robotCfg.Mission.ScanTurnSec),
		ScanTurnSpeed:    robotCfg.Mission.ScanTurnSpeed,
		WaypointEstimate: secondsToDuration(robotCfg.Mission.WaypointEstimateSec),
	}, supervisor, actuator, eventChan)

	// === Initialize MQTT Client ===
	log.Println("Connecting to MQTT broker...")
	availabilityTopic := mqtt.FormatTopic(cfg.MQTTTopicAvailability, cfg.RobotID)
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:    cfg.MQTTBroker,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		WillTopic: availabilityTopic,
	})
	if err != nil {
		log.Fatalf("Failed to initialize MQTT client: %v", err)
	}
	defer mqttClient.Close()

	// === Initialize Command Service ===
	log.Println("Initializing command service...")
	commandService := services.NewCommandService(actuator, supervisor, executor, poller,
		services.CommandServiceConfig{
			RobotID:    cfg.RobotID,
			Simulation: cfg.Simulation,
		})
	go commandService.Start(ctx)

	// === Initialize Status Service ===
	log.Println("Initializing status service...")
	statusService := services.NewStatusService(actuator, supervisor, executor, eventChan,
		services.StatusServiceConfig{
			RobotID:  cfg.RobotID,
			Interval: secondsToDuration(robotCfg.Status.HeartbeatSec),
		})

	// === Initialize Telemetry Archive (optional) ===
	// The robot runs fine without ClickHouse; archiving is best effort
	if cfg.TelemetryEnabled {
		db, err := database.NewClickHouseDB(
			cfg.ClickHouseAddr,
			cfg.ClickHouseDB,
			cfg.ClickHouseUser,
			cfg.ClickHousePass,
		)
		if err != nil {
			log.Printf("Telemetry disabled, ClickHouse unavailable: %v", err)
		} else {
			defer db.Close()
			telemetryService := services.NewTelemetryService(db, poller,
				services.TelemetryServiceConfig{
					RobotID:        cfg.RobotID,
					SensorInterval: secondsToDuration(robotCfg.Status.SensorArchiveSec),
				})

			// Connect status service output to the archive input
			statusService.TelemetryChan = telemetryService.StatusChan
			go telemetryService.Start(ctx)
		}
	}
	go statusService.Start(ctx)

	// === Initialize MQTT Subscriber ===
	log.Println("Setting up MQTT subscriber...")
	subscriber := mqtt.NewSubscriber(
		mqttClient.GetNativeClient(),
		mqtt.SubscriberConfig{
			CommandTopic:  mqtt.FormatTopic(cfg.MQTTTopicCommand, cfg.RobotID),
			WaypointTopic: mqtt.FormatTopic(cfg.MQTTTopicWaypoints, cfg.RobotID),
		},
		commandService.CommandChan,
	)
	if err := subscriber.SubscribeAll(); err != nil {
		log.Fatalf("Failed to subscribe to MQTT topics: %v", err)
	}

	// === Initialize MQTT Publisher ===
	log.Println("Setting up MQTT publisher...")
	publisher := mqtt.NewPublisher(
		mqttClient.GetNativeClient(),
		mqtt.PublisherConfig{
			ResponseTopic: mqtt.FormatTopic(cfg.MQTTTopicResponse, cfg.RobotID),
			StatusTopic:   mqtt.FormatTopic(cfg.MQTTTopicStatus, cfg.RobotID),
			AlertTopic:    mqtt.FormatTopic(cfg.MQTTTopicAlert, cfg.RobotID),
		},
		commandService.ReplyChan,
		statusService.StatusChan,
	)
	go publisher.Start(ctx)

	// === Log startup info ===
	log.Println("=== Robot Control Server is running ===")
	log.Printf("Robot ID: %s (simulation=%v)", cfg.RobotID, cfg.Simulation)
	log.Printf("Control loop: %.0f Hz, base speed %.0f%%, PID kp=%.1f ki=%.1f kd=%.1f",
		robotCfg.Control.LoopRateHz, robotCfg.Control.BaseSpeed,
		robotCfg.PID.Kp, robotCfg.PID.Ki, robotCfg.PID.Kd)
	log.Printf("MQTT Topics:")
	log.Printf("  - Command:      %s", mqtt.FormatTopic(cfg.MQTTTopicCommand, cfg.RobotID))
	log.Printf("  - Waypoints:    %s", mqtt.FormatTopic(cfg.MQTTTopicWaypoints, cfg.RobotID))
	log.Printf("  - Response:     %s", mqtt.FormatTopic(cfg.MQTTTopicResponse, cfg.RobotID))
	log.Printf("  - Status:       %s", mqtt.FormatTopic(cfg.MQTTTopicStatus, cfg.RobotID))
	log.Printf("  - Alert:        %s", mqtt.FormatTopic(cfg.MQTTTopicAlert, cfg.RobotID))
	log.Printf("  - Availability: %s", availabilityTopic)
	log.Println("Press Ctrl+C to exit...")

	// === Wait for interrupt signal ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// === Graceful shutdown ===
	log.Println("Shutdown signal received, stopping services...")
	cancel() // Cancel context to stop all goroutines

	// Give services time to finish processing; the deferred actuator
	// Close halts the drive
	time.Sleep(2 * time.Second)

	log.Println("Shutdown complete. Goodbye!")
}

// rateToInterval converts a loop rate in Hz to its tick period
func rateToInterval(hz float64) time.Duration {
	if hz <= 0 {
		hz = 20
	}
	return time.Duration(float64(time.Second) / hz)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
