package sensors

import "robot-server/internal/models"

// Backend produces raw sensor samples. Read carries a bounded-latency
// contract: it may return stale data on a hardware fault but must
// never block indefinitely. The backend is selected once at
// construction, never branched on per call.
type Backend interface {
	Read() (models.SensorSample, error)
	Close() error
}
