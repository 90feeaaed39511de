package sensors

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"robot-server/internal/models"
)

// SimConfig tunes the synthetic sensor source
type SimConfig struct {
	Channels          int
	SampleRate        float64 // Hz, advances simulated time per read
	WanderPeriod      float64 // seconds per full line oscillation
	WanderAmplitude   float64 // line offset amplitude in channel-index units
	LineWidth         float64 // gaussian width of the line response
	PeakIntensity     float64
	FloorIntensity    float64
	Noise             float64 // stddev of additive reading noise
	SafeProximity     float64
	Seed              int64
	ObstaclePeriod    float64 // seconds between scripted obstacle passes, 0 = never
	ObstacleDuration  float64 // seconds an obstacle stays in range
	ObstacleProximity float64 // proximity reported while an obstacle passes
}

// DefaultSimConfig returns a gently wandering line with no obstacles
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Channels:          5,
		SampleRate:        20,
		WanderPeriod:      12,
		WanderAmplitude:   1.5,
		LineWidth:         0.8,
		PeakIntensity:     900,
		FloorIntensity:    60,
		Noise:             25,
		SafeProximity:     250,
		Seed:              1,
		ObstaclePeriod:    0,
		ObstacleDuration:  1.5,
		ObstacleProximity: 40,
	}
}

// Simulated synthesizes the channel array of a vehicle tracking a
// painted line that wanders sinusoidally across the sensor bar.
// Deterministic under a fixed seed.
type Simulated struct {
	mu   sync.Mutex
	cfg  SimConfig
	rng  *rand.Rand
	t    float64
	bump bool
}

// NewSimulated creates a simulated sensor source
func NewSimulated(cfg SimConfig) *Simulated {
	if cfg.Channels < 1 {
		cfg.Channels = 5
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 20
	}
	if cfg.LineWidth <= 0 {
		cfg.LineWidth = 0.8
	}
	return &Simulated{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Read synthesizes the next sample along the simulated track
func (s *Simulated) Read() (models.SensorSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.t += 1 / s.cfg.SampleRate
	linePos := s.cfg.WanderAmplitude * math.Sin(2*math.Pi*s.t/s.cfg.WanderPeriod)
	center := float64(s.cfg.Channels-1) / 2

	channels := make([]float64, s.cfg.Channels)
	for i := range channels {
		offset := float64(i) - center - linePos
		v := s.cfg.FloorIntensity +
			s.cfg.PeakIntensity*math.Exp(-(offset*offset)/(2*s.cfg.LineWidth*s.cfg.LineWidth))
		v += s.rng.NormFloat64() * s.cfg.Noise
		if v < 0 {
			v = 0
		}
		channels[i] = v
	}

	proximity := s.cfg.SafeProximity
	if s.cfg.ObstaclePeriod > 0 {
		if math.Mod(s.t, s.cfg.ObstaclePeriod) < s.cfg.ObstacleDuration {
			proximity = s.cfg.ObstacleProximity
		}
	}

	return models.SensorSample{
		Timestamp: time.Now(),
		Channels:  channels,
		Bump:      s.bump,
		Proximity: proximity,
	}, nil
}

// SetBump injects or clears the collision switch, for demos and tests
func (s *Simulated) SetBump(pressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bump = pressed
}

// Close implements Backend
func (s *Simulated) Close() error {
	return nil
}
