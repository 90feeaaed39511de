package sensors

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"robot-server/internal/models"
)

// PollerConfig holds the polling rate and freshness bound
type PollerConfig struct {
	Interval time.Duration // backend read period
	MaxAge   time.Duration // sample age beyond which Latest reports staleness
}

// DefaultPollerConfig polls at the control-loop rate
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 50 * time.Millisecond,
		MaxAge:   250 * time.Millisecond,
	}
}

// Poller reads the sensor backend at a fixed rate and caches the
// latest sample, so the control tick reads sensors without ever
// blocking on hardware I/O.
type Poller struct {
	backend  Backend
	interval time.Duration
	maxAge   time.Duration

	mu        sync.RWMutex
	last      models.SensorSample
	hasSample bool

	reads  uint64
	faults uint64
}

// NewPoller creates a poller over the given backend
func NewPoller(backend Backend, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 50 * time.Millisecond
	}
	return &Poller{
		backend:  backend,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
	}
}

// Start polls the backend until the context is cancelled
func (p *Poller) Start(ctx context.Context) {
	log.Println("SensorPoller: Starting...")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("SensorPoller: Shutting down...")
			return

		case <-ticker.C:
			sample, err := p.backend.Read()
			if err != nil {
				atomic.AddUint64(&p.faults, 1)
				log.Printf("SensorPoller: read failed: %v", err)
				continue
			}
			atomic.AddUint64(&p.reads, 1)

			p.mu.Lock()
			p.last = sample
			p.hasSample = true
			p.mu.Unlock()
		}
	}
}

// Latest returns the cached sample without blocking. It returns
// models.ErrSensorStale when no sample has landed yet or the cached
// one is older than the freshness bound; the stale sample is still
// returned for diagnostics, and callers degrade to line-lost handling.
func (p *Poller) Latest() (models.SensorSample, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.hasSample {
		return models.SensorSample{}, models.ErrSensorStale
	}
	if p.maxAge > 0 && time.Since(p.last.Timestamp) > p.maxAge {
		return p.last, models.ErrSensorStale
	}
	return p.last, nil
}

// Stats returns cumulative successful-read and fault counters
func (p *Poller) Stats() (reads, faults uint64) {
	return atomic.LoadUint64(&p.reads), atomic.LoadUint64(&p.faults)
}
