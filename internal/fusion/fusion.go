package fusion

import (
	"math"

	"robot-server/internal/models"
)

// Config holds thresholds and smoothing parameters for classification
type Config struct {
	Channels              int     // expected channel count
	SmoothingWindow       int     // moving-average window per channel
	LineDetectedThreshold float64 // intensity above which a channel sees the line
	LostLineThreshold     float64 // all channels below this = line lost
	IntersectionThreshold float64 // strong-reading threshold for intersections
	IntersectionMajority  int     // strong channels needed, 0 = all but one
	ObstacleCloseDist     float64 // proximity below this = obstacle close
	CollisionImminentDist float64 // proximity below this = obstacle imminent
	MaxIntensity          float64 // upper clamp for channel values
}

// DefaultConfig returns the tuned defaults for the 5-channel array
func DefaultConfig() Config {
	return Config{
		Channels:              5,
		SmoothingWindow:       5,
		LineDetectedThreshold: 400,
		LostLineThreshold:     400,
		IntersectionThreshold: 600,
		ObstacleCloseDist:     100,
		CollisionImminentDist: 50,
		MaxIntensity:          1000,
	}
}

// Engine fuses raw sensor samples into a classified line/obstacle state.
// It keeps a short rolling history per channel for smoothing and is
// otherwise a pure function of its input. Not safe for concurrent use;
// the supervisor tick is its only caller.
type Engine struct {
	cfg     Config
	history [][]float64
}

// New creates a fusion engine, normalizing out-of-range config values
func New(cfg Config) *Engine {
	if cfg.Channels < 1 {
		cfg.Channels = 1
	}
	if cfg.SmoothingWindow < 1 {
		cfg.SmoothingWindow = 1
	}
	if cfg.MaxIntensity <= 0 {
		cfg.MaxIntensity = 1000
	}
	if cfg.IntersectionMajority <= 0 {
		cfg.IntersectionMajority = cfg.Channels - 1
	}
	if cfg.IntersectionMajority < 2 {
		// a single strong channel is a line, not an intersection
		cfg.IntersectionMajority = 2
	}
	return &Engine{
		cfg:     cfg,
		history: make([][]float64, cfg.Channels),
	}
}

// Classify folds one sample into the rolling history and classifies it.
// Order is fixed: safety check first (its result is never suppressed by
// line classification), then line loss, intersection and position error.
// Malformed input never panics: out-of-range values clamp into
// [0, MaxIntensity] and missing channels read as zero.
func (e *Engine) Classify(sample models.SensorSample) models.FusionResult {
	smoothed := e.smooth(sample)

	res := models.FusionResult{
		Timestamp: sample.Timestamp,
		Safety:    e.classifySafety(sample),
	}

	lost := true
	for _, v := range smoothed {
		if v >= e.cfg.LostLineThreshold {
			lost = false
			break
		}
	}
	if lost {
		// distinct from centered-on-line: LineDetected stays false
		res.LineError = 0
		return res
	}
	res.LineDetected = true

	strong := 0
	for _, v := range smoothed {
		if v > e.cfg.IntersectionThreshold {
			strong++
		}
	}
	if strong >= e.cfg.IntersectionMajority {
		res.IntersectionDetected = true
	}

	res.LineError = e.positionError(smoothed)
	return res
}

// classifySafety maps bump and proximity onto the safety ladder.
// Bump always wins; a zero or negative proximity reads as contact.
func (e *Engine) classifySafety(sample models.SensorSample) models.SafetyEvent {
	if sample.Bump {
		return models.SafetyCollision
	}
	prox := sample.Proximity
	if prox < 0 || math.IsNaN(prox) {
		prox = 0
	}
	if prox < e.cfg.CollisionImminentDist {
		return models.SafetyObstacleImminent
	}
	if prox < e.cfg.ObstacleCloseDist {
		return models.SafetyObstacleClose
	}
	return models.SafetyNone
}

// smooth clamps the sample's channels and returns the moving average of
// each channel over its rolling window
func (e *Engine) smooth(sample models.SensorSample) []float64 {
	out := make([]float64, e.cfg.Channels)
	for i := 0; i < e.cfg.Channels; i++ {
		var v float64
		if i < len(sample.Channels) {
			v = sample.Channels[i]
		}
		if math.IsNaN(v) || v < 0 {
			v = 0
		} else if v > e.cfg.MaxIntensity {
			v = e.cfg.MaxIntensity
		}

		h := append(e.history[i], v)
		if len(h) > e.cfg.SmoothingWindow {
			h = h[len(h)-e.cfg.SmoothingWindow:]
		}
		e.history[i] = h

		sum := 0.0
		for _, x := range h {
			sum += x
		}
		out[i] = sum / float64(len(h))
	}
	return out
}

// positionError computes the intensity-weighted line position over the
// channels above the detection threshold. Channel weights are linearly
// spaced from -1 (leftmost) to +1 (rightmost). When no channel
// qualifies the weighted estimate is undefined and the discrete edge
// rule applies: an outermost channel active alone means a sharp turn.
func (e *Engine) positionError(smoothed []float64) float64 {
	n := len(smoothed)
	if n == 1 {
		return 0
	}

	var num, den float64
	for i, v := range smoothed {
		if v <= e.cfg.LineDetectedThreshold {
			continue
		}
		num += channelWeight(i, n) * v
		den += v
	}
	if den > 0 {
		return num / den
	}

	// Edge fallback. Active here means at or above the lost-line
	// threshold, since the detection threshold produced no qualifiers.
	leftActive := smoothed[0] >= e.cfg.LostLineThreshold
	rightActive := smoothed[n-1] >= e.cfg.LostLineThreshold
	innerActive := false
	for i := 1; i < n-1; i++ {
		if smoothed[i] >= e.cfg.LostLineThreshold {
			innerActive = true
			break
		}
	}
	switch {
	case leftActive && !rightActive && !innerActive:
		return -1.0
	case rightActive && !leftActive && !innerActive:
		return 1.0
	default:
		return 0
	}
}

// channelWeight returns the position weight of channel i among n,
// linearly spaced from -1 to +1
func channelWeight(i, n int) float64 {
	half := float64(n-1) / 2
	return (float64(i) - half) / half
}
