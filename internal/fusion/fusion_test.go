package fusion

import (
	"math"
	"testing"
	"time"

	"robot-server/internal/models"
)

func sample(channels []float64, bump bool, proximity float64) models.SensorSample {
	return models.SensorSample{
		Timestamp: time.Now(),
		Channels:  channels,
		Bump:      bump,
		Proximity: proximity,
	}
}

func reversed(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func TestClassifyCenteredLine(t *testing.T) {
	e := New(DefaultConfig())
	res := e.Classify(sample([]float64{150, 200, 800, 200, 150}, false, 250))

	if !res.LineDetected {
		t.Fatal("expected line detected")
	}
	if math.Abs(res.LineError) > 0.001 {
		t.Fatalf("expected centered error, got %.4f", res.LineError)
	}
	if res.Safety != models.SafetyNone {
		t.Fatalf("expected no safety event, got %s", res.Safety)
	}
	if res.IntersectionDetected {
		t.Fatal("unexpected intersection")
	}
}

func TestClassifyLineLost(t *testing.T) {
	e := New(DefaultConfig())
	res := e.Classify(sample([]float64{0, 0, 0, 0, 0}, false, 250))

	if res.LineDetected {
		t.Fatal("expected line lost")
	}
	if res.LineError != 0 {
		t.Fatalf("lost line must report zero error, got %.4f", res.LineError)
	}

	// every channel just under the threshold is still lost
	res = New(DefaultConfig()).Classify(sample([]float64{150, 200, 399, 200, 150}, false, 250))
	if res.LineDetected {
		t.Fatal("expected line lost with all channels below threshold")
	}
}

func TestBumpAlwaysCollision(t *testing.T) {
	e := New(DefaultConfig())
	res := e.Classify(sample([]float64{150, 200, 800, 200, 150}, true, 900))

	if res.Safety != models.SafetyCollision {
		t.Fatalf("bump must classify as collision, got %s", res.Safety)
	}
	// the line classification is still reported alongside the event
	if !res.LineDetected {
		t.Fatal("line classification must not be dropped on collision")
	}
}

func TestProximityLadder(t *testing.T) {
	cases := []struct {
		proximity float64
		want      models.SafetyEvent
	}{
		{250, models.SafetyNone},
		{100, models.SafetyNone},
		{75, models.SafetyObstacleClose},
		{50, models.SafetyObstacleClose},
		{25, models.SafetyObstacleImminent},
		{0, models.SafetyObstacleImminent},
		{-10, models.SafetyObstacleImminent},
	}
	for _, tc := range cases {
		res := New(DefaultConfig()).Classify(sample([]float64{0, 0, 800, 0, 0}, false, tc.proximity))
		if res.Safety != tc.want {
			t.Errorf("proximity %.0f: got %s, want %s", tc.proximity, res.Safety, tc.want)
		}
	}
}

func TestMirrorSymmetry(t *testing.T) {
	cases := [][]float64{
		{700, 500, 300, 100, 0},
		{900, 600, 100, 0, 0},
		{450, 800, 200, 100, 50},
		{0, 0, 500, 850, 420},
	}
	for _, ch := range cases {
		a := New(DefaultConfig()).Classify(sample(ch, false, 300))
		b := New(DefaultConfig()).Classify(sample(reversed(ch), false, 300))
		if math.Abs(a.LineError+b.LineError) > 1e-9 {
			t.Errorf("channels %v: error %.4f not mirrored by %.4f", ch, a.LineError, b.LineError)
		}
	}
}

func TestIntersectionMajority(t *testing.T) {
	e := New(DefaultConfig())
	res := e.Classify(sample([]float64{700, 700, 700, 700, 200}, false, 300))
	if !res.IntersectionDetected {
		t.Fatal("four strong channels out of five must detect an intersection")
	}

	res = New(DefaultConfig()).Classify(sample([]float64{700, 700, 700, 200, 200}, false, 300))
	if res.IntersectionDetected {
		t.Fatal("three strong channels must not detect an intersection")
	}
}

func TestWeightedPreferredOverEdge(t *testing.T) {
	// both an edge channel and the center exceed the threshold; the
	// weighted average is authoritative, not the sharp-turn rule
	res := New(DefaultConfig()).Classify(sample([]float64{800, 0, 600, 0, 0}, false, 300))
	if !res.LineDetected {
		t.Fatal("expected line detected")
	}
	if res.LineError <= -1 || res.LineError >= 0 {
		t.Fatalf("expected weighted error in (-1, 0), got %.4f", res.LineError)
	}
}

func TestEdgeFallbackSharpTurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LostLineThreshold = 100
	// only the edge channel is active and it stays below the detection
	// threshold, so the weighted estimate is undefined
	res := New(cfg).Classify(sample([]float64{150, 0, 0, 0, 0}, false, 300))
	if !res.LineDetected {
		t.Fatal("expected line detected")
	}
	if res.LineError != -1.0 {
		t.Fatalf("left edge alone must report sharp left (-1.0), got %.4f", res.LineError)
	}

	res = New(cfg).Classify(sample([]float64{0, 0, 0, 0, 150}, false, 300))
	if res.LineError != 1.0 {
		t.Fatalf("right edge alone must report sharp right (+1.0), got %.4f", res.LineError)
	}
}

func TestSmoothingDampsSpike(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SmoothingWindow = 3
	e := New(cfg)

	quiet := []float64{0, 0, 0, 0, 0}
	e.Classify(sample(quiet, false, 300))
	e.Classify(sample(quiet, false, 300))

	// a single-tick spike averages to 300, under the 400 threshold
	res := e.Classify(sample([]float64{0, 0, 900, 0, 0}, false, 300))
	if res.LineDetected {
		t.Fatal("one-tick spike must be smoothed away")
	}

	// a sustained signal wins through the window
	res = e.Classify(sample([]float64{0, 0, 900, 0, 0}, false, 300))
	if !res.LineDetected {
		t.Fatal("sustained signal must be detected after smoothing")
	}
}

func TestMalformedInputNeverPanics(t *testing.T) {
	e := New(DefaultConfig())

	res := e.Classify(sample(nil, false, 300))
	if res.LineDetected {
		t.Fatal("missing channels must read as zero intensity")
	}

	res = New(DefaultConfig()).Classify(sample([]float64{math.NaN(), -50, 5000, 0, 0}, false, 300))
	if !res.LineDetected {
		t.Fatal("clamped over-range channel must still detect the line")
	}
	if res.LineError != 0 {
		t.Fatalf("single center channel must read centered, got %.4f", res.LineError)
	}

	// short sample: extra channels read as zero
	res = New(DefaultConfig()).Classify(sample([]float64{900, 700}, false, 300))
	if !res.LineDetected {
		t.Fatal("expected line detected from partial sample")
	}
	if res.LineError >= 0 {
		t.Fatalf("left-weighted partial sample must report negative error, got %.4f", res.LineError)
	}
}

func TestSingleChannelEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels = 1
	e := New(cfg)

	res := e.Classify(sample([]float64{900}, false, 300))
	if !res.LineDetected {
		t.Fatal("expected line detected")
	}
	if res.LineError != 0 {
		t.Fatalf("single channel carries no side information, got %.4f", res.LineError)
	}
	if res.IntersectionDetected {
		t.Fatal("single channel must never detect an intersection")
	}
}
