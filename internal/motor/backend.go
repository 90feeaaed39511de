package motor

// Backend drives the physical or simulated motor hardware. Speeds are
// signed percentages in [-100, 100]; zero stops the wheel. The backend
// is selected once at construction and never branched on per call.
// Implementations must tolerate calls from the control tick and the
// emergency path.
type Backend interface {
	// ApplySpeeds sets both wheel speeds in one write
	ApplySpeeds(left, right float64) error
	// Close releases the hardware
	Close() error
}
