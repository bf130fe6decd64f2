package motion

import (
	"fmt"
	"image"
	"time"
)

// Config holds motion detection parameters for one camera.
type Config struct {
	MinArea               int           // minimum contour area in pixels to qualify
	LearningRate          float64       // background adaptation rate (0,1]
	DetectionThreshold    float64       // per-pixel brightness difference threshold (0-255 scale)
	TemporalWindow        time.Duration // history window kept for telemetry
	AccumulationThreshold float64       // accumulated motion required to trigger
	DecayRate             float64       // decay applied to the accumulated sum each detected frame
}

// Validate checks the config invariants.
func (c Config) Validate() error {
	if c.MinArea <= 0 {
		return fmt.Errorf("min area must be positive, got %d", c.MinArea)
	}
	if c.DecayRate <= 0 || c.DecayRate >= 1 {
		return fmt.Errorf("decay rate must be in (0,1), got %g", c.DecayRate)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0,1], got %g", c.LearningRate)
	}
	if c.DetectionThreshold <= 0 {
		return fmt.Errorf("detection threshold must be positive, got %g", c.DetectionThreshold)
	}
	return nil
}

// Region is a single connected motion area extracted from the foreground mask.
type Region struct {
	Bounds image.Rectangle
	Area   float64
	Center image.Point
}

// Event describes the motion found in one frame. Constructed fresh per frame
// and never mutated afterwards.
type Event struct {
	Regions           []Region
	Mask              *image.Gray // binary foreground mask after morphology
	Area              float64     // sum of qualifying region areas
	Center            image.Point // centroid of the largest qualifying region
	Accumulated       float64     // decayed accumulated motion after this frame
	ThresholdExceeded bool
}
