package store

import (
	"context"
	"time"
)

// Metadata describes a finalized incident artifact.
type Metadata struct {
	IncidentID  string    `json:"incident_id"`
	CameraID    string    `json:"camera_id"`
	TriggeredAt time.Time `json:"triggered_at"`
	FinalizedAt time.Time `json:"finalized_at"`
	Probability float64   `json:"probability"`
	Label       string    `json:"label,omitempty"`
	MotionArea  float64   `json:"motion_area"`
	Accumulated float64   `json:"accumulated_motion"`
	FrameCount  int       `json:"frame_count"`
	FPS         int       `json:"fps"`
	// Extra carries classifier-specific fields without schema changes.
	Extra map[string]string `json:"extra,omitempty"`
}

// Store persists one finalized incident: the encoded video artifact plus its
// metadata. Implementations own durability semantics; the recorder only
// requires that a nil error means the incident is safe to forget.
type Store interface {
	Store(ctx context.Context, meta Metadata, videoPath string) error
}
