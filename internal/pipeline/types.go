package pipeline

import (
	"time"
)

// FrameData represents a captured video frame
type FrameData struct {
	CameraID  string    // Camera identifier
	Data      []byte    // JPEG frame data
	Seq       uint64    // Frame sequence number
	Timestamp time.Time // Capture timestamp
	Width     int       // Frame width (if known)
	Height    int       // Frame height (if known)
}

// Stats carries pipeline counters for the status surface.
type Stats struct {
	CameraID         string  `json:"camera_id"`
	FramesProcessed  uint64  `json:"frames_processed"`
	FramesDropped    uint64  `json:"frames_dropped"`
	MotionFrames     uint64  `json:"motion_frames"`
	Classifications  uint64  `json:"classifications"`
	ClassifierErrors uint64  `json:"classifier_errors"`
	Incidents        uint64  `json:"incidents"`
	Accumulated      float64 `json:"accumulated_motion"`
	Recording        bool    `json:"recording"`
	LastFrameTime    int64   `json:"last_frame_time"`
}

// Notifier receives live pipeline telemetry. Implementations must not block;
// the hot path calls these inline.
type Notifier interface {
	MotionDetected(cameraID string, area, accumulated float64, thresholdExceeded bool)
}
