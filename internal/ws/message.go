package ws

import "time"

// MotionMessage represents a live motion telemetry broadcast
type MotionMessage struct {
	Type              string    `json:"type"` // "motion"
	CameraID          string    `json:"camera_id"`
	Timestamp         time.Time `json:"timestamp"`
	Area              float64   `json:"area"`
	Accumulated       float64   `json:"accumulated"`
	ThresholdExceeded bool      `json:"threshold_exceeded"`
}

// IncidentMessage represents an incident lifecycle broadcast
type IncidentMessage struct {
	Type        string    `json:"type"` // "incident_started" | "incident_finalized"
	CameraID    string    `json:"camera_id"`
	IncidentID  string    `json:"incident_id"`
	Timestamp   time.Time `json:"timestamp"`
	Probability float64   `json:"probability"`
	Label       string    `json:"label,omitempty"`
	FrameCount  int       `json:"frame_count,omitempty"`
}

// NewMotionMessage creates a motion telemetry message
func NewMotionMessage(cameraID string, area, accumulated float64, exceeded bool) *MotionMessage {
	return &MotionMessage{
		Type:              "motion",
		CameraID:          cameraID,
		Timestamp:         time.Now(),
		Area:              area,
		Accumulated:       accumulated,
		ThresholdExceeded: exceeded,
	}
}
