package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"watchdog/internal/motion"
)

// Config holds the full runtime configuration for one surveillance pipeline.
// All values are resolved at startup and immutable afterwards; components
// receive the fields they need at construction and never read the
// environment themselves.
type Config struct {
	// Camera source
	CameraID string
	Device   string // V4L2 device, RTSP URL, or HTTP image endpoint
	FPS      int
	Width    int
	Height   int

	// Incident recording
	PreSeconds       int
	PostSeconds      int
	CooldownFrames   int  // 0 disables the cooldown gate
	DetachedFinalize bool // upload out-of-band after local encoding
	SaveDir          string
	DBPath           string

	// Gating
	ViolenceThreshold float64
	ClassifyTimeout   time.Duration

	// Queues between capture, pipeline and display
	CaptureQueueSize int
	DisplayQueueSize int

	// External services
	ClassifierEndpoint string
	FaceEndpoint       string

	Motion motion.Config
}

// Load resolves configuration from the environment with defaults suitable
// for a single USB camera at 30fps.
func Load() (*Config, error) {
	cfg := &Config{
		CameraID:           getenv("CAMERA_ID", "cam0"),
		Device:             getenv("CAMERA_DEVICE", "/dev/video0"),
		FPS:                getenvInt("CAMERA_FPS", 30),
		Width:              getenvInt("CAMERA_WIDTH", 1280),
		Height:             getenvInt("CAMERA_HEIGHT", 720),
		PreSeconds:         getenvInt("INCIDENT_PRE_SECONDS", 5),
		PostSeconds:        getenvInt("INCIDENT_POST_SECONDS", 10),
		CooldownFrames:     getenvInt("INCIDENT_COOLDOWN_FRAMES", 0),
		DetachedFinalize:   getenvBool("INCIDENT_DETACHED_FINALIZE", true),
		SaveDir:            getenv("SAVE_DIR", "detected_events"),
		DBPath:             getenv("DB_PATH", "watchdog.db"),
		ViolenceThreshold:  getenvFloat("VIOLENCE_THRESHOLD", 0.7),
		ClassifyTimeout:    getenvDuration("CLASSIFY_TIMEOUT", 2*time.Second),
		CaptureQueueSize:   getenvInt("CAPTURE_QUEUE_SIZE", 3),
		DisplayQueueSize:   getenvInt("DISPLAY_QUEUE_SIZE", 10),
		ClassifierEndpoint: getenv("CLASSIFIER_ENDPOINT", "http://localhost:8081"),
		FaceEndpoint:       os.Getenv("FACE_ENDPOINT"), // empty disables face capture
		Motion: motion.Config{
			MinArea:               getenvInt("MOTION_MIN_AREA", 5000),
			LearningRate:          getenvFloat("MOTION_LEARNING_RATE", 0.5),
			DetectionThreshold:    getenvFloat("MOTION_DETECTION_THRESHOLD", 25),
			TemporalWindow:        getenvDuration("MOTION_TEMPORAL_WINDOW", 1500*time.Millisecond),
			AccumulationThreshold: getenvFloat("MOTION_ACCUMULATION_THRESHOLD", 250000),
			DecayRate:             getenvFloat("MOTION_DECAY_RATE", 0.95),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.PreSeconds <= 0 || c.PostSeconds <= 0 {
		return fmt.Errorf("pre/post seconds must be positive, got %d/%d", c.PreSeconds, c.PostSeconds)
	}
	if c.ViolenceThreshold < 0 || c.ViolenceThreshold > 1 {
		return fmt.Errorf("violence threshold must be in [0,1], got %g", c.ViolenceThreshold)
	}
	if c.CaptureQueueSize <= 0 || c.DisplayQueueSize <= 0 {
		return fmt.Errorf("queue sizes must be positive")
	}
	if err := c.Motion.Validate(); err != nil {
		return fmt.Errorf("motion config: %w", err)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
