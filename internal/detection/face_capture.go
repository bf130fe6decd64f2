package detection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"
)

// FaceCapture asks the face service to extract and archive face crops from an
// incident's trigger frame. It is a best-effort side channel: the recording
// path never waits on it and never fails because of it.
type FaceCapture struct {
	endpoint string
	client   *http.Client

	mu         sync.RWMutex
	enabled    bool
	healthy    bool
	lastHealth time.Time
}

// FaceCrop is one face extracted from a frame.
type FaceCrop struct {
	BBox        []float32 `json:"bbox"`
	Confidence  float32   `json:"confidence"`
	Identity    *string   `json:"identity"`
	IsKnown     bool      `json:"is_known"`
	ImageBase64 string    `json:"image_base64,omitempty"`
}

// FaceCaptureResult is the face service response for one frame.
type FaceCaptureResult struct {
	Faces           []FaceCrop `json:"faces"`
	Count           int        `json:"count"`
	KnownCount      int        `json:"known_count"`
	UnknownCount    int        `json:"unknown_count"`
	InferenceTimeMs float32    `json:"inference_time_ms"`
}

// NewFaceCapture creates a face capture client. An empty endpoint disables it.
func NewFaceCapture(endpoint string) *FaceCapture {
	return &FaceCapture{
		endpoint: endpoint,
		enabled:  endpoint != "",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IsEnabled returns whether face capture is configured.
func (fc *FaceCapture) IsEnabled() bool {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.enabled
}

// CheckHealth probes the face service. Results are cached for 30 seconds.
func (fc *FaceCapture) CheckHealth() error {
	if !fc.IsEnabled() {
		return fmt.Errorf("face capture is disabled")
	}

	fc.mu.RLock()
	fresh := time.Since(fc.lastHealth) < 30*time.Second
	healthy := fc.healthy
	fc.mu.RUnlock()
	if fresh && healthy {
		return nil
	}

	resp, err := fc.client.Get(fc.endpoint + "/health")
	if err != nil {
		fc.setHealthy(false)
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fc.setHealthy(false)
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	fc.setHealthy(true)
	return nil
}

func (fc *FaceCapture) setHealthy(healthy bool) {
	fc.mu.Lock()
	fc.healthy = healthy
	if healthy {
		fc.lastHealth = time.Now()
	}
	fc.mu.Unlock()
}

// CaptureForIncident submits the trigger frame for face extraction, tagged
// with the incident id so crops land next to the incident artifact. Errors
// are returned for logging only; callers must not propagate them.
func (fc *FaceCapture) CaptureForIncident(incidentID string, jpegFrame []byte) (*FaceCaptureResult, error) {
	if !fc.IsEnabled() {
		return nil, fmt.Errorf("face capture is disabled")
	}
	if err := fc.CheckHealth(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(jpegFrame); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	writer.WriteField("incident_id", incidentID)
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, fc.endpoint+"/capture", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := fc.client.Do(req)
	if err != nil {
		fc.setHealthy(false)
		return nil, fmt.Errorf("capture request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result FaceCaptureResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode capture response: %w", err)
	}

	if result.Count > 0 {
		log.Printf("[FaceCapture] incident %s: faces=%d known=%d unknown=%d (inference: %.1fms)",
			incidentID, result.Count, result.KnownCount, result.UnknownCount, result.InferenceTimeMs)
	}
	return &result, nil
}
