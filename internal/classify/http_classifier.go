package classify

import (
	"bytes"
	"context"
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

// HTTPClassifier talks to a violence-inference service over HTTP. The service
// accepts a multipart JPEG on /classify and exposes /health.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client

	mu          sync.Mutex
	enabled     bool
	healthCheck time.Time
}

var _ Classifier = (*HTTPClassifier)(nil)

// NewHTTPClassifier creates a classifier client. The timeout bounds one
// inference round trip; the pipeline treats a timeout as a veto.
func NewHTTPClassifier(endpoint string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPClassifier{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
		enabled: true,
	}
}

// IsHealthy checks the inference service, caching a positive result for 30
// seconds so the hot path does not pay a round trip per frame.
func (hc *HTTPClassifier) IsHealthy() bool {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if time.Since(hc.healthCheck) < 30*time.Second && hc.enabled {
		return true
	}

	resp, err := hc.client.Get(hc.endpoint + "/health")
	if err != nil {
		log.Printf("[Classifier] health check failed: %v", err)
		hc.enabled = false
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		hc.healthCheck = time.Now()
		hc.enabled = true
		return true
	}

	log.Printf("[Classifier] health check returned status %d", resp.StatusCode)
	hc.enabled = false
	return false
}

// Classify posts a JPEG frame and returns the service's assessment.
func (hc *HTTPClassifier) Classify(ctx context.Context, jpegFrame []byte) (*Assessment, error) {
	if !hc.IsHealthy() {
		return nil, fmt.Errorf("classification service unavailable")
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(jpegFrame); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.endpoint+"/classify", &b)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := hc.client.Do(req)
	if err != nil {
		hc.mu.Lock()
		hc.enabled = false
		hc.mu.Unlock()
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("classification failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result Assessment
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode classification response: %w", err)
	}
	if result.Probability < 0 || result.Probability > 1 {
		return nil, fmt.Errorf("classifier returned probability out of range: %g", result.Probability)
	}

	return &result, nil
}
