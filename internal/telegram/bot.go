package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"watchdog/internal/incident"
	"watchdog/internal/store"
)

// Notifier pushes incident alerts to a Telegram chat over the Bot API. A
// per-camera cooldown keeps a noisy scene from flooding the chat.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client

	mu              sync.RWMutex
	enabled         bool
	cooldownTracker map[string]time.Time
	cooldownPeriod  time.Duration
}

// Config holds Telegram notifier configuration
type Config struct {
	BotToken        string
	ChatID          string
	Enabled         bool
	CooldownSeconds int
}

// apiResponse represents the response from the Telegram API
type apiResponse struct {
	OK          bool        `json:"ok"`
	Result      interface{} `json:"result,omitempty"`
	ErrorCode   int         `json:"error_code,omitempty"`
	Description string      `json:"description,omitempty"`
}

// NewNotifier creates a Telegram notifier. Disabled or tokenless notifiers
// silently drop alerts.
func NewNotifier(config Config) *Notifier {
	cooldownPeriod := time.Duration(config.CooldownSeconds) * time.Second
	if cooldownPeriod == 0 {
		cooldownPeriod = 30 * time.Second
	}

	return &Notifier{
		botToken:        config.BotToken,
		chatID:          config.ChatID,
		enabled:         config.Enabled && config.BotToken != "" && config.ChatID != "",
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		cooldownTracker: make(map[string]time.Time),
		cooldownPeriod:  cooldownPeriod,
	}
}

// IsEnabled returns whether the notifier is enabled
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// SetEnabled enables or disables the notifier
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// onCooldown checks and arms the per-camera cooldown in one step.
func (n *Notifier) onCooldown(cameraID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.cooldownTracker[cameraID]; ok && time.Since(last) < n.cooldownPeriod {
		return true
	}
	n.cooldownTracker[cameraID] = time.Now()
	return false
}

// IncidentStarted sends the alert with the trigger frame attached. Runs on
// its own goroutine so the recording path never waits on Telegram.
func (n *Notifier) IncidentStarted(id string, trig incident.Trigger) {
	if !n.IsEnabled() || n.onCooldown(trig.CameraID) {
		return
	}

	caption := fmt.Sprintf("🚨 Incident %s\nCamera: %s\nViolence probability: %.0f%%",
		id, trig.CameraID, trig.Probability*100)

	go func() {
		var err error
		if len(trig.Frame) > 0 {
			err = n.sendPhoto(trig.Frame, caption)
		} else {
			err = n.sendMessage(caption)
		}
		if err != nil {
			log.Printf("[Telegram] failed to send incident alert: %v", err)
		}
	}()
}

// IncidentFinalized sends the wrap-up message for a stored incident.
func (n *Notifier) IncidentFinalized(meta store.Metadata) {
	if !n.IsEnabled() {
		return
	}

	text := fmt.Sprintf("✅ Incident %s recorded\nCamera: %s\nDuration: %.1fs (%d frames)",
		meta.IncidentID, meta.CameraID,
		float64(meta.FrameCount)/float64(meta.FPS), meta.FrameCount)

	go func() {
		if err := n.sendMessage(text); err != nil {
			log.Printf("[Telegram] failed to send finalize notice: %v", err)
		}
	}()
}

var _ incident.Listener = (*Notifier)(nil)

// sendMessage sends a plain text message to the configured chat
func (n *Notifier) sendMessage(text string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)

	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	resp, err := n.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return n.checkResponse(resp)
}

// sendPhoto uploads a JPEG with a caption to the configured chat
func (n *Notifier) sendPhoto(photo []byte, caption string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendPhoto", n.botToken)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	writer.WriteField("chat_id", n.chatID)
	writer.WriteField("caption", caption)

	part, err := writer.CreateFormFile("photo", "frame.jpg")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	resp, err := n.httpClient.Post(url, writer.FormDataContentType(), &buf)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return n.checkResponse(resp)
}

func (n *Notifier) checkResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram API error %d: %s", apiResp.ErrorCode, apiResp.Description)
	}
	return nil
}
