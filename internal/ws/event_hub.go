package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"watchdog/internal/incident"
	"watchdog/internal/store"
)

// EventHub manages WebSocket connections for real-time incident and motion
// telemetry streaming
type EventHub struct {
	// clients maps camera_id -> set of connections
	clients map[string]map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewEventHub creates a new event hub
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]map[*websocket.Conn]bool),
	}
}

// Register adds a connection for a specific camera
func (h *EventHub) Register(cameraID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[cameraID] == nil {
		h.clients[cameraID] = make(map[*websocket.Conn]bool)
	}
	h.clients[cameraID][conn] = true
	fmt.Printf("[WS] Client registered for camera %s (total: %d)\n", cameraID, len(h.clients[cameraID]))
}

// Unregister removes a connection for a specific camera
func (h *EventHub) Unregister(cameraID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[cameraID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, cameraID)
		}
		fmt.Printf("[WS] Client unregistered for camera %s\n", cameraID)
	}
}

// HasClients returns true if there are any clients connected for a camera
func (h *EventHub) HasClients(cameraID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.clients[cameraID]
	return ok && len(conns) > 0
}

// BroadcastToCamera sends a message to all clients subscribed to a camera
func (h *EventHub) BroadcastToCamera(cameraID string, message []byte) {
	h.mu.RLock()
	conns := h.clients[cameraID]
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	for conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err := conn.WriteMessage(websocket.TextMessage, message)
		if err != nil {
			fmt.Printf("[WS] Error sending to client: %v\n", err)
			h.Unregister(cameraID, conn)
			conn.Close()
		}
	}
}

// ClientCount returns the total number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

func (h *EventHub) broadcastJSON(cameraID string, msg interface{}) {
	if !h.HasClients(cameraID) {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		fmt.Printf("[WS] Error marshaling message: %v\n", err)
		return
	}
	h.BroadcastToCamera(cameraID, data)
}

// MotionDetected broadcasts live motion telemetry. Satisfies the pipeline's
// notifier hook.
func (h *EventHub) MotionDetected(cameraID string, area, accumulated float64, thresholdExceeded bool) {
	h.broadcastJSON(cameraID, NewMotionMessage(cameraID, area, accumulated, thresholdExceeded))
}

// IncidentStarted broadcasts an incident start to camera subscribers
func (h *EventHub) IncidentStarted(id string, trig incident.Trigger) {
	h.broadcastJSON(trig.CameraID, &IncidentMessage{
		Type:        "incident_started",
		CameraID:    trig.CameraID,
		IncidentID:  id,
		Timestamp:   trig.At,
		Probability: trig.Probability,
		Label:       trig.Label,
	})
}

// IncidentFinalized broadcasts an incident finalize to camera subscribers
func (h *EventHub) IncidentFinalized(meta store.Metadata) {
	h.broadcastJSON(meta.CameraID, &IncidentMessage{
		Type:        "incident_finalized",
		CameraID:    meta.CameraID,
		IncidentID:  meta.IncidentID,
		Timestamp:   meta.FinalizedAt,
		Probability: meta.Probability,
		Label:       meta.Label,
		FrameCount:  meta.FrameCount,
	})
}

// The hub doubles as an incident lifecycle listener.
var _ incident.Listener = (*EventHub)(nil)
