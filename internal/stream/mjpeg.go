package stream

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"watchdog/internal/pipeline"
)

// MJPEGStream fans processed frames out to HTTP viewers as a
// multipart/x-mixed-replace stream. Slow viewers lose frames, they never
// stall the publisher.
type MJPEGStream struct {
	cameraID string

	clientsMu sync.Mutex
	clients   map[chan []byte]bool

	stopCh  chan struct{}
	stopped sync.Once
}

// NewMJPEGStream creates a streamer for one camera.
func NewMJPEGStream(cameraID string) *MJPEGStream {
	return &MJPEGStream{
		cameraID: cameraID,
		clients:  make(map[chan []byte]bool),
		stopCh:   make(chan struct{}),
	}
}

// Publish delivers one JPEG frame to every connected viewer, skipping any
// whose buffer is full.
func (s *MJPEGStream) Publish(frame []byte) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Run consumes the display queue until Stop. Frames the pipeline annotated
// pass straight through; no re-encoding happens here.
func (s *MJPEGStream) Run(display *pipeline.FrameQueue) {
	log.Printf("[MJPEGStream] publisher started for camera %s", s.cameraID)
	for {
		select {
		case <-s.stopCh:
			log.Printf("[MJPEGStream] publisher stopped for camera %s", s.cameraID)
			return
		case frame := <-display.C():
			if frame == nil {
				continue
			}
			s.Publish(frame.Data)
		}
	}
}

// Stop terminates the Run loop.
func (s *MJPEGStream) Stop() {
	s.stopped.Do(func() { close(s.stopCh) })
}

// ClientCount returns the number of connected viewers.
func (s *MJPEGStream) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

// ServeHTTP serves the MJPEG stream to a client
func (s *MJPEGStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientCh := make(chan []byte, 5)
	s.clientsMu.Lock()
	s.clients[clientCh] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, clientCh)
		s.clientsMu.Unlock()
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	log.Printf("[MJPEGStream] Client connected to camera %s", s.cameraID)

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[MJPEGStream] Client disconnected from camera %s", s.cameraID)
			return
		case <-s.stopCh:
			return
		case frame, ok := <-clientCh:
			if !ok {
				return
			}

			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
			w.Write(frame)
			fmt.Fprintf(w, "\r\n")
			flusher.Flush()
		}
	}
}
