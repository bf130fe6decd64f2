package capture

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"watchdog/internal/pipeline"
)

// FrameSource pulls JPEG frames from one camera device and pushes them into
// bounded queues. V4L2 devices and RTSP/HTTP streams go through ffmpeg in
// image2pipe mode; HTTP still-image endpoints are polled directly.
type FrameSource struct {
	cameraID string
	device   string
	fps      int
	width    int
	height   int

	sinks []*pipeline.FrameQueue

	running  atomic.Bool
	frameSeq atomic.Uint64
	stopCh   chan struct{}
	doneCh   chan struct{}
	cmd      *exec.Cmd
}

// NewFrameSource creates a source feeding the given queues. Each queue gets
// every frame it has room for; a full queue drops the frame.
func NewFrameSource(cameraID, device string, fps, width, height int, sinks ...*pipeline.FrameQueue) *FrameSource {
	if fps <= 0 {
		fps = 30
	}
	return &FrameSource{
		cameraID: cameraID,
		device:   device,
		fps:      fps,
		width:    width,
		height:   height,
		sinks:    sinks,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the capture loop.
func (s *FrameSource) Start() {
	go s.run()
	log.Printf("[Capture] started for camera %s (device: %s, fps: %d)", s.cameraID, s.device, s.fps)
}

// Stop terminates the capture loop and waits for it to exit.
func (s *FrameSource) Stop() {
	close(s.stopCh)
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	<-s.doneCh
	log.Printf("[Capture] stopped for camera %s", s.cameraID)
}

// Running reports whether the capture loop is active.
func (s *FrameSource) Running() bool {
	return s.running.Load()
}

func (s *FrameSource) run() {
	s.running.Store(true)
	defer s.running.Store(false)
	defer close(s.doneCh)

	if s.isHTTPImageEndpoint() {
		s.captureHTTPImages()
		return
	}
	s.captureFFmpeg()
}

func (s *FrameSource) isHTTPImageEndpoint() bool {
	return (strings.HasPrefix(s.device, "http://") || strings.HasPrefix(s.device, "https://")) &&
		(strings.Contains(s.device, ".jpg") || strings.Contains(s.device, ".jpeg") || strings.Contains(s.device, "image"))
}

func (s *FrameSource) captureHTTPImages() {
	client := &http.Client{Timeout: 10 * time.Second}
	interval := time.Second / time.Duration(s.fps)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			resp, err := client.Get(s.device)
			if err != nil {
				log.Printf("[Capture] Error fetching frame from %s: %v", s.device, err)
				continue
			}

			frame, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				log.Printf("[Capture] Error reading frame: %v", err)
				continue
			}

			s.pushFrame(frame)
		}
	}
}

func (s *FrameSource) captureFFmpeg() {
	var args []string

	if strings.HasPrefix(s.device, "rtsp://") {
		args = []string{
			"-rtsp_transport", "tcp",
			"-i", s.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", s.fps),
			"-q:v", "5",
			"-",
		}
	} else if strings.HasPrefix(s.device, "http://") || strings.HasPrefix(s.device, "https://") {
		args = []string{
			"-i", s.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", s.fps),
			"-q:v", "5",
			"-",
		}
	} else {
		// V4L2 device (USB camera)
		args = []string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", s.width, s.height),
			"-framerate", fmt.Sprintf("%d", s.fps),
			"-i", s.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		}
	}

	s.cmd = exec.Command("ffmpeg", args...)

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		log.Printf("[Capture] Error creating stdout pipe: %v", err)
		return
	}

	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		log.Printf("[Capture] Error creating stderr pipe: %v", err)
		return
	}

	if err := s.cmd.Start(); err != nil {
		log.Printf("[Capture] Error starting ffmpeg: %v", err)
		return
	}

	// Consume stderr silently
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	frameBuffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		select {
		case <-s.stopCh:
			return
		default:
			n, err := stdout.Read(chunk)
			if err != nil {
				if err != io.EOF {
					log.Printf("[Capture] Error reading frame: %v", err)
				}
				return
			}

			frameBuffer = append(frameBuffer, chunk[:n]...)

			// Extract complete JPEG frames
			for {
				frame := extractJPEGFrame(&frameBuffer)
				if frame == nil {
					break
				}
				s.pushFrame(frame)
			}
		}
	}
}

func (s *FrameSource) pushFrame(data []byte) {
	seq := s.frameSeq.Add(1)

	frame := &pipeline.FrameData{
		CameraID:  s.cameraID,
		Data:      data,
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
	}

	for _, q := range s.sinks {
		q.Push(frame)
	}

	if seq%100 == 0 {
		log.Printf("[Capture] Camera %s: frame %d captured", s.cameraID, seq)
	}
}

// extractJPEGFrame extracts a complete JPEG frame from buffer
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	// Find JPEG start marker (FFD8)
	startIdx := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	// Find JPEG end marker (FFD9)
	endIdx := -1
	for i := startIdx + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	// Extract frame
	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}
