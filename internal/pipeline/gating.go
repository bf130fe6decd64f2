package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"log"
	"sync"
	"time"

	"watchdog/internal/classify"
	"watchdog/internal/incident"
	"watchdog/internal/motion"
)

// Config holds gating parameters for one camera pipeline.
type Config struct {
	CameraID string
	// ViolenceThreshold vetoes any classifier verdict at or below it; only a
	// strictly greater probability starts an incident.
	ViolenceThreshold float64
	// ClassifyTimeout bounds one classification round trip. A timeout counts
	// as a veto.
	ClassifyTimeout time.Duration
}

// GatingPipeline runs the staged detection for one camera: every frame feeds
// the recorder and the cheap motion stage; only sustained motion pays for a
// classifier round trip; only a confident classifier verdict starts an
// incident. The classifier is fail-safe: any error or timeout means "not
// suspicious".
//
// Process and Run must stay on one goroutine; the accumulator and recorder
// are single-owner state.
type GatingPipeline struct {
	cfg         Config
	accumulator *motion.Accumulator
	classifier  classify.Classifier
	recorder    *incident.Recorder
	notifier    Notifier // optional

	stats   Stats
	statsMu sync.RWMutex

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped sync.Once
}

// NewGatingPipeline wires the three stages together. notifier may be nil.
func NewGatingPipeline(cfg Config, acc *motion.Accumulator, cls classify.Classifier, rec *incident.Recorder, notifier Notifier) *GatingPipeline {
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = 2 * time.Second
	}
	return &GatingPipeline{
		cfg:         cfg,
		accumulator: acc,
		classifier:  cls,
		recorder:    rec,
		notifier:    notifier,
		stats:       Stats{CameraID: cfg.CameraID},
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Process runs one frame through the full stage chain and returns the
// annotated frame for the display path plus whether this frame triggered an
// incident.
func (p *GatingPipeline) Process(frame *FrameData) ([]byte, bool) {
	p.statsMu.Lock()
	p.stats.FramesProcessed++
	p.stats.LastFrameTime = frame.Timestamp.Unix()
	p.statsMu.Unlock()

	img, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		log.Printf("[Pipeline] %s: dropping undecodable frame seq=%d: %v", p.cfg.CameraID, frame.Seq, err)
		return frame.Data, false
	}

	// Recording short-circuits the analysis stages: the frame only extends
	// the post buffer and the whole capture counts as suspicious. AddFrame
	// finalizes synchronously when this frame fills the post buffer.
	if p.recorder.Recording() {
		p.recorder.AddFrame(incident.Frame{JPEG: frame.Data, Timestamp: frame.Timestamp})
		p.statsMu.Lock()
		p.stats.Recording = p.recorder.Recording()
		p.statsMu.Unlock()
		return p.annotateOrRaw(img, nil, frame.Data, true), true
	}

	// Idle: the frame lands in the pre ring and runs the cheap motion stage.
	p.recorder.AddFrame(incident.Frame{JPEG: frame.Data, Timestamp: frame.Timestamp})

	ev := p.accumulator.Detect(img)
	if ev == nil {
		p.statsMu.Lock()
		p.stats.Recording = false
		p.statsMu.Unlock()
		return frame.Data, false
	}

	p.statsMu.Lock()
	p.stats.MotionFrames++
	p.stats.Accumulated = ev.Accumulated
	p.statsMu.Unlock()

	if p.notifier != nil {
		p.notifier.MotionDetected(p.cfg.CameraID, ev.Area, ev.Accumulated, ev.ThresholdExceeded)
	}

	suspicious := false
	if ev.ThresholdExceeded {
		suspicious = p.classifyAndTrigger(frame, ev)
	}

	recording := p.recorder.Recording()
	p.statsMu.Lock()
	p.stats.Recording = recording
	p.statsMu.Unlock()

	return p.annotateOrRaw(img, ev, frame.Data, recording), suspicious
}

// classifyAndTrigger runs the expensive stage and starts an incident when the
// verdict clears the violence threshold.
func (p *GatingPipeline) classifyAndTrigger(frame *FrameData, ev *motion.Event) bool {
	p.statsMu.Lock()
	p.stats.Classifications++
	p.statsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ClassifyTimeout)
	defer cancel()

	assessment, err := p.classifier.Classify(ctx, frame.Data)
	if err != nil {
		p.statsMu.Lock()
		p.stats.ClassifierErrors++
		p.statsMu.Unlock()
		log.Printf("[Pipeline] %s: classification failed, treating as not suspicious: %v", p.cfg.CameraID, err)
		return false
	}

	// Only a strictly greater probability clears the gate; a verdict exactly
	// at the threshold is a veto.
	if assessment.Probability <= p.cfg.ViolenceThreshold {
		return false
	}

	id, ok := p.recorder.StartIncident(incident.Trigger{
		CameraID:    p.cfg.CameraID,
		Probability: assessment.Probability,
		Label:       assessment.Label,
		MotionArea:  ev.Area,
		Accumulated: ev.Accumulated,
		At:          frame.Timestamp,
		Frame:       frame.Data,
	})
	if !ok {
		return false
	}

	p.statsMu.Lock()
	p.stats.Incidents++
	p.statsMu.Unlock()
	log.Printf("[Pipeline] %s: incident %s triggered (probability=%.2f, threshold=%.2f)",
		p.cfg.CameraID, id, assessment.Probability, p.cfg.ViolenceThreshold)
	return true
}

// annotateOrRaw falls back to the untouched frame when overlay drawing fails.
func (p *GatingPipeline) annotateOrRaw(img image.Image, ev *motion.Event, raw []byte, recording bool) []byte {
	annotated, err := annotate(img, ev, recording)
	if err != nil {
		return raw
	}
	return annotated
}

// Run consumes the capture queue until Stop, pushing annotated frames to the
// display queue. Both queues drop when full; the pipeline never blocks on a
// slow viewer.
func (p *GatingPipeline) Run(in *FrameQueue, display *FrameQueue) {
	defer close(p.doneCh)
	log.Printf("[Pipeline] processing loop started for camera %s", p.cfg.CameraID)

	for {
		select {
		case <-p.stopCh:
			p.drainStats(in)
			return
		case frame := <-in.C():
			if frame == nil {
				continue
			}
			annotated, _ := p.Process(frame)
			if display != nil {
				display.Push(&FrameData{
					CameraID:  frame.CameraID,
					Data:      annotated,
					Seq:       frame.Seq,
					Timestamp: frame.Timestamp,
					Width:     frame.Width,
					Height:    frame.Height,
				})
			}
		}
	}
}

// Stop terminates the run loop and finalizes any incident in progress.
func (p *GatingPipeline) Stop() {
	p.stopped.Do(func() { close(p.stopCh) })
	<-p.doneCh
	if err := p.recorder.Close(); err != nil {
		log.Printf("[Pipeline] %s: recorder close failed: %v", p.cfg.CameraID, err)
	}
	log.Printf("[Pipeline] processing loop stopped for camera %s", p.cfg.CameraID)
}

func (p *GatingPipeline) drainStats(in *FrameQueue) {
	p.statsMu.Lock()
	p.stats.FramesDropped = in.Dropped()
	p.statsMu.Unlock()
}

// GetStats returns a copy of the pipeline counters.
func (p *GatingPipeline) GetStats() Stats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}
