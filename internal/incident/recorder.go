package incident

import (
	"context"
	"log"
	"sync"
	"time"

	"watchdog/internal/store"
)

// Config holds recorder parameters for one camera.
type Config struct {
	CameraID    string
	FPS         int
	PreSeconds  int
	PostSeconds int
	// CooldownFrames is the number of idle frames required after a finalize
	// before a new incident may start. 0 disables the cooldown gate.
	CooldownFrames int
	// Detached dispatches the store step out-of-band after encoding. Encoding
	// itself is always synchronous.
	Detached bool
}

// Recorder buffers frames around a trigger and produces one video artifact
// per incident. It is either Idle (filling the pre-trigger ring) or Recording
// (filling the post-trigger buffer); the states are exclusive. All mutable
// state is owned by the single pipeline goroutine that calls AddFrame and
// StartIncident; only detached store dispatches leave that goroutine.
type Recorder struct {
	cfg     Config
	preLen  int
	postLen int

	encoder   VideoEncoder
	store     store.Store
	listeners []Listener

	pre         *ringBuffer
	preSnapshot []Frame
	post        []Frame
	recording   bool
	id          string
	trigger     Trigger
	idleFrames  int

	wg sync.WaitGroup
}

// NewRecorder creates an idle recorder. The store may be nil when artifacts
// should stay wherever the encoder leaves them.
func NewRecorder(cfg Config, encoder VideoEncoder, st store.Store, listeners ...Listener) *Recorder {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	preLen := cfg.PreSeconds * cfg.FPS
	postLen := cfg.PostSeconds * cfg.FPS
	if preLen < 1 {
		preLen = 1
	}
	if postLen < 1 {
		postLen = 1
	}
	return &Recorder{
		cfg:     cfg,
		preLen:  preLen,
		postLen: postLen,
		encoder: encoder,
		store:   st,
		// a fresh recorder has no cooldown debt
		idleFrames: cfg.CooldownFrames,
		listeners:  listeners,
		pre:        newRingBuffer(preLen),
	}
}

// Recording reports whether an incident is in progress.
func (r *Recorder) Recording() bool {
	return r.recording
}

// CurrentIncident returns the active incident id, empty when idle.
func (r *Recorder) CurrentIncident() string {
	return r.id
}

// AddFrame feeds one frame into whichever buffer the state selects. When the
// post buffer reaches capacity the incident finalizes synchronously before
// AddFrame returns.
func (r *Recorder) AddFrame(f Frame) {
	if !r.recording {
		r.pre.push(f)
		if r.idleFrames < r.cfg.CooldownFrames {
			r.idleFrames++
		}
		return
	}

	r.post = append(r.post, f)

	if len(r.post)%r.cfg.FPS == 0 {
		remaining := (r.postLen - len(r.post)) / r.cfg.FPS
		log.Printf("[Recorder] %s recording: %ds remaining", r.id, remaining)
	}

	if len(r.post) >= r.postLen {
		r.finalize()
	}
}

// StartIncident transitions to Recording. It refuses when already recording
// or when the cooldown gate has not seen enough idle frames; the returned
// bool reports whether a new incident actually started.
func (r *Recorder) StartIncident(trig Trigger) (string, bool) {
	if r.recording {
		return "", false
	}
	if r.cfg.CooldownFrames > 0 && r.idleFrames < r.cfg.CooldownFrames {
		log.Printf("[Recorder] trigger suppressed by cooldown (%d/%d idle frames)",
			r.idleFrames, r.cfg.CooldownFrames)
		return "", false
	}

	if trig.At.IsZero() {
		trig.At = time.Now()
	}
	if trig.CameraID == "" {
		trig.CameraID = r.cfg.CameraID
	}

	r.id = newIncidentID(trig.At)
	r.trigger = trig
	r.preSnapshot = r.pre.snapshot()
	r.post = r.post[:0]
	r.recording = true

	log.Printf("[Recorder] incident %s started: probability=%.2f accumulated=%.0f pre=%d frames",
		r.id, trig.Probability, trig.Accumulated, len(r.preSnapshot))

	for _, l := range r.listeners {
		l.IncidentStarted(r.id, trig)
	}
	return r.id, true
}

// finalize encodes pre+post, dispatches the artifact, and resets to Idle.
// The reset is unconditional: encode or store failures lose the incident but
// never wedge the recorder.
func (r *Recorder) finalize() {
	id := r.id
	trig := r.trigger
	frames := make([]Frame, 0, len(r.preSnapshot)+len(r.post))
	frames = append(frames, r.preSnapshot...)
	frames = append(frames, r.post...)

	r.recording = false
	r.id = ""
	r.preSnapshot = nil
	r.post = nil
	r.pre.reset()
	r.idleFrames = 0

	if len(frames) == 0 {
		log.Printf("[Recorder] incident %s aborted: no frames buffered", id)
		return
	}

	videoPath, err := r.encoder.Encode(context.Background(), id, frames, r.cfg.FPS)
	if err != nil {
		log.Printf("[Recorder] incident %s lost: encoding failed: %v", id, err)
		return
	}

	meta := store.Metadata{
		IncidentID:  id,
		CameraID:    trig.CameraID,
		TriggeredAt: trig.At,
		FinalizedAt: time.Now(),
		Probability: trig.Probability,
		Label:       trig.Label,
		MotionArea:  trig.MotionArea,
		Accumulated: trig.Accumulated,
		FrameCount:  len(frames),
		FPS:         r.cfg.FPS,
	}

	log.Printf("[Recorder] incident %s finalized: %d frames (%.1fs)",
		id, len(frames), float64(len(frames))/float64(r.cfg.FPS))

	if r.store != nil {
		if r.cfg.Detached {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				if err := r.store.Store(context.Background(), meta, videoPath); err != nil {
					log.Printf("[Recorder] incident %s store failed: %v", id, err)
				}
			}()
		} else if err := r.store.Store(context.Background(), meta, videoPath); err != nil {
			log.Printf("[Recorder] incident %s store failed: %v", id, err)
		}
	}

	for _, l := range r.listeners {
		l.IncidentFinalized(meta)
	}
}

// Close finalizes a recording in progress (the post buffer keeps whatever it
// has) and waits for detached store dispatches to drain.
func (r *Recorder) Close() error {
	if r.recording {
		log.Printf("[Recorder] shutting down mid-incident %s, finalizing early", r.id)
		r.finalize()
	}
	r.wg.Wait()
	return nil
}
