package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"watchdog/internal/classify"
	"watchdog/internal/incident"
	"watchdog/internal/motion"
)

// countingClassifier records calls and returns a fixed probability.
type countingClassifier struct {
	calls       int
	probability float64
	err         error
}

func (c *countingClassifier) Classify(ctx context.Context, jpegFrame []byte) (*classify.Assessment, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &classify.Assessment{Probability: c.probability}, nil
}

type nopEncoder struct{ calls int }

func (e *nopEncoder) Encode(ctx context.Context, incidentID string, frames []incident.Frame, fps int) (string, error) {
	e.calls++
	return "/tmp/" + incidentID + ".mp4", nil
}

func encodeFrame(t *testing.T, bright bool) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	if bright {
		// Bright square big enough to clear the motion minimum.
		for y := 10; y < 50; y++ {
			for x := 10; x < 50; x++ {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func testMotionConfig() motion.Config {
	return motion.Config{
		MinArea:               500,
		LearningRate:          0.01, // slow adaptation keeps the square foreground
		DetectionThreshold:    25,
		TemporalWindow:        time.Second,
		AccumulationThreshold: 3000,
		DecayRate:             0.95,
	}
}

func testPipeline(t *testing.T, cls classify.Classifier) (*GatingPipeline, *nopEncoder) {
	t.Helper()
	enc := &nopEncoder{}
	rec := incident.NewRecorder(incident.Config{
		CameraID: "cam0", FPS: 10, PreSeconds: 1, PostSeconds: 1,
	}, enc, nil)
	p := NewGatingPipeline(Config{
		CameraID:          "cam0",
		ViolenceThreshold: 0.7,
		ClassifyTimeout:   time.Second,
	}, motion.NewAccumulator(testMotionConfig()), cls, rec, nil)
	return p, enc
}

func feed(t *testing.T, p *GatingPipeline, seq uint64, bright bool) bool {
	t.Helper()
	_, suspicious := p.Process(&FrameData{
		CameraID:  "cam0",
		Data:      encodeFrame(t, bright),
		Seq:       seq,
		Timestamp: time.Unix(int64(seq), 0),
	})
	return suspicious
}

func TestClassifierNotInvokedBelowAccumulation(t *testing.T) {
	cls := &countingClassifier{probability: 0.99}
	p, _ := testPipeline(t, cls)

	// Background seed plus one motion frame: area ~1600 stays under the
	// accumulation threshold of 3000, so the expensive stage must not run.
	feed(t, p, 0, false)
	suspicious := feed(t, p, 1, true)

	require.False(t, suspicious)
	require.Equal(t, 0, cls.calls, "classifier must not run before sustained motion")
}

func TestSustainedMotionTriggersIncident(t *testing.T) {
	cls := &countingClassifier{probability: 0.95}
	p, _ := testPipeline(t, cls)

	feed(t, p, 0, false)
	triggered := false
	for seq := uint64(1); seq < 12; seq++ {
		if feed(t, p, seq, true) {
			triggered = true
			break
		}
	}

	require.True(t, triggered, "sustained motion plus confident verdict must start an incident")
	require.GreaterOrEqual(t, cls.calls, 1)

	stats := p.GetStats()
	require.Equal(t, uint64(1), stats.Incidents)
	require.True(t, stats.Recording)
}

func TestRecordingShortCircuitsAnalysis(t *testing.T) {
	cls := &countingClassifier{probability: 0.95}
	p, _ := testPipeline(t, cls)

	feed(t, p, 0, false)
	var seq uint64
	triggered := false
	for seq = 1; seq < 12; seq++ {
		if feed(t, p, seq, true) {
			triggered = true
			break
		}
	}
	require.True(t, triggered)

	before := p.GetStats()
	calls := cls.calls

	// While recording every frame belongs to the incident: no motion stage,
	// no classifier round trip, and the frame reports suspicious.
	require.True(t, feed(t, p, seq+1, true))

	after := p.GetStats()
	require.Equal(t, calls, cls.calls, "classifier must not run while recording")
	require.Equal(t, before.MotionFrames, after.MotionFrames, "motion stage must not run while recording")
	require.Equal(t, before.Accumulated, after.Accumulated, "accumulator must stay untouched while recording")
}

func TestThresholdProbabilityIsVetoed(t *testing.T) {
	cls := &countingClassifier{probability: 0.7}
	p, _ := testPipeline(t, cls)

	feed(t, p, 0, false)
	for seq := uint64(1); seq < 12; seq++ {
		require.False(t, feed(t, p, seq, true))
	}

	require.GreaterOrEqual(t, cls.calls, 1, "sustained motion must reach the classifier")
	require.Equal(t, uint64(0), p.GetStats().Incidents,
		"a verdict exactly at the threshold must not start an incident")
}

func TestLowProbabilityVetoesIncident(t *testing.T) {
	cls := &countingClassifier{probability: 0.3}
	p, _ := testPipeline(t, cls)

	feed(t, p, 0, false)
	for seq := uint64(1); seq < 12; seq++ {
		require.False(t, feed(t, p, seq, true))
	}

	require.GreaterOrEqual(t, cls.calls, 1, "sustained motion must reach the classifier")
	require.Equal(t, uint64(0), p.GetStats().Incidents)
}

func TestClassifierFailureIsFailSafe(t *testing.T) {
	cls := &countingClassifier{err: errors.New("inference backend down")}
	p, _ := testPipeline(t, cls)

	feed(t, p, 0, false)
	for seq := uint64(1); seq < 12; seq++ {
		require.False(t, feed(t, p, seq, true))
	}

	stats := p.GetStats()
	require.Equal(t, uint64(0), stats.Incidents)
	require.Equal(t, uint64(cls.calls), stats.Classifications)
	require.GreaterOrEqual(t, stats.ClassifierErrors, uint64(1))
}

func TestUndecodableFramePassesThrough(t *testing.T) {
	cls := &countingClassifier{probability: 0.99}
	p, _ := testPipeline(t, cls)

	garbage := []byte("not a jpeg")
	out, suspicious := p.Process(&FrameData{CameraID: "cam0", Data: garbage, Seq: 1, Timestamp: time.Now()})

	require.False(t, suspicious)
	require.Equal(t, garbage, out)
	require.Equal(t, 0, cls.calls)
}

func TestFrameQueueDropsIncomingWhenFull(t *testing.T) {
	q := NewFrameQueue(3)

	for i := 0; i < 5; i++ {
		ok := q.Push(&FrameData{Seq: uint64(i)})
		if i < 3 {
			require.True(t, ok, "frame %d must be accepted", i)
		} else {
			require.False(t, ok, "frame %d must be dropped", i)
		}
	}

	require.Equal(t, uint64(2), q.Dropped())
	require.Equal(t, 3, q.Len())

	// Buffered frames come out in arrival order; the dropped ones are the
	// newest, not the oldest.
	for i := 0; i < 3; i++ {
		f := <-q.C()
		require.Equal(t, uint64(i), f.Seq)
	}
}

func TestRunLoopFeedsDisplayQueue(t *testing.T) {
	cls := &countingClassifier{probability: 0.1}
	p, _ := testPipeline(t, cls)

	in := NewFrameQueue(3)
	display := NewFrameQueue(10)

	go p.Run(in, display)

	for i := 0; i < 3; i++ {
		require.True(t, in.Push(&FrameData{
			CameraID:  "cam0",
			Data:      encodeFrame(t, i > 0),
			Seq:       uint64(i),
			Timestamp: time.Now(),
		}))
		// Give the consumer room so nothing is dropped at the input.
		deadline := time.Now().Add(time.Second)
		for in.Len() > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	p.Stop()

	require.Equal(t, 3, display.Len())
	require.Equal(t, uint64(3), p.GetStats().FramesProcessed)
}

func BenchmarkProcessQuietFrame(b *testing.B) {
	img := image.NewGray(image.Rect(0, 0, 320, 240))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		b.Fatal(err)
	}
	data := buf.Bytes()

	enc := &nopEncoder{}
	rec := incident.NewRecorder(incident.Config{CameraID: "cam0", FPS: 30, PreSeconds: 1, PostSeconds: 1}, enc, nil)
	p := NewGatingPipeline(Config{CameraID: "cam0", ViolenceThreshold: 0.7},
		motion.NewAccumulator(testMotionConfig()), &countingClassifier{}, rec, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Process(&FrameData{CameraID: "cam0", Data: data, Seq: uint64(i), Timestamp: time.Unix(int64(i), 0)})
	}
	_ = fmt.Sprint(p.GetStats().FramesProcessed)
}
