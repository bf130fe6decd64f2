package motion

import (
	"image"
	"image/color"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MinArea:               500,
		LearningRate:          0.5,
		DetectionThreshold:    25,
		TemporalWindow:        1500 * time.Millisecond,
		AccumulationThreshold: 250000,
		DecayRate:             0.95,
	}
}

// solidFrame returns a uniform grayscale frame.
func solidFrame(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// frameWithSquare returns a dark frame with a bright square at (x0,y0).
func frameWithSquare(w, h, x0, y0, size int) *image.Gray {
	img := solidFrame(w, h, 0)
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

func TestDetectStaticSceneReturnsNil(t *testing.T) {
	a := NewAccumulator(testConfig())

	for i := 0; i < 20; i++ {
		if ev := a.Detect(solidFrame(100, 100, 10)); ev != nil {
			t.Fatalf("frame %d: expected nil event for static scene, got %+v", i, ev)
		}
	}
	if got := a.Accumulated(); got != 0 {
		t.Fatalf("accumulated motion changed without qualifying contours: %g", got)
	}
}

func TestDetectFindsMovingObject(t *testing.T) {
	a := NewAccumulator(testConfig())

	// First frame seeds the background model.
	if ev := a.Detect(solidFrame(100, 100, 0)); ev != nil {
		t.Fatalf("expected nil event on background init, got %+v", ev)
	}

	ev := a.Detect(frameWithSquare(100, 100, 30, 30, 40))
	if ev == nil {
		t.Fatal("expected a motion event for a 40x40 bright square")
	}
	if len(ev.Regions) != 1 {
		t.Fatalf("expected one region, got %d", len(ev.Regions))
	}
	// Morphological opening shaves at most the 1px border of a solid square.
	if ev.Area < 1400 || ev.Area > 1700 {
		t.Errorf("unexpected region area %g", ev.Area)
	}
	if ev.Center.X < 45 || ev.Center.X > 54 || ev.Center.Y < 45 || ev.Center.Y > 54 {
		t.Errorf("unexpected center %v", ev.Center)
	}
	if ev.ThresholdExceeded {
		t.Error("single frame must not cross the accumulation threshold")
	}
	if ev.Accumulated != ev.Area {
		t.Errorf("first qualifying frame: accumulated=%g want %g", ev.Accumulated, ev.Area)
	}
}

func TestSubThresholdMotionIgnored(t *testing.T) {
	a := NewAccumulator(testConfig())

	a.Detect(solidFrame(100, 100, 0))

	// 10x10 square: area 100 < MinArea 500.
	if ev := a.Detect(frameWithSquare(100, 100, 10, 10, 10)); ev != nil {
		t.Fatalf("expected nil event for sub-minimum area, got area=%g", ev.Area)
	}
	if got := a.Accumulated(); got != 0 {
		t.Fatalf("accumulated motion changed on non-qualifying frame: %g", got)
	}
}

// The decayed sum acc = acc*0.95 + 20000 first exceeds 250000 on the 20th
// qualifying frame. Regression pin for the trigger latency at a constant
// motion area.
func TestAccumulationCrossingFrame(t *testing.T) {
	a := NewAccumulator(testConfig())
	now := time.Now()

	crossed := 0
	for i := 1; i <= 25; i++ {
		_, exceeded := a.integrate(now, 20000)
		if exceeded {
			crossed = i
			break
		}
		now = now.Add(time.Second / 30)
	}

	if crossed != 20 {
		t.Fatalf("accumulation threshold first crossed on frame %d, want 20 (accumulated=%g)",
			crossed, a.Accumulated())
	}
}

func TestTemporalWindowTrimsHistory(t *testing.T) {
	a := NewAccumulator(testConfig())
	base := time.Now()
	current := base
	a.now = func() time.Time { return current }

	a.Detect(solidFrame(100, 100, 0)) // seed background

	for i := 0; i < 10; i++ {
		current = base.Add(time.Duration(i) * 300 * time.Millisecond)
		// Alternate square position so the background never fully adapts.
		x := 20 + (i%2)*30
		if ev := a.Detect(frameWithSquare(100, 100, x, 30, 40)); ev == nil {
			t.Fatalf("frame %d: expected motion event", i)
		}
	}

	// Window is 1.5s; at 300ms spacing only the last 5 samples survive.
	if got := a.WindowSize(); got > 6 {
		t.Fatalf("history window not trimmed: %d samples", got)
	}
}

func TestResolutionChangeResetsModel(t *testing.T) {
	a := NewAccumulator(testConfig())

	a.Detect(solidFrame(100, 100, 0))
	a.Detect(frameWithSquare(100, 100, 30, 30, 40))

	// A different frame size must re-seed the background, not panic or
	// produce a bogus event.
	if ev := a.Detect(solidFrame(50, 50, 0)); ev != nil {
		t.Fatalf("expected nil event after resolution change, got %+v", ev)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := testConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero min area", func(c *Config) { c.MinArea = 0 }},
		{"decay rate one", func(c *Config) { c.DecayRate = 1 }},
		{"decay rate zero", func(c *Config) { c.DecayRate = 0 }},
		{"learning rate zero", func(c *Config) { c.LearningRate = 0 }},
		{"negative threshold", func(c *Config) { c.DetectionThreshold = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
