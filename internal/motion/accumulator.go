package motion

import (
	"image"
	"log"
	"time"
)

type sample struct {
	t    time.Time
	area float64
}

// Accumulator detects motion against an adaptive background model and keeps
// an exponentially decayed running sum of motion area across frames. The sum
// is the sustained-motion signal that authorizes the expensive classification
// stage; a single noisy frame cannot cross it.
//
// Frames must be fixed-size for the life of the accumulator; a resolution
// change resets the background model. Not safe for concurrent use — the
// pipeline consumer owns it.
type Accumulator struct {
	cfg Config

	width      int
	height     int
	background []float32 // running-average grayscale model

	accumulated float64
	history     []sample
	frameCount  int
	lastLog     time.Time

	now func() time.Time
}

// NewAccumulator creates a motion accumulator. The background model
// initializes from the first frame seen.
func NewAccumulator(cfg Config) *Accumulator {
	return &Accumulator{
		cfg: cfg,
		now: time.Now,
	}
}

// Accumulated returns the current decayed motion sum.
func (a *Accumulator) Accumulated() float64 {
	return a.accumulated
}

// WindowSize returns the number of samples currently inside the temporal
// window. Telemetry only; it does not gate the threshold.
func (a *Accumulator) WindowSize() int {
	return len(a.history)
}

// Detect analyzes one frame. It returns nil when no contour exceeds MinArea;
// the accumulated sum is left untouched in that case. On a qualifying frame
// it returns the motion event and updates the decayed sum and the history
// window.
func (a *Accumulator) Detect(img image.Image) *Event {
	now := a.now()
	a.frameCount++
	a.trimWindow(now)

	gray := grayscale(img)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	if a.background == nil || w != a.width || h != a.height {
		a.width, a.height = w, h
		a.background = make([]float32, len(gray))
		copy(a.background, gray)
		return nil
	}

	mask := a.subtractBackground(gray)
	mask = morphOpen(mask, w, h)
	mask = morphClose(mask, w, h)

	regions := findRegions(mask, w, h, float64(a.cfg.MinArea))
	if len(regions) == 0 {
		return nil
	}

	var total float64
	largest := regions[0]
	for _, r := range regions {
		total += r.Area
		if r.Area > largest.Area {
			largest = r
		}
	}

	accumulated, exceeded := a.integrate(now, total)

	a.logDetection(now, total, largest.Center, exceeded)

	return &Event{
		Regions:           regions,
		Mask:              maskImage(mask, w, h),
		Area:              total,
		Center:            largest.Center,
		Accumulated:       accumulated,
		ThresholdExceeded: exceeded,
	}
}

// integrate folds one frame's qualifying area into the decayed sum and the
// history window, and reports whether the accumulation threshold is crossed.
func (a *Accumulator) integrate(now time.Time, area float64) (float64, bool) {
	a.history = append(a.history, sample{t: now, area: area})
	a.accumulated = a.accumulated*a.cfg.DecayRate + area
	return a.accumulated, a.accumulated > a.cfg.AccumulationThreshold
}

// trimWindow drops history samples older than the temporal window.
func (a *Accumulator) trimWindow(now time.Time) {
	if a.cfg.TemporalWindow <= 0 {
		return
	}
	cutoff := now.Add(-a.cfg.TemporalWindow)
	i := 0
	for i < len(a.history) && a.history[i].t.Before(cutoff) {
		i++
	}
	if i > 0 {
		a.history = append(a.history[:0], a.history[i:]...)
	}
}

// subtractBackground computes the binary foreground mask and then adapts the
// background toward the current frame at the configured learning rate.
func (a *Accumulator) subtractBackground(gray []float32) []uint8 {
	mask := make([]uint8, len(gray))
	threshold := float32(a.cfg.DetectionThreshold)
	lr := float32(a.cfg.LearningRate)

	for i, v := range gray {
		diff := v - a.background[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > threshold {
			mask[i] = 1
		}
		a.background[i] = a.background[i]*(1-lr) + v*lr
	}
	return mask
}

// logDetection logs threshold-exceeded events always and quiet motion at
// most once per second. Observability only; never affects detection.
func (a *Accumulator) logDetection(now time.Time, area float64, center image.Point, exceeded bool) {
	if exceeded {
		log.Printf("[Motion] threshold exceeded: area=%.0fpx accumulated=%.0f center=(%d,%d) window=%d",
			area, a.accumulated, center.X, center.Y, len(a.history))
		return
	}
	if now.Sub(a.lastLog) > time.Second {
		log.Printf("[Motion] motion detected: area=%.0fpx accumulated=%.0f", area, a.accumulated)
		a.lastLog = now
	}
}

// grayscale converts a frame to a flat luma buffer.
func grayscale(img image.Image) []float32 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]float32, w*h)

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			row := g.Pix[y*g.Stride : y*g.Stride+w]
			for x, v := range row {
				out[y*w+x] = float32(v)
			}
		}
		return out
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// BT.601 luma on 16-bit channel values, scaled to 0-255
			luma := (299*float32(r) + 587*float32(g) + 114*float32(b)) / 1000 / 257
			out[y*w+x] = luma
		}
	}
	return out
}

// erode clears pixels whose 3x3 neighborhood is not fully set. Pixels
// outside the frame count as unset.
func erode(mask []uint8, w, h int) []uint8 {
	out := make([]uint8, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y*w+x] == 0 {
				continue
			}
			set := uint8(1)
			for dy := -1; dy <= 1 && set == 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h || mask[ny*w+nx] == 0 {
						set = 0
						break
					}
				}
			}
			out[y*w+x] = set
		}
	}
	return out
}

// dilate sets pixels with any set pixel in their 3x3 neighborhood.
func dilate(mask []uint8, w, h int) []uint8 {
	out := make([]uint8, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if anyNeighborSet(mask, w, h, x, y) {
				out[y*w+x] = 1
			}
		}
	}
	return out
}

func anyNeighborSet(mask []uint8, w, h, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx >= 0 && ny >= 0 && nx < w && ny < h && mask[ny*w+nx] == 1 {
				return true
			}
		}
	}
	return false
}

func morphOpen(mask []uint8, w, h int) []uint8 {
	return dilate(erode(mask, w, h), w, h)
}

func morphClose(mask []uint8, w, h int) []uint8 {
	return erode(dilate(mask, w, h), w, h)
}

// findRegions labels 8-connected components in the mask and returns those
// whose pixel area exceeds minArea.
func findRegions(mask []uint8, w, h int, minArea float64) []Region {
	visited := make([]bool, len(mask))
	var regions []Region
	var queue []int

	for start := range mask {
		if mask[start] == 0 || visited[start] {
			continue
		}

		queue = append(queue[:0], start)
		visited[start] = true

		var area, sumX, sumY float64
		minX, minY := w, h
		maxX, maxY := 0, 0

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]

			x, y := idx%w, idx/w
			area++
			sumX += float64(x)
			sumY += float64(y)
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if mask[nidx] == 1 && !visited[nidx] {
						visited[nidx] = true
						queue = append(queue, nidx)
					}
				}
			}
		}

		if area <= minArea {
			continue
		}

		center := image.Point{}
		if area > 0 {
			center = image.Point{X: int(sumX / area), Y: int(sumY / area)}
		}
		regions = append(regions, Region{
			Bounds: image.Rect(minX, minY, maxX+1, maxY+1),
			Area:   area,
			Center: center,
		})
	}
	return regions
}

func maskImage(mask []uint8, w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range mask {
		if v == 1 {
			img.Pix[i] = 255
		}
	}
	return img
}
