package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"watchdog/internal/motion"
)

var (
	motionColor = color.RGBA{0, 255, 0, 255}
	alertColor  = color.RGBA{255, 0, 0, 255}
	textColor   = color.RGBA{255, 255, 255, 255}
)

// annotate draws motion region boxes and a status line onto the frame and
// re-encodes it as JPEG. Debug overlay for the live stream; stored incident
// frames stay clean.
func annotate(img image.Image, ev *motion.Event, recording bool) ([]byte, error) {
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)

	boxColor := motionColor
	if recording || (ev != nil && ev.ThresholdExceeded) {
		boxColor = alertColor
	}

	if ev != nil {
		for _, r := range ev.Regions {
			drawRect(rgba, r.Bounds, boxColor)
		}
		status := fmt.Sprintf("area=%.0f acc=%.0f", ev.Area, ev.Accumulated)
		drawLabel(rgba, 5, 15, status, textColor)
	}
	if recording {
		drawLabel(rgba, 5, 30, "REC", alertColor)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode annotated frame: %w", err)
	}
	return buf.Bytes(), nil
}

// drawRect draws a 2px rectangle outline.
func drawRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for t := 0; t < 2; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, r.Min.Y+t, c)
			img.Set(x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			img.Set(r.Min.X+t, y, c)
			img.Set(r.Max.X-1-t, y, c)
		}
	}
}

// drawLabel draws text at (x, y) with a dark backing strip for readability.
func drawLabel(img *image.RGBA, x, y int, label string, c color.Color) {
	w := len(label) * 7
	bg := image.Rect(x-2, y-11, x+w+2, y+4).Intersect(img.Bounds())
	draw.Draw(img, bg, image.NewUniform(color.RGBA{0, 0, 0, 180}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(label)
}
