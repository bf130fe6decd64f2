package incident

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
)

// VideoEncoder turns a frame sequence into a video artifact on disk and
// returns its path. Encoding is always synchronous; dispatching the artifact
// afterwards is the recorder's concern.
type VideoEncoder interface {
	Encode(ctx context.Context, incidentID string, frames []Frame, fps int) (string, error)
}

// FFmpegEncoder pipes the JPEG sequence through ffmpeg into an H.264 mp4.
type FFmpegEncoder struct {
	// TempDir receives in-progress artifacts; the store moves them away.
	TempDir string
}

var _ VideoEncoder = (*FFmpegEncoder)(nil)

// NewFFmpegEncoder writes artifacts under tempDir (os.TempDir when empty).
func NewFFmpegEncoder(tempDir string) *FFmpegEncoder {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &FFmpegEncoder{TempDir: tempDir}
}

// Encode runs ffmpeg in image2pipe mode, feeding JPEGs on stdin.
func (e *FFmpegEncoder) Encode(ctx context.Context, incidentID string, frames []Frame, fps int) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("no frames to encode")
	}
	if fps <= 0 {
		fps = 30
	}

	outPath := filepath.Join(e.TempDir, incidentID+".mp4")

	args := []string{
		"-y",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "veryfast",
		outPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Consume stderr silently
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	writeErr := func() error {
		defer stdin.Close()
		w := bufio.NewWriter(stdin)
		for _, f := range frames {
			if _, err := w.Write(f.JPEG); err != nil {
				return err
			}
		}
		return w.Flush()
	}()

	if err := cmd.Wait(); err != nil {
		os.Remove(outPath)
		if writeErr != nil {
			return "", fmt.Errorf("failed to feed frames to ffmpeg: %w", writeErr)
		}
		return "", fmt.Errorf("ffmpeg exited with error: %w", err)
	}

	log.Printf("[Encoder] encoded %d frames at %dfps -> %s", len(frames), fps, outPath)
	return outPath, nil
}
