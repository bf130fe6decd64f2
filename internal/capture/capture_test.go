package capture

import (
	"bytes"
	"testing"
)

func TestExtractJPEGFrame(t *testing.T) {
	frame1 := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}
	frame2 := []byte{0xFF, 0xD8, 0x04, 0x05, 0xFF, 0xD9}

	buffer := append([]byte{0xDE, 0xAD}, frame1...) // leading garbage
	buffer = append(buffer, frame2...)
	buffer = append(buffer, 0xFF, 0xD8, 0x06) // trailing partial frame

	got1 := extractJPEGFrame(&buffer)
	if !bytes.Equal(got1, frame1) {
		t.Fatalf("first frame mismatch: %x", got1)
	}

	got2 := extractJPEGFrame(&buffer)
	if !bytes.Equal(got2, frame2) {
		t.Fatalf("second frame mismatch: %x", got2)
	}

	if got := extractJPEGFrame(&buffer); got != nil {
		t.Fatalf("partial frame must not be extracted, got %x", got)
	}
}

func TestExtractJPEGFrameShortBuffer(t *testing.T) {
	buffer := []byte{0xFF, 0xD8}
	if got := extractJPEGFrame(&buffer); got != nil {
		t.Fatalf("expected nil for short buffer, got %x", got)
	}
}
