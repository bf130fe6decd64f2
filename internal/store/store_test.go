package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalStorePlacesArtifactAndMetadata(t *testing.T) {
	dir := t.TempDir()
	ls, err := NewLocalStore(filepath.Join(dir, "events"))
	require.NoError(t, err)

	video := filepath.Join(dir, "tmp.mp4")
	require.NoError(t, os.WriteFile(video, []byte("mp4bytes"), 0o644))

	meta := Metadata{
		IncidentID:  "incident_20260824_ab12cd34",
		CameraID:    "cam0",
		TriggeredAt: time.Now().UTC(),
		FinalizedAt: time.Now().UTC(),
		Probability: 0.91,
		FrameCount:  450,
		FPS:         30,
	}
	require.NoError(t, ls.Store(context.Background(), meta, video))

	// Source is gone, artifact is in place.
	_, err = os.Stat(video)
	require.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(ls.VideoPath(meta.IncidentID))
	require.NoError(t, err)
	require.Equal(t, "mp4bytes", string(data))

	got, err := ls.ReadMetadata(meta.IncidentID)
	require.NoError(t, err)
	require.Equal(t, meta.IncidentID, got.IncidentID)
	require.Equal(t, 0.91, got.Probability)
	require.Equal(t, 450, got.FrameCount)
}

type flakyStore struct {
	failures int
	calls    int
}

func (f *flakyStore) Store(ctx context.Context, meta Metadata, videoPath string) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient")
	}
	return nil
}

func TestOutboxRetriesUntilSuccess(t *testing.T) {
	inner := &flakyStore{failures: 2}
	ob := NewOutbox(inner, 3, time.Millisecond)

	err := ob.Store(context.Background(), Metadata{IncidentID: "x"}, "v.mp4")
	require.NoError(t, err)
	require.Equal(t, 3, inner.calls)
}

func TestOutboxGivesUpAfterAttempts(t *testing.T) {
	inner := &flakyStore{failures: 10}
	ob := NewOutbox(inner, 2, time.Millisecond)

	err := ob.Store(context.Background(), Metadata{IncidentID: "x"}, "v.mp4")
	require.Error(t, err)
	require.Equal(t, 2, inner.calls)
}
