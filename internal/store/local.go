package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// LocalStore keeps incident artifacts on the local filesystem under a save
// directory, one subdirectory per incident:
//
//	<dir>/<incident_id>/incident.mp4
//	<dir>/<incident_id>/metadata.json
type LocalStore struct {
	dir string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates the save directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create save dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the root save directory.
func (ls *LocalStore) Dir() string {
	return ls.dir
}

// VideoPath returns where an incident's video artifact lives.
func (ls *LocalStore) VideoPath(incidentID string) string {
	return filepath.Join(ls.dir, incidentID, "incident.mp4")
}

// Store moves the encoded video into the incident directory and writes the
// metadata JSON next to it.
func (ls *LocalStore) Store(ctx context.Context, meta Metadata, videoPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	incidentDir := filepath.Join(ls.dir, meta.IncidentID)
	if err := os.MkdirAll(incidentDir, 0o755); err != nil {
		return fmt.Errorf("failed to create incident dir: %w", err)
	}

	dst := filepath.Join(incidentDir, "incident.mp4")
	if videoPath != dst {
		if err := moveFile(videoPath, dst); err != nil {
			return fmt.Errorf("failed to place video artifact: %w", err)
		}
	}

	metaPath := filepath.Join(incidentDir, "metadata.json")
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	log.Printf("[Store] saved incident %s (%d frames) to %s", meta.IncidentID, meta.FrameCount, incidentDir)
	return nil
}

// ReadMetadata loads one incident's metadata file.
func (ls *LocalStore) ReadMetadata(incidentID string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(ls.dir, incidentID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", incidentID, err)
	}
	return &meta, nil
}

// moveFile renames when possible and falls back to copy+remove across
// filesystems (encoder temp dir may be on a different mount).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
