package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// Database is the SQLite-backed incident index. Video artifacts live on disk;
// rows here power the query surface.
type Database struct {
	db *sql.DB
}

// IncidentRecord is one finalized incident row.
type IncidentRecord struct {
	ID          string
	CameraID    string
	TriggeredAt time.Time
	FinalizedAt time.Time
	Probability float64
	Label       string
	MotionArea  float64
	Accumulated float64
	FrameCount  int
	FPS         int
	VideoPath   string
}

// New opens (or creates) the incident database.
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			triggered_at DATETIME NOT NULL,
			finalized_at DATETIME NOT NULL,
			probability REAL NOT NULL,
			label TEXT,
			motion_area REAL,
			accumulated_motion REAL,
			frame_count INTEGER NOT NULL,
			fps INTEGER NOT NULL,
			video_path TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_camera_time ON incidents(camera_id, triggered_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_time ON incidents(triggered_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Println("[Database] migrations completed")
	return nil
}

// SaveIncident inserts or updates an incident row.
func (d *Database) SaveIncident(rec *IncidentRecord) error {
	query := `INSERT INTO incidents
		(id, camera_id, triggered_at, finalized_at, probability, label,
		 motion_area, accumulated_motion, frame_count, fps, video_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finalized_at = excluded.finalized_at,
			frame_count = excluded.frame_count,
			video_path = excluded.video_path`

	_, err := d.db.Exec(query, rec.ID, rec.CameraID, rec.TriggeredAt, rec.FinalizedAt,
		rec.Probability, rec.Label, rec.MotionArea, rec.Accumulated,
		rec.FrameCount, rec.FPS, rec.VideoPath)
	if err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID. Returns (nil, nil) when absent.
func (d *Database) GetIncident(id string) (*IncidentRecord, error) {
	query := `SELECT id, camera_id, triggered_at, finalized_at, probability, label,
		motion_area, accumulated_motion, frame_count, fps, video_path
		FROM incidents WHERE id = ?`

	var rec IncidentRecord
	err := d.db.QueryRow(query, id).Scan(&rec.ID, &rec.CameraID, &rec.TriggeredAt,
		&rec.FinalizedAt, &rec.Probability, &rec.Label, &rec.MotionArea,
		&rec.Accumulated, &rec.FrameCount, &rec.FPS, &rec.VideoPath)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return &rec, nil
}

// ListIncidents returns incidents newest first with optional filtering.
func (d *Database) ListIncidents(cameraID string, since *time.Time, limit int) ([]*IncidentRecord, error) {
	query := `SELECT id, camera_id, triggered_at, finalized_at, probability, label,
		motion_area, accumulated_motion, frame_count, fps, video_path
		FROM incidents WHERE 1=1`
	args := []interface{}{}

	if cameraID != "" {
		query += " AND camera_id = ?"
		args = append(args, cameraID)
	}

	if since != nil {
		query += " AND triggered_at >= ?"
		args = append(args, *since)
	}

	query += " ORDER BY triggered_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*IncidentRecord
	for rows.Next() {
		var rec IncidentRecord
		if err := rows.Scan(&rec.ID, &rec.CameraID, &rec.TriggeredAt, &rec.FinalizedAt,
			&rec.Probability, &rec.Label, &rec.MotionArea, &rec.Accumulated,
			&rec.FrameCount, &rec.FPS, &rec.VideoPath); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, &rec)
	}
	return incidents, nil
}

// DeleteOldIncidents deletes incident rows older than the given time. The
// caller is responsible for removing the artifacts on disk.
func (d *Database) DeleteOldIncidents(before time.Time) (int64, error) {
	result, err := d.db.Exec("DELETE FROM incidents WHERE triggered_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old incidents: %w", err)
	}
	return result.RowsAffected()
}
