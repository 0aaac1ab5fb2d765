package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// UpsertWebcam inserts a webcam row or refreshes the configured
// fields of an existing one, keyed by slug. Runtime state
// (failure_count, max_crowd_count) is preserved across upserts.
func (r *SQLiteRepository) UpsertWebcam(ctx context.Context, w *Webcam) error {
	now := time.Now()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO webcams (slug, name, description, lat, lon, available, probe_freq_mins, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			lat = excluded.lat,
			lon = excluded.lon,
			available = excluded.available,
			probe_freq_mins = excluded.probe_freq_mins,
			updated_at = excluded.updated_at
		RETURNING id, failure_count, max_crowd_count, created_at
	`,
		w.Slug, w.Name, w.Description, w.Lat, w.Lon, boolToInt(w.Available),
		w.ProbeFreqMins, now.Unix(), now.Unix(),
	).Scan(&w.ID, &w.FailureCount, &w.MaxCrowdCount, &scanUnix{&w.CreatedAt})
	if err != nil {
		return fmt.Errorf("upsert webcam %s: %w", w.Slug, err)
	}

	w.UpdatedAt = now
	return nil
}

// GetWebcam retrieves a webcam by slug
func (r *SQLiteRepository) GetWebcam(ctx context.Context, slug string) (*Webcam, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, lat, lon, available,
		       probe_freq_mins, failure_count, max_crowd_count,
		       created_at, updated_at
		FROM webcams WHERE slug = ?
	`, slug)

	w, err := scanWebcam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrWebcamNotFound, slug)
	}
	return w, err
}

// ListWebcams retrieves all webcams ordered by name
func (r *SQLiteRepository) ListWebcams(ctx context.Context) ([]Webcam, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slug, name, description, lat, lon, available,
		       probe_freq_mins, failure_count, max_crowd_count,
		       created_at, updated_at
		FROM webcams ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webcams []Webcam
	for rows.Next() {
		w, err := scanWebcam(rows)
		if err != nil {
			return nil, err
		}
		webcams = append(webcams, *w)
	}
	return webcams, rows.Err()
}

// RecordFailure increments the webcam's consecutive failure counter.
func (r *SQLiteRepository) RecordFailure(ctx context.Context, webcamID int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE webcams
		SET failure_count = failure_count + 1, updated_at = ?
		WHERE id = ?
	`, time.Now().Unix(), webcamID)
	if err != nil {
		return err
	}
	return requireRow(result, ErrWebcamNotFound)
}

// RecordSuccess resets the failure counter and raises the historical
// crowd maximum in a single statement so a concurrent probe cannot
// observe a partial update.
func (r *SQLiteRepository) RecordSuccess(ctx context.Context, webcamID int64, crowdCount int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE webcams
		SET failure_count = 0,
		    max_crowd_count = MAX(max_crowd_count, ?),
		    updated_at = ?
		WHERE id = ?
	`, crowdCount, time.Now().Unix(), webcamID)
	if err != nil {
		return err
	}
	return requireRow(result, ErrWebcamNotFound)
}

// CreateSnapshot inserts a new snapshot row
func (r *SQLiteRepository) CreateSnapshot(ctx context.Context, s *Snapshot) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, webcam_id, timestamp, image_path, video_path,
		                       predicted_count, predicted_image_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID, s.WebcamID, s.Timestamp.Unix(), s.ImagePath, s.VideoPath,
		nullableInt(s.PredictedCount), s.PredictedImagePath, s.CreatedAt.Unix(),
	)
	return err
}

// UpdateSnapshot updates the mutable fields of a snapshot row
func (r *SQLiteRepository) UpdateSnapshot(ctx context.Context, s *Snapshot) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE snapshots
		SET image_path = ?, video_path = ?, predicted_count = ?, predicted_image_path = ?
		WHERE id = ?
	`,
		s.ImagePath, s.VideoPath, nullableInt(s.PredictedCount), s.PredictedImagePath, s.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrSnapshotNotFound)
}

// ListSnapshots retrieves snapshots with filtering and pagination,
// newest first.
func (r *SQLiteRepository) ListSnapshots(ctx context.Context, opts ListOptions) ([]Snapshot, int, error) {
	var conditions []string
	var args []interface{}

	if opts.WebcamID != 0 {
		conditions = append(conditions, "webcam_id = ?")
		args = append(args, opts.WebcamID)
	}
	if opts.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, opts.Since.Unix())
	}
	if opts.Until != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, opts.Until.Unix())
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM snapshots %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, webcam_id, timestamp, image_path, video_path,
		       predicted_count, predicted_image_path, created_at
		FROM snapshots %s
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	snapshots, err := scanSnapshots(rows)
	return snapshots, total, err
}

// ListSnapshotsOlderThan retrieves a webcam's snapshots with a
// timestamp before the cutoff, oldest first. Used by retention.
func (r *SQLiteRepository) ListSnapshotsOlderThan(ctx context.Context, webcamID int64, cutoff time.Time) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, webcam_id, timestamp, image_path, video_path,
		       predicted_count, predicted_image_path, created_at
		FROM snapshots
		WHERE webcam_id = ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, webcamID, cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// DeleteSnapshot removes a snapshot row by ID
func (r *SQLiteRepository) DeleteSnapshot(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrSnapshotNotFound)
}

// LastSnapshotTime returns the most recent snapshot timestamp for a
// webcam, or the zero time when it has none.
func (r *SQLiteRepository) LastSnapshotTime(ctx context.Context, webcamID int64) (time.Time, error) {
	var ts sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM snapshots WHERE webcam_id = ?
	`, webcamID).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWebcam(row rowScanner) (*Webcam, error) {
	w := &Webcam{}
	var available int
	var createdAt, updatedAt int64

	err := row.Scan(
		&w.ID, &w.Slug, &w.Name, &w.Description, &w.Lat, &w.Lon, &available,
		&w.ProbeFreqMins, &w.FailureCount, &w.MaxCrowdCount,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Available = available == 1
	w.CreatedAt = time.Unix(createdAt, 0)
	w.UpdatedAt = time.Unix(updatedAt, 0)
	return w, nil
}

func scanSnapshots(rows *sql.Rows) ([]Snapshot, error) {
	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		var timestamp, createdAt int64
		var predicted sql.NullInt64

		if err := rows.Scan(
			&s.ID, &s.WebcamID, &timestamp, &s.ImagePath, &s.VideoPath,
			&predicted, &s.PredictedImagePath, &createdAt,
		); err != nil {
			return nil, err
		}

		s.Timestamp = time.Unix(timestamp, 0)
		s.CreatedAt = time.Unix(createdAt, 0)
		if predicted.Valid {
			n := int(predicted.Int64)
			s.PredictedCount = &n
		}

		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// scanUnix adapts a *time.Time to sql.Scanner for unixepoch columns.
type scanUnix struct {
	t *time.Time
}

func (s *scanUnix) Scan(src interface{}) error {
	n, ok := src.(int64)
	if !ok {
		return fmt.Errorf("expected int64 timestamp, got %T", src)
	}
	*s.t = time.Unix(n, 0)
	return nil
}

func requireRow(result sql.Result, notFound error) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return notFound
	}
	return nil
}

func nullableInt(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
