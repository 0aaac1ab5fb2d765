// Package snapshot persists webcam records and their captured
// snapshots, including crowd estimation results.
package snapshot

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWebcamNotFound is returned when a webcam row does not exist.
	ErrWebcamNotFound = errors.New("webcam not found")

	// ErrSnapshotNotFound is returned when a snapshot row does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Webcam is the persisted state of a configured webcam.
type Webcam struct {
	ID            int64     `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	Available     bool      `json:"available"`
	ProbeFreqMins int       `json:"probe_freq_mins"`
	FailureCount  int       `json:"failure_count"`
	MaxCrowdCount int       `json:"max_crowd_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Snapshot is one captured frame (plus optional source clip) and its
// estimation result. PredictedCount is nil until inference succeeds.
type Snapshot struct {
	ID                 string    `json:"id"`
	WebcamID           int64     `json:"webcam_id"`
	Timestamp          time.Time `json:"timestamp"`
	ImagePath          string    `json:"image_path,omitempty"`
	VideoPath          string    `json:"video_path,omitempty"`
	PredictedCount     *int      `json:"predicted_count,omitempty"`
	PredictedImagePath string    `json:"predicted_image_path,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// ListOptions filters snapshot listings.
type ListOptions struct {
	WebcamID int64
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// Repository is the persistence interface for webcams and snapshots.
type Repository interface {
	UpsertWebcam(ctx context.Context, w *Webcam) error
	GetWebcam(ctx context.Context, slug string) (*Webcam, error)
	ListWebcams(ctx context.Context) ([]Webcam, error)
	RecordFailure(ctx context.Context, webcamID int64) error
	RecordSuccess(ctx context.Context, webcamID int64, crowdCount int) error

	CreateSnapshot(ctx context.Context, s *Snapshot) error
	UpdateSnapshot(ctx context.Context, s *Snapshot) error
	ListSnapshots(ctx context.Context, opts ListOptions) ([]Snapshot, int, error)
	ListSnapshotsOlderThan(ctx context.Context, webcamID int64, cutoff time.Time) ([]Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error
	LastSnapshotTime(ctx context.Context, webcamID int64) (time.Time, error)
}
