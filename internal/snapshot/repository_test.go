package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/coastwatch/coastwatch/internal/database"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(&database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.NewMigrator(db).Run(context.Background()); err != nil {
		t.Fatalf("Migrations failed: %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func testWebcam(t *testing.T, repo *SQLiteRepository, slug string) *Webcam {
	t.Helper()
	w := &Webcam{
		Slug:          slug,
		Name:          "Test " + slug,
		Available:     true,
		ProbeFreqMins: 60,
	}
	if err := repo.UpsertWebcam(context.Background(), w); err != nil {
		t.Fatalf("UpsertWebcam failed: %v", err)
	}
	return w
}

func TestUpsertWebcam(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	w := testWebcam(t, repo, "playa-de-palma")
	if w.ID == 0 {
		t.Fatal("Expected assigned webcam ID")
	}

	// Runtime state survives a config re-sync
	if err := repo.RecordFailure(ctx, w.ID); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	again := &Webcam{Slug: "playa-de-palma", Name: "Renamed", Available: true, ProbeFreqMins: 30}
	if err := repo.UpsertWebcam(ctx, again); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if again.ID != w.ID {
		t.Errorf("Expected same ID %d, got %d", w.ID, again.ID)
	}
	if again.FailureCount != 1 {
		t.Errorf("Expected preserved failure count 1, got %d", again.FailureCount)
	}

	got, err := repo.GetWebcam(ctx, "playa-de-palma")
	if err != nil {
		t.Fatalf("GetWebcam failed: %v", err)
	}
	if got.Name != "Renamed" || got.ProbeFreqMins != 30 {
		t.Errorf("Expected refreshed fields, got %+v", got)
	}
}

func TestGetWebcamNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetWebcam(context.Background(), "missing")
	if !errors.Is(err, ErrWebcamNotFound) {
		t.Errorf("Expected ErrWebcamNotFound, got %v", err)
	}
}

func TestListWebcams(t *testing.T) {
	repo := newTestRepository(t)

	testWebcam(t, repo, "beta")
	testWebcam(t, repo, "alpha")

	webcams, err := repo.ListWebcams(context.Background())
	if err != nil {
		t.Fatalf("ListWebcams failed: %v", err)
	}
	if len(webcams) != 2 {
		t.Fatalf("Expected 2 webcams, got %d", len(webcams))
	}
	if webcams[0].Slug != "alpha" {
		t.Errorf("Expected name ordering, got %s first", webcams[0].Slug)
	}
}

func TestFailureAndSuccessCounters(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	w := testWebcam(t, repo, "magaluf")

	for i := 0; i < 3; i++ {
		if err := repo.RecordFailure(ctx, w.ID); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	got, _ := repo.GetWebcam(ctx, "magaluf")
	if got.FailureCount != 3 {
		t.Errorf("Expected failure count 3, got %d", got.FailureCount)
	}

	if err := repo.RecordSuccess(ctx, w.ID, 42); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	got, _ = repo.GetWebcam(ctx, "magaluf")
	if got.FailureCount != 0 {
		t.Errorf("Expected failure count reset, got %d", got.FailureCount)
	}
	if got.MaxCrowdCount != 42 {
		t.Errorf("Expected max crowd count 42, got %d", got.MaxCrowdCount)
	}

	// Maximum is monotonic
	if err := repo.RecordSuccess(ctx, w.ID, 17); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	got, _ = repo.GetWebcam(ctx, "magaluf")
	if got.MaxCrowdCount != 42 {
		t.Errorf("Expected max crowd count to remain 42, got %d", got.MaxCrowdCount)
	}
}

func TestRecordFailureUnknownWebcam(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.RecordFailure(context.Background(), 999)
	if !errors.Is(err, ErrWebcamNotFound) {
		t.Errorf("Expected ErrWebcamNotFound, got %v", err)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	w := testWebcam(t, repo, "cala-major")

	s := &Snapshot{
		WebcamID:  w.ID,
		Timestamp: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
		ImagePath: "/media/img/originals/cala-major_20240701120000.jpg",
		VideoPath: "/media/vid/originals/cala-major_20240701120000.mp4",
	}
	if err := repo.CreateSnapshot(ctx, s); err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}
	if s.ID == "" {
		t.Fatal("Expected assigned snapshot ID")
	}

	count := 23
	s.PredictedCount = &count
	s.PredictedImagePath = "/media/img/predictions/cala-major_20240701120000.png"
	if err := repo.UpdateSnapshot(ctx, s); err != nil {
		t.Fatalf("UpdateSnapshot failed: %v", err)
	}

	snapshots, total, err := repo.ListSnapshots(ctx, ListOptions{WebcamID: w.ID})
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if total != 1 || len(snapshots) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d (total %d)", len(snapshots), total)
	}

	got := snapshots[0]
	if got.PredictedCount == nil || *got.PredictedCount != 23 {
		t.Errorf("Expected predicted count 23, got %v", got.PredictedCount)
	}
	if got.PredictedImagePath != s.PredictedImagePath {
		t.Errorf("Unexpected predicted image path %q", got.PredictedImagePath)
	}
	if !got.Timestamp.Equal(s.Timestamp) {
		t.Errorf("Expected timestamp %v, got %v", s.Timestamp, got.Timestamp)
	}
}

func TestListSnapshotsFiltering(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	w := testWebcam(t, repo, "alcudia")
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s := &Snapshot{WebcamID: w.ID, Timestamp: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.CreateSnapshot(ctx, s); err != nil {
			t.Fatalf("CreateSnapshot failed: %v", err)
		}
	}

	since := base.Add(2 * time.Hour)
	snapshots, total, err := repo.ListSnapshots(ctx, ListOptions{WebcamID: w.ID, Since: &since})
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected 3 matching snapshots, got %d", total)
	}
	// Newest first
	if !snapshots[0].Timestamp.Equal(base.Add(4 * time.Hour)) {
		t.Errorf("Expected newest first, got %v", snapshots[0].Timestamp)
	}

	// Pagination reports the full total
	snapshots, total, err = repo.ListSnapshots(ctx, ListOptions{WebcamID: w.ID, Limit: 2})
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(snapshots) != 2 || total != 5 {
		t.Errorf("Expected page of 2 with total 5, got %d/%d", len(snapshots), total)
	}
}

func TestRetentionQueries(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	w := testWebcam(t, repo, "soller")
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	old := &Snapshot{WebcamID: w.ID, Timestamp: base}
	recent := &Snapshot{WebcamID: w.ID, Timestamp: base.Add(48 * time.Hour)}
	for _, s := range []*Snapshot{old, recent} {
		if err := repo.CreateSnapshot(ctx, s); err != nil {
			t.Fatalf("CreateSnapshot failed: %v", err)
		}
	}

	expired, err := repo.ListSnapshotsOlderThan(ctx, w.ID, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListSnapshotsOlderThan failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("Expected only the old snapshot, got %d", len(expired))
	}

	if err := repo.DeleteSnapshot(ctx, old.ID); err != nil {
		t.Fatalf("DeleteSnapshot failed: %v", err)
	}
	if err := repo.DeleteSnapshot(ctx, old.ID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Expected ErrSnapshotNotFound on second delete, got %v", err)
	}

	last, err := repo.LastSnapshotTime(ctx, w.ID)
	if err != nil {
		t.Fatalf("LastSnapshotTime failed: %v", err)
	}
	if !last.Equal(recent.Timestamp) {
		t.Errorf("Expected last snapshot time %v, got %v", recent.Timestamp, last)
	}
}

func TestLastSnapshotTimeEmpty(t *testing.T) {
	repo := newTestRepository(t)

	w := testWebcam(t, repo, "empty")
	last, err := repo.LastSnapshotTime(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("LastSnapshotTime failed: %v", err)
	}
	if !last.IsZero() {
		t.Errorf("Expected zero time, got %v", last)
	}
}
