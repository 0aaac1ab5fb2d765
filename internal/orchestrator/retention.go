package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/coastwatch/coastwatch/internal/config"
	"github.com/coastwatch/coastwatch/internal/metrics"
	"github.com/coastwatch/coastwatch/internal/snapshot"
)

// Sweeper removes snapshots and their media files once they age past
// a webcam's retention window.
type Sweeper struct {
	cfg     *config.Config
	repo    snapshot.Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// SweepStats summarizes one cleanup cycle.
type SweepStats struct {
	SnapshotsDeleted int
	ArtifactsDeleted int
}

// NewSweeper creates a retention sweeper.
func NewSweeper(cfg *config.Config, repo snapshot.Repository, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		cfg:     cfg,
		repo:    repo,
		metrics: m,
		logger:  slog.Default().With("component", "retention"),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start starts periodic cleanup
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.runCleanupLoop(ctx, interval)
}

// Stop stops periodic cleanup
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
}

func (s *Sweeper) runCleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.RunCleanup(ctx); err != nil {
		s.logger.Error("Initial retention cleanup failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.RunCleanup(ctx); err != nil {
				s.logger.Error("Retention cleanup failed", "error", err)
			}
		}
	}
}

// RunCleanup executes a cleanup cycle across all configured webcams.
// A webcam that fails to clean is logged and skipped.
func (s *Sweeper) RunCleanup(ctx context.Context) (*SweepStats, error) {
	stats := &SweepStats{}

	for _, w := range s.cfg.WebcamList() {
		webcamStats, err := s.cleanupWebcam(ctx, w)
		if err != nil {
			s.logger.Error("Failed to clean up webcam", "webcam", w.Slug, "error", err)
			continue
		}
		stats.SnapshotsDeleted += webcamStats.SnapshotsDeleted
		stats.ArtifactsDeleted += webcamStats.ArtifactsDeleted
	}

	if stats.SnapshotsDeleted > 0 {
		s.logger.Info("Retention cleanup completed",
			"snapshots_deleted", stats.SnapshotsDeleted,
			"artifacts_deleted", stats.ArtifactsDeleted,
		)
	}
	return stats, nil
}

func (s *Sweeper) cleanupWebcam(ctx context.Context, w config.WebcamConfig) (*SweepStats, error) {
	stats := &SweepStats{}

	row, err := s.repo.GetWebcam(ctx, w.Slug)
	if err != nil {
		return stats, err
	}

	cutoff := s.now().Add(-w.Retention())
	expired, err := s.repo.ListSnapshotsOlderThan(ctx, row.ID, cutoff)
	if err != nil {
		return stats, err
	}

	for _, snap := range expired {
		if err := s.deleteSnapshot(ctx, snap, stats); err != nil {
			s.logger.Error("Failed to delete snapshot", "id", snap.ID, "error", err)
			continue
		}
		stats.SnapshotsDeleted++
		s.metrics.SnapshotsDeleted.Add(1)
	}

	return stats, nil
}

// deleteSnapshot removes the snapshot's media files and its row.
// Already-missing files are not an error.
func (s *Sweeper) deleteSnapshot(ctx context.Context, snap snapshot.Snapshot, stats *SweepStats) error {
	for _, path := range []string{snap.ImagePath, snap.VideoPath, snap.PredictedImagePath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("Failed to remove artifact", "path", path, "error", err)
			}
			continue
		}
		stats.ArtifactsDeleted++
		s.metrics.ArtifactsDeleted.Add(1)
	}

	return s.repo.DeleteSnapshot(ctx, snap.ID)
}
