// Package orchestrator drives the capture-and-estimate pipeline:
// fetch media for each webcam, run the density model, persist the
// snapshot, and announce the outcome.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/samber/lo"

	"github.com/coastwatch/coastwatch/internal/capture"
	"github.com/coastwatch/coastwatch/internal/config"
	"github.com/coastwatch/coastwatch/internal/events"
	"github.com/coastwatch/coastwatch/internal/metrics"
	"github.com/coastwatch/coastwatch/internal/snapshot"
	"github.com/coastwatch/coastwatch/internal/vision"
)

// MediaFetcher acquires a still frame, and for stream sources a short
// clip, for one webcam.
type MediaFetcher interface {
	Fetch(ctx context.Context, cfg capture.Config, ts time.Time) (*capture.Artifact, error)
}

// Predictor estimates a crowd count and renders the heatmap overlay.
type Predictor interface {
	Predict(ctx context.Context, imagePath string, maskPaths []string) (*vision.Result, error)
}

// Publisher announces probe outcomes on the event bus.
type Publisher interface {
	PublishSnapshotCreated(events.SnapshotEvent) error
	PublishSnapshotFailed(events.SnapshotEvent) error
}

// Runner probes webcams and records the results.
type Runner struct {
	cfg       *config.Config
	repo      snapshot.Repository
	fetcher   MediaFetcher
	predictor Predictor
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner creates a runner over the given pipeline stages.
func NewRunner(
	cfg *config.Config,
	repo snapshot.Repository,
	fetcher MediaFetcher,
	predictor Predictor,
	publisher Publisher,
	m *metrics.Metrics,
) *Runner {
	return &Runner{
		cfg:       cfg,
		repo:      repo,
		fetcher:   fetcher,
		predictor: predictor,
		publisher: publisher,
		metrics:   m,
		logger:    slog.Default().With("component", "runner"),
		now:       time.Now,
	}
}

// SyncWebcams upserts every configured webcam into the repository so
// probe results always have a row to attach to. Runtime state on
// existing rows is preserved.
func (r *Runner) SyncWebcams(ctx context.Context) error {
	for _, w := range r.cfg.WebcamList() {
		row := &snapshot.Webcam{
			Slug:          w.Slug,
			Name:          w.Name,
			Description:   w.Description,
			Lat:           w.Lat,
			Lon:           w.Lon,
			Available:     w.Enabled,
			ProbeFreqMins: w.ProbeFreqMins,
		}
		if err := r.repo.UpsertWebcam(ctx, row); err != nil {
			return fmt.Errorf("sync webcam %s: %w", w.Slug, err)
		}
	}
	return nil
}

// RunOnce probes every enabled webcam once. A failing webcam is
// recorded and skipped; it never aborts the batch.
func (r *Runner) RunOnce(ctx context.Context) error {
	enabled := lo.Filter(r.cfg.WebcamList(), func(w config.WebcamConfig, _ int) bool {
		return w.Enabled
	})
	return r.probe(ctx, enabled)
}

// RunDue probes enabled webcams whose probe interval has elapsed
// since their last snapshot.
func (r *Runner) RunDue(ctx context.Context) error {
	enabled := lo.Filter(r.cfg.WebcamList(), func(w config.WebcamConfig, _ int) bool {
		return w.Enabled
	})

	now := r.now()
	var due []config.WebcamConfig
	for _, w := range enabled {
		row, err := r.repo.GetWebcam(ctx, w.Slug)
		if err != nil {
			r.logger.Warn("Skipping unsynced webcam", "webcam", w.Slug, "error", err)
			continue
		}
		last, err := r.repo.LastSnapshotTime(ctx, row.ID)
		if err != nil {
			r.logger.Warn("Failed to read last snapshot time", "webcam", w.Slug, "error", err)
			continue
		}
		if last.IsZero() || now.Sub(last) >= time.Duration(w.ProbeFreqMins)*time.Minute {
			due = append(due, w)
		}
	}

	return r.probe(ctx, due)
}

func (r *Runner) probe(ctx context.Context, webcams []config.WebcamConfig) error {
	for _, w := range webcams {
		// Stop between webcams on shutdown, not mid-capture.
		if err := ctx.Err(); err != nil {
			return err
		}

		r.metrics.ProbesTotal.Add(1)
		if err := r.processWebcam(ctx, w); err != nil {
			r.metrics.ProbeFailures.Add(1)
			r.logger.Error("Probe failed", "webcam", w.Slug, "error", err)
			r.recordFailure(ctx, w, err)
		}
	}
	return nil
}

// processWebcam runs the full pipeline for one webcam. The snapshot
// row is created as soon as media exists, so a later inference
// failure still leaves the captured frame on record.
func (r *Runner) processWebcam(ctx context.Context, w config.WebcamConfig) error {
	row, err := r.repo.GetWebcam(ctx, w.Slug)
	if err != nil {
		return err
	}

	artifact, err := r.fetcher.Fetch(ctx, w.CaptureConfig(), r.now().UTC())
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	snap := &snapshot.Snapshot{
		WebcamID:  row.ID,
		Timestamp: artifact.Timestamp,
		ImagePath: artifact.ImagePath,
		VideoPath: artifact.VideoPath,
	}
	if err := r.repo.CreateSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	result, err := r.predictor.Predict(ctx, artifact.ImagePath, w.Masks)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	overlayPath, err := capture.ArtifactPath(
		r.cfg.MediaRoot(), capture.DirImagePredictions, w.Slug, artifact.Timestamp, ".png")
	if err != nil {
		return fmt.Errorf("overlay path: %w", err)
	}
	if err := os.WriteFile(overlayPath, result.Overlay, 0644); err != nil {
		return fmt.Errorf("write overlay: %w", err)
	}

	snap.PredictedCount = &result.Count
	snap.PredictedImagePath = overlayPath
	if err := r.repo.UpdateSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("update snapshot: %w", err)
	}
	if err := r.repo.RecordSuccess(ctx, row.ID, result.Count); err != nil {
		return fmt.Errorf("record success: %w", err)
	}

	r.metrics.SnapshotsSaved.Add(1)
	r.metrics.SetCrowdCount(w.Slug, result.Count)

	if err := r.publisher.PublishSnapshotCreated(events.SnapshotEvent{
		WebcamSlug:     w.Slug,
		SnapshotID:     snap.ID,
		Timestamp:      snap.Timestamp,
		PredictedCount: snap.PredictedCount,
	}); err != nil {
		r.logger.Warn("Failed to publish snapshot event", "webcam", w.Slug, "error", err)
	}

	r.logger.Info("Probe completed",
		"webcam", w.Slug, "snapshot", snap.ID, "count", result.Count)
	return nil
}

func (r *Runner) recordFailure(ctx context.Context, w config.WebcamConfig, probeErr error) {
	if row, err := r.repo.GetWebcam(ctx, w.Slug); err == nil {
		if err := r.repo.RecordFailure(ctx, row.ID); err != nil {
			r.logger.Error("Failed to record failure", "webcam", w.Slug, "error", err)
		}
	}

	if err := r.publisher.PublishSnapshotFailed(events.SnapshotEvent{
		WebcamSlug: w.Slug,
		Timestamp:  r.now().UTC(),
		Error:      probeErr.Error(),
	}); err != nil {
		r.logger.Warn("Failed to publish failure event", "webcam", w.Slug, "error", err)
	}
}
