package capture

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Artifact is the output of one capture: a still image and, for
// stream-backed sources, the clip it was extracted from. ImagePath is
// always set; VideoPath is empty for static image sources.
type Artifact struct {
	Timestamp time.Time
	VideoPath string
	ImagePath string
}

// StreamResolver matches Extractor; taken as an interface so tests
// can fake stream resolution.
type StreamResolver interface {
	Resolve(ctx context.Context, src Source) ([]string, error)
}

// Clipper matches Transcoder.
type Clipper interface {
	Capture(ctx context.Context, streamURL string, seconds int, videoPath, imagePath string) error
}

// Fetcher turns a capture config into on-disk artifacts under the
// media root.
type Fetcher struct {
	mediaRoot  string
	client     *http.Client
	extractor  StreamResolver
	transcoder Clipper
	logger     *slog.Logger
}

// NewFetcher builds a fetcher rooted at mediaRoot. The image client
// skips TLS verification: public webcam hosts routinely serve expired
// or self-signed certificates.
func NewFetcher(mediaRoot string, extractor StreamResolver, transcoder Clipper) *Fetcher {
	return &Fetcher{
		mediaRoot: mediaRoot,
		client: &http.Client{
			Timeout: defaultFetchTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		extractor:  extractor,
		transcoder: transcoder,
		logger:     slog.Default().With("component", "fetcher"),
	}
}

// Fetch dispatches on the populated source arm and produces the
// artifact pair for the capture timestamp ts.
func (f *Fetcher) Fetch(ctx context.Context, cfg Config, ts time.Time) (*Artifact, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Source.Validate(); err != nil {
		return nil, err
	}
	if cfg.Source.Kind() == KindStaticImage {
		return f.fetchStatic(ctx, cfg, ts)
	}
	return f.fetchStream(ctx, cfg, ts)
}

func (f *Fetcher) fetchStatic(ctx context.Context, cfg Config, ts time.Time) (*Artifact, error) {
	url, err := strftime.Format(cfg.Source.StaticImage.URLTemplate, ts)
	if err != nil {
		return nil, fmt.Errorf("capture: url template: %w", err)
	}
	imagePath, err := ArtifactPath(f.mediaRoot, DirImageOriginals, cfg.Slug, ts, ".jpg")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if err := os.WriteFile(imagePath, body, 0644); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	f.logger.Debug("Fetched static image", "slug", cfg.Slug, "url", url, "path", imagePath)
	return &Artifact{Timestamp: ts, ImagePath: imagePath}, nil
}

func (f *Fetcher) fetchStream(ctx context.Context, cfg Config, ts time.Time) (*Artifact, error) {
	urls, err := f.extractor.Resolve(ctx, cfg.Source)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, ErrSourceUnavailable
	}

	videoPath, err := ArtifactPath(f.mediaRoot, DirVideoOriginals, cfg.Slug, ts, ".mp4")
	if err != nil {
		return nil, err
	}
	imagePath, err := ArtifactPath(f.mediaRoot, DirImageOriginals, cfg.Slug, ts, ".jpg")
	if err != nil {
		return nil, err
	}

	if err := f.transcoder.Capture(ctx, urls[0], cfg.ClipSeconds, videoPath, imagePath); err != nil {
		return nil, err
	}

	f.logger.Debug("Captured stream clip",
		"slug", cfg.Slug, "stream", urls[0], "video", videoPath, "image", imagePath)
	return &Artifact{Timestamp: ts, VideoPath: videoPath, ImagePath: imagePath}, nil
}
