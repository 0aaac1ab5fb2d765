package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Transcoder copies a fixed-length clip out of a live stream and
// extracts a representative still frame, both via ffmpeg.
type Transcoder struct {
	Binary string // defaults to "ffmpeg"

	// Margin added on top of the clip length when bounding the clip
	// step, and used alone for the frame step. Live HLS sources can
	// hang indefinitely without it.
	Margin time.Duration

	logger *slog.Logger
}

// NewTranscoder returns a transcoder using the ffmpeg found on PATH.
func NewTranscoder() *Transcoder {
	return &Transcoder{
		Binary: "ffmpeg",
		Margin: 60 * time.Second,
		logger: slog.Default().With("component", "transcoder"),
	}
}

// Capture copies seconds of streamURL into videoPath without
// re-encoding, then extracts the frame at the clip midpoint into
// imagePath. Existing outputs are overwritten. The frame step is not
// attempted when the clip step fails.
func (t *Transcoder) Capture(ctx context.Context, streamURL string, seconds int, videoPath, imagePath string) error {
	clipArgs := []string{
		"-y",
		"-i", streamURL,
		"-t", strconv.Itoa(seconds),
		"-c", "copy",
		"-f", "mp4",
		videoPath,
	}
	clipTimeout := time.Duration(seconds)*time.Second + t.margin()
	if err := t.run(ctx, clipArgs, clipTimeout); err != nil {
		return &TranscodeError{Step: "clip", Stream: streamURL, Err: err}
	}

	frameArgs := []string{
		"-y",
		"-i", videoPath,
		"-vcodec", "mjpeg",
		"-vframes", "1",
		"-an",
		"-f", "rawvideo",
		"-ss", strconv.FormatFloat(float64(seconds)/2, 'f', -1, 64),
		imagePath,
	}
	if err := t.run(ctx, frameArgs, t.margin()); err != nil {
		return &TranscodeError{Step: "frame", Stream: streamURL, Err: err}
	}
	return nil
}

func (t *Transcoder) margin() time.Duration {
	if t.Margin <= 0 {
		return 60 * time.Second
	}
	return t.Margin
}

// log tolerates zero-value construction, like Binary and Margin.
func (t *Transcoder) log() *slog.Logger {
	if t.logger == nil {
		return slog.Default()
	}
	return t.logger
}

func (t *Transcoder) run(ctx context.Context, args []string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := t.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.log().Debug("Running ffmpeg", "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
