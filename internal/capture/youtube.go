package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// YTDLPResolver shells out to yt-dlp, which handles the YouTube
// extraction protocol. -J dumps the resolved info as JSON without
// downloading anything.
type YTDLPResolver struct {
	Binary  string        // defaults to "yt-dlp"
	Format  string        // defaults to "bestvideo/best"
	Timeout time.Duration // per-invocation bound

	logger *slog.Logger
}

// NewYTDLPResolver returns a resolver with defaults suitable for live
// beach streams.
func NewYTDLPResolver() *YTDLPResolver {
	return &YTDLPResolver{
		Binary:  "yt-dlp",
		Format:  "bestvideo/best",
		Timeout: 60 * time.Second,
		logger:  slog.Default().With("component", "youtube-resolver"),
	}
}

type ytdlpInfo struct {
	URL     string      `json:"url"`
	Entries []ytdlpInfo `json:"entries"`
}

// Resolve runs yt-dlp against watchURL and returns the extracted
// media URL, including playlist entries when present.
func (r *YTDLPResolver) Resolve(ctx context.Context, watchURL string) (*ResolvedVideo, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := r.Binary
	if bin == "" {
		bin = "yt-dlp"
	}
	format := r.Format
	if format == "" {
		format = "bestvideo/best"
	}
	cmd := exec.CommandContext(ctx, bin, "-J", "-f", format, watchURL)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log().Debug("Resolving stream", "url", watchURL)
	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return nil, fmt.Errorf("yt-dlp: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("yt-dlp output: %w", err)
	}
	return toResolved(&info), nil
}

// log tolerates zero-value construction, like Binary and Timeout.
func (r *YTDLPResolver) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

func toResolved(info *ytdlpInfo) *ResolvedVideo {
	v := &ResolvedVideo{URL: info.URL}
	for i := range info.Entries {
		v.Entries = append(v.Entries, *toResolved(&info.Entries[i]))
	}
	return v
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
