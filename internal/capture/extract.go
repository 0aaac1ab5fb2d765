package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const defaultFetchTimeout = 30 * time.Second

// NetworkRequest is one observed browser request, in observation
// order.
type NetworkRequest struct {
	URL         string
	HasResponse bool
}

// BrowserProbe observes network traffic while clicking through a
// page. Implemented by ChromeProbe.
type BrowserProbe interface {
	ObserveNetworkRequests(ctx context.Context, pageURL, element string) ([]NetworkRequest, error)
}

// ResolvedVideo is the output of a video-resolution call: either a
// single media URL or a playlist of entries.
type ResolvedVideo struct {
	URL     string
	Entries []ResolvedVideo
}

// VideoResolver resolves a watch-page URL into direct media URLs.
// Implemented by YTDLPResolver.
type VideoResolver interface {
	Resolve(ctx context.Context, watchURL string) (*ResolvedVideo, error)
}

// Extractor resolves a capture source into candidate stream URLs.
type Extractor struct {
	client   *http.Client
	browser  BrowserProbe
	resolver VideoResolver
	logger   *slog.Logger
}

// NewExtractor builds an extractor. Client may be nil, in which case
// a default client with a bounded timeout is used.
func NewExtractor(client *http.Client, browser BrowserProbe, resolver VideoResolver) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Extractor{
		client:   client,
		browser:  browser,
		resolver: resolver,
		logger:   slog.Default().With("component", "extractor"),
	}
}

// Resolve returns candidate stream URLs for src, best candidate
// first.
func (e *Extractor) Resolve(ctx context.Context, src Source) ([]string, error) {
	switch src.Kind() {
	case KindStaticStream:
		return []string{src.StaticStream.M3U8URL}, nil
	case KindRegexStream:
		return e.resolveRegex(ctx, src.RegexStream)
	case KindClickStream:
		return e.resolveClick(ctx, src.ClickStream)
	case KindYouTubeStream:
		return e.resolveYouTube(ctx, src.YouTubeStream)
	case KindStaticImage:
		return nil, fmt.Errorf("capture: static image source %q has no stream", src.StaticImage.URLTemplate)
	default:
		return nil, ErrUnconfiguredSource
	}
}

func (e *Extractor) resolveRegex(ctx context.Context, rs *RegexStream) ([]string, error) {
	body, err := e.fetchPage(ctx, rs.PageURL)
	if err != nil {
		return nil, err
	}

	re, err := regexp.Compile(rs.Pattern)
	if err != nil {
		return nil, fmt.Errorf("capture: invalid stream pattern: %w", err)
	}
	match := re.FindStringSubmatch(string(body))
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrPatternMismatch, rs.PageURL)
	}

	url := rs.URLFormat
	for i, name := range re.SubexpNames() {
		if name == "" || i >= len(match) {
			continue
		}
		url = strings.ReplaceAll(url, "{"+name+"}", match[i])
	}
	return []string{url}, nil
}

func (e *Extractor) resolveClick(ctx context.Context, cs *ClickStream) ([]string, error) {
	if e.browser == nil {
		return nil, errors.New("capture: no browser probe configured")
	}
	requests, err := e.browser.ObserveNetworkRequests(ctx, cs.PageURL, cs.Element)
	if err != nil {
		return nil, err
	}

	// Only playlist requests that actually got a response are
	// playable candidates.
	var urls []string
	for _, r := range requests {
		if strings.Contains(r.URL, ".m3u8") && r.HasResponse {
			urls = append(urls, r.URL)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, cs.PageURL)
	}
	return urls, nil
}

func (e *Extractor) resolveYouTube(ctx context.Context, ys *YouTubeStream) ([]string, error) {
	if e.resolver == nil {
		return nil, errors.New("capture: no video resolver configured")
	}
	video, err := e.resolver.Resolve(ctx, ys.WatchURL)
	if err != nil {
		return nil, &ResolutionError{WatchURL: ys.WatchURL, Err: err}
	}
	if len(video.Entries) > 0 {
		// Playlists resolve to their first entry.
		video = &video.Entries[0]
	}
	if video.URL == "" {
		return nil, &ResolutionError{WatchURL: ys.WatchURL, Err: errors.New("no media URL in extractor output")}
	}
	return []string{video.URL}, nil
}

func (e *Extractor) fetchPage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	resp, err := e.client.Do(req)
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
	return body, nil
}
