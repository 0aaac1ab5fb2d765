package capture

import (
	"errors"
	"fmt"
)

// Acquisition error taxonomy. The orchestrator treats all of these as
// a webcam failure; the distinction matters for logs and for the
// interactive API.
var (
	ErrUnconfiguredSource = errors.New("capture: no source configured")
	ErrSourceUnavailable  = errors.New("capture: no stream candidates found")
	ErrPatternMismatch    = errors.New("capture: stream pattern did not match page body")
)

// FetchError reports a failed HTTP fetch.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("capture: fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("capture: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ResolutionError reports a failed video-resolution call for a
// YouTube-backed source.
type ResolutionError struct {
	WatchURL string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("capture: resolve %s: %v", e.WatchURL, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TranscodeError reports a non-zero exit from one of the two ffmpeg
// steps.
type TranscodeError struct {
	Step   string // "clip" or "frame"
	Stream string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("capture: %s step for %s: %v", e.Step, e.Stream, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }
