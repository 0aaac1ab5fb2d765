// Package capture acquires webcam media: a still image and, for
// stream-backed sources, the short video clip it was extracted from.
package capture

import (
	"fmt"
	"time"
)

// Kind identifies the acquisition method of a capture source.
type Kind int

const (
	KindUnconfigured Kind = iota
	KindStaticImage
	KindStaticStream
	KindRegexStream
	KindClickStream
	KindYouTubeStream
)

// String returns a human-readable kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindStaticImage:
		return "image"
	case KindStaticStream:
		return "stream"
	case KindRegexStream:
		return "regex"
	case KindClickStream:
		return "click"
	case KindYouTubeStream:
		return "youtube"
	default:
		return "unconfigured"
	}
}

// StaticImage fetches a still image over plain HTTP. The URL may embed
// strftime placeholders (%Y, %m, %d, ...) resolved against the capture
// timestamp.
type StaticImage struct {
	URLTemplate string `yaml:"url_template" json:"url_template"`
}

// StaticStream plays back a known m3u8 playlist URL directly.
type StaticStream struct {
	M3U8URL string `yaml:"m3u8_url" json:"m3u8_url"`
}

// RegexStream fetches an HTML page and extracts the playlist URL with
// a regular expression. Pattern must use named capture groups;
// URLFormat references them as {name}. The pattern is supplied
// pre-escaped by the operator.
type RegexStream struct {
	PageURL   string `yaml:"page_url" json:"page_url"`
	Pattern   string `yaml:"pattern" json:"pattern"`
	URLFormat string `yaml:"url_format" json:"url_format"`
}

// ClickStream loads a page in a headless browser, clicks the player
// element at the XPath locator and collects m3u8 playlist URLs from
// the observed network traffic.
type ClickStream struct {
	PageURL string `yaml:"page_url" json:"page_url"`
	Element string `yaml:"element" json:"element"`
}

// YouTubeStream resolves a YouTube watch URL into its live media URL.
type YouTubeStream struct {
	WatchURL string `yaml:"watch_url" json:"watch_url"`
}

// Source selects exactly one acquisition method for a webcam. When
// more than one arm is populated, resolution follows declaration
// order: static image wins over streams, direct streams over
// extracted ones.
type Source struct {
	StaticImage   *StaticImage   `yaml:"image,omitempty" json:"image,omitempty"`
	StaticStream  *StaticStream  `yaml:"stream,omitempty" json:"stream,omitempty"`
	RegexStream   *RegexStream   `yaml:"regex,omitempty" json:"regex,omitempty"`
	ClickStream   *ClickStream   `yaml:"click,omitempty" json:"click,omitempty"`
	YouTubeStream *YouTubeStream `yaml:"youtube,omitempty" json:"youtube,omitempty"`
}

// Kind resolves the populated arm.
func (s Source) Kind() Kind {
	switch {
	case s.StaticImage != nil:
		return KindStaticImage
	case s.StaticStream != nil:
		return KindStaticStream
	case s.RegexStream != nil:
		return KindRegexStream
	case s.ClickStream != nil:
		return KindClickStream
	case s.YouTubeStream != nil:
		return KindYouTubeStream
	default:
		return KindUnconfigured
	}
}

// Validate checks that exactly one arm is populated.
func (s Source) Validate() error {
	n := 0
	if s.StaticImage != nil {
		n++
	}
	if s.StaticStream != nil {
		n++
	}
	if s.RegexStream != nil {
		n++
	}
	if s.ClickStream != nil {
		n++
	}
	if s.YouTubeStream != nil {
		n++
	}
	if n == 0 {
		return ErrUnconfiguredSource
	}
	if n > 1 {
		return fmt.Errorf("capture: %d acquisition methods configured, want exactly one", n)
	}
	return nil
}

// Defaults applied by Config.withDefaults.
const (
	DefaultClipSeconds = 10
	DefaultRetention   = 24 * time.Hour
)

// Config describes how to capture one webcam.
type Config struct {
	Slug        string
	Source      Source
	ClipSeconds int           // stream clip length
	Retention   time.Duration // artifact retention window
	Masks       []string      // region mask rasters, applied in order
}

func (c Config) withDefaults() Config {
	if c.ClipSeconds <= 0 {
		c.ClipSeconds = DefaultClipSeconds
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	return c
}
