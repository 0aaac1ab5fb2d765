package capture

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSourceKind(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		want Kind
	}{
		{"unconfigured", Source{}, KindUnconfigured},
		{"static image", Source{StaticImage: &StaticImage{URLTemplate: "http://x/%Y.jpg"}}, KindStaticImage},
		{"static stream", Source{StaticStream: &StaticStream{M3U8URL: "http://x/cam.m3u8"}}, KindStaticStream},
		{"regex stream", Source{RegexStream: &RegexStream{PageURL: "http://x"}}, KindRegexStream},
		{"click stream", Source{ClickStream: &ClickStream{PageURL: "http://x"}}, KindClickStream},
		{"youtube", Source{YouTubeStream: &YouTubeStream{WatchURL: "http://yt/watch?v=a"}}, KindYouTubeStream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.src.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSourceKindPriority(t *testing.T) {
	// When several arms are set, static image wins over streams and
	// direct streams win over extracted ones.
	src := Source{
		StaticImage:   &StaticImage{URLTemplate: "http://x/%Y.jpg"},
		StaticStream:  &StaticStream{M3U8URL: "http://x/cam.m3u8"},
		YouTubeStream: &YouTubeStream{WatchURL: "http://yt/watch?v=a"},
	}
	if got := src.Kind(); got != KindStaticImage {
		t.Errorf("Kind() = %v, want %v", got, KindStaticImage)
	}

	src.StaticImage = nil
	if got := src.Kind(); got != KindStaticStream {
		t.Errorf("Kind() = %v, want %v", got, KindStaticStream)
	}
}

func TestSourceValidate(t *testing.T) {
	if err := (Source{}).Validate(); !errors.Is(err, ErrUnconfiguredSource) {
		t.Errorf("Validate() on empty source = %v, want ErrUnconfiguredSource", err)
	}

	valid := Source{StaticStream: &StaticStream{M3U8URL: "http://x/cam.m3u8"}}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() on single-arm source = %v, want nil", err)
	}

	double := Source{
		StaticStream:  &StaticStream{M3U8URL: "http://x/cam.m3u8"},
		YouTubeStream: &YouTubeStream{WatchURL: "http://yt/watch?v=a"},
	}
	if err := double.Validate(); err == nil {
		t.Error("Validate() on double-arm source = nil, want error")
	}
}

func TestSourceYAMLKeys(t *testing.T) {
	// The config file addresses each arm by its short key.
	tests := []struct {
		doc  string
		want Kind
	}{
		{"image:\n  url_template: http://x/%Y.jpg\n", KindStaticImage},
		{"stream:\n  m3u8_url: http://x/cam.m3u8\n", KindStaticStream},
		{"regex:\n  page_url: http://x\n  pattern: \"(?P<url>[^']+)\"\n  url_format: \"{url}\"\n", KindRegexStream},
		{"click:\n  page_url: http://x\n  element: '//*[@id=\"play\"]'\n", KindClickStream},
		{"youtube:\n  watch_url: http://yt/watch?v=a\n", KindYouTubeStream},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			var src Source
			if err := yaml.Unmarshal([]byte(tt.doc), &src); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if got := src.Kind(); got != tt.want {
				t.Errorf("Kind() = %v, want %v", got, tt.want)
			}
			if err := src.Validate(); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Slug: "cala-major"}.withDefaults()

	if cfg.ClipSeconds != DefaultClipSeconds {
		t.Errorf("ClipSeconds = %d, want %d", cfg.ClipSeconds, DefaultClipSeconds)
	}
	if cfg.Retention != DefaultRetention {
		t.Errorf("Retention = %v, want %v", cfg.Retention, DefaultRetention)
	}
}
