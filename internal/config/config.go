// Package config provides configuration management for the crowd
// estimation service.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/coastwatch/coastwatch/internal/capture"
)

// Config is the root service configuration.
type Config struct {
	Version string         `yaml:"version"`
	System  SystemConfig   `yaml:"system"`
	Vision  VisionConfig   `yaml:"vision"`
	API     APIConfig      `yaml:"api"`
	Bus     BusConfig      `yaml:"bus"`
	Webcams []WebcamConfig `yaml:"webcams"`

	// Internal fields
	mu       sync.RWMutex    `yaml:"-"`
	path     string          `yaml:"-"`
	watchers []func(*Config) `yaml:"-"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Name      string        `yaml:"name"`
	MediaRoot string        `yaml:"media_root"`
	DataPath  string        `yaml:"data_path"`
	Logging   LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// VisionConfig holds density-model settings.
type VisionConfig struct {
	ModelPath string        `yaml:"model_path"`
	Heatmap   HeatmapConfig `yaml:"heatmap"`
}

// HeatmapConfig exposes the overlay's two visual knobs.
type HeatmapConfig struct {
	AlphaGain float64 `yaml:"alpha_gain"`
	AlphaCeil int     `yaml:"alpha_ceil"`
}

// APIConfig holds the HTTP API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// BusConfig holds embedded event bus settings.
type BusConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"` // -1 picks a free port
}

// WebcamConfig holds configuration for a single beach webcam.
type WebcamConfig struct {
	Name          string         `yaml:"name"`
	Slug          string         `yaml:"slug,omitempty"` // derived from name when empty
	Lat           float64        `yaml:"lat,omitempty"`
	Lon           float64        `yaml:"lon,omitempty"`
	Description   string         `yaml:"description,omitempty"`
	Enabled       bool           `yaml:"enabled"`
	ProbeFreqMins int            `yaml:"probe_freq_mins"`
	ClipSeconds   int            `yaml:"clip_seconds"`
	RetentionDays int            `yaml:"retention_days"`
	Masks         []string       `yaml:"masks,omitempty"`
	Source        capture.Source `yaml:"source"`
}

// CaptureConfig maps the webcam entry onto the capture layer's view
// of it.
func (w WebcamConfig) CaptureConfig() capture.Config {
	return capture.Config{
		Slug:        w.Slug,
		Source:      w.Source,
		ClipSeconds: w.ClipSeconds,
		Retention:   w.Retention(),
		Masks:       w.Masks,
	}
}

// Retention returns the webcam's artifact retention window.
func (w WebcamConfig) Retention() time.Duration {
	return time.Duration(w.RetentionDays) * 24 * time.Hour
}

// envOverrides are the environment knobs honored on top of the file,
// mostly for containerized deployments.
type envOverrides struct {
	LogLevel  string `env:"LOG_LEVEL"`
	MediaRoot string `env:"MEDIA_ROOT"`
	DataPath  string `env:"DATA_PATH"`
	ModelPath string `env:"MODEL_PATH"`
	APIListen string `env:"API_LISTEN"`
}

// Load loads configuration from a YAML file, applies environment
// overrides and defaults, and validates webcam entries.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.path = path

	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.applyEnv(o)

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(o envOverrides) {
	if o.LogLevel != "" {
		c.System.Logging.Level = o.LogLevel
	}
	if o.MediaRoot != "" {
		c.System.MediaRoot = o.MediaRoot
	}
	if o.DataPath != "" {
		c.System.DataPath = o.DataPath
	}
	if o.ModelPath != "" {
		c.Vision.ModelPath = o.ModelPath
	}
	if o.APIListen != "" {
		c.API.Listen = o.APIListen
	}
}

// setDefaults sets default values for unset fields.
func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.System.MediaRoot == "" {
		c.System.MediaRoot = "/data/media"
	}
	if c.System.DataPath == "" {
		c.System.DataPath = "/data"
	}
	if c.System.Logging.Level == "" {
		c.System.Logging.Level = "info"
	}
	if c.System.Logging.Format == "" {
		c.System.Logging.Format = "json"
	}
	if c.Vision.ModelPath == "" {
		c.Vision.ModelPath = "/data/models/density.onnx"
	}
	if c.Vision.Heatmap.AlphaGain <= 0 {
		c.Vision.Heatmap.AlphaGain = 250
	}
	if c.Vision.Heatmap.AlphaCeil <= 0 {
		c.Vision.Heatmap.AlphaCeil = 75
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.Bus.Host == "" {
		c.Bus.Host = "127.0.0.1"
	}
	if c.Bus.Port == 0 {
		c.Bus.Port = -1 // let the embedded server pick a free port
	}

	for i := range c.Webcams {
		w := &c.Webcams[i]
		if w.Slug == "" {
			w.Slug = Slugify(w.Name)
		}
		if w.ProbeFreqMins <= 0 {
			w.ProbeFreqMins = 60
		}
		if w.ClipSeconds <= 0 {
			w.ClipSeconds = capture.DefaultClipSeconds
		}
		if w.RetentionDays <= 0 {
			w.RetentionDays = 1
		}
	}
}

// Validate checks webcam entries for structural problems.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Webcams))
	for _, w := range c.Webcams {
		if w.Name == "" {
			return fmt.Errorf("webcam with empty name")
		}
		if seen[w.Slug] {
			return fmt.Errorf("duplicate webcam slug %q", w.Slug)
		}
		seen[w.Slug] = true
		if err := w.Source.Validate(); err != nil {
			return fmt.Errorf("webcam %q: %w", w.Name, err)
		}
	}
	return nil
}

// WebcamList returns a copy of the configured webcams, safe to
// iterate while the file watcher swaps the config underneath.
func (c *Config) WebcamList() []WebcamConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]WebcamConfig(nil), c.Webcams...)
}

// MediaRoot returns the artifact root path.
func (c *Config) MediaRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.MediaRoot
}

// GetWebcam returns a webcam entry by slug.
func (c *Config) GetWebcam(slug string) *WebcamConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.Webcams {
		if c.Webcams[i].Slug == slug {
			return &c.Webcams[i]
		}
	}
	return nil
}

// Watch starts watching for configuration file changes.
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					time.Sleep(100 * time.Millisecond) // Debounce
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watch error", "error", err)
			}
		}
	}()

	return watcher.Add(c.path)
}

// OnChange registers a callback for config changes.
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// reload reloads the configuration from disk.
func (c *Config) reload() {
	newCfg, err := Load(c.path)
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	// Copy fields individually to avoid copying the mutex
	c.Version = newCfg.Version
	c.System = newCfg.System
	c.Vision = newCfg.Vision
	c.API = newCfg.API
	c.Bus = newCfg.Bus
	c.Webcams = newCfg.Webcams
	watchers := c.watchers
	c.mu.Unlock()

	slog.Info("Configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a filesystem- and URL-safe identifier from a
// webcam's display name.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
