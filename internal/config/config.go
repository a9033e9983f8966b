package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"implayer/api"
)

// Config holds application configuration.
type Config struct {
	Volume       float64 `toml:"volume"`
	SampleRate   int     `toml:"sample_rate"`
	EndOfList    string  `toml:"end_of_list"` // "stop" or "loop"
	LogLevel     string  `toml:"log_level"`
	ProbeWorkers int     `toml:"probe_workers"`
	WatchChanges bool    `toml:"watch_changes"`

	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`

	Download Download `toml:"download"`
}

// Download configures the fetch and normalize stages of the pipeline.
type Download struct {
	// AudioFormat is the yt-dlp format selector for fetched audio.
	AudioFormat string `toml:"audio_format"`
	// NormalizeCommand is the argv of the loudness normalizer; the fetched
	// file path is appended as the last argument.
	NormalizeCommand []string `toml:"normalize_command"`
	FetchTimeout     Duration `toml:"fetch_timeout"`
	NormalizeTimeout Duration `toml:"normalize_timeout"`
}

// Duration wraps time.Duration so TOML values can be written as "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	d.Duration = v
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Volume:       0.85,
		SampleRate:   44100,
		EndOfList:    string(api.EndOfListStop),
		LogLevel:     "info",
		ProbeWorkers: 4,
		WatchChanges: true,
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		Download: Download{
			AudioFormat:      "ba[ext=m4a] / ba[ext=mp3]",
			NormalizeCommand: []string{"aacgain", "-r"},
			FetchTimeout:     Duration{10 * time.Minute},
			NormalizeTimeout: Duration{5 * time.Minute},
		},
	}
}

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume %f out of range [0,1]", c.Volume)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	switch api.EndOfListPolicy(c.EndOfList) {
	case api.EndOfListStop, api.EndOfListLoop:
	default:
		return fmt.Errorf("end_of_list must be %q or %q, got %q",
			api.EndOfListStop, api.EndOfListLoop, c.EndOfList)
	}
	if c.ProbeWorkers <= 0 {
		return fmt.Errorf("probe_workers must be positive, got %d", c.ProbeWorkers)
	}
	return nil
}

// Policy returns the configured end-of-list policy.
func (c *Config) Policy() api.EndOfListPolicy {
	return api.EndOfListPolicy(c.EndOfList)
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. Unknown keys are tolerated; invalid values are not.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// DefaultPath returns the config file location, honoring IMPLAYER_CONFIG and
// XDG conventions before falling back to the home directory.
func DefaultPath() string {
	if path := os.Getenv("IMPLAYER_CONFIG"); path != "" {
		return path
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "implayer", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.toml"
	}
	return filepath.Join(home, ".config", "implayer", "config.toml")
}
