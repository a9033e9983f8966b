package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"implayer/api"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Volume != 0.85 || cfg.SampleRate != 44100 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Policy() != api.EndOfListStop {
		t.Errorf("default policy = %v, want stop", cfg.Policy())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
volume = 0.5
end_of_list = "loop"
log_level = "debug"

[download]
audio_format = "bestaudio"
normalize_command = ["mp3gain", "-r"]
fetch_timeout = "2m"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Volume != 0.5 {
		t.Errorf("volume = %v", cfg.Volume)
	}
	if cfg.Policy() != api.EndOfListLoop {
		t.Errorf("policy = %v, want loop", cfg.Policy())
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("untouched key lost its default: %d", cfg.SampleRate)
	}
	if cfg.Download.AudioFormat != "bestaudio" {
		t.Errorf("audio format = %q", cfg.Download.AudioFormat)
	}
	if got := cfg.Download.FetchTimeout.Duration; got != 2*time.Minute {
		t.Errorf("fetch timeout = %v, want 2m", got)
	}
	if got := cfg.Download.NormalizeTimeout.Duration; got != 5*time.Minute {
		t.Errorf("normalize timeout lost its default: %v", got)
	}
}

func TestLoadAllowsEmptyNormalizeCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[download]\nnormalize_command = []\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// An empty command means the loudness pass is skipped entirely.
	if len(cfg.Download.NormalizeCommand) != 0 {
		t.Errorf("normalize command = %v, want none", cfg.Download.NormalizeCommand)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"volume out of range", "volume = 1.5\n"},
		{"bad policy", `end_of_list = "shuffle"` + "\n"},
		{"zero workers", "probe_workers = 0\n"},
		{"not toml", "volume = = =\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("Load accepted an invalid config")
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.Volume = 0.25
	cfg.Download.FetchTimeout = Duration{90 * time.Second}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Volume != 0.25 {
		t.Errorf("volume = %v", loaded.Volume)
	}
	if got := loaded.Download.FetchTimeout.Duration; got != 90*time.Second {
		t.Errorf("fetch timeout = %v", got)
	}
}

func TestDefaultPathHonorsEnv(t *testing.T) {
	t.Setenv("IMPLAYER_CONFIG", "/tmp/custom.toml")
	if got := DefaultPath(); got != "/tmp/custom.toml" {
		t.Errorf("DefaultPath = %q", got)
	}

	t.Setenv("IMPLAYER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultPath(); got != filepath.Join("/tmp/xdg", "implayer", "config.toml") {
		t.Errorf("DefaultPath = %q", got)
	}
}
