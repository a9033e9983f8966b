package playlist

import (
	"os"
	"path/filepath"
	"testing"

	"implayer/api"
)

func TestSplitDisplayName(t *testing.T) {
	tests := []struct {
		path   string
		artist string
		title  string
	}{
		{"/music/Queen - Bohemian Rhapsody.mp3", "Queen", "Bohemian Rhapsody"},
		{"/music/untitled.flac", "", "untitled"},
		{"/music/AC - DC - Back in Black.mp3", "AC", "DC - Back in Black"},
		{"/music/ spaced - out .ogg", "spaced", "out"},
		{"relative - name.wav", "relative", "name"},
	}
	for _, tt := range tests {
		artist, title := SplitDisplayName(tt.path)
		if artist != tt.artist || title != tt.title {
			t.Errorf("SplitDisplayName(%q) = %q / %q, want %q / %q",
				tt.path, artist, title, tt.artist, tt.title)
		}
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want api.FormatKind
	}{
		{"x.mp3", api.FormatMP3},
		{"x.FLAC", api.FormatFLAC},
		{"x.m4a", api.FormatM4A},
		{"x.oga", api.FormatOGG},
		{"x.wav", api.FormatWAV},
		{"x.txt", api.FormatUnknown},
	}
	for _, tt := range tests {
		if got := FormatOf(tt.path); got != tt.want {
			t.Errorf("FormatOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPlaylistID(t *testing.T) {
	if got := PlaylistID("/music/road trip.m3u8"); got != "road trip" {
		t.Errorf("PlaylistID = %q, want %q", got, "road trip")
	}
}

func TestNewSongMissingFlag(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "here.mp3")
	if err := os.WriteFile(real, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if song := NewSong(real); song.Missing {
		t.Error("existing file marked missing")
	}
	if song := NewSong(filepath.Join(dir, "ghost.mp3")); !song.Missing {
		t.Error("absent file not marked missing")
	}
}
